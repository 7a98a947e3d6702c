package wallet

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/faults"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/metrics"
)

// storageKeyMessagePrefix marks the deterministic message the storage layer
// signs to derive its encryption seed. Once a seed is cached for the account
// the signature value is never used again, so re-prompting the user for it
// would be pure friction.
const storageKeyMessagePrefix = "fabstir-llm: derive storage seed v1"

// placeholderSignature is returned for storage-key derivation requests when a
// seed is already cached. 65 zero bytes, the length of a canonical secp256k1
// signature.
var placeholderSignature = "0x" + strings.Repeat("00", 65)

// ChainReader resolves broadcast transactions from the chain. Satisfied by
// *ethclient.Client.
type ChainReader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
}

// BroadcastAdapter bridges the delegated sub-account's atomic multi-call RPC
// into the standard signer capability set: address, message signing, and
// transaction broadcast with bounded confirmation polling. Raw transaction
// signing is unsupported by construction.
type BroadcastAdapter struct {
	rpc     BundleRPC
	chain   ChainReader
	parent  common.Address
	sub     common.Address
	chainID *big.Int

	confirmAttempts int
	confirmInterval time.Duration

	seedMu sync.RWMutex
	seeds  map[common.Address][]byte
}

// NewBroadcastAdapter creates the adapter for one delegated account.
func NewBroadcastAdapter(rpc BundleRPC, chain ChainReader, parent, sub common.Address, chainID int64, confirmAttempts int, confirmInterval time.Duration) *BroadcastAdapter {
	if confirmAttempts <= 0 {
		confirmAttempts = 30
	}
	return &BroadcastAdapter{
		rpc:             rpc,
		chain:           chain,
		parent:          parent,
		sub:             sub,
		chainID:         big.NewInt(chainID),
		confirmAttempts: confirmAttempts,
		confirmInterval: confirmInterval,
		seeds:           make(map[common.Address][]byte),
	}
}

// Address returns the cached delegated-account address. No side effects.
func (a *BroadcastAdapter) Address() common.Address {
	return a.sub
}

// ParentAddress returns the primary (funded) account address.
func (a *BroadcastAdapter) ParentAddress() common.Address {
	return a.parent
}

// CacheSeed records a derived storage seed for the account, after which
// storage-key derivation messages are answered with a placeholder signature.
func (a *BroadcastAdapter) CacheSeed(account common.Address, seed []byte) {
	a.seedMu.Lock()
	defer a.seedMu.Unlock()
	a.seeds[account] = append([]byte(nil), seed...)
}

func (a *BroadcastAdapter) hasCachedSeed(account common.Address) bool {
	a.seedMu.RLock()
	defer a.seedMu.RUnlock()
	_, ok := a.seeds[account]
	return ok
}

// SignMessage signs a personal message. Storage-key derivation messages are
// short-circuited with a placeholder when the seed is already cached; all
// other messages are delegated to the parent account.
func (a *BroadcastAdapter) SignMessage(ctx context.Context, message []byte) (string, error) {
	if strings.HasPrefix(string(message), storageKeyMessagePrefix) && a.hasCachedSeed(a.sub) {
		log.Debug().
			Str("account", a.sub.Hex()).
			Msg("Storage seed already cached, returning placeholder signature")
		return placeholderSignature, nil
	}

	signature, err := a.rpc.PersonalSign(ctx, a.parent, message)
	if err != nil {
		return "", errors.Wrap(err, "failed to personal-sign via parent account")
	}
	return signature, nil
}

// SignTransaction always fails: the batched-call RPC exposes no raw-signing
// path for sub-accounts.
func (a *BroadcastAdapter) SignTransaction(_ context.Context, _ *TxRequest) (string, error) {
	return "", faults.NewUnsupported("raw transaction signing is not available for delegated accounts; use SendTransaction")
}

// SendTransaction wraps the call as a one-element atomic bundle under the
// delegated address, then polls the bundle status until it confirms or the
// polling ceiling is reached. Polling exhaustion is terminal for this call;
// resubmission is the caller's decision since bundle submission is not proven
// idempotent.
func (a *BroadcastAdapter) SendTransaction(ctx context.Context, tx *TxRequest) (*TransactionRecord, error) {
	if tx == nil {
		return nil, faults.NewValidation("transaction request is nil")
	}

	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}

	req := &SendCallsRequest{
		Version: "2.0.0",
		ChainID: hexutil.EncodeBig(a.chainID),
		From:    a.sub,
		Calls: []Call{{
			To:    tx.To,
			Value: (*hexutil.Big)(value),
			Data:  tx.Data,
		}},
		AtomicRequired: true,
	}

	bundleID, err := a.rpc.SendCalls(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to submit call bundle")
	}

	log.Debug().
		Str("bundle_id", bundleID).
		Str("to", tx.To.Hex()).
		Msg("Submitted atomic call bundle, polling for confirmation")

	txHash, err := a.pollBundle(ctx, bundleID)
	if err != nil {
		return nil, err
	}

	return a.resolveRecord(ctx, txHash, tx), nil
}

// pollBundle polls bundle status up to the attempt ceiling. Success needs a
// confirmed status and a receipt carrying a transaction hash.
func (a *BroadcastAdapter) pollBundle(ctx context.Context, bundleID string) (common.Hash, error) {
	var lastErr error
	for attempt := 1; attempt <= a.confirmAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, a.confirmInterval); err != nil {
				return common.Hash{}, err
			}
		}

		status, err := a.rpc.GetCallsStatus(ctx, bundleID)
		if err != nil {
			lastErr = err
			log.Debug().
				Err(err).
				Str("bundle_id", bundleID).
				Int("attempt", attempt).
				Msg("Bundle status poll failed")
			continue
		}

		if status.Status.Confirmed() {
			for _, receipt := range status.Receipts {
				if receipt.TransactionHash != (common.Hash{}) {
					metrics.ObserveConfirmationPolls(attempt)
					return receipt.TransactionHash, nil
				}
			}
			// Confirmed without a hash-bearing receipt: keep polling, some
			// wallets flip the status one poll before receipts appear.
			lastErr = errors.New("bundle confirmed but no receipt carries a transaction hash")
			continue
		}
	}

	metrics.ObserveConfirmationPolls(a.confirmAttempts)
	return common.Hash{}, faults.NewConfirmationTimeout(
		errors.Errorf("bundle %s not confirmed after %d polls", bundleID, a.confirmAttempts).Error(),
		lastErr,
	)
}

// resolveRecord fetches the full transaction from the chain, synthesizing a
// minimal record when the chain read is unavailable.
func (a *BroadcastAdapter) resolveRecord(ctx context.Context, txHash common.Hash, tx *TxRequest) *TransactionRecord {
	record := &TransactionRecord{
		Hash:  txHash,
		From:  a.sub,
		To:    &tx.To,
		Data:  append([]byte(nil), tx.Data...),
		Value: new(big.Int),
		wait:  a.waitFunc(txHash),
	}
	if tx.Value != nil {
		record.Value.Set(tx.Value)
	}

	if a.chain == nil {
		return record
	}

	chainTx, _, err := a.chain.TransactionByHash(ctx, txHash)
	if err != nil || chainTx == nil {
		log.Debug().
			Err(err).
			Str("tx_hash", txHash.Hex()).
			Msg("Transaction not yet resolvable from chain, synthesizing record")
		return record
	}

	record.To = chainTx.To()
	record.Data = chainTx.Data()
	record.Value = chainTx.Value()
	record.GasLimit = chainTx.Gas()
	record.GasPrice = chainTx.GasPrice()
	return record
}

// waitFunc returns a re-queryable receipt wait bounded by the same polling
// ceiling as bundle confirmation.
func (a *BroadcastAdapter) waitFunc(txHash common.Hash) func(ctx context.Context) (*Receipt, error) {
	return func(ctx context.Context) (*Receipt, error) {
		if a.chain == nil {
			return &Receipt{TransactionHash: txHash, Status: 1}, nil
		}

		var lastErr error
		for attempt := 1; attempt <= a.confirmAttempts; attempt++ {
			if attempt > 1 {
				if err := sleepCtx(ctx, a.confirmInterval); err != nil {
					return nil, err
				}
			}

			receipt, err := a.chain.TransactionReceipt(ctx, txHash)
			if err != nil {
				lastErr = err
				continue
			}

			return &Receipt{
				TransactionHash: receipt.TxHash,
				BlockNumber:     receipt.BlockNumber,
				GasUsed:         new(big.Int).SetUint64(receipt.GasUsed),
				Status:          receipt.Status,
			}, nil
		}
		return nil, faults.NewConfirmationTimeout("receipt not available within the polling ceiling", lastErr)
	}
}

// EnsureSubAccount returns the delegated account for the origin, provisioning
// one with the given spend-permission grant when none exists yet.
func EnsureSubAccount(ctx context.Context, rpc BundleRPC, origin string, grant *SpendPermission) (*SubAccount, error) {
	accounts, err := rpc.GetSubAccounts(ctx, origin)
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate sub-accounts")
	}
	if len(accounts) > 0 {
		return &accounts[0], nil
	}

	log.Info().
		Str("origin", origin).
		Msg("No delegated account for origin, creating one with spend permission")

	created, err := rpc.AddSubAccount(ctx, &AddSubAccountRequest{
		Version: "1",
		Grant:   grant,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sub-account")
	}
	return created, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
