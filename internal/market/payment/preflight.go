package payment

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/faults"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/wallet"
)

// AllowanceReader is the read side of the preflight, satisfied by ERC20Reader.
type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// Broadcaster is the write side, satisfied by *wallet.BroadcastAdapter.
type Broadcaster interface {
	SendTransaction(ctx context.Context, tx *wallet.TxRequest) (*wallet.TransactionRecord, error)
}

// AllowancePreflight ensures the spender holds a sufficient allowance before
// a deposit is committed. The increase is requested once per process per
// (payer, spender, token) triple and is deliberately large so future sessions
// skip the approval step; sufficiency is re-verified with a fresh allowance
// read on every pass rather than trusting the flag.
type AllowancePreflight struct {
	reader      AllowanceReader
	broadcaster Broadcaster
	ceiling     *big.Int

	mu        sync.Mutex
	requested map[string]bool
}

// NewAllowancePreflight creates the preflight with the configured one-time
// allowance ceiling.
func NewAllowancePreflight(reader AllowanceReader, broadcaster Broadcaster, ceiling *big.Int) *AllowancePreflight {
	return &AllowancePreflight{
		reader:      reader,
		broadcaster: broadcaster,
		ceiling:     ceiling,
		requested:   make(map[string]bool),
	}
}

func tripleKey(payer, spender, token common.Address) string {
	return payer.Hex() + "|" + spender.Hex() + "|" + token.Hex()
}

// Ensure verifies allowance(payer, spender) covers required, issuing at most
// one ceiling-sized approve per process when it does not.
func (p *AllowancePreflight) Ensure(ctx context.Context, token, payer, spender common.Address, required *big.Int) error {
	current, err := p.reader.Allowance(ctx, token, payer, spender)
	if err != nil {
		return errors.Wrap(err, "failed to read allowance")
	}

	if current.Cmp(required) >= 0 {
		return nil
	}

	key := tripleKey(payer, spender, token)
	p.mu.Lock()
	alreadyRequested := p.requested[key]
	if !alreadyRequested {
		p.requested[key] = true
	}
	p.mu.Unlock()

	if alreadyRequested {
		// The increase was broadcast earlier this process but the fresh read
		// still falls short: either it is propagating or the grant ceiling is
		// truly spent.
		return faults.NewTransientChainRace("allowance increase not yet visible on-chain", nil)
	}

	log.Info().
		Str("token", token.Hex()).
		Str("spender", spender.Hex()).
		Str("current", current.String()).
		Str("required", required.String()).
		Str("ceiling", p.ceiling.String()).
		Msg("Allowance short, requesting one-time increase")

	record, err := p.broadcaster.SendTransaction(ctx, &wallet.TxRequest{
		To:   token,
		Data: ApproveCalldata(spender, p.ceiling),
	})
	if err != nil {
		// Allow a later attempt to re-issue the approve.
		p.mu.Lock()
		delete(p.requested, key)
		p.mu.Unlock()
		return errors.Wrap(err, "allowance increase failed")
	}

	log.Debug().
		Str("tx_hash", record.Hash.Hex()).
		Msg("Allowance increase confirmed")
	return nil
}
