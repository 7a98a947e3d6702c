package wallet

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// Call is a single call inside an atomic bundle.
type Call struct {
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value,omitempty"`
	Data  hexutil.Bytes  `json:"data,omitempty"`
}

// SendCallsRequest is the wallet_sendCalls payload.
type SendCallsRequest struct {
	Version        string         `json:"version"`
	ChainID        string         `json:"chainId"`
	From           common.Address `json:"from"`
	Calls          []Call         `json:"calls"`
	AtomicRequired bool           `json:"atomicRequired"`
}

// BundleStatus is the status field of wallet_getCallsStatus. Wallets disagree
// on the wire type: newer ones return a numeric class code, older ones a
// string like "CONFIRMED".
type BundleStatus struct {
	Code int
	Text string
}

func (s *BundleStatus) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return errors.Wrap(err, "failed to unmarshal string bundle status")
		}
		s.Text = text
		if code, err := strconv.Atoi(text); err == nil {
			s.Code = code
		}
		return nil
	}

	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return errors.Wrap(err, "failed to unmarshal numeric bundle status")
	}
	s.Code = code
	return nil
}

func (s BundleStatus) MarshalJSON() ([]byte, error) {
	if s.Text != "" && s.Code == 0 {
		return json.Marshal(s.Text)
	}
	return json.Marshal(s.Code)
}

// Confirmed reports whether the bundle has landed: a 2xx-class code or the
// legacy "CONFIRMED" string.
func (s BundleStatus) Confirmed() bool {
	if s.Code >= 200 && s.Code < 300 {
		return true
	}
	return strings.EqualFold(s.Text, "CONFIRMED")
}

// BundleReceipt mirrors the per-call receipt in wallet_getCallsStatus.
type BundleReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	BlockNumber     *hexutil.Big   `json:"blockNumber,omitempty"`
	GasUsed         *hexutil.Big   `json:"gasUsed,omitempty"`
	Status          hexutil.Uint64 `json:"status"`
}

// CallsStatus is the wallet_getCallsStatus result.
type CallsStatus struct {
	ID       string          `json:"id"`
	ChainID  string          `json:"chainId"`
	Status   BundleStatus    `json:"status"`
	Atomic   bool            `json:"atomic"`
	Receipts []BundleReceipt `json:"receipts,omitempty"`
}

// SpendPermission is the grant attached to a sub-account at creation.
type SpendPermission struct {
	Spender   common.Address `json:"spender"`
	Token     common.Address `json:"token"`
	Allowance *hexutil.Big   `json:"allowance"`
	Start     uint64         `json:"start"`
	End       uint64         `json:"end"`
}

// SubAccount is a delegated signer enumerated or created through the wallet.
type SubAccount struct {
	Address common.Address `json:"address"`
	Factory common.Address `json:"factory,omitempty"`
}

// AddSubAccountRequest is the wallet_addSubAccount payload.
type AddSubAccountRequest struct {
	Version string           `json:"version"`
	Account SubAccount       `json:"account"`
	Grant   *SpendPermission `json:"spendPermission,omitempty"`
}

// TxRequest is what callers hand to SendTransaction.
type TxRequest struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Receipt is the settled view of a broadcast transaction.
type Receipt struct {
	TransactionHash common.Hash
	BlockNumber     *big.Int
	GasUsed         *big.Int
	Status          uint64
}

// TransactionRecord is returned by SendTransaction. When the full transaction
// cannot be resolved from the chain the record is synthesized with zeroed gas
// fields; Wait stays re-queryable either way so callers relying on the
// standard broadcast contract never block past the polling ceiling.
type TransactionRecord struct {
	Hash     common.Hash
	From     common.Address
	To       *common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int

	wait func(ctx context.Context) (*Receipt, error)
}

// Wait blocks until a receipt is available or ctx is done.
func (r *TransactionRecord) Wait(ctx context.Context) (*Receipt, error) {
	if r.wait == nil {
		return nil, errors.New("transaction record has no wait function")
	}
	return r.wait(ctx)
}
