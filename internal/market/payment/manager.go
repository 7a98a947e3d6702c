package payment

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StartSessionRequest is handed to the external payment/session manager. A
// nil PaymentToken means the session is paid in the native asset; the field's
// presence is the stable-token signal, so it must be omitted entirely for
// native payment.
type StartSessionRequest struct {
	Host          common.Address
	Endpoint      string
	ModelID       string
	Deposit       *big.Int
	PricePerToken *big.Int
	PaymentToken  *common.Address
	ProofInterval int
	MaxDuration   time.Duration
}

// StartSessionResult carries the identifiers minted by the confirmed on-chain
// start call.
type StartSessionResult struct {
	SessionID string
	JobID     *big.Int
	TxHash    common.Hash
}

// Manager is the external payment/session manager. It owns every on-chain
// session operation: start, checkpoint bookkeeping, completion with the
// host/treasury settlement split, and refunds. This client never encodes
// contract logic itself.
type Manager interface {
	StartSession(ctx context.Context, req *StartSessionRequest) (*StartSessionResult, error)
	EndSession(ctx context.Context, sessionID string) error
}
