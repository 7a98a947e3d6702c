package session

import (
	"math/big"
	"time"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/inference"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/host"
)

// Session is the client-side view of one metered inference session. The id
// exists only after the on-chain start call confirmed.
type Session struct {
	ID      string
	JobID   *big.Int
	Host    *host.Host
	ModelID string

	Deposit       *big.Int
	PricePerToken *big.Int
	StablePayment bool
	ProofInterval int
	MaxDuration   time.Duration

	Status Status

	// Running totals, monotonically non-decreasing within the session.
	// Token counts are a local display estimate; settlement derives from
	// host-submitted checkpoints, not from these.
	TotalTokens int64
	TotalCost   *big.Int

	Messages  []inference.Message
	StartedAt time.Time
}

// Totals is the locally accumulated display accounting reported by End.
type Totals struct {
	Tokens   int64
	Cost     *big.Int
	Messages int
}

// estimateTokens approximates consumed tokens as a fixed function of the
// combined prompt and reply length: one token per four characters, rounded
// up.
func estimateTokens(promptLen, replyLen int) int64 {
	combined := promptLen + replyLen
	if combined <= 0 {
		return 0
	}
	return int64((combined + 3) / 4)
}
