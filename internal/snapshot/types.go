package snapshot

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/inference"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/host"
)

// Snapshot is the recoverable local view of the single in-progress session.
// It exists for manual continuation or salvage after a reload or crash, never
// for automatic resumption.
type Snapshot struct {
	SessionID   string
	Messages    []inference.Message
	Host        *host.Host
	TotalTokens int64
	TotalCost   *big.Int
	CapturedAt  time.Time
}

// wire is the serialized slot format. Large integers travel as decimal
// strings and the capture time as epoch milliseconds.
type wire struct {
	SessionID    string              `json:"sessionId"`
	Messages     []inference.Message `json:"messages"`
	Host         *host.Host          `json:"host,omitempty"`
	TotalTokens  int64               `json:"totalTokens"`
	TotalCost    string              `json:"totalCost"`
	CapturedAtMs int64               `json:"capturedAtMs"`
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	cost := "0"
	if s.TotalCost != nil {
		cost = s.TotalCost.String()
	}
	return json.Marshal(wire{
		SessionID:    s.SessionID,
		Messages:     s.Messages,
		Host:         s.Host,
		TotalTokens:  s.TotalTokens,
		TotalCost:    cost,
		CapturedAtMs: s.CapturedAt.UnixMilli(),
	})
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "failed to unmarshal snapshot")
	}

	cost, ok := new(big.Int).SetString(w.TotalCost, 10)
	if !ok {
		return errors.Errorf("invalid total cost: %q", w.TotalCost)
	}

	s.SessionID = w.SessionID
	s.Messages = w.Messages
	s.Host = w.Host
	s.TotalTokens = w.TotalTokens
	s.TotalCost = cost
	s.CapturedAt = time.UnixMilli(w.CapturedAtMs)
	return nil
}
