package types

import (
	"github.com/go-openapi/strfmt"
	"github.com/pkg/errors"
)

// SnapshotResponse summarizes the stored recovery snapshot for the UI's
// resume prompt.
type SnapshotResponse struct {
	SessionID    *string         `json:"sessionId"`
	MessageCount int64           `json:"messageCount"`
	TotalTokens  int64           `json:"totalTokens"`
	TotalCost    *string         `json:"totalCost"`
	CapturedAt   strfmt.DateTime `json:"capturedAt"`
}

func (r *SnapshotResponse) Validate() error {
	if r.SessionID == nil {
		return errors.New("sessionId is required")
	}
	return nil
}
