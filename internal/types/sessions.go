package types

import (
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/pkg/errors"
)

// PostStartSessionPayload opens a new metered session.
type PostStartSessionPayload struct {
	ModelID *string `json:"modelId"`
}

func (p *PostStartSessionPayload) Validate() error {
	if p.ModelID == nil || strings.TrimSpace(*p.ModelID) == "" {
		return errors.New("modelId is required")
	}
	return nil
}

// PostSendMessagePayload submits one prompt to the active session.
type PostSendMessagePayload struct {
	Message *string `json:"message"`
}

func (p *PostSendMessagePayload) Validate() error {
	if p.Message == nil || *p.Message == "" {
		return errors.New("message is required")
	}
	return nil
}

// SessionResponse is the public view of the current session.
type SessionResponse struct {
	SessionID     *string         `json:"sessionId"`
	Status        *string         `json:"status"`
	ModelID       *string         `json:"modelId"`
	HostAddress   *string         `json:"hostAddress"`
	HostEndpoint  *string         `json:"hostEndpoint"`
	StablePayment bool            `json:"stablePayment"`
	Deposit       *string         `json:"deposit"`
	PricePerToken *string         `json:"pricePerToken"`
	TotalTokens   int64           `json:"totalTokens"`
	TotalCost     *string         `json:"totalCost"`
	MessageCount  int64           `json:"messageCount"`
	StartedAt     strfmt.DateTime `json:"startedAt,omitempty"`
}

func (r *SessionResponse) Validate() error {
	if r.Status == nil {
		return errors.New("status is required")
	}
	return nil
}

// SendMessageResponse carries the cleaned reply and the updated totals.
type SendMessageResponse struct {
	Reply       *string `json:"reply"`
	TotalTokens int64   `json:"totalTokens"`
	TotalCost   *string `json:"totalCost"`
}

func (r *SendMessageResponse) Validate() error {
	if r.Reply == nil {
		return errors.New("reply is required")
	}
	return nil
}

// SessionTotalsResponse is the display accounting reported when a session ends.
type SessionTotalsResponse struct {
	Tokens   int64   `json:"tokens"`
	Cost     *string `json:"cost"`
	Messages int64   `json:"messages"`
}

func (r *SessionTotalsResponse) Validate() error {
	if r.Cost == nil {
		return errors.New("cost is required")
	}
	return nil
}
