package types

import (
	"github.com/go-openapi/strfmt"
)

const (
	PublicHTTPErrorTypeGeneric = "generic"
)

// PublicHTTPError is the JSON error envelope every handler returns on failure.
type PublicHTTPError struct {
	Code  *int64  `json:"code"`
	Type  *string `json:"type"`
	Title *string `json:"title"`

	// Remediation carries user-actionable guidance for authority and trust
	// failures; empty otherwise.
	Remediation string `json:"remediation,omitempty"`

	// RetryAfter is set for rate-limit errors.
	RetryAfter *strfmt.DateTime `json:"retryAfter,omitempty"`
}

func (e *PublicHTTPError) Validate() error {
	return nil
}
