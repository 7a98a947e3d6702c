package faults

import (
	"fmt"
	"strings"
	"time"
)

// Class partitions every failure that may cross the coordinator boundary.
// Nothing leaves the coordinator unclassified.
type Class int

const (
	ClassUnknown Class = iota
	ClassValidation
	ClassRateLimited
	ClassTransientChainRace
	ClassSpendAuthorityExhausted
	ClassTrustViolation
	ClassUnsupported
	ClassConfirmationTimeout
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "VALIDATION"
	case ClassRateLimited:
		return "RATE_LIMITED"
	case ClassTransientChainRace:
		return "TRANSIENT_CHAIN_RACE"
	case ClassSpendAuthorityExhausted:
		return "SPEND_AUTHORITY_EXHAUSTED"
	case ClassTrustViolation:
		return "TRUST_VIOLATION"
	case ClassUnsupported:
		return "UNSUPPORTED"
	case ClassConfirmationTimeout:
		return "CONFIRMATION_TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Fault is the classified error type every externally-facing operation
// resolves to on failure.
type Fault struct {
	Class       Class
	Message     string
	Remediation string // user-facing guidance, set for authority/trust classes
	ResetAt     time.Time
	Original    error
}

func (f *Fault) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", f.Class.String(), f.Message))
	if !f.ResetAt.IsZero() {
		sb.WriteString(fmt.Sprintf(" (retry after %s)", f.ResetAt.Format(time.RFC3339)))
	}
	if f.Original != nil {
		sb.WriteString(fmt.Sprintf(": %v", f.Original))
	}
	return sb.String()
}

func (f *Fault) Unwrap() error {
	return f.Original
}

// NewValidation creates a precondition failure. Never retried.
func NewValidation(msg string) *Fault {
	return &Fault{Class: ClassValidation, Message: msg}
}

// NewRateLimited creates a rate-limit failure reporting when the window resets.
func NewRateLimited(msg string, resetAt time.Time) *Fault {
	return &Fault{Class: ClassRateLimited, Message: msg, ResetAt: resetAt}
}

// NewTransientChainRace wraps an eventually-consistent wallet race.
func NewTransientChainRace(msg string, err error) *Fault {
	return &Fault{Class: ClassTransientChainRace, Message: msg, Original: err}
}

// NewSpendAuthorityExhausted signals the delegated account's permission
// ceiling or synced balance is depleted even though the primary has funds.
func NewSpendAuthorityExhausted(msg string, err error) *Fault {
	return &Fault{
		Class:       ClassSpendAuthorityExhausted,
		Message:     msg,
		Remediation: "Re-grant spend authority to the delegated account; depositing more funds will not resolve this.",
		Original:    err,
	}
}

// NewTrustViolation signals an endpoint-identity mismatch. Never downgraded.
func NewTrustViolation(msg string) *Fault {
	return &Fault{
		Class:       ClassTrustViolation,
		Message:     msg,
		Remediation: "The host's endpoint is not controlled by its on-chain address. Pick a different host.",
	}
}

// NewUnsupported signals a programming-contract violation.
func NewUnsupported(msg string) *Fault {
	return &Fault{Class: ClassUnsupported, Message: msg}
}

// NewConfirmationTimeout signals polling exhaustion while waiting for a
// bundle receipt.
func NewConfirmationTimeout(msg string, err error) *Fault {
	return &Fault{Class: ClassConfirmationTimeout, Message: msg, Original: err}
}

// As extracts a *Fault from err's chain, if any.
func As(err error) (*Fault, bool) {
	for err != nil {
		if f, ok := err.(*Fault); ok {
			return f, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// ClassOf returns the fault class of err, ClassUnknown for unclassified errors.
func ClassOf(err error) Class {
	if f, ok := As(err); ok {
		return f.Class
	}
	return ClassUnknown
}
