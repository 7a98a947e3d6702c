package httperrors

import (
	"fmt"
	"net/http"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/faults"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/types"
)

// HTTPError is the internal error type handlers return. The router's error
// handler serializes it into types.PublicHTTPError.
type HTTPError struct {
	types.PublicHTTPError
	Internal error
}

func (e *HTTPError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("HTTPError %d (%s): %s: %v", *e.Code, *e.Type, *e.Title, e.Internal)
	}
	return fmt.Sprintf("HTTPError %d (%s): %s", *e.Code, *e.Type, *e.Title)
}

func (e *HTTPError) Unwrap() error {
	return e.Internal
}

// NewHTTPError creates a plain typed HTTP error.
func NewHTTPError(code int, errorType, title string) *HTTPError {
	return &HTTPError{
		PublicHTTPError: types.PublicHTTPError{
			Code:  swag.Int64(int64(code)),
			Type:  swag.String(errorType),
			Title: swag.String(title),
		},
	}
}

// FromFault maps a classified fault into the public error envelope. The
// mapping is the only place fault classes meet HTTP status codes.
func FromFault(err error) *HTTPError {
	fault, ok := faults.As(err)
	if !ok {
		e := NewHTTPError(http.StatusInternalServerError, types.PublicHTTPErrorTypeGeneric, "operation failed")
		e.Internal = err
		return e
	}

	code := http.StatusInternalServerError
	switch fault.Class {
	case faults.ClassValidation:
		code = http.StatusBadRequest
	case faults.ClassRateLimited:
		code = http.StatusTooManyRequests
	case faults.ClassTransientChainRace:
		code = http.StatusServiceUnavailable
	case faults.ClassSpendAuthorityExhausted:
		code = http.StatusPaymentRequired
	case faults.ClassTrustViolation:
		code = http.StatusBadGateway
	case faults.ClassUnsupported:
		code = http.StatusNotImplemented
	case faults.ClassConfirmationTimeout:
		code = http.StatusGatewayTimeout
	}

	e := &HTTPError{
		PublicHTTPError: types.PublicHTTPError{
			Code:        swag.Int64(int64(code)),
			Type:        swag.String(fault.Class.String()),
			Title:       swag.String(fault.Message),
			Remediation: fault.Remediation,
		},
		Internal: err,
	}
	if !fault.ResetAt.IsZero() {
		retryAfter := strfmt.DateTime(fault.ResetAt)
		e.RetryAfter = &retryAfter
	}
	return e
}
