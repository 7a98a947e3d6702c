package httperrors

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-openapi/swag"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/faults"
)

func TestFromFault_ClassMapping(t *testing.T) {
	cases := []struct {
		fault *faults.Fault
		code  int64
	}{
		{faults.NewValidation("bad input"), http.StatusBadRequest},
		{faults.NewRateLimited("slow down", time.Now().Add(time.Hour)), http.StatusTooManyRequests},
		{faults.NewTransientChainRace("propagating", nil), http.StatusServiceUnavailable},
		{faults.NewSpendAuthorityExhausted("ceiling spent", nil), http.StatusPaymentRequired},
		{faults.NewTrustViolation("address mismatch"), http.StatusBadGateway},
		{faults.NewUnsupported("not a signer"), http.StatusNotImplemented},
		{faults.NewConfirmationTimeout("polls exhausted", nil), http.StatusGatewayTimeout},
	}

	for _, c := range cases {
		e := FromFault(c.fault)
		assert.Equal(t, c.code, swag.Int64Value(e.Code), c.fault.Class.String())
		assert.Equal(t, c.fault.Class.String(), swag.StringValue(e.Type))
		assert.Equal(t, c.fault.Message, swag.StringValue(e.Title))
	}
}

func TestFromFault_CarriesRemediationAndReset(t *testing.T) {
	reset := time.Now().Add(40 * time.Minute)
	e := FromFault(faults.NewRateLimited("limit reached", reset))
	require.NotNil(t, e.RetryAfter)

	e = FromFault(faults.NewTrustViolation("mismatch"))
	assert.NotEmpty(t, e.Remediation)
	assert.Nil(t, e.RetryAfter)
}

func TestFromFault_UnclassifiedBecomesGeneric500(t *testing.T) {
	raw := errors.New("boom")
	e := FromFault(raw)
	assert.Equal(t, int64(http.StatusInternalServerError), swag.Int64Value(e.Code))
	assert.Equal(t, raw, e.Internal)
}
