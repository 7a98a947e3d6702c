package faults

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassifyChainError_StructuredFaultPassesThrough(t *testing.T) {
	original := NewTrustViolation("mismatch")
	wrapped := errors.Wrap(original, "session start failed")

	classified := ClassifyChainError(wrapped)
	assert.Equal(t, ClassTrustViolation, classified.Class)
	assert.Same(t, original, classified)
}

func TestClassifyChainError_SubstringFallback(t *testing.T) {
	cases := []struct {
		msg  string
		want Class
	}{
		{"execution reverted: signer not registered", ClassTransientChainRace},
		{"RPC error: Unknown Signer for account", ClassTransientChainRace},
		{"sub-account not found for origin", ClassTransientChainRace},
		{"insufficient synced balance for deposit", ClassTransientChainRace},
		{"pending deposit, try again", ClassTransientChainRace},
		{"bundle not confirmed after polling", ClassTransientChainRace},
		{"spend permission exceeded for spender", ClassSpendAuthorityExhausted},
		{"allowance exceeded", ClassSpendAuthorityExhausted},
		{"some entirely novel failure", ClassUnknown},
	}

	for _, c := range cases {
		classified := ClassifyChainError(errors.New(c.msg))
		assert.Equal(t, c.want, classified.Class, c.msg)
	}
}

func TestClassifyChainError_AuthorityBeatsBalancePhrasing(t *testing.T) {
	// A message naming both the permission ceiling and a balance must land on
	// the authority class: more funds will not fix it.
	classified := ClassifyChainError(errors.New("permission ceiling reached, balance not synced"))
	assert.Equal(t, ClassSpendAuthorityExhausted, classified.Class)
	assert.NotEmpty(t, classified.Remediation)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewTransientChainRace("race", nil)))
	assert.True(t, Retryable(NewConfirmationTimeout("timeout", nil)))
	assert.False(t, Retryable(NewValidation("bad")))
	assert.False(t, Retryable(NewTrustViolation("mismatch")))
	assert.False(t, Retryable(NewSpendAuthorityExhausted("spent", nil)))
	assert.False(t, Retryable(errors.New("opaque")))
}
