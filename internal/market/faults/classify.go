package faults

import "strings"

// Substring fallbacks for wallet/payment collaborators that do not return
// structured codes. Matching lives here and nowhere else so the fragile part
// stays auditable in one place.
var (
	signerRacePatterns = []string{
		"signer not registered",
		"unknown signer",
		"sub-account not found",
	}
	balanceLagPatterns = []string{
		"balance not synced",
		"insufficient synced balance",
		"pending deposit",
	}
	confirmationPatterns = []string{
		"confirmation timeout",
		"bundle not confirmed",
	}
	authorityPatterns = []string{
		"spend permission exceeded",
		"allowance exceeded",
		"permission ceiling",
		"spend authority",
	}
)

// ClassifyChainError maps an error from the wallet or payment collaborator
// into the taxonomy. Structured *Fault errors pass through untouched; raw
// errors fall back to substring matching.
func ClassifyChainError(err error) *Fault {
	if err == nil {
		return nil
	}
	if f, ok := As(err); ok {
		return f
	}

	msg := strings.ToLower(err.Error())

	for _, p := range authorityPatterns {
		if strings.Contains(msg, p) {
			return NewSpendAuthorityExhausted("delegated spend authority exhausted", err)
		}
	}
	for _, p := range signerRacePatterns {
		if strings.Contains(msg, p) {
			return NewTransientChainRace("signer registration still propagating", err)
		}
	}
	for _, p := range balanceLagPatterns {
		if strings.Contains(msg, p) {
			return NewTransientChainRace("delegated balance still syncing", err)
		}
	}
	for _, p := range confirmationPatterns {
		if strings.Contains(msg, p) {
			return NewTransientChainRace("confirmation lagging behind submission", err)
		}
	}

	return &Fault{Class: ClassUnknown, Message: "chain operation failed", Original: err}
}

// Retryable reports whether the coordinator may retry start() after err.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case ClassTransientChainRace, ClassConfirmationTimeout:
		return true
	default:
		return false
	}
}
