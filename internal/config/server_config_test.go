package config_test

import (
	"encoding/json"
	"testing"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/config"
)

func TestPrintServiceEnv(t *testing.T) {
	config := config.DefaultServiceConfigFromEnv()
	_, err := json.MarshalIndent(config, "", "  ")

	if err != nil {
		t.Fatal(err)
	}
}

func TestPrimaryOwnerKeyCanonicalizesCase(t *testing.T) {
	// Wallet exports commonly hand out all-lowercase addresses; the stored
	// preference key must not depend on the env value's casing.
	checksummed := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	variants := []string{
		checksummed,
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		"0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED",
	}

	for _, v := range variants {
		w := config.Wallet{PrimaryAddress: v}
		if got := w.PrimaryOwnerKey(); got != checksummed {
			t.Errorf("PrimaryOwnerKey(%q) = %q, want %q", v, got, checksummed)
		}
	}
}
