package host

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Host is an immutable descriptor of a compute host as advertised by the
// on-chain registry.
type Host struct {
	Address  common.Address
	Endpoint string
	Models   []string
	Stake    *big.Int

	// Dual pricing, per token: native chain asset and stable token, both in
	// the token's smallest unit.
	PricePerTokenNative *big.Int
	PricePerTokenStable *big.Int
}

// Price returns the per-token price matching the payment-token preference.
func (h *Host) Price(stable bool) *big.Int {
	if stable {
		return h.PricePerTokenStable
	}
	return h.PricePerTokenNative
}

// Supports reports whether the host advertises the model.
func (h *Host) Supports(modelID string) bool {
	for _, m := range h.Models {
		if m == modelID {
			return true
		}
	}
	return false
}

// hostWire is the registry's JSON shape. Big integers travel as decimal
// strings.
type hostWire struct {
	Address             string   `json:"address"`
	Endpoint            string   `json:"endpoint"`
	Models              []string `json:"models"`
	Stake               string   `json:"stake"`
	PricePerTokenNative string   `json:"pricePerTokenNative"`
	PricePerTokenStable string   `json:"pricePerTokenStable"`
}

func (h *Host) UnmarshalJSON(data []byte) error {
	var wire hostWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.Wrap(err, "failed to unmarshal host")
	}

	if !common.IsHexAddress(wire.Address) {
		return errors.Errorf("invalid host address: %q", wire.Address)
	}

	h.Address = common.HexToAddress(wire.Address)
	h.Endpoint = wire.Endpoint
	h.Models = wire.Models
	h.Stake = parseDecimal(wire.Stake)
	h.PricePerTokenNative = parseDecimal(wire.PricePerTokenNative)
	h.PricePerTokenStable = parseDecimal(wire.PricePerTokenStable)
	return nil
}

func (h Host) MarshalJSON() ([]byte, error) {
	wire := hostWire{
		Address:             h.Address.Hex(),
		Endpoint:            h.Endpoint,
		Models:              h.Models,
		Stake:               formatDecimal(h.Stake),
		PricePerTokenNative: formatDecimal(h.PricePerTokenNative),
		PricePerTokenStable: formatDecimal(h.PricePerTokenStable),
	}
	return json.Marshal(wire)
}

func parseDecimal(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func formatDecimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
