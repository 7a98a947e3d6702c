package types

import (
	"github.com/go-openapi/strfmt"
	"github.com/pkg/errors"
)

// BalanceResponse reports the latest observed primary/delegated balances.
type BalanceResponse struct {
	Primary    *string         `json:"primary"`
	Delegated  *string         `json:"delegated,omitempty"`
	Sufficient *bool           `json:"sufficient"`
	CheckedAt  strfmt.DateTime `json:"checkedAt"`
}

func (r *BalanceResponse) Validate() error {
	if r.Primary == nil {
		return errors.New("primary is required")
	}
	if r.Sufficient == nil {
		return errors.New("sufficient is required")
	}
	return nil
}
