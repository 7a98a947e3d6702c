package types

import "github.com/pkg/errors"

// HostResponse is the public view of one marketplace host. Big integers are
// decimal strings.
type HostResponse struct {
	Address             *string  `json:"address"`
	Endpoint            *string  `json:"endpoint"`
	Models              []string `json:"models"`
	Stake               *string  `json:"stake"`
	PricePerTokenNative *string  `json:"pricePerTokenNative"`
	PricePerTokenStable *string  `json:"pricePerTokenStable"`
}

func (r *HostResponse) Validate() error {
	if r.Address == nil {
		return errors.New("address is required")
	}
	return nil
}

// HostListResponse wraps the active host list.
type HostListResponse struct {
	Hosts []*HostResponse `json:"hosts"`
}

func (r *HostListResponse) Validate() error {
	for _, h := range r.Hosts {
		if err := h.Validate(); err != nil {
			return err
		}
	}
	return nil
}
