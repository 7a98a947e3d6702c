package host

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Registry exposes the marketplace's active host listing.
type Registry interface {
	ActiveHosts(ctx context.Context) ([]*Host, error)
}

// Prober performs the endpoint identity probe against a host's advertised
// endpoint and returns the address embedded in the health response.
type Prober interface {
	Probe(ctx context.Context, endpoint string) (common.Address, error)
}

// HTTPRegistry queries the host registry's JSON API.
type HTTPRegistry struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRegistry creates a registry client. The timeout bounds each listing
// request.
func NewHTTPRegistry(baseURL string, timeout time.Duration) *HTTPRegistry {
	return &HTTPRegistry{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ActiveHosts fetches all active hosts with model metadata.
func (r *HTTPRegistry) ActiveHosts(ctx context.Context) ([]*Host, error) {
	url := r.baseURL + "/api/v1/hosts?status=active"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build registry request")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "registry request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("registry returned http %d: %s", resp.StatusCode, string(body))
	}

	var listing struct {
		Hosts []*Host `json:"hosts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, errors.Wrap(err, "failed to decode host listing")
	}
	return listing.Hosts, nil
}

// HTTPProber issues the bounded health probe used for endpoint trust
// verification.
type HTTPProber struct {
	httpClient *http.Client
}

// NewHTTPProber creates a prober whose requests are bounded by timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{httpClient: &http.Client{Timeout: timeout}}
}

// Probe fetches the host's health document and returns the signer address it
// reports for itself.
func (p *HTTPProber) Probe(ctx context.Context, endpoint string) (common.Address, error) {
	url := fmt.Sprintf("%s/v1/health", strings.TrimRight(endpoint, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to build health probe")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "health probe failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return common.Address{}, errors.Errorf("health probe returned http %d", resp.StatusCode)
	}

	var health struct {
		Address string `json:"address"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return common.Address{}, errors.Wrap(err, "failed to decode health response")
	}
	if !common.IsHexAddress(health.Address) {
		return common.Address{}, errors.Errorf("health response carries no valid address: %q", health.Address)
	}
	return common.HexToAddress(health.Address), nil
}
