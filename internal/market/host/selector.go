package host

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/faults"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/metrics"
)

// Selector discovers compute hosts, applies the randomized selection policy,
// and trust-verifies an endpoint before it is committed to a session.
type Selector struct {
	registry Registry
	prober   Prober
	clock    time2.Clock

	cacheMaxAge time.Duration
	cacheMu     sync.Mutex
	cached      []*Host
	cachedAt    time.Time

	// pick returns a uniform index in [0, n). Swapped out in tests.
	pick func(n int) int
}

// NewSelector creates a selector. cacheMaxAge bounds how stale a host listing
// may be served; zero disables caching.
func NewSelector(registry Registry, prober Prober, clock time2.Clock, cacheMaxAge time.Duration) *Selector {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Selector{
		registry:    registry,
		prober:      prober,
		clock:       clock,
		cacheMaxAge: cacheMaxAge,
		pick:        rand.Intn,
	}
}

// Discover fetches active hosts, dropping entries with no models or no
// endpoint. Results are cached for cacheMaxAge; staleness is tolerated by
// design.
func (s *Selector) Discover(ctx context.Context) ([]*Host, error) {
	s.cacheMu.Lock()
	if s.cached != nil && s.cacheMaxAge > 0 && s.clock.Now().Sub(s.cachedAt) < s.cacheMaxAge {
		hosts := s.cached
		s.cacheMu.Unlock()
		return hosts, nil
	}
	s.cacheMu.Unlock()

	all, err := s.registry.ActiveHosts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query host registry")
	}

	eligible := make([]*Host, 0, len(all))
	for _, h := range all {
		if h == nil || len(h.Models) == 0 || h.Endpoint == "" {
			continue
		}
		eligible = append(eligible, h)
	}

	log.Debug().
		Int("total_hosts", len(all)).
		Int("eligible_hosts", len(eligible)).
		Msg("Discovered active hosts")

	s.cacheMu.Lock()
	s.cached = eligible
	s.cachedAt = s.clock.Now()
	s.cacheMu.Unlock()

	return eligible, nil
}

// Select draws a host uniformly at random from the eligible set, filtered to
// hosts advertising modelID when one is given. Uniform choice is deliberate:
// it spreads load instead of concentrating every session on the cheapest or
// first-listed host.
func (s *Selector) Select(ctx context.Context, modelID string) (*Host, error) {
	hosts, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}

	if modelID != "" {
		filtered := make([]*Host, 0, len(hosts))
		for _, h := range hosts {
			if h.Supports(modelID) {
				filtered = append(filtered, h)
			}
		}
		hosts = filtered
	}

	if len(hosts) == 0 {
		return nil, faults.NewValidation("no eligible host for model " + modelID)
	}

	chosen := hosts[s.pick(len(hosts))]
	log.Debug().
		Str("host", chosen.Address.Hex()).
		Str("endpoint", chosen.Endpoint).
		Str("model", modelID).
		Int("eligible", len(hosts)).
		Msg("Selected host")
	return chosen, nil
}

// Verify probes the host's advertised endpoint and compares the address in
// the response against the on-chain-advertised one. A mismatch means
// inference would be served by an unaccountable address while the on-chain
// job names a different one, so it aborts session creation.
func (s *Selector) Verify(ctx context.Context, h *Host) error {
	if h == nil {
		return faults.NewValidation("no host selected")
	}

	reported, err := s.prober.Probe(ctx, h.Endpoint)
	if err != nil {
		return errors.Wrapf(err, "endpoint probe failed for %s", h.Endpoint)
	}

	if reported != h.Address {
		metrics.CountTrustViolation()
		log.Warn().
			Str("advertised", h.Address.Hex()).
			Str("reported", reported.Hex()).
			Str("endpoint", h.Endpoint).
			Msg("Host endpoint identity mismatch")
		return faults.NewTrustViolation(
			"endpoint " + h.Endpoint + " reports address " + reported.Hex() + " but the registry advertises " + h.Address.Hex(),
		)
	}
	return nil
}
