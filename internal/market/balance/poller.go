package balance

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Reader reads account balances, satisfied by payment.ERC20Reader.
type Reader interface {
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
}

// Balances is one observation of the primary/delegated account pair.
type Balances struct {
	Primary    *big.Int
	Delegated  *big.Int
	Sufficient bool
	CheckedAt  time.Time
}

// Poller periodically reads primary and delegated balances and evaluates
// combined sufficiency against the minimum session threshold. It is purely
// observational: it never mutates wallet or session state.
type Poller struct {
	reader    Reader
	clock     time2.Clock
	primary   common.Address
	delegated common.Address

	// Token to observe; the zero address means the native asset.
	token common.Address

	minimum       *big.Int
	interval      time.Duration
	delegatedMode bool

	mu     sync.RWMutex
	latest *Balances
}

// NewPoller creates a poller over the given account pair.
func NewPoller(reader Reader, clock time2.Clock, primary, delegated, token common.Address, minimum *big.Int, interval time.Duration, delegatedMode bool) *Poller {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Poller{
		reader:        reader,
		clock:         clock,
		primary:       primary,
		delegated:     delegated,
		token:         token,
		minimum:       minimum,
		interval:      interval,
		delegatedMode: delegatedMode,
	}
}

// Run polls on the fixed interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// Latest returns the most recent observation, nil before the first poll.
func (p *Poller) Latest() *Balances {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Refresh forces an immediate observation outside the polling cadence.
func (p *Poller) Refresh(ctx context.Context) (*Balances, error) {
	b, err := p.observe(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.latest = b
	p.mu.Unlock()
	return b, nil
}

func (p *Poller) poll(ctx context.Context) {
	if _, err := p.Refresh(ctx); err != nil {
		log.Debug().Err(err).Msg("Balance poll failed, keeping previous observation")
	}
}

func (p *Poller) observe(ctx context.Context) (*Balances, error) {
	primary, err := p.readBalance(ctx, p.primary)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read primary balance")
	}
	delegated, err := p.readBalance(ctx, p.delegated)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read delegated balance")
	}

	return &Balances{
		Primary:    primary,
		Delegated:  delegated,
		Sufficient: p.sufficient(primary, delegated),
		CheckedAt:  p.clock.Now(),
	}, nil
}

func (p *Poller) readBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	if p.token == (common.Address{}) {
		return p.reader.NativeBalance(ctx, account)
	}
	return p.reader.BalanceOf(ctx, p.token, account)
}

// sufficient sums delegated and primary in delegated-authority mode, since
// the delegated account can draw on the primary up to its grant.
func (p *Poller) sufficient(primary, delegated *big.Int) bool {
	available := new(big.Int).Set(primary)
	if p.delegatedMode {
		available.Add(available, delegated)
	}
	return available.Cmp(p.minimum) >= 0
}
