package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/inference"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/faults"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/host"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/payment"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/metrics"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/notify"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/ratelimit"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/snapshot"
)

// HostSelector selects and trust-verifies compute hosts.
type HostSelector interface {
	Select(ctx context.Context, modelID string) (*host.Host, error)
	Verify(ctx context.Context, h *host.Host) error
}

// RateLimiter is the consumed limiter surface.
type RateLimiter interface {
	Check(identifier string) ratelimit.Result
}

// Preflight ensures the spender's allowance covers the deposit.
type Preflight interface {
	Ensure(ctx context.Context, token, payer, spender common.Address, required *big.Int) error
}

// ConversationStore is the durable-storage slice the coordinator writes.
type ConversationStore interface {
	SaveConversation(ctx context.Context, key string, data []byte) error
}

// Config carries the coordinator's static wiring.
type Config struct {
	// Identity scopes both rate limiters, conventionally the delegated
	// account address.
	Identity string

	PayerAddress   common.Address
	SessionManager common.Address
	StableToken    common.Address

	Deposit             *big.Int
	ProofInterval       int
	MaxDuration         time.Duration
	StartRetries        int
	ContextTurns        int
	ContextTurnMaxChars int
}

// Coordinator drives the approval → start → send → end lifecycle of the
// single client session. It owns the session context entirely: callers read
// state through return values and Current(), never through ambient globals.
type Coordinator struct {
	cfg            Config
	selector       HostSelector
	payments       payment.Manager
	preflight      Preflight
	transport      inference.Transport
	conversations  ConversationStore
	store          snapshot.Store
	sessionLimiter RateLimiter
	messageLimiter RateLimiter
	notifier       notify.Notifier
	clock          time2.Clock

	// sleep is swapped out in tests to keep retries instant.
	sleep   func(ctx context.Context, d time.Duration) error
	backoff []time.Duration

	mu              sync.Mutex
	busy            bool
	stablePreferred bool
	current         *Session
}

// NewCoordinator wires the coordinator.
func NewCoordinator(
	cfg Config,
	selector HostSelector,
	payments payment.Manager,
	preflight Preflight,
	transport inference.Transport,
	conversations ConversationStore,
	store snapshot.Store,
	sessionLimiter RateLimiter,
	messageLimiter RateLimiter,
	notifier notify.Notifier,
	clock time2.Clock,
) *Coordinator {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Coordinator{
		cfg:            cfg,
		selector:       selector,
		payments:       payments,
		preflight:      preflight,
		transport:      transport,
		conversations:  conversations,
		store:          store,
		sessionLimiter: sessionLimiter,
		messageLimiter: messageLimiter,
		notifier:       notifier,
		clock:          clock,
		sleep:          sleepCtx,
		backoff:        []time.Duration{time.Second, 2 * time.Second},
	}
}

// SetStablePayment switches the payment-token preference for future sessions.
func (c *Coordinator) SetStablePayment(stable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stablePreferred = stable
}

// Current returns a copy of the session state, nil when idle.
func (c *Coordinator) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneSession(c.current)
}

// Start opens a new metered session against a freshly selected, trust-
// verified host. Transient chain races (signer-registration lag, confirmation
// timeout, balance-sync lag) are retried with backoff; everything else is
// terminal and resets the lifecycle to idle.
func (c *Coordinator) Start(ctx context.Context, modelID string) (*Session, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, faults.NewValidation("a session transition is already in progress")
	}
	c.busy = true
	stable := c.stablePreferred
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	if res := c.sessionLimiter.Check(c.cfg.Identity); !res.Allowed {
		cooldown := res.ResetAt.Sub(c.clock.Now())
		metrics.CountSessionStart("rate_limited")
		return nil, faults.NewRateLimited(
			fmt.Sprintf("session creation limit reached, retry in %d minutes", int(cooldown.Minutes())+1),
			res.ResetAt,
		)
	}

	selected, err := c.selector.Select(ctx, modelID)
	if err != nil {
		return nil, err
	}
	// Trust verification happens before any on-chain call: a mismatched
	// endpoint would break the proof-submission precondition and void the
	// session for every party.
	if err := c.selector.Verify(ctx, selected); err != nil {
		if faults.ClassOf(err) == faults.ClassTrustViolation {
			metrics.CountSessionStart("trust_violation")
		} else {
			metrics.CountSessionStart("failed")
		}
		return nil, err
	}

	// Close any prior session first, best effort. It may already be
	// finalized on-chain, which is fine.
	c.mu.Lock()
	hasOpen := c.current != nil && c.current.Status != StatusIdle
	c.mu.Unlock()
	if hasOpen {
		if _, err := c.end(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to end previous session before start, continuing")
		}
	}

	sess := &Session{
		Host:          selected,
		ModelID:       modelID,
		Deposit:       new(big.Int).Set(c.cfg.Deposit),
		PricePerToken: new(big.Int).Set(selected.Price(stable)),
		StablePayment: stable,
		ProofInterval: c.cfg.ProofInterval,
		MaxDuration:   c.cfg.MaxDuration,
		Status:        StatusIdle,
		TotalCost:     big.NewInt(0),
	}
	if err := sess.transition(StatusApproving); err != nil {
		return nil, faults.NewValidation(err.Error())
	}

	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.StartRetries; attempt++ {
		if attempt > 0 {
			metrics.CountStartRetry()
			delay := c.backoff[min(attempt-1, len(c.backoff)-1)]
			log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Transient chain race starting session, retrying")
			if err := c.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		lastErr = c.attemptStart(ctx, sess)
		if lastErr == nil {
			break
		}
		if !faults.Retryable(lastErr) {
			break
		}
	}

	if lastErr != nil {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
		metrics.CountSessionStart("failed")
		return nil, lastErr
	}

	metrics.CountSessionStart("ok")
	c.saveSnapshot(ctx)
	notify.Emit(c.notifier, "session.started", sess.ID, map[string]interface{}{
		"host":  sess.Host.Address.Hex(),
		"model": sess.ModelID,
	})
	return c.Current(), nil
}

// attemptStart runs one approval-preflight + start pass. Every pass re-reads
// the fresh allowance; the preflight's own flag keeps the approve one-shot.
func (c *Coordinator) attemptStart(ctx context.Context, sess *Session) error {
	if sess.StablePayment {
		if err := c.preflight.Ensure(ctx, c.cfg.StableToken, c.cfg.PayerAddress, c.cfg.SessionManager, sess.Deposit); err != nil {
			return faults.ClassifyChainError(err)
		}
	}

	if sess.Status == StatusApproving {
		if err := sess.transition(StatusStarting); err != nil {
			return faults.NewValidation(err.Error())
		}
	}

	req := &payment.StartSessionRequest{
		Host:          sess.Host.Address,
		Endpoint:      sess.Host.Endpoint,
		ModelID:       sess.ModelID,
		Deposit:       sess.Deposit,
		PricePerToken: sess.PricePerToken,
		ProofInterval: sess.ProofInterval,
		MaxDuration:   sess.MaxDuration,
	}
	// The payment-token field is omitted entirely for native payment; its
	// presence is the stable-token signal to the payment manager.
	if sess.StablePayment {
		token := c.cfg.StableToken
		req.PaymentToken = &token
	}

	result, err := c.payments.StartSession(ctx, req)
	if err != nil {
		return faults.ClassifyChainError(err)
	}

	sess.ID = result.SessionID
	sess.JobID = result.JobID
	sess.StartedAt = c.clock.Now()
	if err := sess.transition(StatusActive); err != nil {
		return faults.NewValidation(err.Error())
	}

	log.Info().
		Str("session_id", sess.ID).
		Str("host", sess.Host.Address.Hex()).
		Str("tx_hash", result.TxHash.Hex()).
		Msg("Session started")
	return nil
}

// Send submits a prompt through the active session and returns the cleaned
// reply, updating the running totals.
func (c *Coordinator) Send(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	sess := c.current
	if sess == nil || sess.Status != StatusActive {
		c.mu.Unlock()
		return "", faults.NewValidation("no active session")
	}
	msgs := c.buildContext(sess, prompt)
	endpoint := sess.Host.Endpoint
	sessionID := sess.ID
	c.mu.Unlock()

	if res := c.messageLimiter.Check(c.cfg.Identity); !res.Allowed {
		return "", faults.NewRateLimited("message rate limit reached", res.ResetAt)
	}

	raw, err := c.transport.Complete(ctx, endpoint, sessionID, msgs)
	if err != nil {
		return "", errors.Wrap(err, "inference request failed")
	}
	reply := stripRepetitionArtifact(raw)

	// Local display estimate only; authoritative accounting derives from
	// host-submitted checkpoints.
	tokens := estimateTokens(len(prompt), len(reply))
	cost := new(big.Int).Mul(big.NewInt(tokens), sess.PricePerToken)

	c.mu.Lock()
	sess.Messages = append(sess.Messages,
		inference.Message{Role: "user", Content: prompt},
		inference.Message{Role: "assistant", Content: reply},
	)
	sess.TotalTokens += tokens
	sess.TotalCost = new(big.Int).Add(sess.TotalCost, cost)
	c.mu.Unlock()

	metrics.CountMessage(int(tokens))
	c.saveSnapshot(ctx)
	c.persistConversation(ctx, sess)
	notify.Emit(c.notifier, "session.message", sessionID, map[string]interface{}{
		"tokens": tokens,
	})
	return reply, nil
}

// buildContext assembles the bounded conversational context: the most recent
// non-system turns in order, each length-capped, then the new prompt.
func (c *Coordinator) buildContext(sess *Session, prompt string) []inference.Message {
	turns := make([]inference.Message, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		if m.Role == "system" {
			continue
		}
		turns = append(turns, m)
	}
	if c.cfg.ContextTurns > 0 && len(turns) > c.cfg.ContextTurns {
		turns = turns[len(turns)-c.cfg.ContextTurns:]
	}

	out := make([]inference.Message, 0, len(turns)+1)
	for _, m := range turns {
		content := m.Content
		if c.cfg.ContextTurnMaxChars > 0 && len(content) > c.cfg.ContextTurnMaxChars {
			content = content[:c.cfg.ContextTurnMaxChars]
		}
		out = append(out, inference.Message{Role: m.Role, Content: content})
	}
	return append(out, inference.Message{Role: "user", Content: prompt})
}

// End closes the open session. Local state resets to idle and the accumulated
// totals are reported regardless of whether external settlement has finished;
// the settlement split itself belongs to the payment manager. Ending while a
// start is still driving its chain calls is rejected: settling a half-started
// session would leave it active on-chain but idle here.
func (c *Coordinator) End(ctx context.Context) (*Totals, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, faults.NewValidation("a session transition is already in progress")
	}
	c.busy = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	return c.end(ctx)
}

// end runs the teardown. The caller must hold the busy claim.
func (c *Coordinator) end(ctx context.Context) (*Totals, error) {
	c.mu.Lock()
	sess := c.current
	if sess == nil || sess.Status == StatusIdle {
		c.mu.Unlock()
		return nil, faults.NewValidation("no open session")
	}

	totals := &Totals{
		Tokens:   sess.TotalTokens,
		Cost:     new(big.Int).Set(sess.TotalCost),
		Messages: len(sess.Messages),
	}

	wasActive := sess.Status == StatusActive
	if wasActive {
		if err := sess.transition(StatusEnding); err != nil {
			c.mu.Unlock()
			return nil, faults.NewValidation(err.Error())
		}
	}
	sessionID := sess.ID
	c.mu.Unlock()

	var endErr error
	if wasActive {
		c.persistConversation(ctx, sess)
		if err := c.payments.EndSession(ctx, sessionID); err != nil {
			endErr = faults.ClassifyChainError(err)
			log.Warn().Err(err).Str("session_id", sessionID).Msg("External session termination failed")
		}
	}

	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to clear snapshot slot after session end")
	}

	notify.Emit(c.notifier, "session.ended", sessionID, map[string]interface{}{
		"tokens":   totals.Tokens,
		"cost":     totals.Cost.String(),
		"messages": totals.Messages,
	})
	return totals, endErr
}

// SnapshotSource feeds the periodic auto-saver. Nil while no session is open.
func (c *Coordinator) SnapshotSource() snapshot.Source {
	return func() *snapshot.Snapshot {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.snapshotOf(c.current)
	}
}

func (c *Coordinator) snapshotOf(sess *Session) *snapshot.Snapshot {
	if sess == nil || sess.Status != StatusActive {
		return nil
	}
	return &snapshot.Snapshot{
		SessionID:   sess.ID,
		Messages:    append([]inference.Message(nil), sess.Messages...),
		Host:        sess.Host,
		TotalTokens: sess.TotalTokens,
		TotalCost:   new(big.Int).Set(sess.TotalCost),
	}
}

// saveSnapshot is the change-driven save; failures are logged, never fatal.
func (c *Coordinator) saveSnapshot(ctx context.Context) {
	c.mu.Lock()
	snap := c.snapshotOf(c.current)
	c.mu.Unlock()
	if snap == nil {
		return
	}
	if err := c.store.Save(ctx, snap); err != nil {
		log.Warn().Err(err).Msg("Snapshot save failed")
	}
}

// persistConversation pushes the message log to durable storage, best effort.
func (c *Coordinator) persistConversation(ctx context.Context, sess *Session) {
	if c.conversations == nil {
		return
	}
	c.mu.Lock()
	data, err := json.Marshal(sess.Messages)
	key := sess.ID
	c.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal conversation")
		return
	}
	if err := c.conversations.SaveConversation(ctx, key, data); err != nil {
		log.Debug().Err(err).Str("session_id", key).Msg("Conversation persistence failed, will retry next turn")
	}
}

func cloneSession(sess *Session) *Session {
	if sess == nil {
		return nil
	}
	clone := *sess
	clone.Messages = append([]inference.Message(nil), sess.Messages...)
	if sess.TotalCost != nil {
		clone.TotalCost = new(big.Int).Set(sess.TotalCost)
	}
	if sess.Deposit != nil {
		clone.Deposit = new(big.Int).Set(sess.Deposit)
	}
	if sess.PricePerToken != nil {
		clone.PricePerToken = new(big.Int).Set(sess.PricePerToken)
	}
	if sess.JobID != nil {
		clone.JobID = new(big.Int).Set(sess.JobID)
	}
	return &clone
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
