package session

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/inference"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/faults"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/host"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/payment"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/ratelimit"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/snapshot"
)

type MockHostSelector struct {
	mock.Mock
}

func (m *MockHostSelector) Select(ctx context.Context, modelID string) (*host.Host, error) {
	args := m.Called(ctx, modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*host.Host), args.Error(1)
}

func (m *MockHostSelector) Verify(ctx context.Context, h *host.Host) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

type MockPaymentManager struct {
	mock.Mock
}

func (m *MockPaymentManager) StartSession(ctx context.Context, req *payment.StartSessionRequest) (*payment.StartSessionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.StartSessionResult), args.Error(1)
}

func (m *MockPaymentManager) EndSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

type MockPreflight struct {
	mock.Mock
}

func (m *MockPreflight) Ensure(ctx context.Context, token, payer, spender common.Address, required *big.Int) error {
	args := m.Called(ctx, token, payer, spender, required)
	return args.Error(0)
}

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Complete(ctx context.Context, endpoint, sessionID string, messages []inference.Message) (string, error) {
	args := m.Called(ctx, endpoint, sessionID, messages)
	return args.String(0), args.Error(1)
}

type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockSnapshotStore) Load(ctx context.Context) (*snapshot.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snapshot.Snapshot), args.Error(1)
}

func (m *MockSnapshotStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// allowAll is a limiter stub with unlimited budget.
type allowAll struct{}

func (allowAll) Check(string) ratelimit.Result {
	return ratelimit.Result{Allowed: true, Remaining: 1}
}

// denyAll is a limiter stub with exhausted budget.
type denyAll struct {
	resetAt time.Time
}

func (d denyAll) Check(string) ratelimit.Result {
	return ratelimit.Result{Allowed: false, ResetAt: d.resetAt}
}

type coordinatorFixture struct {
	coordinator *Coordinator
	selector    *MockHostSelector
	payments    *MockPaymentManager
	preflight   *MockPreflight
	transport   *MockTransport
	store       *MockSnapshotStore
	slept       *[]time.Duration
}

func sampleHost() *host.Host {
	return &host.Host{
		Address:             common.HexToAddress("0xaaaa000000000000000000000000000000000001"),
		Endpoint:            "http://host-1.example",
		Models:              []string{"llama-3"},
		Stake:               big.NewInt(1_000_000),
		PricePerTokenNative: big.NewInt(5_000_000_000),
		PricePerTokenStable: big.NewInt(316),
	}
}

func newFixture(t *testing.T) *coordinatorFixture {
	t.Helper()

	f := &coordinatorFixture{
		selector:  new(MockHostSelector),
		payments:  new(MockPaymentManager),
		preflight: new(MockPreflight),
		transport: new(MockTransport),
		store:     new(MockSnapshotStore),
		slept:     new([]time.Duration),
	}

	cfg := Config{
		Identity:            "0xdelegated",
		PayerAddress:        common.HexToAddress("0xbbbb000000000000000000000000000000000001"),
		SessionManager:      common.HexToAddress("0xcccc000000000000000000000000000000000001"),
		StableToken:         common.HexToAddress("0xdddd000000000000000000000000000000000001"),
		Deposit:             big.NewInt(1_000_000),
		ProofInterval:       100,
		MaxDuration:         time.Hour,
		StartRetries:        2,
		ContextTurns:        10,
		ContextTurnMaxChars: 2000,
	}

	f.coordinator = NewCoordinator(
		cfg,
		f.selector,
		f.payments,
		f.preflight,
		f.transport,
		nil,
		f.store,
		allowAll{},
		allowAll{},
		nil,
		nil,
	)
	f.coordinator.sleep = func(_ context.Context, d time.Duration) error {
		*f.slept = append(*f.slept, d)
		return nil
	}
	return f
}

func (f *coordinatorFixture) startActive(t *testing.T) *Session {
	t.Helper()

	h := sampleHost()
	f.selector.On("Select", mock.Anything, "llama-3").Return(h, nil).Once()
	f.selector.On("Verify", mock.Anything, h).Return(nil).Once()
	f.payments.On("StartSession", mock.Anything, mock.Anything).
		Return(&payment.StartSessionResult{
			SessionID: "sess-1",
			JobID:     big.NewInt(7),
			TxHash:    common.HexToHash("0x01"),
		}, nil).Once()
	f.store.On("Save", mock.Anything, mock.Anything).Return(nil)

	sess, err := f.coordinator.Start(context.Background(), "llama-3")
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess
}

func TestCoordinator_StartNativeHappyPath(t *testing.T) {
	f := newFixture(t)
	sess := f.startActive(t)

	assert.Equal(t, StatusActive, sess.Status)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, 0, sess.JobID.Cmp(big.NewInt(7)))
	assert.Equal(t, 0, sess.PricePerToken.Cmp(big.NewInt(5_000_000_000)), "native price applies by default")

	// Native payment never touches the allowance path, and the request must
	// omit the payment-token field entirely.
	f.preflight.AssertNotCalled(t, "Ensure", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	req := f.payments.Calls[0].Arguments.Get(1).(*payment.StartSessionRequest)
	assert.Nil(t, req.PaymentToken)

	f.selector.AssertExpectations(t)
	f.payments.AssertExpectations(t)
}

func TestCoordinator_StartStableRunsAllowancePreflight(t *testing.T) {
	f := newFixture(t)
	f.coordinator.SetStablePayment(true)

	h := sampleHost()
	f.selector.On("Select", mock.Anything, "llama-3").Return(h, nil).Once()
	f.selector.On("Verify", mock.Anything, h).Return(nil).Once()
	f.preflight.On("Ensure",
		mock.Anything,
		f.coordinator.cfg.StableToken,
		f.coordinator.cfg.PayerAddress,
		f.coordinator.cfg.SessionManager,
		f.coordinator.cfg.Deposit,
	).Return(nil).Once()
	f.payments.On("StartSession", mock.Anything, mock.Anything).
		Return(&payment.StartSessionResult{SessionID: "sess-2", JobID: big.NewInt(8)}, nil).Once()
	f.store.On("Save", mock.Anything, mock.Anything).Return(nil)

	sess, err := f.coordinator.Start(context.Background(), "llama-3")
	require.NoError(t, err)

	assert.Equal(t, 0, sess.PricePerToken.Cmp(big.NewInt(316)), "stable price applies")
	req := f.payments.Calls[0].Arguments.Get(1).(*payment.StartSessionRequest)
	require.NotNil(t, req.PaymentToken)
	assert.Equal(t, f.coordinator.cfg.StableToken, *req.PaymentToken)

	f.preflight.AssertExpectations(t)
}

func TestCoordinator_TrustViolationAbortsBeforeAnyChainCall(t *testing.T) {
	f := newFixture(t)
	f.coordinator.SetStablePayment(true)

	h := sampleHost()
	f.selector.On("Select", mock.Anything, "llama-3").Return(h, nil).Once()
	f.selector.On("Verify", mock.Anything, h).
		Return(faults.NewTrustViolation("health endpoint address mismatch")).Once()

	_, err := f.coordinator.Start(context.Background(), "llama-3")
	require.Error(t, err)
	assert.Equal(t, faults.ClassTrustViolation, faults.ClassOf(err))

	f.preflight.AssertNotCalled(t, "Ensure", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.payments.AssertNotCalled(t, "StartSession", mock.Anything, mock.Anything)
	assert.Nil(t, f.coordinator.Current())
}

func TestCoordinator_StartRetriesTransientRaceThenSucceeds(t *testing.T) {
	f := newFixture(t)

	h := sampleHost()
	f.selector.On("Select", mock.Anything, "llama-3").Return(h, nil).Once()
	f.selector.On("Verify", mock.Anything, h).Return(nil).Once()
	f.payments.On("StartSession", mock.Anything, mock.Anything).
		Return(nil, errors.New("execution reverted: signer not registered")).Twice()
	f.payments.On("StartSession", mock.Anything, mock.Anything).
		Return(&payment.StartSessionResult{SessionID: "sess-3", JobID: big.NewInt(9)}, nil).Once()
	f.store.On("Save", mock.Anything, mock.Anything).Return(nil)

	sess, err := f.coordinator.Start(context.Background(), "llama-3")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sess.Status)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *f.slept)

	f.payments.AssertExpectations(t)
}

func TestCoordinator_StartRetriesExhausted(t *testing.T) {
	f := newFixture(t)

	h := sampleHost()
	f.selector.On("Select", mock.Anything, "llama-3").Return(h, nil).Once()
	f.selector.On("Verify", mock.Anything, h).Return(nil).Once()
	f.payments.On("StartSession", mock.Anything, mock.Anything).
		Return(nil, errors.New("execution reverted: signer not registered")).Times(3)

	_, err := f.coordinator.Start(context.Background(), "llama-3")
	require.Error(t, err)
	assert.Equal(t, faults.ClassTransientChainRace, faults.ClassOf(err))
	assert.Len(t, *f.slept, 2, "two retries after the initial attempt")
	assert.Nil(t, f.coordinator.Current(), "failed start resets to idle")
}

func TestCoordinator_NonRetryableErrorFailsImmediately(t *testing.T) {
	f := newFixture(t)

	h := sampleHost()
	f.selector.On("Select", mock.Anything, "llama-3").Return(h, nil).Once()
	f.selector.On("Verify", mock.Anything, h).Return(nil).Once()
	f.payments.On("StartSession", mock.Anything, mock.Anything).
		Return(nil, errors.New("execution reverted: insufficient deposit")).Once()

	_, err := f.coordinator.Start(context.Background(), "llama-3")
	require.Error(t, err)
	assert.Empty(t, *f.slept, "non-retryable failures must not back off")
	f.payments.AssertExpectations(t)
}

func TestCoordinator_RateLimitedStartNamesCooldown(t *testing.T) {
	f := newFixture(t)
	f.coordinator.sessionLimiter = denyAll{resetAt: time.Now().Add(40 * time.Minute)}

	_, err := f.coordinator.Start(context.Background(), "llama-3")
	require.Error(t, err)
	assert.Equal(t, faults.ClassRateLimited, faults.ClassOf(err))

	var fault *faults.Fault
	require.True(t, errors.As(err, &fault))
	assert.Contains(t, fault.Message, "minutes")
	assert.False(t, fault.ResetAt.IsZero())

	f.selector.AssertNotCalled(t, "Select", mock.Anything, mock.Anything)
}

func TestCoordinator_ReentrantStartRejected(t *testing.T) {
	f := newFixture(t)
	f.coordinator.busy = true

	_, err := f.coordinator.Start(context.Background(), "llama-3")
	require.Error(t, err)
	assert.Equal(t, faults.ClassValidation, faults.ClassOf(err))
}

func TestCoordinator_EndDuringStartInFlightRejected(t *testing.T) {
	f := newFixture(t)
	f.startActive(t)

	// A start owns the lifecycle until it releases the busy flag; an end
	// racing it must not settle and reset the half-started session.
	f.coordinator.busy = true

	totals, err := f.coordinator.End(context.Background())
	require.Error(t, err)
	assert.Nil(t, totals)
	assert.Equal(t, faults.ClassValidation, faults.ClassOf(err))

	require.NotNil(t, f.coordinator.current)
	assert.Equal(t, StatusActive, f.coordinator.current.Status)
	f.payments.AssertNotCalled(t, "EndSession", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "Clear", mock.Anything)
}

func TestCoordinator_SendAccumulatesTokensAndCost(t *testing.T) {
	f := newFixture(t)
	f.coordinator.SetStablePayment(true)

	h := sampleHost()
	f.selector.On("Select", mock.Anything, "llama-3").Return(h, nil).Once()
	f.selector.On("Verify", mock.Anything, h).Return(nil).Once()
	f.preflight.On("Ensure", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.payments.On("StartSession", mock.Anything, mock.Anything).
		Return(&payment.StartSessionResult{SessionID: "sess-4", JobID: big.NewInt(1)}, nil).Once()
	f.store.On("Save", mock.Anything, mock.Anything).Return(nil)

	_, err := f.coordinator.Start(context.Background(), "llama-3")
	require.NoError(t, err)

	// 150-char prompt plus 250-char reply is exactly 400 combined chars,
	// which estimates to 100 tokens at 316 stable units each.
	prompt := make([]byte, 150)
	reply := make([]byte, 250)
	for i := range prompt {
		prompt[i] = 'a'
	}
	for i := range reply {
		reply[i] = 'b'
	}
	f.transport.On("Complete", mock.Anything, h.Endpoint, "sess-4", mock.Anything).
		Return(string(reply), nil).Twice()

	got, err := f.coordinator.Send(context.Background(), string(prompt))
	require.NoError(t, err)
	assert.Equal(t, string(reply), got)

	sess := f.coordinator.Current()
	assert.Equal(t, int64(100), sess.TotalTokens)
	assert.Equal(t, 0, sess.TotalCost.Cmp(big.NewInt(31_600)))
	assert.Len(t, sess.Messages, 2)

	_, err = f.coordinator.Send(context.Background(), string(prompt))
	require.NoError(t, err)

	sess = f.coordinator.Current()
	assert.Equal(t, int64(200), sess.TotalTokens, "totals only grow")
	assert.Equal(t, 0, sess.TotalCost.Cmp(big.NewInt(63_200)))
	assert.Len(t, sess.Messages, 4)
}

func TestCoordinator_SendWithoutActiveSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.coordinator.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, faults.ClassValidation, faults.ClassOf(err))
	f.transport.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCoordinator_SendRateLimited(t *testing.T) {
	f := newFixture(t)
	f.startActive(t)
	f.coordinator.messageLimiter = denyAll{resetAt: time.Now().Add(time.Minute)}

	_, err := f.coordinator.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, faults.ClassRateLimited, faults.ClassOf(err))
	f.transport.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCoordinator_ContextWindowIsBounded(t *testing.T) {
	f := newFixture(t)
	f.startActive(t)

	// Seed 14 turns plus a system message; only the last 10 non-system turns
	// may reach the transport, followed by the new prompt.
	f.coordinator.mu.Lock()
	sess := f.coordinator.current
	sess.Messages = append(sess.Messages, inference.Message{Role: "system", Content: "rules"})
	for i := 0; i < 14; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		sess.Messages = append(sess.Messages, inference.Message{Role: role, Content: "turn"})
	}
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	sess.Messages = append(sess.Messages, inference.Message{Role: "assistant", Content: string(long)})
	f.coordinator.mu.Unlock()

	var sent []inference.Message
	f.transport.On("Complete", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sent = args.Get(3).([]inference.Message)
		}).
		Return("ok", nil).Once()

	_, err := f.coordinator.Send(context.Background(), "next question")
	require.NoError(t, err)

	require.Len(t, sent, 11, "ten context turns plus the new prompt")
	assert.Equal(t, "next question", sent[10].Content)
	for _, m := range sent {
		assert.NotEqual(t, "system", m.Role)
		assert.LessOrEqual(t, len(m.Content), 2000)
	}
}

func TestCoordinator_EndSettlesAndResets(t *testing.T) {
	f := newFixture(t)
	f.startActive(t)

	f.coordinator.mu.Lock()
	f.coordinator.current.TotalTokens = 250
	f.coordinator.current.TotalCost = big.NewInt(79_000)
	f.coordinator.current.Messages = []inference.Message{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
	}
	f.coordinator.mu.Unlock()

	f.payments.On("EndSession", mock.Anything, "sess-1").Return(nil).Once()
	f.store.On("Clear", mock.Anything).Return(nil).Once()

	totals, err := f.coordinator.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(250), totals.Tokens)
	assert.Equal(t, 0, totals.Cost.Cmp(big.NewInt(79_000)))
	assert.Equal(t, 2, totals.Messages)

	assert.Nil(t, f.coordinator.Current())
	f.payments.AssertExpectations(t)
	f.store.AssertExpectations(t)
}

func TestCoordinator_EndResetsLocallyEvenWhenSettlementFails(t *testing.T) {
	f := newFixture(t)
	f.startActive(t)

	f.payments.On("EndSession", mock.Anything, "sess-1").
		Return(faults.NewConfirmationTimeout("bundle receipt polling exhausted", nil)).Once()
	f.store.On("Clear", mock.Anything).Return(nil).Once()

	totals, err := f.coordinator.End(context.Background())
	require.Error(t, err)
	assert.Equal(t, faults.ClassConfirmationTimeout, faults.ClassOf(err))
	require.NotNil(t, totals, "totals are reported regardless of settlement outcome")
	assert.Nil(t, f.coordinator.Current(), "local state resets regardless")
}

func TestCoordinator_EndWithoutOpenSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.coordinator.End(context.Background())
	require.Error(t, err)
	assert.Equal(t, faults.ClassValidation, faults.ClassOf(err))
}

func TestCoordinator_StartClosesPriorSessionFirst(t *testing.T) {
	f := newFixture(t)
	f.startActive(t)

	h := sampleHost()
	f.selector.On("Select", mock.Anything, "llama-3").Return(h, nil).Once()
	f.selector.On("Verify", mock.Anything, h).Return(nil).Once()
	f.payments.On("EndSession", mock.Anything, "sess-1").Return(nil).Once()
	f.store.On("Clear", mock.Anything).Return(nil).Once()
	f.payments.On("StartSession", mock.Anything, mock.Anything).
		Return(&payment.StartSessionResult{SessionID: "sess-5", JobID: big.NewInt(2)}, nil).Once()

	sess, err := f.coordinator.Start(context.Background(), "llama-3")
	require.NoError(t, err)
	assert.Equal(t, "sess-5", sess.ID)
	f.payments.AssertExpectations(t)
}

func TestCoordinator_SnapshotSourceTracksActiveSession(t *testing.T) {
	f := newFixture(t)
	source := f.coordinator.SnapshotSource()

	assert.Nil(t, source(), "idle coordinator yields no snapshot")

	f.startActive(t)
	snap := source()
	require.NotNil(t, snap)
	assert.Equal(t, "sess-1", snap.SessionID)
}
