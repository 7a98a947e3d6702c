package payment

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/faults"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/wallet"
)

// MockAllowanceReader is a mock implementation of AllowanceReader
type MockAllowanceReader struct {
	mock.Mock
}

func (m *MockAllowanceReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	args := m.Called(ctx, token, owner, spender)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

// MockBroadcaster is a mock implementation of Broadcaster
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) SendTransaction(ctx context.Context, tx *wallet.TxRequest) (*wallet.TransactionRecord, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.TransactionRecord), args.Error(1)
}

var (
	token   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	payer   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	spender = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func TestAllowancePreflight_SufficientAllowanceIsANoop(t *testing.T) {
	reader := new(MockAllowanceReader)
	broadcaster := new(MockBroadcaster)
	p := NewAllowancePreflight(reader, broadcaster, big.NewInt(1_000_000_000))

	reader.On("Allowance", mock.Anything, token, payer, spender).Return(big.NewInt(5_000_000), nil).Once()

	err := p.Ensure(context.Background(), token, payer, spender, big.NewInt(2_000_000))
	assert.NoError(t, err)
	broadcaster.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestAllowancePreflight_ShortAllowanceIssuesExactlyOneApprove(t *testing.T) {
	reader := new(MockAllowanceReader)
	broadcaster := new(MockBroadcaster)
	ceiling := big.NewInt(1_000_000_000_000)
	p := NewAllowancePreflight(reader, broadcaster, ceiling)

	reader.On("Allowance", mock.Anything, token, payer, spender).Return(big.NewInt(0), nil)
	broadcaster.On("SendTransaction", mock.Anything, mock.MatchedBy(func(tx *wallet.TxRequest) bool {
		return tx.To == token && assert.ObjectsAreEqual(ApproveCalldata(spender, ceiling), tx.Data)
	})).Return(&wallet.TransactionRecord{}, nil).Once()

	// First pass: approve is issued.
	err := p.Ensure(context.Background(), token, payer, spender, big.NewInt(2_000_000))
	assert.NoError(t, err)

	// Second pass in the same process: flag set, zero approve calls, and the
	// still-short fresh read classifies as a transient race.
	err = p.Ensure(context.Background(), token, payer, spender, big.NewInt(2_000_000))
	assert.Error(t, err)
	assert.Equal(t, faults.ClassTransientChainRace, faults.ClassOf(err))

	broadcaster.AssertNumberOfCalls(t, "SendTransaction", 1)
}

func TestAllowancePreflight_FreshReadTrumpsFlag(t *testing.T) {
	reader := new(MockAllowanceReader)
	broadcaster := new(MockBroadcaster)
	p := NewAllowancePreflight(reader, broadcaster, big.NewInt(1_000_000_000))

	reader.On("Allowance", mock.Anything, token, payer, spender).Return(big.NewInt(0), nil).Once()
	broadcaster.On("SendTransaction", mock.Anything, mock.Anything).Return(&wallet.TransactionRecord{}, nil).Once()
	assert.NoError(t, p.Ensure(context.Background(), token, payer, spender, big.NewInt(100)))

	// Once the increase lands, subsequent passes read the fresh allowance and
	// succeed without consulting the flag.
	reader.On("Allowance", mock.Anything, token, payer, spender).Return(big.NewInt(1_000_000_000), nil).Once()
	assert.NoError(t, p.Ensure(context.Background(), token, payer, spender, big.NewInt(100)))
}

func TestAllowancePreflight_FailedApproveAllowsRetry(t *testing.T) {
	reader := new(MockAllowanceReader)
	broadcaster := new(MockBroadcaster)
	p := NewAllowancePreflight(reader, broadcaster, big.NewInt(1_000_000_000))

	reader.On("Allowance", mock.Anything, token, payer, spender).Return(big.NewInt(0), nil)
	broadcaster.On("SendTransaction", mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()
	broadcaster.On("SendTransaction", mock.Anything, mock.Anything).
		Return(&wallet.TransactionRecord{}, nil).Once()

	assert.Error(t, p.Ensure(context.Background(), token, payer, spender, big.NewInt(100)))
	assert.NoError(t, p.Ensure(context.Background(), token, payer, spender, big.NewInt(100)))
	broadcaster.AssertNumberOfCalls(t, "SendTransaction", 2)
}
