package snapshot

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/inference"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/internal/market/host"
	"github.com/Fabstir/fabstir-llm-ui3-sub000/pkg/snapcrypt"
	"github.com/ethereum/go-ethereum/common"
)

func tempStore(t *testing.T, ttl time.Duration, cipher *snapcrypt.Cipher) *FileStore {
	t.Helper()
	dir := t.TempDir()
	return NewFileStore(filepath.Join(dir, "slot.json"), ttl, nil, cipher)
}

func sampleSnapshot(messages int) *Snapshot {
	msgs := make([]inference.Message, 0, messages)
	for i := 0; i < messages; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs = append(msgs, inference.Message{Role: role, Content: "turn"})
	}
	return &Snapshot{
		SessionID: "session-42",
		Messages:  msgs,
		Host: &host.Host{
			Address:             common.HexToAddress("0x01"),
			Endpoint:            "http://h.example",
			Models:              []string{"llama-3"},
			Stake:               big.NewInt(1000),
			PricePerTokenNative: big.NewInt(5_000_000_000),
			PricePerTokenStable: big.NewInt(316),
		},
		TotalTokens: 250,
		TotalCost:   big.NewInt(79_000),
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	for _, msgCount := range []int{0, 1, 7} {
		store := tempStore(t, 24*time.Hour, nil)
		saved := sampleSnapshot(msgCount)

		require.NoError(t, store.Save(context.Background(), saved))

		loaded, err := store.Load(context.Background())
		require.NoError(t, err)
		require.NotNil(t, loaded, "message count %d", msgCount)

		assert.Equal(t, saved.SessionID, loaded.SessionID)
		assert.Len(t, loaded.Messages, msgCount)
		assert.Equal(t, saved.TotalTokens, loaded.TotalTokens)
		assert.Equal(t, 0, saved.TotalCost.Cmp(loaded.TotalCost))
		assert.Equal(t, saved.Host.Address, loaded.Host.Address)
		assert.Equal(t, 0, saved.Host.PricePerTokenStable.Cmp(loaded.Host.PricePerTokenStable))
	}
}

func TestFileStore_EmptySlotLoadsNil(t *testing.T) {
	store := tempStore(t, 24*time.Hour, nil)
	loaded, err := store.Load(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStore_ExpiredSlotIsPurged(t *testing.T) {
	ttl := 24 * time.Hour
	store := tempStore(t, ttl, nil)

	// Write a slot captured exactly TTL+1ms ago.
	snap := sampleSnapshot(2)
	snap.CapturedAt = time.Now().Add(-ttl - time.Millisecond)
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.path, data, 0o600))

	loaded, err := store.Load(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, loaded, "slot past TTL must be unreadable")

	_, statErr := os.Stat(store.path)
	assert.True(t, os.IsNotExist(statErr), "expired slot must be cleared on access")
}

func TestFileStore_FreshSlotInsideTTLSurvives(t *testing.T) {
	ttl := 24 * time.Hour
	store := tempStore(t, ttl, nil)

	snap := sampleSnapshot(2)
	snap.CapturedAt = time.Now().Add(-ttl + time.Minute)
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.path, data, 0o600))

	loaded, err := store.Load(context.Background())
	assert.NoError(t, err)
	assert.NotNil(t, loaded)
}

func TestFileStore_CorruptSlotIsPurged(t *testing.T) {
	store := tempStore(t, 24*time.Hour, nil)
	require.NoError(t, os.WriteFile(store.path, []byte("{not json"), 0o600))

	loaded, err := store.Load(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, loaded)

	_, statErr := os.Stat(store.path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStore_SaveOverwritesSingleSlot(t *testing.T) {
	store := tempStore(t, 24*time.Hour, nil)

	first := sampleSnapshot(1)
	first.SessionID = "session-1"
	require.NoError(t, store.Save(context.Background(), first))

	second := sampleSnapshot(3)
	second.SessionID = "session-2"
	require.NoError(t, store.Save(context.Background(), second))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-2", loaded.SessionID)
	assert.Len(t, loaded.Messages, 3)
}

func TestFileStore_EncryptedRoundTrip(t *testing.T) {
	cipher, err := snapcrypt.New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	store := tempStore(t, 24*time.Hour, cipher)

	require.NoError(t, store.Save(context.Background(), sampleSnapshot(2)))

	// The raw slot must not leak plaintext.
	raw, err := os.ReadFile(store.path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "session-42")

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "session-42", loaded.SessionID)
}

func TestFileStore_CipherMismatchClearsSlot(t *testing.T) {
	c1, err := snapcrypt.New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	c2, err := snapcrypt.New([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)

	writer := tempStore(t, 24*time.Hour, c1)
	require.NoError(t, writer.Save(context.Background(), sampleSnapshot(1)))

	reader := NewFileStore(writer.path, 24*time.Hour, nil, c2)
	loaded, err := reader.Load(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}
