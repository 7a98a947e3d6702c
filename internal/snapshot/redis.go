package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// slotKey is the fixed Redis key for the single snapshot slot.
const slotKey = "fabstir:session:snapshot"

// RedisStore keeps the slot in Redis. The TTL is enforced twice: as the key
// expiry and as a capture-timestamp check on load, so a Redis server with
// persistence disabled behaves the same as the file store.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	clock  time2.Clock
}

// NewRedisStore creates the Redis-backed slot.
func NewRedisStore(client *redis.Client, ttl time.Duration, clock time2.Clock) *RedisStore {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &RedisStore{client: client, ttl: ttl, clock: clock}
}

// Save serializes and overwrites the slot.
func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return errors.New("snapshot is nil")
	}
	snap.CapturedAt = s.clock.Now()

	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed to marshal snapshot")
	}

	if err := s.client.Set(ctx, slotKey, data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save snapshot")
	}
	return nil
}

// Load reads the slot, purging it when expired or corrupt.
func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, slotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read snapshot slot")
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Msg("Snapshot slot corrupt, clearing")
		return nil, s.Clear(ctx)
	}

	if s.clock.Now().Sub(snap.CapturedAt) > s.ttl {
		return nil, s.Clear(ctx)
	}
	return &snap, nil
}

// Clear removes the slot.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, slotKey).Err(); err != nil {
		return errors.Wrap(err, "failed to clear snapshot slot")
	}
	return nil
}
