package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Fabstir/fabstir-llm-ui3-sub000/pkg/snapcrypt"
)

// Store is the single-slot recovery snapshot store. One slot matches the
// at-most-one-active-session invariant: every Save overwrites.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Clear(ctx context.Context) error
}

// FileStore keeps the slot in a single JSON file, optionally sealed at rest.
type FileStore struct {
	path   string
	ttl    time.Duration
	clock  time2.Clock
	cipher *snapcrypt.Cipher
}

// NewFileStore creates the file-backed slot. cipher may be nil for plaintext
// slots.
func NewFileStore(path string, ttl time.Duration, clock time2.Clock, cipher *snapcrypt.Cipher) *FileStore {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &FileStore{path: path, ttl: ttl, clock: clock, cipher: cipher}
}

// Save serializes and overwrites the slot. The capture timestamp is stamped
// here so age checks always reflect write time.
func (s *FileStore) Save(_ context.Context, snap *Snapshot) error {
	if snap == nil {
		return errors.New("snapshot is nil")
	}
	snap.CapturedAt = s.clock.Now()

	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed to marshal snapshot")
	}

	if s.cipher != nil {
		data, err = s.cipher.Seal(data)
		if err != nil {
			return errors.Wrap(err, "failed to seal snapshot")
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create snapshot directory")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write snapshot")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "failed to replace snapshot slot")
	}
	return nil
}

// Load reads the slot. An expired or unparseable slot is cleared and reported
// as absent: stale recovery data must never be offered to the user.
func (s *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read snapshot slot")
	}

	if s.cipher != nil {
		data, err = s.cipher.Open(data)
		if err != nil {
			log.Warn().Err(err).Msg("Snapshot slot unreadable, clearing")
			return nil, s.Clear(ctx)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Msg("Snapshot slot corrupt, clearing")
		return nil, s.Clear(ctx)
	}

	if s.clock.Now().Sub(snap.CapturedAt) > s.ttl {
		log.Debug().
			Time("captured_at", snap.CapturedAt).
			Dur("ttl", s.ttl).
			Msg("Snapshot past TTL, purging")
		return nil, s.Clear(ctx)
	}

	return &snap, nil
}

// Clear removes the slot.
func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to clear snapshot slot")
	}
	return nil
}
