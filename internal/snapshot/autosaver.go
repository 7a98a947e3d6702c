package snapshot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Source produces the current snapshot, or nil when no session is open.
type Source func() *Snapshot

// AutoSaver writes the current snapshot on a fixed cadence while a session is
// open, bounding the maximum lost window after a crash. Change-driven saves
// happen at the coordinator; this timer is the backstop.
type AutoSaver struct {
	store    Store
	source   Source
	interval time.Duration
}

// NewAutoSaver creates the timer-driven saver.
func NewAutoSaver(store Store, source Source, interval time.Duration) *AutoSaver {
	return &AutoSaver{store: store, source: source, interval: interval}
}

// Run saves on the interval until ctx is done. Save failures are logged and
// never interrupt the loop.
func (a *AutoSaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := a.source()
			if snap == nil {
				continue
			}
			if err := a.store.Save(ctx, snap); err != nil {
				log.Warn().Err(err).Msg("Periodic snapshot save failed")
			}
		}
	}
}
