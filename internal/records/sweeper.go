package records

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Sweeper periodically removes expired build records and their outputs.
type Sweeper struct {
	store     *Store
	scheduler gocron.Scheduler
}

// NewSweeper creates a sweeper over the record store.
func NewSweeper(store *Store) (*Sweeper, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create sweep scheduler: %w", err)
	}
	return &Sweeper{store: store, scheduler: s}, nil
}

// Start schedules the sweep at the given interval and begins running.
func (s *Sweeper) Start(interval time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.SweepOnce, context.Background()),
		gocron.WithName("build-record-sweep"),
	)
	if err != nil {
		return fmt.Errorf("schedule record sweep: %w", err)
	}
	s.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down.
func (s *Sweeper) Stop() error { return s.scheduler.Shutdown() }

// SweepOnce removes every expired record and its output. Errors are logged
// and do not stop the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpired(ctx, time.Now())
	if err != nil {
		slog.Error("Record sweep query failed", "error", err)
		return 0, err
	}
	removed := 0
	for _, rec := range expired {
		RemoveOutput(rec)
		if err := s.store.Delete(ctx, rec.ID); err != nil {
			slog.Warn("Failed to delete expired build record", "record_id", rec.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Swept expired build records", "removed", removed)
	}
	return removed, nil
}
