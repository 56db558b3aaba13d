package export

import (
	"context"
	"sync"
	"time"
)

// Sweeper periodically removes export artifacts older than the
// configured retention age.
type Sweeper struct {
	service  *Service
	interval time.Duration
	maxAge   time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(service *Service, interval, maxAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		maxAge:   maxAge,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.SweepOnce(context.Background())
			}
		}
	}()
}

// Stop halts the loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

// SweepOnce removes all exports past the retention age and returns how
// many were deleted.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	cutoff := time.Now().Add(-s.maxAge)

	stale, err := s.service.exports.ListOlderThan(ctx, cutoff)
	if err != nil {
		s.service.logger.Warn().Err(err).Msg("Export sweep listing failed")
		return 0
	}

	deleted := 0
	for _, rec := range stale {
		if err := s.service.Delete(ctx, rec); err != nil {
			s.service.logger.Warn().Str("export", rec.ExportID).Err(err).Msg("Failed to sweep export")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.service.logger.Info().Int("deleted", deleted).Msg("Stale exports swept")
	}
	return deleted
}
