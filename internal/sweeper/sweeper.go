// Package sweeper runs the periodic stale-draft cleanup in the background.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DraftSweeper is what the sweeper needs from the service layer.
type DraftSweeper interface {
	SweepStaleDrafts(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service removes stale draft documents on a fixed interval. Published and
// archived documents are never touched.
type Service struct {
	sweeper  DraftSweeper
	interval time.Duration
	logger   *zerolog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewService creates a sweeper. A non-positive interval defaults to 24h.
func NewService(sweeper DraftSweeper, interval time.Duration, logger *zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Service{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop. An initial sweep runs immediately.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().Dur("interval", s.interval).Msg("draft sweeper started")
}

// Stop gracefully stops the sweeper and waits for an in-flight sweep.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.logger.Info().Msg("draft sweeper stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	s.runSweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runSweep()
		}
	}
}

func (s *Service) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.sweeper.SweepStaleDrafts(ctx, time.Time{})
	if err != nil {
		s.logger.Error().Err(err).Msg("stale draft sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("stale drafts removed")
	}
}
