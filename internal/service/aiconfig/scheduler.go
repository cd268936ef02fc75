package aiconfig

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Prober tests every active provider.
type Prober interface {
	ProbeAll(ctx context.Context) ([]ProbeResult, error)
}

// Scheduler runs periodic provider probes.
type Scheduler struct {
	prober   Prober
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewScheduler creates a new probe scheduler.
func NewScheduler(prober Prober, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		prober:   prober,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Start blocks, probing every interval until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("provider probe scheduler started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ticker.C:
			s.runProbes(ctx)
		case <-s.stopCh:
			s.logger.Info("provider probe scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("provider probe scheduler context cancelled")
			return
		}
	}
}

// Stop stops the scheduler. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) runProbes(ctx context.Context) {
	s.logger.Debug("running scheduled provider probes")

	results, err := s.prober.ProbeAll(ctx)
	if err != nil {
		s.logger.Error("failed to probe providers", zap.Error(err))
		return
	}

	for _, r := range results {
		if r.Success {
			continue
		}
		s.logger.Warn("provider probe failed",
			zap.String("provider", r.InternalName),
			zap.String("error", r.Error),
		)
	}
}
