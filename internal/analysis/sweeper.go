package analysis

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"supportwatch/internal/analytics"
	"supportwatch/internal/models"
)

// Escalator is told about issues that just timed out
type Escalator interface {
	NotifyTimeouts(ctx context.Context, issues []models.Issue) error
}

// Sweeper periodically moves overdue issues to TIMEOUT
type Sweeper struct {
	lifecycle *Lifecycle
	escalator Escalator
	tracker   Tracker
	interval  time.Duration
	logger    zerolog.Logger
}

// NewSweeper creates a timeout sweeper. escalator and tracker may be nil.
func NewSweeper(lifecycle *Lifecycle, escalator Escalator, tracker Tracker, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		lifecycle: lifecycle,
		escalator: escalator,
		tracker:   tracker,
		interval:  interval,
		logger:    logger.With().Str("component", "timeout_sweeper").Logger(),
	}
}

// Run sweeps on every tick until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("Timeout sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("Timeout sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("Timeout sweep failed")
			}
		}
	}
}

// SweepOnce times out every overdue issue and returns how many moved
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	issues, err := s.lifecycle.SweepTimeouts(ctx)
	if err != nil {
		return 0, err
	}
	if len(issues) == 0 {
		return 0, nil
	}

	s.logger.Info().Int("count", len(issues)).Msg("Issues timed out")

	if s.tracker != nil {
		if err := s.tracker.TrackEvent(analytics.EventIssuesTimedOut, len(issues), nil); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to track timeouts")
		}
	}
	if s.escalator != nil {
		if err := s.escalator.NotifyTimeouts(ctx, issues); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to send timeout escalation")
		}
	}
	return len(issues), nil
}
