package cleanup

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultInterval = 6 * time.Hour
	DefaultTimeout  = time.Minute
)

// Purger deletes every record expired at now.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Config sweeper settings
type Config struct {
	Interval   time.Duration
	Timeout    time.Duration
	RunOnStart bool
	Now        func() time.Time
}

// Sweeper periodically purges expired texts.
type Sweeper struct {
	purger Purger
	cfg    Config
	log    logrus.FieldLogger
}

func NewSweeper(purger Purger, cfg Config, logger logrus.FieldLogger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sweeper{
		purger: purger,
		cfg:    cfg,
		log:    logger.WithField("component", "sweeper"),
	}
}

// RunOnce performs a single sweep and returns the number of deleted texts.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	started := s.cfg.Now()
	deleted, err := s.purger.PurgeExpired(ctx, started)
	if err != nil {
		return deleted, err
	}

	s.log.WithFields(logrus.Fields{
		"deleted":  deleted,
		"duration": time.Since(started).String(),
	}).Info("expired texts purged")
	return deleted, nil
}

// Run sweeps on every tick until ctx is cancelled. Sweep failures are logged and the loop
// keeps going.
func (s *Sweeper) Run(ctx context.Context) {
	s.log.WithField("interval", s.cfg.Interval.String()).Info("sweeper started")

	if s.cfg.RunOnStart {
		s.sweep(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.WithError(err).Error("failed to purge expired texts")
	}
}
