// Package jobs runs the periodic maintenance work: expired sessions,
// consumed or stale OTP challenges, unverified signup codes, and rate
// limiter entries all age out on a schedule instead of per request.
package jobs

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"storefront/internal/middleware"
	"storefront/internal/store"
)

type Sweeper struct {
	cron          *cron.Cron
	sessions      *store.SessionStore
	challenges    *store.ChallengeStore
	verifications *store.VerificationStore
	limiter       *middleware.RateLimiter
	logger        *slog.Logger
}

func NewSweeper(
	sessions *store.SessionStore,
	challenges *store.ChallengeStore,
	verifications *store.VerificationStore,
	limiter *middleware.RateLimiter,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		sessions:      sessions,
		challenges:    challenges,
		verifications: verifications,
		limiter:       limiter,
		logger:        logger,
	}
}

// Start schedules the hourly sweep. Each store is swept independently so
// one failing DELETE does not starve the others.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc("@hourly", s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	if n, err := s.sessions.DeleteExpired(); err != nil {
		s.logger.Error("sweep sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("swept expired sessions", "count", n)
	}

	if n, err := s.challenges.DeleteExpired(); err != nil {
		s.logger.Error("sweep challenges", "error", err)
	} else if n > 0 {
		s.logger.Info("swept expired challenges", "count", n)
	}

	if n, err := s.verifications.DeleteExpired(); err != nil {
		s.logger.Error("sweep verifications", "error", err)
	} else if n > 0 {
		s.logger.Info("swept expired verifications", "count", n)
	}

	s.limiter.Cleanup()
}
