// Package scheduler runs the top-level capture loop: it opens a capture
// session while the window is open, harvests its output, and idles otherwise.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nir0k/SunLapse/internal/harvest"
	"github.com/nir0k/SunLapse/internal/logging"
)

// Window reports whether capture is permitted at an instant.
type Window interface {
	Open(t time.Time) bool
}

// Supervisor controls the capture driver process.
type Supervisor interface {
	Start(ctx context.Context) error
	Poll() (exited bool, err error)
	Terminate() error
	Running() bool
}

// Harvester claims new raw files and returns the advanced counter.
type Harvester interface {
	Harvest(ctx context.Context, counter harvest.Counter) (harvest.Counter, error)
}

// Phase is the scheduler state.
type Phase int

const (
	Idle Phase = iota
	Active
)

func (p Phase) String() string {
	if p == Active {
		return "active"
	}
	return "idle"
}

// Config tunes the loop.
type Config struct {
	// Interval is the capture interval. Active ticks run every Interval/4,
	// idle checks every Interval/2.
	Interval time.Duration
	// RestartBackoff delays restarts after driver exits. Nil restarts on the next tick.
	RestartBackoff backoff.BackOff
	// FailureAlert is the number of consecutive driver exits that triggers an alert.
	FailureAlert int
}

// Scheduler owns the session lifecycle. It is not safe for concurrent use.
type Scheduler struct {
	cfg       Config
	window    Window
	sup       Supervisor
	harvester Harvester
	clock     Clock
	log       logging.Logger

	phase        Phase
	idleLogged   bool
	sessionStart time.Time
	nextStart    time.Time
	failures     int
}

// New wires a scheduler. clock may be nil for the system clock.
func New(cfg Config, window Window, sup Supervisor, h Harvester, clock Clock, log logging.Logger) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logging.Discard
	}
	return &Scheduler{
		cfg:       cfg,
		window:    window,
		sup:       sup,
		harvester: h,
		clock:     clock,
		log:       log,
	}, nil
}

// Phase returns the current state.
func (s *Scheduler) Phase() Phase {
	return s.phase
}

// Run loops until ctx is done and returns the counter after the last
// harvest. The capture driver is terminated on every return path.
func (s *Scheduler) Run(ctx context.Context, counter harvest.Counter) (harvest.Counter, error) {
	defer func() {
		if err := s.sup.Terminate(); err != nil {
			s.log.Errorf("Failed to terminate capture driver: %v", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			return counter, nil
		}

		var wait time.Duration
		if s.window.Open(s.clock.Now()) {
			counter = s.tick(ctx, counter)
			wait = s.cfg.Interval / 4
		} else {
			counter = s.idle(ctx, counter)
			wait = s.cfg.Interval / 2
		}

		if err := s.clock.Sleep(ctx, wait); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return counter, nil
			}
			return counter, err
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, counter harvest.Counter) harvest.Counter {
	now := s.clock.Now()
	if s.phase != Active {
		s.phase = Active
		s.idleLogged = false
		s.failures = 0
		s.nextStart = time.Time{}
		if s.cfg.RestartBackoff != nil {
			s.cfg.RestartBackoff.Reset()
		}
		s.log.Infof("Capture window open, starting session")
	}

	if !s.sup.Running() && !now.Before(s.nextStart) {
		if err := s.sup.Start(ctx); err != nil {
			s.log.Warningf("Capture driver failed to start: %v", err)
			s.recordFailure(now, now)
		} else {
			s.sessionStart = now
		}
	}

	if exited, _ := s.sup.Poll(); exited {
		// Reap the exited session so the next tick starts a fresh driver.
		if err := s.sup.Terminate(); err != nil {
			s.log.Errorf("Failed to release exited capture driver: %v", err)
		}
		s.recordFailure(now, s.sessionStart)
	}

	return s.harvest(ctx, counter)
}

func (s *Scheduler) idle(ctx context.Context, counter harvest.Counter) harvest.Counter {
	if s.phase == Active {
		s.phase = Idle
		s.log.Infof("Capture window closed, stopping session")
		if err := s.sup.Terminate(); err != nil {
			s.log.Errorf("Failed to terminate capture driver: %v", err)
		}
		counter = s.harvest(ctx, counter)
	}
	if !s.idleLogged {
		s.idleLogged = true
		s.log.Infof("Outside capture window, sleeping in %s steps", s.cfg.Interval/2)
	}
	return counter
}

func (s *Scheduler) harvest(ctx context.Context, counter harvest.Counter) harvest.Counter {
	next, err := s.harvester.Harvest(ctx, counter)
	if err != nil {
		s.log.Errorf("Harvest stopped at %s: %v", harvest.CanonicalName(next), err)
	}
	return next
}

// recordFailure counts a driver exit and schedules the next start. A session
// that survived two capture intervals resets the backoff.
func (s *Scheduler) recordFailure(now, started time.Time) {
	if !started.IsZero() && now.Sub(started) >= 2*s.cfg.Interval {
		s.failures = 0
		if s.cfg.RestartBackoff != nil {
			s.cfg.RestartBackoff.Reset()
		}
	}
	s.failures++

	if s.cfg.FailureAlert > 0 && s.failures == s.cfg.FailureAlert {
		s.log.Errorf("Capture driver failed %d times in a row; check the camera connection", s.failures)
	}

	if s.cfg.RestartBackoff == nil {
		s.nextStart = time.Time{}
		return
	}
	delay := s.cfg.RestartBackoff.NextBackOff()
	if delay == backoff.Stop {
		delay = s.cfg.Interval
	}
	s.nextStart = now.Add(delay)
	s.log.Warningf("Restarting capture driver in %s", delay.Round(time.Millisecond))
}
