// Package sync drives triage cycles on a schedule with bounded retries.
package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/triage"
)

// Cycle performs one pass over the mailbox.
type Cycle interface {
	Run(ctx context.Context) (triage.Outcome, error)
}

// Liveness receives progress signals from the poller.
type Liveness interface {
	SetProcessing(bool)
	ReportSuccess(time.Time)
}

// Config holds the scheduling intervals.
type Config struct {
	StartupDelay time.Duration
	Interval     time.Duration
	RetryDelay   time.Duration

	// MaxFailures is how many consecutive failed cycles are retried
	// before falling back to the regular interval.
	MaxFailures int
}

// ConfigFromService converts the service settings.
func ConfigFromService(s model.ServiceConfig) Config {
	return Config{
		StartupDelay: time.Duration(s.StartupDelaySeconds) * time.Second,
		Interval:     time.Duration(s.PollingIntervalMinutes) * time.Minute,
		RetryDelay:   time.Duration(s.RetryDelaySeconds) * time.Second,
		MaxFailures:  s.MaxRetryAttempts,
	}
}

// Poller runs cycles until its context is cancelled.
type Poller struct {
	cycle     Cycle
	live      Liveness
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
	after     func(time.Duration) <-chan time.Time
	triggerCh chan struct{}
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock overrides the time source and timer used between cycles.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(p *Poller) {
		p.now = now
		p.after = after
	}
}

// New creates a Poller.
func New(c Cycle, live Liveness, cfg Config, log zerolog.Logger, opts ...Option) *Poller {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}
	p := &Poller{
		cycle:     c,
		live:      live,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		after:     time.After,
		triggerCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RefreshNow cuts the current polling interval short. Retry delays are
// not affected.
func (p *Poller) RefreshNow() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A refresh is already pending.
	}
}

// Run waits for the startup delay and then polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info().
		Dur("startup_delay", p.cfg.StartupDelay).
		Dur("interval", p.cfg.Interval).
		Int("max_retry_attempts", p.cfg.MaxFailures).
		Msg("poller starting")

	if err := p.wait(ctx, p.cfg.StartupDelay, false); err != nil {
		p.log.Info().Msg("poller stopped before first cycle")
		return
	}

	failures := 0
	for {
		_, err := p.RunOnce(ctx)
		if ctx.Err() != nil {
			p.log.Info().Msg("poller stopped")
			return
		}

		if err != nil {
			failures++
			msg := "cycle failed"
			if mailbox.IsAuthError(err) {
				msg = "mailbox rejected credentials"
			}
			p.log.Error().Err(err).
				Int("attempt", failures).
				Int("max_attempts", p.cfg.MaxFailures).
				Msg(msg)

			if failures < p.cfg.MaxFailures {
				if err := p.wait(ctx, p.cfg.RetryDelay, false); err != nil {
					p.log.Info().Msg("poller stopped")
					return
				}
				continue
			}

			p.log.Error().Int("attempts", failures).
				Msg("max retry attempts reached; waiting for next polling interval")
		}
		failures = 0

		if err := p.wait(ctx, p.cfg.Interval, true); err != nil {
			p.log.Info().Msg("poller stopped")
			return
		}
	}
}

// RunOnce runs a single cycle, reporting processing state and success to
// the liveness tracker.
func (p *Poller) RunOnce(ctx context.Context) (triage.Outcome, error) {
	p.live.SetProcessing(true)
	defer p.live.SetProcessing(false)

	out, err := p.cycle.Run(ctx)
	if err != nil {
		return out, err
	}

	p.live.ReportSuccess(p.now())
	p.log.Info().
		Str("cycle_id", out.CycleID).
		Int("processed", out.Processed).
		Msg("cycle completed")
	return out, nil
}

// wait sleeps for d. Interval waits also end early on RefreshNow.
func (p *Poller) wait(ctx context.Context, d time.Duration, refreshable bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	var trigger <-chan struct{}
	if refreshable {
		trigger = p.triggerCh
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.after(d):
		return nil
	case <-trigger:
		p.log.Info().Msg("refresh requested")
		return nil
	}
}
