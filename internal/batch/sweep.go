package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	notify "nudge/internal/notify"
	trigger "nudge/internal/trigger"
	logx "nudge/pkg/logx"
)

// TriggerLister is the slice of the store the sweep needs.
type TriggerLister interface {
	ListActive(ctx context.Context) ([]*trigger.Trigger, error)
}

// Config controls the periodic sweep.
type Config struct {
	// Schedule is a cron spec ("*/5 * * * *") or descriptor
	// ("@every 1m"). Empty means "@every 1m".
	Schedule string
	// Workers is the number of concurrent computation workers.
	Workers int
	// RatePerSec caps trigger computations per second across workers;
	// 0 means unlimited.
	RatePerSec int
	// Deadline bounds one whole sweep.
	Deadline time.Duration
	// DueWithin is how close an occurrence must be before it is handed
	// to the notifier.
	DueWithin time.Duration
	// Timezone is the IANA zone the cron schedule runs in; empty means
	// the host zone.
	Timezone string
}

// Stats summarizes one sweep run.
type Stats struct {
	Scanned int64
	Due     int64
	Sent    int64
	Errors  int64
	Took    time.Duration
}

// Sweeper periodically walks the active trigger catalog, computes the
// next occurrence for each trigger and hands due ones to the notifier.
type Sweeper struct {
	cfg      Config
	store    TriggerLister
	calc     *trigger.Calculator
	notifier notify.Notifier
	log      logx.Logger
	limiter  *rate.Limiter

	now func() time.Time // test hook

	mu sync.Mutex
	c  *cron.Cron
}

func NewSweeper(cfg Config, store TriggerLister, calc *trigger.Calculator, notifier notify.Notifier, log logx.Logger) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 30 * time.Second
	}
	if cfg.DueWithin <= 0 {
		cfg.DueWithin = time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sweeper{
		cfg:      cfg,
		store:    store,
		calc:     calc,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return s
}

// Start registers the cron schedule and begins sweeping until ctx is
// done. It returns after scheduling; Stop blocks until a running sweep
// finishes.
func (s *Sweeper) Start(ctx context.Context) error {
	loc := time.Local
	if s.cfg.Timezone != "" {
		l, err := time.LoadLocation(s.cfg.Timezone)
		if err != nil {
			return err
		}
		loc = l
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(s.cfg.Schedule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return errors.New("sweeper already started")
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		if ctx.Err() != nil {
			return
		}
		stats := s.RunOnce(ctx)
		s.log.Info("sweep finished",
			logx.Int64("scanned", stats.Scanned),
			logx.Int64("due", stats.Due),
			logx.Int64("sent", stats.Sent),
			logx.Int64("errors", stats.Errors),
			logx.Duration("took", stats.Took),
		)
	})
	if err != nil {
		return err
	}
	s.c = c
	c.Start()
	s.log.Info("sweeper started",
		logx.String("schedule", s.cfg.Schedule),
		logx.Int("workers", s.cfg.Workers),
		logx.String("tz", loc.String()),
	)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		s.log.Info("sweeper stopped")
	}
}

// RunOnce performs a single sweep: list active triggers, compute each
// one's next occurrence, notify the ones due within the configured
// window. Per-trigger failures are counted, not fatal.
func (s *Sweeper) RunOnce(ctx context.Context) Stats {
	started := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	var stats Stats
	triggers, err := s.store.ListActive(ctx)
	if err != nil {
		s.log.Warn("sweep list failed", logx.Err(err))
		stats.Errors++
		stats.Took = s.now().Sub(started)
		return stats
	}

	queue := make(chan *trigger.Trigger)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				s.sweepOne(ctx, t, started, &stats)
			}
		}()
	}

feed:
	for _, t := range triggers {
		select {
		case queue <- t:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	stats.Took = s.now().Sub(started)
	return stats
}

func (s *Sweeper) sweepOne(ctx context.Context, t *trigger.Trigger, now time.Time, stats *Stats) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
	}
	atomic.AddInt64(&stats.Scanned, 1)

	next, ok := s.calc.Next(ctx, t, nil, now)
	if !ok {
		return
	}
	if next.Sub(now) > s.cfg.DueWithin {
		return
	}
	atomic.AddInt64(&stats.Due, 1)

	var userID int64
	if t.Owner != nil {
		userID = t.Owner.ID
	}
	err := s.notifier.Send(ctx, notify.Reminder{Trigger: t, UserID: userID, At: next})
	if err != nil {
		atomic.AddInt64(&stats.Errors, 1)
		s.log.Warn("reminder delivery failed",
			logx.Int64("trigger_id", t.ID), logx.Err(err))
		return
	}
	atomic.AddInt64(&stats.Sent, 1)
}
