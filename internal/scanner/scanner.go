// Package scanner periodically fetches due reminders, delivers them and marks
// them delivered.
//
// Each reminder is sent before it is marked. A crash or a failed mark after a
// successful send leaves the reminder pending, so it is sent again on a later
// cycle; a reminder is never marked without a confirmed send. Nothing is
// locked across cycles: overlapping cycles may send the same reminder twice,
// and the idempotent mark absorbs the race.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pathakanu/remindly/internal/delivery"
	"github.com/pathakanu/remindly/internal/log"
	"github.com/pathakanu/remindly/internal/metrics"
	"github.com/pathakanu/remindly/internal/model"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultInterval is the time between two scan cycles.
const DefaultInterval = 10 * time.Second

// markTimeout bounds the mark that follows a confirmed send.
const markTimeout = 5 * time.Second

// Store is the part of the storage gateway the scanner needs.
type Store interface {
	DueReminders(ctx context.Context, now time.Time) ([]model.DueReminder, error)
	MarkDelivered(ctx context.Context, id uint) error
}

// Sender delivers one text to one recipient, retrying internally.
type Sender interface {
	Send(ctx context.Context, recipient int64, text string) error
}

// Result is the outcome of delivering a single reminder.
type Result struct {
	ReminderID uint
	Recipient  int64
	Sent       bool
	Marked     bool
	Err        error
}

// Report summarises one scan cycle.
type Report struct {
	CycleID string
	Results []Result
}

// Delivered counts reminders that were both sent and marked.
func (r Report) Delivered() int {
	n := 0
	for _, res := range r.Results {
		if res.Sent && res.Marked {
			n++
		}
	}
	return n
}

// Failed returns the results that did not end up marked delivered.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Marked {
			failed = append(failed, res)
		}
	}
	return failed
}

// Scanner drives the periodic scan-and-deliver cycle.
type Scanner struct {
	store    Store
	sender   Sender
	logger   zerolog.Logger
	clock    clock.Clock
	interval time.Duration

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// Option customises a Scanner.
type Option func(*Scanner)

// WithInterval overrides the scan interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock sets the clock used as the scan time.
func WithClock(clk clock.Clock) Option {
	return func(s *Scanner) {
		s.clock = clk
	}
}

// New creates a Scanner polling every DefaultInterval.
func New(store Store, sender Sender, logger zerolog.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		store:    store,
		sender:   sender,
		logger:   logger,
		clock:    clock.New(),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the scan job and starts the scheduler loop.
// A cycle that outlasts the interval does not delay the next one.
func (s *Scanner) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scanner already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(log.CronLogger{Logger: s.logger}),
		cron.WithChain(cron.Recover(log.CronLogger{Logger: s.logger})),
	)
	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		_, _ = s.Scan(ctx)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("register scan job: %w", err)
	}

	s.cron, s.ctx, s.cancel = c, ctx, cancel
	c.Start()
	s.logger.Info().Dur("interval", s.interval).Msg("scanner started")
	return nil
}

// Stop abandons in-flight deliveries and waits for running cycles to return.
// Reminders already sent are still marked; the rest are picked up again after
// a restart.
func (s *Scanner) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.ctx, s.cancel = nil, nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	cancel()
	<-c.Stop().Done()
	s.logger.Info().Msg("scanner stopped")
}

// Scan runs one cycle: fetch the due set, then deliver and mark each reminder
// independently. An error is returned only when the due set cannot be fetched,
// in which case nothing was delivered.
func (s *Scanner) Scan(ctx context.Context) (Report, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ScanDuration)

	report := Report{CycleID: uuid.NewString()}
	logger := s.logger.With().Str("cycle_id", report.CycleID).Logger()

	due, err := s.store.DueReminders(ctx, s.clock.Now())
	if err != nil {
		metrics.ScanCycles.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("fetch due reminders; skipping cycle")
		return report, fmt.Errorf("fetch due reminders: %w", err)
	}
	metrics.DueReminders.Set(float64(len(due)))
	metrics.ScanCycles.WithLabelValues("ok").Inc()
	if len(due) == 0 {
		logger.Debug().Msg("no due reminders")
		return report, nil
	}

	report.Results = make([]Result, 0, len(due))
	for _, reminder := range due {
		report.Results = append(report.Results, s.deliver(ctx, logger, reminder))
	}

	logger.Info().
		Int("due", len(due)).
		Int("delivered", report.Delivered()).
		Int("failed", len(report.Failed())).
		Msg("scan cycle finished")
	return report, nil
}

func (s *Scanner) deliver(ctx context.Context, logger zerolog.Logger, reminder model.DueReminder) Result {
	res := Result{ReminderID: reminder.ID, Recipient: reminder.RecipientID}
	logger = logger.With().Uint("reminder_id", reminder.ID).Int64("recipient", reminder.RecipientID).Logger()

	if err := s.sender.Send(ctx, reminder.RecipientID, Message(reminder)); err != nil {
		res.Err = err
		var derr *delivery.Error
		if errors.As(err, &derr) && derr.Permanent {
			metrics.DeliveryFailures.WithLabelValues("permanent").Inc()
			logger.Warn().Err(err).Bool("permanent", true).Msg("reminder undeliverable; left pending")
		} else {
			metrics.DeliveryFailures.WithLabelValues("transient").Inc()
			logger.Error().Err(err).Msg("send reminder; will retry next cycle")
		}
		return res
	}
	res.Sent = true

	// A confirmed send is recorded even when the cycle is being stopped.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()
	if err := s.store.MarkDelivered(markCtx, reminder.ID); err != nil {
		res.Err = err
		metrics.MarkFailures.Inc()
		logger.Error().Err(err).Msg("mark reminder delivered; it may be sent again")
		return res
	}
	res.Marked = true
	metrics.RemindersDelivered.Inc()
	logger.Debug().Msg("reminder delivered")
	return res
}

// Message renders the notification text for a due reminder.
func Message(r model.DueReminder) string {
	return fmt.Sprintf("⏰ Reminder: %s (Time: %s UTC)", r.Description, r.ReminderTime.UTC().Format(model.TimeLayout))
}
