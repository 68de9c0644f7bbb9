// Package scheduler drives periodic interest accrual and maturity advisories
// for active notes.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/seedround/noteledger/internal/apperr"
	"github.com/seedround/noteledger/internal/models"
	"github.com/seedround/noteledger/internal/sse"
)

// Ledger is the slice of the note service the scheduler drives.
type Ledger interface {
	ListActive(ctx context.Context) ([]models.ConvertibleNote, error)
	AccrueInterest(ctx context.Context, id string, asOf time.Time) (*models.ConvertibleNote, error)
	ListMaturing(ctx context.Context, withinDays int) ([]models.ConvertibleNote, error)
}

// Publisher receives maturity advisories. Satisfied by *sse.Broker.
type Publisher interface {
	PublishMaturityEvent(event, noteID string, maturityDate time.Time)
}

// Scheduler periodically books interest on every active note and publishes
// advisories for notes approaching or past maturity.
type Scheduler struct {
	ledger   Ledger
	pub      Publisher
	logger   *slog.Logger
	interval time.Duration
	window   int
	now      func() time.Time

	// advised remembers which (note, event) advisories have been published
	// so repeated ticks do not flood subscribers.
	advised map[string]struct{}
}

// New creates a scheduler. window is the maturity advisory horizon in days.
func New(ledger Ledger, pub Publisher, logger *slog.Logger, interval time.Duration, window int) *Scheduler {
	return &Scheduler{
		ledger:   ledger,
		pub:      pub,
		logger:   logger,
		interval: interval,
		window:   window,
		now:      time.Now,
		advised:  make(map[string]struct{}),
	}
}

// WithClock overrides the scheduler clock, for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run executes ticks at the configured interval until ctx is cancelled. The
// first tick runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler: started",
		slog.Duration("interval", s.interval),
		slog.Int("maturity_window_days", s.window))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one accrual and advisory pass. Failures on one note never stop
// processing of the rest.
func (s *Scheduler) Tick(ctx context.Context) {
	asOf := s.now().UTC()

	notes, err := s.ledger.ListActive(ctx)
	if err != nil {
		s.logger.Error("scheduler: list active failed", slog.String("error", err.Error()))
		return
	}

	for _, n := range notes {
		if _, err := s.ledger.AccrueInterest(ctx, n.ID, asOf); err != nil {
			// The note may have converted or been repaid between the listing
			// and this accrual; that is not a scheduler failure.
			if errors.Is(err, apperr.ErrInvalidStateTransition) || errors.Is(err, apperr.ErrNoteNotFound) {
				continue
			}
			s.logger.Warn("scheduler: accrual failed",
				slog.String("note_id", n.ID),
				slog.String("error", err.Error()))
		}
	}

	s.publishAdvisories(ctx, asOf)
}

func (s *Scheduler) publishAdvisories(ctx context.Context, now time.Time) {
	if s.pub == nil {
		return
	}

	maturing, err := s.ledger.ListMaturing(ctx, s.window)
	if err != nil {
		s.logger.Error("scheduler: list maturing failed", slog.String("error", err.Error()))
		return
	}

	for _, n := range maturing {
		event := sse.EventMaturityApproaching
		if n.Overdue(now) {
			event = sse.EventMaturityOverdue
		}
		key := n.ID + ":" + event
		if _, ok := s.advised[key]; ok {
			continue
		}
		s.advised[key] = struct{}{}
		s.pub.PublishMaturityEvent(event, n.ID, n.MaturityDate)
		s.logger.Info("scheduler: maturity advisory",
			slog.String("note_id", n.ID),
			slog.String("event", event))
	}
}
