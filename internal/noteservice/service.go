// Package noteservice orchestrates ledger operations over the note store.
// Domain rules live on the models.ConvertibleNote aggregate; this layer adds
// persistence with optimistic-concurrency retry and best-effort event
// notification.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seedround/noteledger/internal/apperr"
	"github.com/seedround/noteledger/internal/finance"
	"github.com/seedround/noteledger/internal/models"
	"github.com/seedround/noteledger/internal/store"
)

// maxSaveRetries bounds how often a mutation is retried after losing an
// optimistic-concurrency race. Each retry starts from a fresh read.
const maxSaveRetries = 3

// Event kinds published to the notification sink.
const (
	EventCreated   = "note.created"
	EventAccrued   = "note.accrued"
	EventConverted = "note.converted"
	EventRepaid    = "note.repaid"
	EventDefaulted = "note.defaulted"
)

// Notifier receives note lifecycle events. Implementations must not block;
// failures are the sink's problem, never the ledger's.
type Notifier func(event string, note *models.ConvertibleNote)

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier sets the lifecycle event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// Service coordinates store and domain operations for convertible notes.
type Service struct {
	store  store.NoteStore
	now    func() time.Time
	notify Notifier
}

// NewService creates a new note service.
func NewService(st store.NoteStore, opts ...Option) *Service {
	s := &Service{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create issues a new ACTIVE note with the given terms.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.ConvertibleNote, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidNoteTerms, err)
	}

	now := s.now().UTC()
	issued := p.IssuedAt
	if issued.IsZero() {
		issued = now
	}
	if !p.MaturityDate.After(issued) {
		return nil, fmt.Errorf("%w: maturity date must be after issuance", apperr.ErrInvalidNoteTerms)
	}

	n := &models.ConvertibleNote{
		ID:              uuid.NewString(),
		Principal:       p.Principal,
		InterestRate:    p.InterestRate,
		Compounding:     p.Compounding,
		IssuedAt:        issued,
		MaturityDate:    p.MaturityDate,
		DiscountRate:    p.DiscountRate,
		ValuationCap:    p.ValuationCap,
		QFThreshold:     p.QFThreshold,
		AutoConversion:  p.AutoConversion,
		AccruedInterest: decimal.Zero,
		LastAccrualDate: issued,
		Status:          models.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, n); err != nil {
		return nil, err
	}
	s.emit(EventCreated, n)
	return n, nil
}

// Get loads a note by id.
func (s *Service) Get(ctx context.Context, id string) (*models.ConvertibleNote, error) {
	return s.store.Get(ctx, id)
}

// List returns a page of notes with an optional status filter.
func (s *Service) List(ctx context.Context, limit, offset int, status models.Status) ([]models.ConvertibleNote, int, error) {
	return s.store.List(ctx, limit, offset, status)
}

// GetAccruedInterest projects total accrued interest as of the given date
// without persisting anything. A zero asOf means "now".
func (s *Service) GetAccruedInterest(ctx context.Context, id string, asOf time.Time) (decimal.Decimal, error) {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	return n.AccruedAsOf(asOf)
}

// AccrueInterest books interest up to asOf and persists the new accrued
// amount and accrual date atomically. Re-invocation with the same or an
// earlier date is a no-op. A zero asOf means "now".
func (s *Service) AccrueInterest(ctx context.Context, id string, asOf time.Time) (*models.ConvertibleNote, error) {
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	var booked bool
	n, err := s.mutate(ctx, id, func(n *models.ConvertibleNote) (bool, error) {
		delta, err := n.Accrue(asOf)
		if err != nil {
			return false, err
		}
		// Save only when interest was actually booked; zero-delta calls
		// must not bump the version.
		booked = delta.Sign() > 0
		return booked, nil
	})
	if err != nil {
		return nil, err
	}
	if booked {
		s.emit(EventAccrued, n)
	}
	return n, nil
}

// CheckQualifiedFinancing reports whether a round of the given size crosses
// the note's qualified-financing threshold. Read-only; never mutates.
func (s *Service) CheckQualifiedFinancing(ctx context.Context, id string, roundAmount decimal.Decimal) (bool, error) {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return n.IsQualifiedFinancing(roundAmount), nil
}

// RecordFinancingRound evaluates a financing round against the note. When the
// round qualifies and the note has auto-conversion enabled, interest is
// accrued up to asOf and the note converts in the same persisted mutation.
// Otherwise the note is returned unchanged along with the qualification
// verdict.
func (s *Service) RecordFinancingRound(ctx context.Context, id string, roundAmount, pricePerShare decimal.Decimal, roundValuation *decimal.Decimal, asOf time.Time) (bool, *models.ConvertibleNote, error) {
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}

	n, err := s.store.Get(ctx, id)
	if err != nil {
		return false, nil, err
	}
	qualified := n.IsQualifiedFinancing(roundAmount)
	if !qualified || !n.AutoConversion {
		return qualified, n, nil
	}

	converted, err := s.mutate(ctx, id, func(n *models.ConvertibleNote) (bool, error) {
		if !n.IsQualifiedFinancing(roundAmount) {
			return false, nil
		}
		if _, err := n.Accrue(asOf); err != nil {
			return false, err
		}
		if _, err := n.Convert(pricePerShare, roundValuation); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return qualified, nil, err
	}
	if converted.Status == models.StatusConverted {
		s.emit(EventConverted, converted)
	}
	return qualified, converted, nil
}

// CalculateConversion computes a conversion quote from the note's currently
// booked balance. Read-only projection; interest is not accrued.
func (s *Service) CalculateConversion(ctx context.Context, id string, pricePerShare decimal.Decimal, roundValuation *decimal.Decimal) (finance.Quote, error) {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return finance.Quote{}, err
	}
	return n.ConversionQuote(pricePerShare, roundValuation)
}

// Convert accrues interest up to asOf and then transitions the note to
// CONVERTED, persisting both in one atomic save. A zero asOf means "now".
func (s *Service) Convert(ctx context.Context, id string, pricePerShare decimal.Decimal, roundValuation *decimal.Decimal, asOf time.Time) (*models.ConvertibleNote, error) {
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	n, err := s.mutate(ctx, id, func(n *models.ConvertibleNote) (bool, error) {
		// Bring interest current before pricing the conversion; the state
		// machine itself never accrues implicitly.
		if _, err := n.Accrue(asOf); err != nil {
			return false, err
		}
		if _, err := n.Convert(pricePerShare, roundValuation); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(EventConverted, n)
	return n, nil
}

// Repay transitions the note to REPAID given a full payoff amount.
func (s *Service) Repay(ctx context.Context, id string, amount decimal.Decimal) (*models.ConvertibleNote, error) {
	n, err := s.mutate(ctx, id, func(n *models.ConvertibleNote) (bool, error) {
		if err := n.Repay(amount); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(EventRepaid, n)
	return n, nil
}

// MarkDefaulted transitions the note to DEFAULTED.
func (s *Service) MarkDefaulted(ctx context.Context, id string) (*models.ConvertibleNote, error) {
	n, err := s.mutate(ctx, id, func(n *models.ConvertibleNote) (bool, error) {
		if err := n.MarkDefaulted(); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(EventDefaulted, n)
	return n, nil
}

// ListActive returns every note still in the ACTIVE state.
func (s *Service) ListActive(ctx context.Context) ([]models.ConvertibleNote, error) {
	return s.store.ListActive(ctx)
}

// ListMaturing returns ACTIVE notes maturing within the given number of days,
// including notes already past maturity.
func (s *Service) ListMaturing(ctx context.Context, withinDays int) ([]models.ConvertibleNote, error) {
	if withinDays < 0 {
		withinDays = 0
	}
	return s.store.ListMaturing(ctx, s.now().UTC(), time.Duration(withinDays)*24*time.Hour)
}

// mutate runs fn against a freshly loaded note and saves the result,
// retrying the whole read-mutate-save cycle on optimistic-concurrency
// conflicts. fn returns false to signal a no-op, which skips the save.
func (s *Service) mutate(ctx context.Context, id string, fn func(*models.ConvertibleNote) (bool, error)) (*models.ConvertibleNote, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		n, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := fn(n)
		if err != nil {
			return nil, err
		}
		if !changed {
			return n, nil
		}
		n.UpdatedAt = s.now().UTC()
		if err := s.store.Save(ctx, n); err != nil {
			if errors.Is(err, apperr.ErrConcurrentModification) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return n, nil
	}
	return nil, lastErr
}

func (s *Service) emit(event string, n *models.ConvertibleNote) {
	if s.notify != nil {
		s.notify(event, n)
	}
}
