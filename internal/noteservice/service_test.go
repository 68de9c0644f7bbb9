package noteservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seedround/noteledger/internal/apperr"
	"github.com/seedround/noteledger/internal/finance"
	"github.com/seedround/noteledger/internal/models"
	"github.com/seedround/noteledger/internal/store"
	"github.com/seedround/noteledger/internal/testutil"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

var testClock = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	db := testutil.TestDB(t)
	opts = append([]Option{WithClock(func() time.Time { return testClock })}, opts...)
	return NewService(db, opts...)
}

func createParams() CreateParams {
	return CreateParams{
		Principal:    dec("100000"),
		InterestRate: dec("0.06"),
		Compounding:  finance.CompoundingSimple,
		MaturityDate: testClock.AddDate(2, 0, 0),
	}
}

func TestCreate(t *testing.T) {
	svc := testService(t)
	n, err := svc.Create(context.Background(), createParams())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.Status != models.StatusActive {
		t.Errorf("status = %s, want ACTIVE", n.Status)
	}
	if n.ID == "" {
		t.Error("id not assigned")
	}
	if !n.LastAccrualDate.Equal(n.IssuedAt) {
		t.Error("accrual clock must start at issuance")
	}
	if !n.IssuedAt.Equal(testClock) {
		t.Errorf("issued at = %s, want clock time", n.IssuedAt)
	}
}

func TestCreate_Invalid(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	p := createParams()
	p.Principal = decimal.Zero
	if _, err := svc.Create(ctx, p); err == nil {
		t.Error("zero principal must be rejected")
	}

	p = createParams()
	p.DiscountRate = decPtr("1.0")
	if _, err := svc.Create(ctx, p); err == nil {
		t.Error("discount rate of 100% must be rejected")
	}

	p = createParams()
	p.MaturityDate = testClock.AddDate(0, 0, -1)
	if _, err := svc.Create(ctx, p); err == nil {
		t.Error("maturity before issuance must be rejected")
	}

	p = createParams()
	p.Compounding = "HOURLY"
	if _, err := svc.Create(ctx, p); err == nil {
		t.Error("unknown compounding must be rejected")
	}
}

func TestAccrueInterest_PersistsAndIsIdempotent(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	n, err := svc.Create(ctx, createParams())
	if err != nil {
		t.Fatal(err)
	}

	asOf := testClock.AddDate(0, 0, 180)
	accrued, err := svc.AccrueInterest(ctx, n.ID, asOf)
	if err != nil {
		t.Fatalf("AccrueInterest: %v", err)
	}
	if accrued.AccruedInterest.StringFixed(2) != "2958.90" {
		t.Errorf("accrued = %s, want 2958.90", accrued.AccruedInterest.StringFixed(2))
	}
	if accrued.Version != 2 {
		t.Errorf("version = %d, want 2", accrued.Version)
	}

	// Same date again: no-op, nothing saved.
	again, err := svc.AccrueInterest(ctx, n.ID, asOf)
	if err != nil {
		t.Fatalf("second AccrueInterest: %v", err)
	}
	if !again.AccruedInterest.Equal(accrued.AccruedInterest) {
		t.Error("repeated accrual double-counted interest")
	}
	if again.Version != 2 {
		t.Errorf("no-op accrual bumped version to %d", again.Version)
	}
}

func TestAccrueInterest_SubDayIsNotPersisted(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	n, err := svc.Create(ctx, createParams())
	if err != nil {
		t.Fatal(err)
	}

	// Less than a whole day after issuance: nothing to book, nothing saved.
	after, err := svc.AccrueInterest(ctx, n.ID, testClock.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("AccrueInterest: %v", err)
	}
	if !after.AccruedInterest.IsZero() {
		t.Errorf("sub-day accrual booked %s", after.AccruedInterest)
	}
	if after.Version != 1 {
		t.Errorf("sub-day accrual bumped version to %d", after.Version)
	}

	// The elapsed hours were not discarded: a later whole-day accrual books
	// the full first day.
	booked, err := svc.AccrueInterest(ctx, n.ID, testClock.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("AccrueInterest: %v", err)
	}
	if booked.AccruedInterest.IsZero() {
		t.Error("whole-day accrual after sub-day call booked nothing")
	}
	if booked.Version != 2 {
		t.Errorf("version = %d, want 2", booked.Version)
	}
}

func TestAccrueInterest_BeforeIssuance(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	n, _ := svc.Create(ctx, createParams())

	_, err := svc.AccrueInterest(ctx, n.ID, testClock.AddDate(0, 0, -1))
	if !errors.Is(err, apperr.ErrInvalidAccrualDate) {
		t.Errorf("err = %v, want ErrInvalidAccrualDate", err)
	}
}

func TestGetAccruedInterest_DoesNotPersist(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	n, _ := svc.Create(ctx, createParams())

	amount, err := svc.GetAccruedInterest(ctx, n.ID, testClock.AddDate(0, 0, 180))
	if err != nil {
		t.Fatalf("GetAccruedInterest: %v", err)
	}
	if amount.StringFixed(2) != "2958.90" {
		t.Errorf("projection = %s, want 2958.90", amount.StringFixed(2))
	}

	stored, _ := svc.Get(ctx, n.ID)
	if !stored.AccruedInterest.IsZero() {
		t.Error("projection must not persist accrued interest")
	}
	if stored.Version != 1 {
		t.Errorf("projection bumped version to %d", stored.Version)
	}
}

func TestConvert_AccruesThenConverts(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	p := createParams()
	p.DiscountRate = decPtr("0.20")
	n, _ := svc.Create(ctx, p)

	asOf := testClock.AddDate(0, 0, 180)
	converted, err := svc.Convert(ctx, n.ID, dec("1.00"), nil, asOf)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if converted.Status != models.StatusConverted {
		t.Errorf("status = %s, want CONVERTED", converted.Status)
	}
	if converted.ConversionPrice == nil || converted.ConversionPrice.StringFixed(2) != "0.80" {
		t.Errorf("conversion price = %v, want 0.80", converted.ConversionPrice)
	}
	// Interest was brought current before conversion priced the note.
	if converted.AccruedInterest.StringFixed(2) != "2958.90" {
		t.Errorf("accrued = %s, want 2958.90", converted.AccruedInterest.StringFixed(2))
	}

	// A converted note rejects further mutations.
	if _, err := svc.AccrueInterest(ctx, n.ID, asOf.AddDate(0, 0, 30)); !errors.Is(err, apperr.ErrInvalidStateTransition) {
		t.Errorf("accrual on converted note: err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestRepay(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	n, _ := svc.Create(ctx, createParams())
	if _, err := svc.AccrueInterest(ctx, n.ID, testClock.AddDate(0, 0, 180)); err != nil {
		t.Fatal(err)
	}

	// Principal alone is short once interest has accrued.
	_, err := svc.Repay(ctx, n.ID, dec("100000"))
	var ire *apperr.InsufficientRepaymentError
	if !errors.As(err, &ire) {
		t.Fatalf("err = %v, want InsufficientRepaymentError", err)
	}

	repaid, err := svc.Repay(ctx, n.ID, ire.Required)
	if err != nil {
		t.Fatalf("Repay: %v", err)
	}
	if repaid.Status != models.StatusRepaid {
		t.Errorf("status = %s, want REPAID", repaid.Status)
	}
}

func TestMarkDefaulted(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	n, _ := svc.Create(ctx, createParams())

	defaulted, err := svc.MarkDefaulted(ctx, n.ID)
	if err != nil {
		t.Fatalf("MarkDefaulted: %v", err)
	}
	if defaulted.Status != models.StatusDefaulted {
		t.Errorf("status = %s, want DEFAULTED", defaulted.Status)
	}
	if _, err := svc.MarkDefaulted(ctx, n.ID); !errors.Is(err, apperr.ErrInvalidStateTransition) {
		t.Errorf("second default: err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestCheckQualifiedFinancing(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	p := createParams()
	p.QFThreshold = decPtr("1000000")
	n, _ := svc.Create(ctx, p)

	qualified, err := svc.CheckQualifiedFinancing(ctx, n.ID, dec("1500000"))
	if err != nil {
		t.Fatal(err)
	}
	if !qualified {
		t.Error("1.5M round against 1M threshold should qualify")
	}
	qualified, _ = svc.CheckQualifiedFinancing(ctx, n.ID, dec("999999"))
	if qualified {
		t.Error("999,999 round should not qualify")
	}

	// Check never mutates.
	stored, _ := svc.Get(ctx, n.ID)
	if stored.Status != models.StatusActive || stored.Version != 1 {
		t.Error("qualification check must be read-only")
	}
}

func TestRecordFinancingRound_AutoConversion(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	p := createParams()
	p.QFThreshold = decPtr("1000000")
	p.AutoConversion = true
	p.DiscountRate = decPtr("0.20")
	n, _ := svc.Create(ctx, p)

	qualified, updated, err := svc.RecordFinancingRound(ctx, n.ID, dec("2000000"), dec("1.00"), nil, testClock.AddDate(0, 0, 180))
	if err != nil {
		t.Fatalf("RecordFinancingRound: %v", err)
	}
	if !qualified {
		t.Error("round should qualify")
	}
	if updated.Status != models.StatusConverted {
		t.Errorf("status = %s, want CONVERTED (auto-conversion)", updated.Status)
	}
}

func TestRecordFinancingRound_ManualNoteStaysActive(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	p := createParams()
	p.QFThreshold = decPtr("1000000")
	// AutoConversion off: qualification is reported but nothing converts.
	n, _ := svc.Create(ctx, p)

	qualified, updated, err := svc.RecordFinancingRound(ctx, n.ID, dec("2000000"), dec("1.00"), nil, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if !qualified {
		t.Error("round should qualify")
	}
	if updated.Status != models.StatusActive {
		t.Errorf("status = %s, want ACTIVE", updated.Status)
	}
}

func TestListMaturing(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	p := createParams()
	p.MaturityDate = testClock.AddDate(0, 0, 10)
	if _, err := svc.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	p = createParams()
	p.MaturityDate = testClock.AddDate(1, 0, 0)
	if _, err := svc.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	maturing, err := svc.ListMaturing(ctx, 30)
	if err != nil {
		t.Fatalf("ListMaturing: %v", err)
	}
	if len(maturing) != 1 {
		t.Errorf("len = %d, want 1", len(maturing))
	}
}

func TestNotifierReceivesLifecycleEvents(t *testing.T) {
	var events []string
	svc := testService(t, WithNotifier(func(event string, _ *models.ConvertibleNote) {
		events = append(events, event)
	}))
	ctx := context.Background()

	n, err := svc.Create(ctx, createParams())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AccrueInterest(ctx, n.ID, testClock.AddDate(0, 0, 30)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Repay(ctx, n.ID, dec("1000000")); err != nil {
		t.Fatal(err)
	}

	want := []string{EventCreated, EventAccrued, EventRepaid}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}

// conflictStore wraps a NoteStore and fails the first saves with an
// optimistic-concurrency conflict.
type conflictStore struct {
	store.NoteStore
	conflicts int
}

func (c *conflictStore) Save(ctx context.Context, n *models.ConvertibleNote) error {
	if c.conflicts > 0 {
		c.conflicts--
		return apperr.ErrConcurrentModification
	}
	return c.NoteStore.Save(ctx, n)
}

func TestMutationRetriesOnConflict(t *testing.T) {
	db := testutil.TestDB(t)
	cs := &conflictStore{NoteStore: db, conflicts: 2}
	svc := NewService(cs, WithClock(func() time.Time { return testClock }))
	ctx := context.Background()

	n, err := svc.Create(ctx, createParams())
	if err != nil {
		t.Fatal(err)
	}

	// Two conflicts, then success on the third attempt.
	accrued, err := svc.AccrueInterest(ctx, n.ID, testClock.AddDate(0, 0, 30))
	if err != nil {
		t.Fatalf("AccrueInterest after conflicts: %v", err)
	}
	if accrued.AccruedInterest.IsZero() {
		t.Error("accrual should have landed after retries")
	}
}

func TestMutationGivesUpAfterMaxRetries(t *testing.T) {
	db := testutil.TestDB(t)
	cs := &conflictStore{NoteStore: db, conflicts: 100}
	svc := NewService(cs, WithClock(func() time.Time { return testClock }))
	ctx := context.Background()

	n, err := svc.Create(ctx, createParams())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AccrueInterest(ctx, n.ID, testClock.AddDate(0, 0, 30)); !errors.Is(err, apperr.ErrConcurrentModification) {
		t.Errorf("err = %v, want ErrConcurrentModification", err)
	}
}
