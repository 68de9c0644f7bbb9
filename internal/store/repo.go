package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seedround/noteledger/internal/apperr"
	"github.com/seedround/noteledger/internal/finance"
	"github.com/seedround/noteledger/internal/models"
)

const noteColumns = `id, principal, interest_rate, compounding, issued_at, maturity_date,
	discount_rate, valuation_cap, qf_threshold, auto_conversion,
	accrued_interest, last_accrual_date, status, conversion_price,
	version, created_at, updated_at`

// Insert stores a newly issued note. The note's Version is set to 1.
func (db *DB) Insert(ctx context.Context, n *models.ConvertibleNote) error {
	n.Version = 1
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID, n.Principal.String(), n.InterestRate.String(), string(n.Compounding),
		n.IssuedAt.UTC(), n.MaturityDate.UTC(),
		decString(n.DiscountRate), decString(n.ValuationCap), decString(n.QFThreshold),
		n.AutoConversion,
		n.AccruedInterest.String(), n.LastAccrualDate.UTC(), string(n.Status), decString(n.ConversionPrice),
		n.Version, n.CreatedAt.UTC(), n.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert note: %w", err)
	}
	return nil
}

// Get loads a note by id.
func (db *DB) Get(ctx context.Context, id string) (*models.ConvertibleNote, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNoteNotFound
		}
		return nil, fmt.Errorf("store: get note: %w", err)
	}
	return n, nil
}

// Save persists a mutated note with an optimistic-concurrency check: the
// update only lands if the stored version still matches the version the note
// was loaded at. On success the note's Version is advanced; on a lost race it
// returns apperr.ErrConcurrentModification and the caller retries from a
// fresh read.
func (db *DB) Save(ctx context.Context, n *models.ConvertibleNote) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE notes SET
			accrued_interest  = ?,
			last_accrual_date = ?,
			status            = ?,
			conversion_price  = ?,
			version           = version + 1,
			updated_at        = ?
		WHERE id = ? AND version = ?
	`,
		n.AccruedInterest.String(), n.LastAccrualDate.UTC(), string(n.Status),
		decString(n.ConversionPrice), n.UpdatedAt.UTC(),
		n.ID, n.Version)
	if err != nil {
		return fmt.Errorf("store: save note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: save note: %w", err)
	}
	if affected == 0 {
		// Either the id is gone or someone saved a newer version first.
		var exists int
		switch scanErr := db.conn.QueryRowContext(ctx, `SELECT 1 FROM notes WHERE id = ?`, n.ID).Scan(&exists); {
		case errors.Is(scanErr, sql.ErrNoRows):
			return apperr.ErrNoteNotFound
		case scanErr != nil:
			return fmt.Errorf("store: save note: %w", scanErr)
		}
		return apperr.ErrConcurrentModification
	}
	n.Version++
	return nil
}

// List returns notes ordered by creation time, newest first, with an optional
// status filter. The second return value is the total row count for the
// filter, independent of pagination.
func (db *DB) List(ctx context.Context, limit, offset int, status models.Status) ([]models.ConvertibleNote, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where, args := "", []any{}
	if status != "" {
		where = ` WHERE status = ?`
		args = append(args, string(status))
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM notes`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count notes: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := db.conn.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes`+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	notes, err := collectNotes(rows)
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

// ListActive returns every ACTIVE note, for the accrual driver.
func (db *DB) ListActive(ctx context.Context) ([]models.ConvertibleNote, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE status = ? ORDER BY maturity_date`, string(models.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("store: list active: %w", err)
	}
	defer rows.Close()
	return collectNotes(rows)
}

// ListMaturing returns ACTIVE notes whose maturity date falls at or before
// now+within. Notes already past maturity are included.
func (db *DB) ListMaturing(ctx context.Context, now time.Time, within time.Duration) ([]models.ConvertibleNote, error) {
	cutoff := now.Add(within).UTC()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE status = ? AND maturity_date <= ?
		ORDER BY maturity_date
	`, string(models.StatusActive), cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: list maturing: %w", err)
	}
	defer rows.Close()
	return collectNotes(rows)
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*models.ConvertibleNote, error) {
	var (
		n          models.ConvertibleNote
		principal  string
		rate       string
		compound   string
		discount   sql.NullString
		valCap     sql.NullString
		threshold  sql.NullString
		accrued    string
		status     string
		convPrice  sql.NullString
	)
	err := s.Scan(&n.ID, &principal, &rate, &compound, &n.IssuedAt, &n.MaturityDate,
		&discount, &valCap, &threshold, &n.AutoConversion,
		&accrued, &n.LastAccrualDate, &status, &convPrice,
		&n.Version, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if n.Principal, err = decimal.NewFromString(principal); err != nil {
		return nil, fmt.Errorf("store: parse principal: %w", err)
	}
	if n.InterestRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("store: parse interest rate: %w", err)
	}
	if n.AccruedInterest, err = decimal.NewFromString(accrued); err != nil {
		return nil, fmt.Errorf("store: parse accrued interest: %w", err)
	}
	if n.DiscountRate, err = decFromNull(discount); err != nil {
		return nil, fmt.Errorf("store: parse discount rate: %w", err)
	}
	if n.ValuationCap, err = decFromNull(valCap); err != nil {
		return nil, fmt.Errorf("store: parse valuation cap: %w", err)
	}
	if n.QFThreshold, err = decFromNull(threshold); err != nil {
		return nil, fmt.Errorf("store: parse threshold: %w", err)
	}
	if n.ConversionPrice, err = decFromNull(convPrice); err != nil {
		return nil, fmt.Errorf("store: parse conversion price: %w", err)
	}
	n.Compounding = finance.Compounding(compound)
	n.Status = models.Status(status)
	return &n, nil
}

func collectNotes(rows *sql.Rows) ([]models.ConvertibleNote, error) {
	var out []models.ConvertibleNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan note: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func decString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func decFromNull(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
