package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/caretrack/pkg/types"
)

const baselineColumns = "baseline_id, label, captured_at, start_date, end_date, compliance_score, fit_for_audit_score, driver_details"

// SaveBaseline inserts a new snapshot. Snapshots are write-once: there is no
// update statement for this table.
func (b *Backend) SaveBaseline(ctx context.Context, s types.BaselineSnapshot) (string, error) {
	if s.ID == "" {
		s.ID = generateUUID()
	}
	if s.CapturedAt.IsZero() {
		s.CapturedAt = b.now()
	}
	drivers, err := json.Marshal(s.DriverDetails)
	if err != nil {
		return "", fmt.Errorf("marshaling driver details: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return "", types.ErrStoreDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM baselines WHERE baseline_id = ?", s.ID).Scan(&exists)
	if err == nil {
		return "", types.ErrBaselineExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("checking baseline existence: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO baselines ("+baselineColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		s.ID, s.Label, formatTime(s.CapturedAt), formatTime(s.StartDate), formatTime(s.EndDate),
		s.ComplianceScore, s.FitForAuditScore, string(drivers))
	if err != nil {
		return "", fmt.Errorf("inserting baseline: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing baseline: %w", err)
	}
	return s.ID, nil
}

// GetBaseline retrieves a snapshot by id.
func (b *Backend) GetBaseline(ctx context.Context, id string) (types.BaselineSnapshot, error) {
	if id == "" {
		return types.BaselineSnapshot{}, types.ErrInvalidID
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.BaselineSnapshot{}, types.ErrStoreDetached
	}

	row := b.db.QueryRowContext(ctx, "SELECT "+baselineColumns+" FROM baselines WHERE baseline_id = ?", id)
	return scanBaseline(row)
}

// LatestBaseline returns the snapshot with the newest captured_at.
func (b *Backend) LatestBaseline(ctx context.Context) (types.BaselineSnapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.BaselineSnapshot{}, types.ErrStoreDetached
	}

	row := b.db.QueryRowContext(ctx,
		"SELECT "+baselineColumns+" FROM baselines ORDER BY captured_at DESC, baseline_id DESC LIMIT 1")
	return scanBaseline(row)
}

// ListBaselines returns every snapshot, oldest first.
func (b *Backend) ListBaselines(ctx context.Context) ([]types.BaselineSnapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	rows, err := b.db.QueryContext(ctx,
		"SELECT "+baselineColumns+" FROM baselines ORDER BY captured_at, baseline_id")
	if err != nil {
		return nil, fmt.Errorf("querying baselines: %w", err)
	}
	defer rows.Close()

	out := []types.BaselineSnapshot{}
	for rows.Next() {
		s, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating baselines: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBaseline(row rowScanner) (types.BaselineSnapshot, error) {
	var s types.BaselineSnapshot
	var capturedAt, startDate, endDate, drivers string
	err := row.Scan(&s.ID, &s.Label, &capturedAt, &startDate, &endDate,
		&s.ComplianceScore, &s.FitForAuditScore, &drivers)
	if errors.Is(err, sql.ErrNoRows) {
		return types.BaselineSnapshot{}, types.ErrNotFound
	}
	if err != nil {
		return types.BaselineSnapshot{}, fmt.Errorf("scanning baseline: %w", err)
	}
	if s.CapturedAt, err = parseTime(capturedAt); err != nil {
		return types.BaselineSnapshot{}, fmt.Errorf("parsing baseline captured_at: %w", err)
	}
	if s.StartDate, err = parseTime(startDate); err != nil {
		return types.BaselineSnapshot{}, fmt.Errorf("parsing baseline start_date: %w", err)
	}
	if s.EndDate, err = parseTime(endDate); err != nil {
		return types.BaselineSnapshot{}, fmt.Errorf("parsing baseline end_date: %w", err)
	}
	if err := json.Unmarshal([]byte(drivers), &s.DriverDetails); err != nil {
		return types.BaselineSnapshot{}, fmt.Errorf("parsing baseline driver details: %w", err)
	}
	return s, nil
}
