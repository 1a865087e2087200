// Package archive keeps rolled-over monthly ledgers in SQLite.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/model"
)

// DB is the monthly usage archive.
type DB struct {
	sql *sql.DB
	now func() time.Time
}

// Open opens or creates the archive at path.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS monthly_usage (
  month       TEXT NOT NULL,
  member_id   TEXT NOT NULL,
  category    TEXT NOT NULL,
  quantity    INTEGER NOT NULL CHECK (quantity >= 0),
  batch_id    TEXT NOT NULL,
  exported_at DATETIME NOT NULL,
  PRIMARY KEY (month, member_id, category)
);
CREATE INDEX IF NOT EXISTS idx_usage_month ON monthly_usage(month);
CREATE TABLE IF NOT EXISTS exports (
  batch_id    TEXT PRIMARY KEY,
  month       TEXT NOT NULL,
  members     INTEGER NOT NULL,
  exported_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exports_month ON exports(month);
    `); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{sql: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// ExportMonth stores snap. Rows are keyed by (month, member, category) and
// overwritten on conflict, so exporting the same month twice keeps the
// same totals.
func (d *DB) ExportMonth(ctx context.Context, snap model.MonthSnapshot) (err error) {
	if d == nil || d.sql == nil {
		return ErrClosed
	}
	batchID := uuid.NewString()
	now := d.now()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO monthly_usage(month, member_id, category, quantity, batch_id, exported_at)
VALUES(?,?,?,?,?,?)
ON CONFLICT(month, member_id, category) DO UPDATE SET
  quantity = excluded.quantity,
  batch_id = excluded.batch_id,
  exported_at = excluded.exported_at`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	defer stmt.Close()

	for _, m := range snap.Members {
		for tag, qty := range m.Usage {
			if _, err = stmt.ExecContext(ctx, snap.Month, m.MemberID, string(tag), max(qty, 0), batchID, now); err != nil {
				return fmt.Errorf("%w: %s/%s: %v", ErrExportFailed, m.MemberID, tag, err)
			}
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO exports(batch_id, month, members, exported_at) VALUES(?,?,?,?)`,
		batchID, snap.Month, len(snap.Members), now); err != nil {
		return fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	return nil
}

// MonthUsage returns the archived buckets of month ordered by member ID.
func (d *DB) MonthUsage(ctx context.Context, month string) ([]model.MemberUsage, error) {
	if d == nil || d.sql == nil {
		return nil, ErrClosed
	}
	rows, err := d.sql.QueryContext(ctx,
		`SELECT member_id, category, quantity FROM monthly_usage WHERE month = ? ORDER BY member_id`, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byMember := map[string]model.Bucket{}
	for rows.Next() {
		var (
			memberID, category string
			qty                int
		)
		if err := rows.Scan(&memberID, &category, &qty); err != nil {
			return nil, err
		}
		b, ok := byMember[memberID]
		if !ok {
			b = model.Bucket{}
			byMember[memberID] = b
		}
		b[catalog.Tag(category)] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.MemberUsage, 0, len(byMember))
	for id, b := range byMember {
		out = append(out, model.MemberUsage{MemberID: id, Usage: b})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

// Months lists archived months, newest first.
func (d *DB) Months(ctx context.Context) ([]string, error) {
	if d == nil || d.sql == nil {
		return nil, ErrClosed
	}
	rows, err := d.sql.QueryContext(ctx, `SELECT DISTINCT month FROM monthly_usage ORDER BY month DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var months []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

// ExportCount returns how many export batches were recorded for month.
func (d *DB) ExportCount(ctx context.Context, month string) (int, error) {
	if d == nil || d.sql == nil {
		return 0, ErrClosed
	}
	var n int
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM exports WHERE month = ?`, month).Scan(&n)
	return n, err
}
