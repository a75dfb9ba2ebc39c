package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/couchcryptid/weather-rollup-etl/internal/dedup"
	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
	"github.com/couchcryptid/weather-rollup-etl/internal/observability"
)

// PostgresWriter inserts records into an existing table with a uniqueness
// constraint on (latitude, longitude, date). Conflicting rows are ignored by
// the database, which backs up the filter.
type PostgresWriter struct {
	db        *sql.DB
	table     string
	insertSQL string
	guard
}

// NewPostgresWriter returns a writer for table, which may be schema
// qualified. The table is not created.
func NewPostgresWriter(db *sql.DB, table string, filter *dedup.Filter, store dedup.Store, logger *slog.Logger, metrics *observability.Metrics) (*PostgresWriter, error) {
	quoted, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	return &PostgresWriter{
		db:        db,
		table:     table,
		insertSQL: insertStatement(quoted),
		guard:     newGuard("postgres", filter, store, logger, metrics),
	}, nil
}

func (w *PostgresWriter) Name() string { return w.name }

// Write inserts every record the filter has not seen in a single transaction.
// Keys are inserted as rows are queued; if the transaction then fails the
// filter is still saved, so those records will be skipped on a retry.
func (w *PostgresWriter) Write(ctx context.Context, records []domain.SummaryRecord) error {
	queued := make([]*domain.SummaryRecord, 0, len(records))
	skipped := 0
	for i := range records {
		r := &records[i]
		key := r.Key()
		if w.seen(key) {
			skipped++
			continue
		}
		queued = append(queued, r)
		w.accept(key)
	}

	inserted, err := w.insert(ctx, queued)
	if err == nil {
		// Rows the table already held were ignored by ON CONFLICT.
		skipped += len(queued) - int(inserted)
	}
	return w.finish(err, int(inserted), skipped)
}

func (w *PostgresWriter) insert(ctx context.Context, queued []*domain.SummaryRecord) (inserted int64, err error) {
	if len(queued) == 0 {
		return 0, nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, w.insertSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert into %s: %w", w.table, err)
	}
	defer stmt.Close()

	for _, r := range queued {
		res, err := stmt.ExecContext(ctx, sqlArgs(r)...)
		if err != nil {
			return 0, fmt.Errorf("insert %s into %s: %w", r.Key(), w.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert %s into %s: %w", r.Key(), w.table, err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert into %s: %w", w.table, err)
	}
	return inserted, nil
}

func insertStatement(quotedTable string) string {
	names := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.sql
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return "INSERT INTO " + quotedTable + " (" + strings.Join(names, ", ") + ") VALUES (" +
		strings.Join(params, ", ") + ") ON CONFLICT DO NOTHING"
}

func quoteTable(table string) (string, error) {
	if table == "" {
		return "", errors.New("table name is required")
	}
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	for i, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid table name %q", table)
		}
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}
