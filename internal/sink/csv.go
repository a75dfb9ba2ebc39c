package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/weather-rollup-etl/internal/dedup"
	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
	"github.com/couchcryptid/weather-rollup-etl/internal/observability"
)

// Delimiter separates fields in the tabular file.
const Delimiter = ';'

// CSVWriter appends records to a delimited file. Rows are never rewritten.
type CSVWriter struct {
	path string
	guard
}

// NewCSVWriter prepares path for appending, creating parent directories and
// writing the header row when the file is absent or empty.
func NewCSVWriter(path string, filter *dedup.Filter, store dedup.Store, logger *slog.Logger, metrics *observability.Metrics) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", path, err)
	}

	return &CSVWriter{
		path:  path,
		guard: newGuard("csv", filter, store, logger, metrics),
	}, nil
}

func (w *CSVWriter) Name() string { return w.name }

// Write appends every record the filter has not seen. Each row is flushed to
// the file before its key is inserted, so a failed append leaves the key out.
func (w *CSVWriter) Write(ctx context.Context, records []domain.SummaryRecord) error {
	written, skipped, err := w.append(ctx, records)
	return w.finish(err, written, skipped)
}

func (w *CSVWriter) append(ctx context.Context, records []domain.SummaryRecord) (written, skipped int, err error) {
	f, err := openAppend(w.path)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close %s: %w", w.path, cerr))
		}
	}()

	cw := csv.NewWriter(f)
	cw.Comma = Delimiter

	for i := range records {
		if err := ctx.Err(); err != nil {
			return written, skipped, err
		}
		r := &records[i]
		key := r.Key()
		if w.seen(key) {
			skipped++
			continue
		}

		if err := cw.Write(csvRow(r)); err != nil {
			return written, skipped, fmt.Errorf("append %s to %s: %w", key, w.path, err)
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return written, skipped, fmt.Errorf("append %s to %s: %w", key, w.path, err)
		}
		w.accept(key)
		written++
	}
	return written, skipped, nil
}

// openAppend opens path for appending and writes the header if the file is
// empty.
func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > 0 {
		return f, nil
	}

	cw := csv.NewWriter(f)
	cw.Comma = Delimiter
	if err := cw.Write(Header()); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header to %s: %w", path, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header to %s: %w", path, err)
	}
	return f, nil
}
