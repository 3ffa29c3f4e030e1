package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

// ObjectWriter is the narrow upload surface the archiver needs.
type ObjectWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Archiver exports the previous day's fills to object storage as JSONL,
// partitioned by date. Rows stay in Postgres; the archive is a copy for
// offline analysis, not a migration.
type Archiver struct {
	writer ObjectWriter
	sink   domain.SnapshotSink
	window time.Duration
	logger *slog.Logger
}

// NewArchiver builds the archive task. window is the lookback per run,
// normally the archive interval itself.
func NewArchiver(writer ObjectWriter, sink domain.SnapshotSink, window time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		sink:   sink,
		window: window,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Archive exports the fills of the current window. Empty windows write
// nothing.
func (a *Archiver) Archive(ctx context.Context) error {
	now := time.Now().UTC()
	since := now.Add(-a.window)

	snaps, err := a.sink.ListSnapshotsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(snaps) == 0 {
		a.logger.Debug("nothing to archive")
		return nil
	}

	buf, err := marshalJSONL(snaps)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	key := archiveKey(now)
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.Info("archive written",
		slog.String("key", key),
		slog.Int("rows", len(snaps)),
	)
	return nil
}

// archiveKey builds the object key, partitioned by date:
//
//	archive/trades/2026-08-24.jsonl
func archiveKey(at time.Time) string {
	return fmt.Sprintf("archive/trades/%s.jsonl", at.Format("2006-01-02"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
