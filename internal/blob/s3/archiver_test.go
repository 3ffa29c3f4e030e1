package s3blob

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

type captureWriter struct {
	keys   []string
	bodies [][]byte
}

func (c *captureWriter) Put(_ context.Context, key string, body []byte, _ string) error {
	c.keys = append(c.keys, key)
	c.bodies = append(c.bodies, body)
	return nil
}

type staticSink struct{ snaps []domain.TradeSnapshot }

func (s *staticSink) InsertSnapshot(context.Context, domain.TradeSnapshot) error { return nil }
func (s *staticSink) InsertEvent(context.Context, domain.TradeEvent) error       { return nil }
func (s *staticSink) ListSnapshotsSince(context.Context, time.Time) ([]domain.TradeSnapshot, error) {
	return s.snaps, nil
}

func TestArchiveWritesJSONL(t *testing.T) {
	writer := &captureWriter{}
	sink := &staticSink{snaps: []domain.TradeSnapshot{
		{OrderID: "ord-1", MarketSlug: "btc-hourly", Side: domain.SideBuy, Matched: 17},
		{OrderID: "ord-2", MarketSlug: "btc-hourly", Side: domain.SideSell, Matched: 18.6},
	}}

	a := NewArchiver(writer, sink, 24*time.Hour, slog.New(slog.DiscardHandler))
	if err := a.Archive(context.Background()); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	if len(writer.keys) != 1 {
		t.Fatalf("uploads = %d, want 1", len(writer.keys))
	}
	if !strings.HasPrefix(writer.keys[0], "archive/trades/") || !strings.HasSuffix(writer.keys[0], ".jsonl") {
		t.Errorf("key = %s", writer.keys[0])
	}

	lines := strings.Split(strings.TrimSpace(string(writer.bodies[0])), "\n")
	if len(lines) != 2 {
		t.Errorf("jsonl lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"ord-1"`) {
		t.Errorf("first line = %s", lines[0])
	}
}

func TestArchiveSkipsEmptyWindow(t *testing.T) {
	writer := &captureWriter{}
	a := NewArchiver(writer, &staticSink{}, 24*time.Hour, slog.New(slog.DiscardHandler))

	if err := a.Archive(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(writer.keys) != 0 {
		t.Errorf("empty window still uploaded: %v", writer.keys)
	}
}
