package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hunterlabs/polyhunter/internal/domain"
)

type fakeSender struct {
	name string
	err  error
	sent []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestNotifierKindFilter(t *testing.T) {
	sender := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"trade", "error"}, testLogger())

	ctx := context.Background()
	_ = n.Notify(ctx, domain.Notification{Kind: domain.NotifyTrade, Title: "fill"})
	_ = n.Notify(ctx, domain.Notification{Kind: domain.NotifyReport, Title: "report"})
	_ = n.Notify(ctx, domain.Notification{Kind: domain.NotifyError, Title: "boom"})

	if len(sender.sent) != 2 || sender.sent[0] != "fill" || sender.sent[1] != "boom" {
		t.Errorf("delivered = %v, want [fill boom]", sender.sent)
	}
}

func TestNotifierEmptyFilterPassesAll(t *testing.T) {
	sender := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	_ = n.Notify(context.Background(), domain.Notification{Kind: domain.NotifyReport, Title: "report"})
	if len(sender.sent) != 1 {
		t.Errorf("delivered = %v", sender.sent)
	}
}

func TestNotifierCollectsSenderFailures(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("webhook down")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.NotifyAll(context.Background(), domain.Notification{Kind: domain.NotifyTrade, Title: "fill"})
	if err == nil {
		t.Error("sender failure not surfaced")
	}
	// The healthy sender still delivered.
	if len(good.sent) != 1 {
		t.Errorf("good sender delivered %v", good.sent)
	}
}
