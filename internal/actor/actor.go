// Package actor serializes feed events per asset. Each asset gets one
// goroutine with a bounded mailbox, so handlers never need locks and a slow
// asset cannot stall the others.
package actor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hunterlabs/polyhunter/internal/feed"
)

const (
	// defaultMailboxSize bounds the per-asset mailbox. When full, the
	// oldest queued event is dropped to make room for the newest.
	defaultMailboxSize = 256

	// defaultCoalesceWindow is how long an actor waits after the first
	// event before processing, collapsing bursts into one handler call
	// per event type.
	defaultCoalesceWindow = 40 * time.Millisecond
)

// Handler processes the latest coalesced events for one asset. Events are
// keyed by type, so a burst of price changes arrives as a single entry.
type Handler interface {
	Handle(ctx context.Context, assetID string, latest map[string]feed.Event)
}

// Actor owns the event stream for a single asset.
type Actor struct {
	assetID string
	handler Handler
	logger  *slog.Logger

	mailbox  chan feed.Event
	window   time.Duration
	lastTS   time.Time // event-time watermark, only the actor goroutine touches it
	dropped  atomic.Uint64
	stale    atomic.Uint64
	shutdown chan struct{}
	done     chan struct{}
}

// New creates an actor for assetID. size <= 0 and window <= 0 select the
// defaults.
func New(assetID string, handler Handler, size int, window time.Duration, logger *slog.Logger) *Actor {
	if size <= 0 {
		size = defaultMailboxSize
	}
	if window <= 0 {
		window = defaultCoalesceWindow
	}
	return &Actor{
		assetID:  assetID,
		handler:  handler,
		logger:   logger.With(slog.String("component", "actor"), slog.String("asset_id", assetID)),
		mailbox:  make(chan feed.Event, size),
		window:   window,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Deliver enqueues an event, evicting the oldest queued event if the mailbox
// is full. Newest data wins for market ticks; the per-asset watermark inside
// the loop rejects anything stale.
func (a *Actor) Deliver(ev feed.Event) {
	for {
		select {
		case a.mailbox <- ev:
			return
		default:
		}

		select {
		case <-a.mailbox:
			a.dropped.Add(1)
		default:
		}
	}
}

// Dropped returns how many events were evicted from a full mailbox and how
// many were rejected as stale by the event-time watermark.
func (a *Actor) Dropped() (evicted, stale uint64) {
	return a.dropped.Load(), a.stale.Load()
}

// Run drains the mailbox until ctx is cancelled or Stop is called. Events
// arriving within the coalescing window are collapsed per event type and the
// handler sees only the latest of each.
func (a *Actor) Run(ctx context.Context) {
	defer close(a.done)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := make(map[string]feed.Event)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = make(map[string]feed.Event, len(batch))
		a.handler.Handle(ctx, a.assetID, batch)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.shutdown:
			flush()
			return
		case ev := <-a.mailbox:
			if !a.admit(ev) {
				continue
			}
			if len(pending) == 0 {
				timer.Reset(a.window)
			}
			pending[ev.Type] = ev
		case <-timer.C:
			flush()
		}
	}
}

// admit applies the event-time watermark: anything not newer than the latest
// timestamp already processed is a replay or out-of-order delivery and is
// dropped. Seq zero bypasses the check for callers that inject synthetic
// events without a feed envelope.
func (a *Actor) admit(ev feed.Event) bool {
	if ev.Seq == 0 {
		return true
	}
	if !ev.At.After(a.lastTS) {
		a.stale.Add(1)
		return false
	}
	a.lastTS = ev.At
	return true
}

// Stop asks the actor to flush pending events and exit, then waits for the
// loop to finish.
func (a *Actor) Stop() {
	close(a.shutdown)
	<-a.done
}
