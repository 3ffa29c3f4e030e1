package actor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hunterlabs/polyhunter/internal/feed"
)

// Manager routes feed events to per-asset actors, spawning them on first
// sight of an asset and tearing them down when the asset is unsubscribed.
type Manager struct {
	handler Handler
	logger  *slog.Logger
	size    int
	window  time.Duration

	mu     sync.Mutex
	actors map[string]*Actor
	cancel map[string]context.CancelFunc
	group  *errgroup.Group
	ctx    context.Context
}

// NewManager creates a manager that hands every asset's events to handler.
func NewManager(handler Handler, mailboxSize int, coalesceWindow time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		handler: handler,
		logger:  logger.With(slog.String("component", "actor_manager")),
		size:    mailboxSize,
		window:  coalesceWindow,
		actors:  make(map[string]*Actor),
		cancel:  make(map[string]context.CancelFunc),
	}
}

// Run consumes events until the stream closes or ctx is cancelled, then
// stops every actor and waits for them.
func (m *Manager) Run(ctx context.Context, events <-chan feed.Event) error {
	group, gctx := errgroup.WithContext(ctx)

	m.mu.Lock()
	m.group = group
	m.ctx = gctx
	m.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return group.Wait()
		case ev, ok := <-events:
			if !ok {
				m.stopAll()
				return group.Wait()
			}
			if ev.AssetID == "" {
				continue
			}
			m.route(ev)
		}
	}
}

// route delivers an event, creating the asset's actor if needed.
func (m *Manager) route(ev feed.Event) {
	m.mu.Lock()
	a, ok := m.actors[ev.AssetID]
	if !ok {
		a = New(ev.AssetID, m.handler, m.size, m.window, m.logger)
		actorCtx, cancel := context.WithCancel(m.ctx)
		m.actors[ev.AssetID] = a
		m.cancel[ev.AssetID] = cancel
		m.group.Go(func() error {
			a.Run(actorCtx)
			return nil
		})
		m.logger.Debug("actor started", slog.String("asset_id", ev.AssetID))
	}
	m.mu.Unlock()

	a.Deliver(ev)
}

// Retire stops and removes the actors for assets no longer subscribed.
func (m *Manager) Retire(assetIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range assetIDs {
		cancel, ok := m.cancel[id]
		if !ok {
			continue
		}
		cancel()
		delete(m.actors, id)
		delete(m.cancel, id)
		m.logger.Debug("actor retired", slog.String("asset_id", id))
	}
}

// ActiveAssets lists the assets with a running actor.
func (m *Manager) ActiveAssets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.actors))
	for id := range m.actors {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) stopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, cancel := range m.cancel {
		cancel()
		delete(m.actors, id)
		delete(m.cancel, id)
	}
}
