// Package app wires the hunter together and runs it: stores, API clients,
// the feed pipeline, strategy evaluation, the order executor, periodic
// tasks, and the HTTP control surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hunterlabs/polyhunter/internal/actor"
	s3blob "github.com/hunterlabs/polyhunter/internal/blob/s3"
	"github.com/hunterlabs/polyhunter/internal/config"
	"github.com/hunterlabs/polyhunter/internal/feed"
	"github.com/hunterlabs/polyhunter/internal/handler"
	"github.com/hunterlabs/polyhunter/internal/notify"
	"github.com/hunterlabs/polyhunter/internal/scheduler"
	"github.com/hunterlabs/polyhunter/internal/server"
	"github.com/hunterlabs/polyhunter/internal/service"
	"github.com/hunterlabs/polyhunter/internal/strategy"
	"github.com/hunterlabs/polyhunter/internal/subscription"
)

// App is the root application object.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run wires all dependencies, starts the runtime for the configured mode,
// and blocks until the context is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "trade", "observe":
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
	trading := mode == "trade"

	a.logger.InfoContext(ctx, "starting hunter",
		slog.String("mode", mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	// Strategy evaluation.
	strategies, err := strategy.FromConfig(a.cfg.Strategies)
	if err != nil {
		return fmt.Errorf("app: strategies: %w", err)
	}
	evaluator := strategy.NewEvaluator(strategies, a.cfg.Engine)

	// Feed clients share one sequence counter so staleness checks hold
	// across channels.
	var seq atomic.Uint64
	marketFeed := feed.NewClient(a.cfg.Polymarket.WsHost, feed.ChannelMarket, nil, &seq, a.logger)

	var userFeed *feed.Client
	if trading {
		userFeed = feed.NewClient(a.cfg.Polymarket.WsHost, feed.ChannelUser, deps.UserAuth, &seq, a.logger)
	}

	var userUpdater subscription.FeedUpdater
	if userFeed != nil {
		userUpdater = userFeed
	}
	subs := subscription.NewManager(
		deps.Slugs,
		deps.Catalog,
		deps.Bus,
		deps.Slugs.EventsChannel(),
		marketFeed,
		userUpdater,
		a.logger,
	)

	// Event pipeline: feeds -> actors -> router -> handlers.
	price := handler.NewPriceHandler(subs, evaluator, deps.Contexts, deps.Requests, deps.Records, deps.Sink)
	orders := handler.NewOrderHandler(subs, deps.Requests, deps.Records)
	trades := handler.NewTradeHandler(subs, deps.Records)
	router := handler.NewRouter(price, orders, trades, a.logger)

	manager := actor.NewManager(router, a.cfg.Engine.MailboxSize, a.cfg.Engine.CoalesceWindow.Duration, a.logger)
	subs.AddRetirer(manager)
	subs.AddRetirer(priceRetirer{price: price})

	// Workers.
	tradeSub := service.NewTradeSubscriber(
		deps.Bus, deps.Records.EventsChannel(), deps.Records, deps.Sink, deps.Notifications, a.logger)
	notifySub := notify.NewSubscriber(deps.Bus, deps.Notifications.EventsChannel(), deps.Notifier, a.logger)

	var executor *service.Executor
	if trading {
		executor = service.NewExecutor(
			deps.Bus, deps.Requests.EventsChannel(), deps.Requests,
			deps.Exchange, subs, deps.Sink, deps.Notifications, a.logger)
	}

	// Periodic tasks.
	sched := scheduler.New(a.cfg.Scheduler.MisfireGrace.Duration, a.logger)

	refresh := scheduler.NewMarketRefresh(
		deps.Catalog, deps.Slugs, a.cfg.Scheduler.ExcludedTags, a.cfg.Scheduler.IncludeNegRisk, a.logger)
	sched.Register(scheduler.Job{
		Name:     "market_refresh",
		Interval: a.cfg.Scheduler.MarketRefresh.Duration,
		Run:      refresh.Refresh,
	})

	if trading {
		resolver := service.NewResolver(
			deps.Slugs, deps.Catalog, deps.Exchange, deps.Positions,
			deps.Records, deps.Requests, deps.Notifications,
			a.cfg.Scheduler.StaleOrderAge.Duration, a.logger)
		sched.Register(scheduler.Job{
			Name:     "trade_resolver",
			Interval: a.cfg.Scheduler.TradeResolver.Duration,
			Run:      resolver.Sweep,
		})
	}

	reporter := service.NewReporter(
		deps.Sink, deps.Records, deps.Requests, deps.Notifications,
		a.cfg.Scheduler.Report.Duration, a.logger)
	sched.Register(scheduler.Job{
		Name:     "report",
		Interval: a.cfg.Scheduler.Report.Duration,
		Run:      reporter.Report,
	})

	if deps.Blob != nil {
		archiver := s3blob.NewArchiver(deps.Blob, deps.Sink, a.cfg.Scheduler.Archive.Duration, a.logger)
		sched.Register(scheduler.Job{
			Name:     "archive",
			Interval: a.cfg.Scheduler.Archive.Duration,
			Run:      archiver.Archive,
		})
	}

	// Control surface.
	var srv *server.Server
	if a.cfg.Server.Enabled {
		api := server.NewAPI(deps.Slugs, deps.Requests, deps.Records, deps.Contexts, price, sched, mode)
		srv = server.NewServer(server.Config{Port: a.cfg.Server.Port}, api, a.logger)
	}

	g, ctx := errgroup.WithContext(ctx)

	streams := []<-chan feed.Event{marketFeed.Events()}
	g.Go(func() error { return marketFeed.Run(ctx) })
	if userFeed != nil {
		streams = append(streams, userFeed.Events())
		g.Go(func() error { return userFeed.Run(ctx) })
	}
	events := mergeEvents(streams...)

	g.Go(func() error { return manager.Run(ctx, events) })
	g.Go(func() error { return subs.Run(ctx) })
	g.Go(func() error { return tradeSub.Run(ctx) })
	g.Go(func() error { return notifySub.Run(ctx) })
	if executor != nil {
		g.Go(func() error { return executor.Run(ctx) })
	}
	g.Go(func() error { return sched.Run(ctx) })

	if srv != nil {
		g.Go(func() error { return srv.Start() })
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: %w", err)
	}
	a.logger.Info("hunter stopped")
	return nil
}

// priceRetirer tears down per-asset handler state when assets leave the
// subscription set.
type priceRetirer struct {
	price *handler.PriceHandler
}

func (r priceRetirer) Retire(assetIDs []string) {
	for _, id := range assetIDs {
		r.price.Forget(id)
	}
}

// mergeEvents fans the feed channels into the single stream the actor
// manager consumes. The merged channel closes when every input has closed.
func mergeEvents(streams ...<-chan feed.Event) <-chan feed.Event {
	out := make(chan feed.Event, 256)
	var wg sync.WaitGroup
	wg.Add(len(streams))
	for _, s := range streams {
		go func(in <-chan feed.Event) {
			defer wg.Done()
			for ev := range in {
				out <- ev
			}
		}(s)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
