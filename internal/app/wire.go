package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/hunterlabs/polyhunter/internal/blob/s3"
	"github.com/hunterlabs/polyhunter/internal/cache/redis"
	"github.com/hunterlabs/polyhunter/internal/config"
	"github.com/hunterlabs/polyhunter/internal/crypto"
	"github.com/hunterlabs/polyhunter/internal/notify"
	"github.com/hunterlabs/polyhunter/internal/platform/polymarket"
	"github.com/hunterlabs/polyhunter/internal/store/postgres"
)

// Dependencies bundles the infrastructure the runtime needs: the Redis-backed
// stores and bus, the relational sink, the Polymarket API clients, and the
// operator notifier. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Redis stores and the signal bus.
	Bus           *redis.Client
	Slugs         *redis.SlugStore
	Requests      *redis.OrderRequestStore
	Records       *redis.TradeRecordStore
	Contexts      *redis.ContextStore
	Notifications *redis.NotificationStore

	// Relational sink for fill snapshots and trade events.
	Sink *postgres.SnapshotStore

	// Polymarket API surfaces. Exchange and UserAuth are nil in observe
	// mode, where nothing is signed or placed.
	Exchange  *polymarket.ClobClient
	Catalog   *polymarket.GammaClient
	Positions *polymarket.DataClient
	UserAuth  *crypto.HMACAuth

	// Operator notifications.
	Notifier *notify.Notifier

	// Object storage for trade archives, nil when S3 is disabled.
	Blob *s3blob.Client
}

// Wire constructs the concrete dependencies from the configuration and
// returns them with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		KeyPrefix:  cfg.Redis.KeyPrefix,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Bus = redisClient
	deps.Slugs = redis.NewSlugStore(redisClient)
	deps.Requests = redis.NewOrderRequestStore(redisClient)
	deps.Records = redis.NewTradeRecordStore(redisClient)
	deps.Contexts = redis.NewContextStore(redisClient)
	deps.Notifications = redis.NewNotificationStore(redisClient)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.Sink = postgres.NewSnapshotStore(pgClient.Pool())

	// --- Polymarket API ---
	deps.Catalog = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	deps.Positions = polymarket.NewDataClient(cfg.Polymarket.DataHost, cfg.Wallet.FunderAddress)

	if cfg.ClobAPI.Set() {
		deps.UserAuth = &crypto.HMACAuth{
			Key:        cfg.ClobAPI.Key,
			Secret:     cfg.ClobAPI.Secret,
			Passphrase: cfg.ClobAPI.Passphrase,
		}
	}

	if cfg.Mode == "trade" {
		if deps.UserAuth == nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: trade mode requires CLOB API credentials")
		}
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		signer, err := crypto.NewSigner(key, cfg.Polymarket.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		deps.Exchange = polymarket.NewClobClient(
			cfg.Polymarket.ClobHost,
			signer,
			deps.UserAuth,
			cfg.Wallet.FunderAddress,
			cfg.Polymarket.SignatureType,
		)
	}

	// --- S3 trade archives ---
	if cfg.S3.Enabled {
		blobClient, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Blob = blobClient
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Kinds, logger)

	return deps, cleanup, nil
}
