package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/centrifugal/centrifuge"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/juicerq/witch/internal/adapter/eventpublisher"
	"github.com/juicerq/witch/internal/adapter/httpserver"
	"github.com/juicerq/witch/internal/adapter/metrics"
	"github.com/juicerq/witch/internal/adapter/postgres"
	"github.com/juicerq/witch/internal/adapter/redis"
	"github.com/juicerq/witch/internal/adapter/twitch"
	"github.com/juicerq/witch/internal/adapter/websocket"
	"github.com/juicerq/witch/internal/app"
	"github.com/juicerq/witch/internal/platform/config"
	"github.com/juicerq/witch/internal/platform/crypto"
	"github.com/juicerq/witch/internal/platform/logging"
	"github.com/juicerq/witch/internal/platform/retry"
	"github.com/juicerq/witch/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const (
	dbConnectAttempts = 3
	dbConnectBackoff  = 2 * time.Second
	shutdownTimeout   = 10 * time.Second
	cacheEviction     = time.Minute
	authStateSweep    = time.Minute
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(ctx context.Context, cfg *config.Config, dbMetrics *metrics.DBMetrics) *pgxpool.Pool {
	policy := retry.Policy{
		MaxAttempts:    dbConnectAttempts,
		InitialBackoff: dbConnectBackoff,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Database not reachable, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	pool, err := retry.Do(ctx, policy, retry.UnlessCanceled, func(ctx context.Context) (*pgxpool.Pool, error) {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return postgres.Connect(connectCtx, cfg.DatabaseURL, dbMetrics)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := postgres.RunMigrationsWithLock(migrateCtx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

// setupRedis returns nil when REDIS_URL is unset; the service then runs as a
// single instance with an in-memory stats cache.
func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, running without Redis")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupNode(cfg *config.Config, redisClient *goredis.Client, wsMetrics *metrics.WebSocketMetrics) *centrifuge.Node {
	node, err := websocket.NewNode(wsMetrics, cfg.LogLevel)
	if err != nil {
		slog.Error("Failed to create websocket node", "error", err)
		os.Exit(1)
	}

	if redisClient != nil {
		if err := websocket.SetupRedis(node, redisClient.Options()); err != nil {
			slog.Error("Failed to set up websocket broker", "error", err)
			os.Exit(1)
		}
	}

	if err := node.Run(); err != nil {
		slog.Error("Failed to start websocket node", "error", err)
		os.Exit(1)
	}
	return node
}

// twitchDeps holds the components that need Twitch app credentials. All of
// them are nil in setup mode.
type twitchDeps struct {
	helix  *twitch.HelixClient
	oauth  *app.OAuthFlow
	tokens *app.TokenManager
	stop   func()
}

func (d twitchDeps) configured() bool { return d.helix != nil }

func setupTwitch(cfg *config.Config, tokenRepo *postgres.TokenRepo, clock clockwork.Clock) twitchDeps {
	if !cfg.TwitchConfigured() {
		slog.Warn("Twitch credentials not configured, starting in setup mode", "env_file", cfg.EnvFilePath)
		return twitchDeps{}
	}

	helixClient, err := twitch.NewHelixClient(cfg.TwitchClientID, cfg.TwitchHelixURL, cfg.TwitchRateLimit)
	if err != nil {
		slog.Error("Failed to create Twitch client", "error", err)
		os.Exit(1)
	}
	oauthClient := twitch.NewOAuthClient(twitch.OAuthConfig{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		RedirectURI:  cfg.TwitchRedirectURI,
		AuthURL:      cfg.TwitchAuthURL,
		TokenURL:     cfg.TwitchTokenURL,
		UsePKCE:      cfg.TwitchUsePKCE,
	})

	authStates := app.NewAuthStateStore(clock)
	return twitchDeps{
		helix:  helixClient,
		oauth:  app.NewOAuthFlow(authStates, oauthClient),
		tokens: app.NewTokenManager(tokenRepo, oauthClient, clock),
		stop:   authStates.StartSweeper(authStateSweep),
	}
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

type shutdownDeps struct {
	srv        *httpserver.Server
	cancelPoll context.CancelFunc
	poller     *app.Poller
	// pollDone is closed once poller.Run has returned.
	pollDone <-chan struct{}
	lease    *redis.PollLease
	queue    *app.LedgerQueue
	node     *centrifuge.Node
}

func runGracefulShutdown(deps shutdownDeps) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := deps.srv.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		if deps.poller != nil {
			deps.poller.Stop()
			deps.cancelPoll()
			select {
			case <-deps.pollDone:
			case <-ctx.Done():
				slog.Warn("Poller did not stop in time")
			}
		}

		if deps.lease != nil {
			if err := deps.lease.Release(ctx); err != nil {
				slog.Warn("Failed to release poll lease", "error", err)
			}
		}

		if err := deps.queue.Shutdown(ctx); err != nil {
			slog.Error("Ledger queue did not drain", "error", err)
		}

		if err := deps.node.Shutdown(ctx); err != nil {
			slog.Error("Websocket node shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	registry := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(registry)
	dbMetrics := metrics.NewDBMetrics(registry)
	pollerMetrics := metrics.NewPollerMetrics(registry)
	ledgerMetrics := metrics.NewLedgerMetrics(registry)
	cacheMetrics := metrics.NewCacheMetrics(registry)
	wsMetrics := metrics.NewWebSocketMetrics(registry)

	pool := setupDB(context.Background(), cfg, dbMetrics)
	defer pool.Close()

	redisClient := setupRedis(context.Background(), cfg)
	// Interface values stay nil without Redis so consumers can test for it.
	var (
		cacheBackend goredis.Cmdable
		lease        *redis.PollLease
	)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		cacheBackend = redisClient
		lease = redis.NewPollLease(redisClient, instanceID())
	}

	cryptoSvc, err := crypto.NewService(cfg.TokenEncryptionKey)
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}

	tokenRepo := postgres.NewTokenRepo(pool, cryptoSvc)
	favoriteRepo := postgres.NewFavoriteRepo(pool)
	settingsRepo := postgres.NewSettingsRepo(pool)
	sessionRepo := postgres.NewSessionRepo(pool)

	credentialChecker := twitch.NewCredentialChecker(cfg.TwitchTokenURL)
	tw := setupTwitch(cfg, tokenRepo, clock)
	if tw.stop != nil {
		defer tw.stop()
	}

	statsCache := redis.NewStatsCache(cacheBackend, cfg.StatsCacheTTL, clock, cacheMetrics)
	stopEviction := statsCache.StartEvictionTimer(cacheEviction)
	defer stopEviction()
	if redisClient != nil {
		subCtx, cancelSub := context.WithCancel(context.Background())
		defer cancelSub()
		go redis.NewStatsInvalidationSubscriber(redisClient, statsCache).Start(subCtx)
	}

	ledger := app.NewSessionLedger(sessionRepo, clock)
	queue := app.NewLedgerQueue(ledger, statsCache, cfg.LedgerQueueSize, ledgerMetrics)
	go queue.Run()

	hub := app.NewLiveHub()
	node := setupNode(cfg, redisClient, wsMetrics)
	publisher := eventpublisher.New(hub, websocket.NewPublisher(node, wsMetrics))

	// The poller needs Twitch; in setup mode only the setup API is served.
	var poller *app.Poller
	if tw.configured() {
		pollerDeps := app.PollerDeps{
			Settings:  settingsRepo,
			Tokens:    tw.tokens,
			Favorites: favoriteRepo,
			Twitch:    tw.helix,
			Publisher: publisher,
			Ledger:    queue,
			Clock:     clock,
			Metrics:   pollerMetrics,
		}
		if lease != nil {
			pollerDeps.Gate = lease
		}
		poller = app.NewPoller(pollerDeps)
	}

	serviceDeps := app.ServiceDeps{
		TokenRepo: tokenRepo,
		Favorites: favoriteRepo,
		Settings:  settingsRepo,
		Sessions:  sessionRepo,
		Ledger:    queue,
		Stats:     statsCache,
		Hub:       hub,
		StatsLoc:  cfg.StatsLocation(),
		Clock:     clock,
	}
	if tw.configured() {
		serviceDeps.Tokens = tw.tokens
		serviceDeps.OAuth = tw.oauth
		serviceDeps.Twitch = tw.helix
	}
	appSvc := app.NewService(serviceDeps)
	setupSvc := app.NewSetupService(cfg.EnvFilePath, credentialChecker)

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
	}
	if redisClient != nil {
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	wsHandler := centrifuge.NewWebsocketHandler(node, centrifuge.WebsocketConfig{
		CheckOrigin: websocket.NewCheckOrigin(cfg.AllowedOrigins(), !cfg.IsProduction()),
	})

	srv, err := httpserver.NewServer(cfg, appSvc, setupSvc, wsHandler, metrics.Handler(registry), httpMetrics, healthChecks)
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	pollCtx, cancelPoll := context.WithCancel(context.Background())
	defer cancelPoll()
	pollDone := make(chan struct{})
	if poller != nil {
		go func() {
			defer close(pollDone)
			poller.Run(pollCtx)
		}()
	} else {
		close(pollDone)
	}

	done := runGracefulShutdown(shutdownDeps{
		srv:        srv,
		cancelPoll: cancelPoll,
		poller:     poller,
		pollDone:   pollDone,
		lease:      lease,
		queue:      queue,
		node:       node,
	})

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
