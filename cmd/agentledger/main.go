package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	alhttp "github.com/Strob0t/agentledger/internal/adapter/http"
	almcp "github.com/Strob0t/agentledger/internal/adapter/mcp"
	"github.com/Strob0t/agentledger/internal/adapter/memory"
	alnats "github.com/Strob0t/agentledger/internal/adapter/nats"
	"github.com/Strob0t/agentledger/internal/adapter/natskv"
	cfotel "github.com/Strob0t/agentledger/internal/adapter/otel"
	"github.com/Strob0t/agentledger/internal/adapter/postgres"
	"github.com/Strob0t/agentledger/internal/adapter/ristretto"
	"github.com/Strob0t/agentledger/internal/adapter/tiered"
	"github.com/Strob0t/agentledger/internal/adapter/ws"
	"github.com/Strob0t/agentledger/internal/config"
	"github.com/Strob0t/agentledger/internal/logger"
	"github.com/Strob0t/agentledger/internal/middleware"
	"github.com/Strob0t/agentledger/internal/port/cache"
	"github.com/Strob0t/agentledger/internal/port/database"
	"github.com/Strob0t/agentledger/internal/port/eventstore"
	"github.com/Strob0t/agentledger/internal/port/messagequeue"
	"github.com/Strob0t/agentledger/internal/resilience"
	"github.com/Strob0t/agentledger/internal/service"
)

const version = "0.1.0"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "admin":
		err = runAdmin(args)
	case "version":
		fmt.Println("agentledger", version)
	default:
		fmt.Fprintf(os.Stderr, "Usage: agentledger [serve|admin|version] [options]\n")
		err = fmt.Errorf("unknown command: %s", cmd)
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"store", cfg.Ledger.Store,
		"log_level", cfg.Logging.Level,
		"nats", cfg.NATS.URL != "",
		"mcp", cfg.MCP.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOTEL, err := cfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	checks := map[string]alhttp.Pinger{}

	// --- Store ---

	store, events, closeStore, err := openStore(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- NATS, caches ---

	var queue messagequeue.Queue
	var walletCache, idemStore cache.Cache

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	walletCache, idemStore = l1, l1
	if err := cfotel.ObserveCacheHitRatio(l1.HitRatio); err != nil {
		return fmt.Errorf("cache metrics: %w", err)
	}

	if cfg.NATS.URL != "" {
		q, err := alnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := q.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()
		queue = q
		checks["nats"] = alhttp.PingFunc(func(context.Context) error {
			if !q.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		})

		l2, err := q.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return err
		}
		walletCache = tiered.New(l1, natskv.New(l2), cfg.Cache.L2TTL)

		idem, err := q.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
		if err != nil {
			return err
		}
		idemStore = natskv.New(idem)
	}

	// --- Services ---

	hub := ws.NewHub(originHosts(cfg.Server.CORSOrigin)...)
	defer hub.Close()

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	breaker.OnStateChange(func(from, to resilience.State) {
		slog.Warn("event publish breaker", "from", string(from), "to", string(to))
	})
	publisher := service.NewEventPublisher(queue, hub, breaker)
	publisher.SetMetrics(metrics)

	svc := service.New(service.Deps{
		Store:     store,
		Events:    events,
		Publisher: publisher,
		Cache:     walletCache,
		CacheTTL:  cfg.Cache.L2TTL,
		Metrics:   metrics,
		Config:    cfg.Ledger,
	})

	// --- HTTP ---

	handlers := alhttp.NewHandlers(svc)
	handlers.Checks = checks

	limiter := middleware.NewRateLimiterFromConfig(cfg.Rate)
	limiter.StartCleanup(ctx, cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)

	router := alhttp.NewRouter(alhttp.RouterConfig{
		Handlers:       handlers,
		CORSOrigin:     cfg.Server.CORSOrigin,
		RequestTimeout: cfg.Server.RequestTimeout,
		AdminOnly:      middleware.AdminKey(cfg.Ledger.AdminKeyHash, cfg.Ledger.AdminID),
		RateLimiter:    limiter,
		Idempotency:    middleware.Idempotency(idemStore, cfg.Idempotency.TTL),
		Tracing:        cfotel.HTTPMiddleware(cfg.OTEL.ServiceName),
		WebSocket:      hub,
	})
	if cfg.Ledger.AdminKeyHash == "" {
		slog.Warn("admin endpoints disabled: ledger.admin_key_hash is empty")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var mcpSrv *almcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = almcp.NewServer(almcp.ServerConfig{
			Addr:    ":" + cfg.MCP.Port,
			Name:    "agentledger",
			Version: version,
			APIKey:  cfg.MCP.APIKey,
		}, almcp.ServerDeps{
			Wallets: svc.Wallet,
			Escrows: svc.Escrow,
			Trust:   svc.Trust,
			Stats:   svc.Ledger,
		})
		if err := mcpSrv.Start(); err != nil {
			return err
		}
	}

	// --- Run ---

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		if mcpSrv != nil {
			errs = append(errs, mcpSrv.Stop(sctx))
		}
		errs = append(errs, srv.Shutdown(sctx))
		return errors.Join(errs...)
	})
	return g.Wait()
}

// openStore returns the configured backend. Postgres migrates on start.
func openStore(ctx context.Context, cfg *config.Config, checks map[string]alhttp.Pinger) (database.Store, eventstore.Store, func(), error) {
	if cfg.Ledger.Store == config.StoreMemory {
		slog.Warn("using in-memory store; state is lost on exit")
		s := memory.NewStore()
		return s, s, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")
	checks["postgres"] = alhttp.PingFunc(pool.Ping)

	s := postgres.NewStore(pool)
	return s, s, pool.Close, nil
}

// originHosts turns the CORS origin into WebSocket origin host patterns.
func originHosts(origin string) []string {
	if origin == "" {
		return nil
	}
	if origin == "*" {
		return []string{"*"}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return []string{origin}
	}
	return []string{u.Host}
}
