package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/XavierBriggs/Tyche/adapters/overtime"
	"github.com/XavierBriggs/Tyche/internal/cache"
	"github.com/XavierBriggs/Tyche/internal/config"
	"github.com/XavierBriggs/Tyche/internal/handlers"
	"github.com/XavierBriggs/Tyche/internal/hub"
	"github.com/XavierBriggs/Tyche/internal/loader"
	"github.com/XavierBriggs/Tyche/internal/metrics"
	"github.com/XavierBriggs/Tyche/internal/registry"
	"github.com/XavierBriggs/Tyche/internal/scheduler"
	"github.com/XavierBriggs/Tyche/internal/store"
	"github.com/XavierBriggs/Tyche/internal/writer"
	"github.com/XavierBriggs/Tyche/networks/optimism"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/golang/glog"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const usageText = `Usage: tyche [glog flags] <command> [flags]

Commands:
  serve     run the HTTP/websocket server and market scheduler (default)
  markets   load and print the market view of a network
  quote     quote one position of a market
  lucky     pick a random market ending soon and quote it
  history   print a wallet's betting history
  approve   let the AMM spend collateral from the configured wallet
  bet       quote and place a single-leg bet from the configured wallet
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()
	defer glog.Flush()

	command, args := "serve", flag.Args()
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Printf("✗ invalid configuration: %v\n", err)
		os.Exit(1)
	}

	var err error
	switch command {
	case "serve":
		err = runServe(cfg)
	case "markets":
		err = runMarkets(cfg, args)
	case "quote":
		err = runQuote(cfg, args)
	case "lucky":
		err = runLucky(cfg, args)
	case "history":
		err = runHistory(cfg, args)
	case "approve":
		err = runApprove(cfg, args)
	case "bet":
		err = runBet(cfg, args)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		glog.Flush()
		fmt.Printf("✗ %s: %v\n", command, err)
		os.Exit(1)
	}
}

// app is the wiring shared by the server and every command
type app struct {
	cfg      *config.Config
	store    contracts.Store
	vendor   *overtime.Client
	networks *registry.NetworkRegistry
	metrics  *metrics.Metrics
	loaders  *loader.Manager
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	m := metrics.New()

	kv, err := store.Open(ctx, store.Options{
		Backend:       cfg.Store.Backend,
		Name:          cache.StoreName,
		RedisURL:      cfg.Store.RedisURL,
		RedisPassword: cfg.Store.RedisPassword,
		PostgresDSN:   cfg.Store.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	burst := int(cfg.Overtime.RateLimit)
	if burst < 1 {
		burst = 1
	}
	vendor := overtime.NewClient(cfg.Overtime.APIKey,
		overtime.WithBaseURL(cfg.Overtime.BaseURL),
		overtime.WithTimeout(cfg.Overtime.Timeout),
		overtime.WithRateLimit(cfg.Overtime.RateLimit, burst),
		overtime.WithQuoteKey(cfg.Overtime.QuoteKey),
		overtime.WithRetries(cfg.Overtime.Retries),
	)

	networks := registry.NewNetworkRegistry(cfg.Markets.DefaultNetworkID)
	if err := networks.Register(optimism.NewModule()); err != nil {
		kv.Close()
		return nil, err
	}
	if _, ok := networks.Get(cfg.Markets.DefaultNetworkID); !ok {
		kv.Close()
		return nil, fmt.Errorf("%w: DEFAULT_NETWORK_ID=%d", registry.ErrUnknownNetwork, cfg.Markets.DefaultNetworkID)
	}

	loaders := loader.NewManager(vendor, cache.NewService(kv, m),
		loader.WithThreshold(cfg.Markets.CacheDuration),
		loader.WithMetrics(m),
	)

	return &app{
		cfg:      cfg,
		store:    kv,
		vendor:   vendor,
		networks: networks,
		metrics:  m,
		loaders:  loaders,
	}, nil
}

func (a *app) Close() {
	a.loaders.Close()
	if err := a.store.Close(); err != nil {
		glog.Warningf("[Tyche] closing store: %v", err)
	}
}

func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("✓ Opened %s market store\n", cfg.Store.Backend)
	fmt.Printf("✓ Registered %d network(s)\n", a.networks.Count())

	h := hub.New(a.metrics)
	go h.Run(ctx)

	redisClient := connectRedis(ctx, cfg)
	if redisClient != nil {
		defer redisClient.Close()
		fmt.Println("✓ Connected to Redis (delta cache + streams)")
	}

	db := connectPostgres(ctx, cfg)
	if db != nil {
		defer db.Close()
		fmt.Println("✓ Connected to Postgres (odds history)")
	}

	w := writer.NewWriter(db, redisClient, cfg.Markets.DeltaTTL, h)
	if err := w.EnsureSchema(ctx); err != nil {
		return err
	}
	w.Start(ctx)
	a.loaders.Subscribe(w.Observe)

	sched := scheduler.NewScheduler(a.networks, a.loaders, cfg.Markets.JitterSeconds)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	handler := handlers.NewHandler(ctx, handlers.Deps{
		Vendor:      a.vendor,
		Networks:    a.networks,
		Loaders:     a.loaders,
		Store:       a.store,
		Hub:         h,
		Metrics:     a.metrics,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	fmt.Printf("✓ Tyche listening on %s\n", cfg.Server.Addr)
	fmt.Printf("  Cache duration: %v\n", cfg.Markets.CacheDuration)
	fmt.Printf("  Default network: %d\n", cfg.Markets.DefaultNetworkID)
	for _, network := range a.networks.GetAll() {
		fmt.Printf("  [%s] chain %d, refresh every %v\n",
			network.GetDisplayName(), network.GetNetworkID(), network.GetRefreshInterval())
	}
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case err := <-errChan:
		sched.Stop()
		w.Stop()
		return fmt.Errorf("http server: %w", err)
	}

	fmt.Println("\n✓ Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Println("✗ Shutdown timeout exceeded")
		return err
	}
	cancel()
	w.Stop()

	fmt.Println("✓ Tyche stopped")
	return nil
}

// connectRedis returns a client for delta detection when REDIS_URL is set.
// A failed ping disables delta caching instead of failing startup.
func connectRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	if cfg.Store.RedisURL == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.RedisURL,
		Password: cfg.Store.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		glog.Warningf("[Tyche] redis unavailable, delta cache disabled: %v", err)
		client.Close()
		return nil
	}
	return client
}

// connectPostgres returns a database for odds history when TYCHE_DSN is set
func connectPostgres(ctx context.Context, cfg *config.Config) *sql.DB {
	if cfg.Store.PostgresDSN == "" {
		return nil
	}

	db, err := sql.Open("postgres", cfg.Store.PostgresDSN)
	if err != nil {
		glog.Warningf("[Tyche] postgres unavailable, odds history disabled: %v", err)
		return nil
	}
	if err := db.PingContext(ctx); err != nil {
		glog.Warningf("[Tyche] postgres unavailable, odds history disabled: %v", err)
		db.Close()
		return nil
	}
	return db
}
