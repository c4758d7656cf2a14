package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/tradegate/internal/api"
	"github.com/betbot/tradegate/internal/gate"
	"github.com/betbot/tradegate/internal/ledger"
	"github.com/betbot/tradegate/internal/metrics"
	"github.com/betbot/tradegate/internal/risk"
	"github.com/betbot/tradegate/kraken/client"
	"github.com/betbot/tradegate/kraken/types"
	"github.com/betbot/tradegate/pkg/config"
	"github.com/betbot/tradegate/pkg/logger"
	"github.com/betbot/tradegate/pkg/persistence"
	"github.com/betbot/tradegate/pkg/ratelimit"
	"github.com/betbot/tradegate/pkg/secretstore"
	"github.com/betbot/tradegate/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", getenv("GATEWAY_CONFIG", ""), "config file (.yaml/.yml/.json); defaults to "+config.DefaultConfigPath+" when present")
		secretDB   = flag.String("secret-db", getenv("GATEWAY_SECRET_DB", ""), "optional badger secrets db (env/<KEY>)")
		secretKey  = flag.String("secret-key", getenv("GATEWAY_SECRET_KEY", ""), "badger encryption key (32 bytes base64/hex)")
	)
	flag.Parse()

	if err := run(*configPath, *secretDB, *secretKey); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		os.Exit(1)
	}
}

func run(configPath, secretDB, secretKey string) error {
	if configPath == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			configPath = config.DefaultConfigPath
		}
	}

	getenv := config.Getenv(os.Getenv)
	if secretDB != "" {
		key, err := secretstore.ParseKey(secretKey)
		if err != nil {
			return err
		}
		ss, err := secretstore.Open(secretstore.OpenOptions{Path: secretDB, EncryptionKey: key, ReadOnly: true})
		if err != nil {
			return err
		}
		defer ss.Close()
		getenv = config.WithSecrets(ss)
	}

	cfg, err := config.Load(configPath, getenv)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.WithFields(cfg.Redacted()).Info("gateway starting")

	sm := shutdown.NewManager()

	spend, err := ledger.Open(ledger.Config{Driver: cfg.Ledger.Driver, Path: cfg.Ledger.Path})
	if err != nil {
		return fmt.Errorf("open spend ledger: %w", err)
	}
	// 闸门未排空时账本保持打开，进程退出前仍可能有已成交订单在写账
	var drained atomic.Bool
	drained.Store(true)
	sm.OnShutdown("ledger", func(ctx context.Context) error {
		if !drained.Load() {
			return errors.New("ledger left open: gate not drained")
		}
		return spend.Close()
	})

	var limits *ratelimit.RateLimitManager
	if cfg.Kraken.RateLimit {
		limits = ratelimit.NewRateLimitManager()
	}
	kc, err := client.NewClient(client.Config{
		BaseURL:    cfg.Kraken.BaseURL,
		Creds:      types.ApiKeyCreds{Key: cfg.Kraken.APIKey, Secret: cfg.Kraken.APISecret},
		Timeout:    cfg.Kraken.Timeout,
		AssetCodes: cfg.Kraken.AssetCodes,
		RateLimits: limits,
	})
	if err != nil {
		_ = sm.Shutdown(context.Background())
		return err
	}
	sm.OnShutdown("kraken", func(ctx context.Context) error { kc.Close(); return nil })

	var cooldownStore persistence.Store
	if cfg.Gate.PersistCooldown {
		cooldownStore = persistence.NewJSONFileService(cfg.Gate.StateDir).NewStore("gate-cooldown")
	}

	g, err := gate.New(gate.Params{
		Config: gate.Config{
			AuthorizedCaller:  cfg.Gate.AuthorizedCaller,
			DailyLimit:        cfg.Gate.DailyLimit,
			Cooldown:          cfg.Gate.Cooldown,
			QuoteCurrency:     cfg.Gate.QuoteCurrency,
			SendClientOrderID: cfg.Gate.SendClientOrderID,
		},
		Ledger:   spend,
		Exchange: kc,
		Breaker: risk.NewCircuitBreaker(risk.CircuitBreakerConfig{
			MaxConsecutiveErrors: cfg.Risk.MaxConsecutiveErrors,
			HaltOnIndeterminate:  cfg.Risk.HaltOnIndeterminate,
		}),
		CooldownStore: cooldownStore,
	})
	if err != nil {
		_ = sm.Shutdown(context.Background())
		return err
	}

	drained.Store(false)
	sm.OnShutdown("gate", func(ctx context.Context) error {
		if err := g.Close(ctx); err != nil {
			return err
		}
		drained.Store(true)
		return nil
	})

	// 一笔卖出最多两次交易所调用（查余额 + 下单）
	tradeBudget := 2*kc.MaxCallDuration() + 5*time.Second
	srv, err := api.New(api.Config{
		Addr:            cfg.Server.Addr(),
		DefaultAsset:    cfg.Gate.DefaultAsset,
		ShutdownTimeout: tradeBudget,
	}, g)
	if err != nil {
		_ = sm.Shutdown(context.Background())
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if cfg.Server.MetricsAddr != "" {
		if _, err := metrics.StartAsync(ctx, cfg.Server.MetricsAddr); err != nil {
			logger.Warnf("metrics server disabled: %v", err)
		}
	}

	runErr := srv.Run(ctx)
	if runErr != nil {
		logger.Errorf("http server stopped: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), tradeBudget)
	defer cancel()
	if err := sm.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
		runErr = errors.Join(runErr, err)
	}
	logger.Info("gateway stopped")
	return runErr
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
