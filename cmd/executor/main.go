package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Rajchodisetti/intraday-executor/internal/alerts"
	"github.com/Rajchodisetti/intraday-executor/internal/broker"
	"github.com/Rajchodisetti/intraday-executor/internal/config"
	"github.com/Rajchodisetti/intraday-executor/internal/control"
	"github.com/Rajchodisetti/intraday-executor/internal/journal"
	"github.com/Rajchodisetti/intraday-executor/internal/observ"
	"github.com/Rajchodisetti/intraday-executor/internal/orders"
	"github.com/Rajchodisetti/intraday-executor/internal/portfolio"
	"github.com/Rajchodisetti/intraday-executor/internal/risk"
	"github.com/Rajchodisetti/intraday-executor/internal/strategy"
	"github.com/Rajchodisetti/intraday-executor/internal/webhook"
)

var version = "dev"

func main() {
	var cfgPath, envPath string
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.StringVar(&envPath, "env", ".env", "dotenv file with broker and sink secrets")
	flag.Parse()

	if err := config.LoadEnv(envPath); err != nil {
		log.Fatalf("load env: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.ResolveSecrets()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	closer, err := observ.Setup(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer closer.Close()
	observ.SetVersion(version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		observ.Error("executor_exit", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	observ.Log("executor_stopped", nil)
}

func run(ctx context.Context, cfg config.Root) error {
	gate := control.NewGate(cfg.State.TradingPath)
	if cfg.TradingEnabled() {
		_, err := gate.Enable("startup")
		if err != nil {
			return err
		}
	} else {
		_, err := gate.Disable("startup")
		if err != nil {
			return err
		}
	}

	positions := portfolio.NewStore(cfg.State.PositionsPath)
	accountant := risk.NewAccountant(risk.Limits{
		MaxTradesPerDay: cfg.Risk.MaxTradesPerDay,
		MaxDailyLoss:    cfg.Risk.MaxDailyLoss,
		RiskPerTradePct: cfg.Risk.RiskPerTradePct,
		Capital:         cfg.Risk.Capital,
	}, cfg.State.RiskPath, positions, nil)

	// Without a base URL the executor runs offline from the instrument cache.
	var client *broker.HTTPClient
	if cfg.Broker.BaseURL != "" {
		client = broker.NewHTTPClient(broker.Config{
			BaseURL:            cfg.Broker.BaseURL,
			ClientID:           cfg.Broker.ClientID,
			AccessToken:        cfg.Broker.AccessToken,
			Timeout:            time.Duration(cfg.Broker.TimeoutMs) * time.Millisecond,
			MaxRetries:         cfg.Broker.MaxRetries,
			Backoff:            time.Duration(cfg.Broker.BackoffMs) * time.Millisecond,
			RateLimitPerSecond: cfg.Broker.RateLimitPerSecond,
		})
	}

	cache := broker.NewInstrumentCache(cfg.State.InstrumentsPath)
	var instruments []broker.Instrument
	var err error
	if client != nil {
		instruments, err = broker.Bootstrap(ctx, cache, client)
	} else {
		instruments, err = cache.Load()
	}
	if err != nil {
		return err
	}
	observ.Log("instruments_loaded", map[string]any{"count": len(instruments), "path": cfg.State.InstrumentsPath})

	sink, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer sink.Close()

	var notifier alerts.Notifier
	if cfg.Alerts.SlackWebhookURL != "" {
		slack := alerts.NewSlackClient(cfg.Alerts.SlackWebhookURL, cfg.Alerts.Channel)
		defer slack.Close()
		notifier = slack
		observ.Log("slack_init", map[string]any{"channel": cfg.Alerts.Channel})
	}

	var target *float64
	if tp, ok := cfg.Risk.TargetPoints["scalping"]; ok {
		target = &tp
	}
	selector := strategy.NewAtmSelector(instruments, cfg.Strategy.IndexStrikeSteps, cfg.Strategy.DefaultExchange, nil)
	router := strategy.NewRouter(cfg.Strategy.AllowedStrategies, &strategy.ScalpAtm{
		Selector: selector,
		Logic: strategy.ScalpingLogic{
			SLPoints:     cfg.Risk.SLPoints["scalping"],
			TargetPoints: target,
			ProductType:  cfg.Trading.ProductType,
		},
	})

	var submitter orders.Submitter
	if client != nil {
		submitter = client
	}
	exec := orders.NewExecutor(gate, accountant, submitter, sink, cfg.Trading.ExecutionMode)
	intake := webhook.NewIntake(router, exec, webhook.Options{
		TTL:      time.Duration(cfg.Strategy.SignalTTLSeconds) * time.Second,
		Spot:     webhook.EchoSpotPrice,
		Notifier: notifier,
		Mode:     cfg.Trading.ExecutionMode,
	})

	var monitor *portfolio.Monitor
	if client != nil {
		monitor = portfolio.NewMonitor(client, positions, time.Duration(cfg.Monitor.IntervalMs)*time.Millisecond)
	}

	health := func() map[string]any {
		d := map[string]any{"mode": cfg.Trading.ExecutionMode}
		if enabled, err := gate.Enabled(); err != nil {
			d["degraded"] = true
			d["trading_error"] = err.Error()
		} else {
			d["trading_enabled"] = enabled
		}
		if monitor != nil {
			if last := monitor.LastRefresh(); !last.IsZero() {
				d["positions_refreshed_at"] = last.UTC().Format(time.RFC3339)
			}
			d["monitor_failures"] = monitor.Failures()
		}
		return d
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           webhook.NewServer(intake, gate, accountant, health).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	observ.Log("startup", map[string]any{
		"addr":            cfg.Server.Addr,
		"mode":            cfg.Trading.ExecutionMode,
		"trading_enabled": cfg.TradingEnabled(),
		"strategies":      cfg.Strategy.AllowedStrategies,
		"version":         version,
	})

	g, gctx := errgroup.WithContext(ctx)
	if monitor != nil {
		g.Go(func() error { return monitor.Run(gctx) })
	}
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutMs)*time.Millisecond)
		defer cancel()
		observ.Log("shutdown", map[string]any{"timeout_ms": cfg.Server.ShutdownTimeoutMs})
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openJournal always writes the local JSONL file and fans out to the
// optional Postgres and AMQP sinks when their secrets are set.
func openJournal(ctx context.Context, cfg config.Journal) (*journal.Multi, error) {
	file, err := journal.NewFileSink(cfg.Path)
	if err != nil {
		return nil, err
	}
	sinks := []journal.Sink{file}

	if cfg.PostgresDSN != "" {
		pg, err := journal.NewPostgresSink(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, pg)
		observ.Log("journal_postgres_init", nil)
	}
	if cfg.AMQPURL != "" {
		mq, err := journal.NewAMQPSink(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, mq)
		observ.Log("journal_amqp_init", map[string]any{"queue": cfg.AMQPQueue})
	}
	return journal.NewMulti(sinks...), nil
}
