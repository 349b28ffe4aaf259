package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"FundMe/internal/api"
	"FundMe/internal/config"
	"FundMe/internal/deploy"
	"FundMe/internal/notifier"
	"FundMe/internal/recorder"
	"FundMe/internal/scheduler"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.Info("FundMe starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}
	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Deploy feed and ledger
	d, err := deploy.Run(ctx, cfg, deploy.DialEthclient)
	if err != nil {
		log.Fatalf("deploy: %v", err)
	}
	defer d.Close()

	// Init recorder
	rec := openRecorder(ctx, cfg)
	defer rec.Close()
	d.Chain.Subscribe(recorder.Listener(rec))

	// Init notifier
	var n notifier.Notifier = notifier.NewNoopNotifier()
	var tn *notifier.TelegramNotifier
	if cfg.NotifierEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		n = tn
	} else {
		log.Warn("telegram not configured, notifications disabled")
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, d.Ledger, n, rec)
	if err := sched.RegisterAll(cfg.Schedule.PriceCheckCron, cfg.Schedule.ReportCron); err != nil {
		log.Fatalf("register cron tasks: %v", err)
	}
	d.Chain.Subscribe(sched.OnReceipt)
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("telegram polling started")
	}

	// Optional: check the feed immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		go sched.CheckPrice()
	}

	// Start HTTP API
	if level < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(&api.Handler{Chain: d.Chain, Ledger: d.Ledger, Recorder: rec},
		api.RateLimiterConfig{RequestsPerSecond: cfg.HTTP.RateLimitRPS, Burst: cfg.HTTP.RateLimitBurst})
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	log.WithFields(log.Fields{
		"network":  cfg.Network,
		"contract": d.Ledger.Address().Hex(),
		"owner":    d.Ledger.Owner().Hex(),
		"http":     cfg.HTTP.Addr,
	}).Info("FundMe is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http shutdown: %v", err)
	}
	cancel()
	if err := d.Persister.Save(); err != nil {
		log.Errorf("save ledger state: %v", err)
	}
	log.Info("FundMe stopped")
}

func openRecorder(ctx context.Context, cfg *config.Config) recorder.Recorder {
	var (
		rec recorder.Recorder
		err error
	)
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		rec, err = recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
	case config.DriverPostgres:
		rec, err = recorder.NewPostgresRecorder(ctx, cfg.Database.PostgresDSN)
	default:
		return recorder.NewNoopRecorder()
	}
	if err != nil {
		log.Warnf("init %s recorder failed, using noop: %v", cfg.Database.Driver, err)
		return recorder.NewNoopRecorder()
	}
	return rec
}
