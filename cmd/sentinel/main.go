package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"BinarySentinel/internal/collector"
	"BinarySentinel/internal/config"
	"BinarySentinel/internal/logging"
	"BinarySentinel/internal/model"
	"BinarySentinel/internal/notifier"
	"BinarySentinel/internal/position"
	"BinarySentinel/internal/pricing"
	"BinarySentinel/internal/recorder"
	"BinarySentinel/internal/scheduler"
	"BinarySentinel/internal/server"
	"BinarySentinel/internal/volatility"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("load .env: %v", err)
	}

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
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("logging: %v", err)
	}
	log.Info("BinarySentinel starting...")

	pricer, err := pricing.NewPricer(cfg.PricerSettings())
	if err != nil {
		log.Fatalf("init pricer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Spot feed: websocket trades, REST polling once the stream gives up.
	vol := volatility.NewEstimator(cfg.Pricing.RealizedWindow)
	onTick := func(t model.Tick) { vol.Add(t.Time, t.Price) }
	stream := collector.NewBinanceStream(collector.BinanceStreamConfig{
		URL:            cfg.Market.BinanceWSURL,
		MaxReconnects:  cfg.Market.MaxReconnects,
		ReconnectDelay: cfg.Market.ReconnectDelay,
		Proxy:          cfg.Proxy,
	}, onTick)
	rest := collector.NewBinanceREST(cfg.Market.BinanceRESTURL, cfg.Market.Symbol, cfg.Proxy)
	go func() {
		err := stream.Run(ctx)
		if errors.Is(err, collector.ErrMaxReconnects) {
			log.Warn("binance stream unavailable, falling back to REST polling")
			rest.Poll(ctx, time.Second, onTick)
		}
	}()

	poly := collector.NewPolymarket(collector.PolymarketConfig{
		CLOBURL:           cfg.Market.PolymarketCLOBURL,
		GammaURL:          cfg.Market.PolymarketGamma,
		SlugKeywords:      cfg.Market.SlugKeywords,
		RequestsPerSecond: cfg.Market.RequestsPerSecond,
		Proxy:             cfg.Proxy,
	})
	log.Infof("market source: %s", poly.Name())
	col := collector.NewCollector(collector.LatestSpot{stream, rest}, poly, cfg.Market.Strike,
		collector.WithOpenPrices(rest))

	pos, err := position.NewManager(cfg.Position.StateFile)
	if err != nil {
		log.Fatalf("init position manager: %v", err)
	}

	var sender notifier.Sender = notifier.NoopSender{}
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.Enabled {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sender = tn
	} else {
		log.Info("telegram disabled")
	}

	var recs recorder.Multi
	if cfg.Database.SQLitePath != "" {
		if sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath); err != nil {
			log.Warnf("init sqlite recorder failed: %v", err)
		} else {
			recs = append(recs, sr)
		}
	}
	if cfg.Database.CSVDir != "" {
		if cr, err := recorder.NewCSVRecorder(cfg.Database.CSVDir); err != nil {
			log.Warnf("init csv recorder failed: %v", err)
		} else {
			recs = append(recs, cr)
		}
	}
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	switch len(recs) {
	case 0:
		log.Info("no recorder configured, history is not kept")
	case 1:
		rec = recs[0]
	default:
		rec = recs
	}
	defer rec.Close()

	metrics := server.NewMetrics()
	sched := scheduler.NewScheduler(ctx, col, pricer, vol, pos, sender, rec, scheduler.Options{
		AlertScore:       cfg.Risk.AlertScore,
		AlertZone:        model.Zone(cfg.Risk.AlertOnZone),
		VolatilitySource: cfg.Pricing.VolatilitySource,
	})
	sched.Observer = metrics
	if err := sched.RegisterAll(cfg.Schedule.TickCron, cfg.Schedule.DiscoverCron, cfg.Schedule.SummaryCron); err != nil {
		log.Fatalf("register cron tasks: %v", err)
	}
	sched.RunDiscoverNow()
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("telegram polling started")
	}

	srv := server.New(cfg.Server.ListenAddr, pricer, sched, metrics)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Errorf("http server: %v", err)
			cancel()
		}
	}()

	log.Info("BinarySentinel is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("shutdown signal received, stopping...")
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
	cancel()
	log.Info("BinarySentinel stopped")
}
