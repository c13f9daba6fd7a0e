package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"herhealth/classify"
	"herhealth/config"
	"herhealth/db"
	"herhealth/geo"
	hhttp "herhealth/http"
	"herhealth/llm"
	"herhealth/logging"
	"herhealth/messaging"
	"herhealth/monitoring"
	"herhealth/weather"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logging.Logger.Errorw("herhealth exited with error", logging.FieldError, err)
		logging.Sync()
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Load config
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = ""
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if err := logging.Init(cfg.Log); err != nil {
		return errors.Wrap(err, "init logging")
	}
	defer logging.Sync()
	log := logging.ComponentLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		err := config.Watch(ctx, configPath, func(next *config.Config) {
			if err := logging.SetLevel(next.Log.Level); err != nil {
				log.Warnw("invalid log level in reloaded config", logging.FieldError, err)
			}
		})
		if err != nil {
			log.Warnw("config hot reload disabled", logging.FieldError, err)
		}
	}

	// 2. Initialize database
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer store.Close()
	log.Infow("database initialized", "path", cfg.Database.Path)

	// 3. Train classifiers
	record := func(ctx context.Context, name string, artifact *classify.Artifact) error {
		params, err := json.Marshal(artifact.Params)
		if err != nil {
			return err
		}
		return store.SaveTrainingLog(ctx, db.TrainingLog{
			ModelName:  name,
			Accuracy:   artifact.Metrics.Accuracy,
			Precision:  artifact.Metrics.Precision,
			Recall:     artifact.Metrics.Recall,
			Params:     params,
			TrainedAt:  artifact.TrainedAt,
			DataPoints: artifact.DataPoints,
		})
	}
	risk := classify.NewService(cfg.Models.RiskDefinition(), classify.WithRecorder(record))
	fetal := classify.NewService(cfg.Models.FetalDefinition(), classify.WithRecorder(record))

	if err := initialize(ctx, risk, fetal); err != nil {
		if cfg.Models.FailFast {
			return err
		}
		log.Warnw("serving with unavailable classifiers", logging.FieldError, err)
	}

	// 4. Wire collaborators
	api := hhttp.NewAPI(risk, fetal)
	api.Store = store
	api.Metrics = monitoring.NewMetricsCollector()
	api.Alerts = monitoring.NewAlertHub(cfg.Server.AllowedOrigins)
	go api.Alerts.Run(ctx)

	var provider messaging.Provider
	if cfg.MessagingEnabled() {
		provider = messaging.NewTwilioProvider(cfg.Messaging.AccountSID, cfg.Messaging.AuthToken, cfg.Messaging.FromNumber)
	} else {
		log.Warn("messaging credentials missing, SOS alerts will be simulated")
	}
	api.SOS = messaging.NewDispatcher(provider, messaging.Options{
		DeliveryTimeout: cfg.Messaging.DeliveryTimeout,
		PollInterval:    cfg.Messaging.PollInterval,
	})

	api.Chat = llm.NewOllamaClient(llm.Options{
		Host:         cfg.LLM.Host,
		Model:        cfg.LLM.Model,
		PromptPrefix: cfg.LLM.PromptPrefix,
		Timeout:      cfg.LLM.Timeout,
		RetryMax:     cfg.LLM.RetryMax,
		RetryWait:    cfg.LLM.RetryWait,
	})
	if cfg.Weather.APIKey != "" {
		api.Weather = weather.NewClient(weather.Options{
			APIKey:    cfg.Weather.APIKey,
			BaseURL:   cfg.Weather.BaseURL,
			Timeout:   cfg.Weather.Timeout,
			CacheSize: cfg.Weather.CacheSize,
			CacheTTL:  cfg.Weather.CacheTTL,
		})
	}
	api.Geo = geo.NewGeocoder(geo.Options{
		BaseURL:   cfg.Geo.BaseURL,
		UserAgent: cfg.Geo.UserAgent,
		Timeout:   cfg.Geo.Timeout,
		CacheSize: cfg.Geo.CacheSize,
		CacheTTL:  cfg.Geo.CacheTTL,
	})

	// 5. Start HTTP server
	server := hhttp.NewServer(hhttp.ServerConfig{
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RatePerSecond:  cfg.Server.RateLimit.PerSecond,
		RateBurst:      cfg.Server.RateLimit.Burst,
	}, api)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	// 6. Handle graceful shutdown
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warnw("server forced to shutdown", logging.FieldError, err)
	}
	log.Info("exiting")
	return nil
}

// initialize trains both classifiers concurrently and returns the first
// failure. A failed classifier stays failed; the other is unaffected.
func initialize(ctx context.Context, services ...*classify.Service) error {
	var g errgroup.Group
	for _, svc := range services {
		svc := svc
		g.Go(func() error { return svc.Initialize(ctx) })
	}
	return g.Wait()
}
