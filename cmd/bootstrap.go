package cmd

import (
	"fmt"

	"index-checker/core/config"
	"index-checker/core/database"
	"index-checker/core/index"
	"index-checker/core/logger"
	"index-checker/core/metrics"
	"index-checker/core/policy"
	"index-checker/core/storage"
	"index-checker/core/store"
	"index-checker/feature/indexcheck"

	"go.uber.org/zap"
)

// app holds everything a command needs.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
	service *indexcheck.Service
}

// bootstrap loads the configuration and wires the index check service.
func bootstrap() (*app, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logg)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	logg.Info("Connected to database",
		zap.String("driver", cfg.Database.Driver),
		zap.String("name", cfg.Database.Name))

	table, err := policy.Load(cfg.Check.PolicyFile)
	if err != nil {
		return nil, err
	}
	resolver := policy.NewResolver(table, policy.Options{
		IgnoreCase:         cfg.Check.IgnoreCase,
		OnIndexUnavailable: cfg.Check.IndexUnavailablePolicy(),
	})

	client, err := index.NewClient(cfg.Index, logg.Named("index"))
	if err != nil {
		return nil, err
	}

	var objects storage.Client
	if cfg.Storage.Enabled {
		if objects, err = storage.NewClient(cfg.Storage); err != nil {
			return nil, err
		}
	}
	reports := indexcheck.NewReports(cfg.Check.ReportDir, objects, cfg.Storage, cfg.Check.ReportRetention, logg.Named("reports"))

	modes, err := cfg.Check.OutputModes()
	if err != nil {
		return nil, err
	}
	collector := metrics.New()

	svc, err := indexcheck.NewService(indexcheck.Dependencies{
		DB: db,
		Store: store.New(db, store.Options{
			GroupChunkSize: cfg.Check.GroupChunkSize,
			GroupCacheTTL:  cfg.Check.GroupCacheTTL(),
		}, logg.Named("store")),
		Index:    client,
		Resolver: resolver,
		Observer: collector,
		Reports:  reports,
		Logger:   logg,
	}, indexcheck.Options{
		Models:      cfg.Check.Models,
		Companies:   cfg.Check.Companies,
		Concurrency: cfg.Check.Concurrency,
		Modes:       modes,
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logg, metrics: collector, service: svc}, nil
}
