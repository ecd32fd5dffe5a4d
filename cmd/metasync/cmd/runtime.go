package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/metasync/internal/core/config"
	"github.com/solatis/metasync/internal/core/db"
	"github.com/solatis/metasync/internal/core/descriptor"
	"github.com/solatis/metasync/internal/document"
	"github.com/solatis/metasync/internal/metadata"
	"github.com/solatis/metasync/internal/processor"
	"github.com/solatis/metasync/internal/rules"
)

// runtime is the wired object graph shared by serve and worker.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sqlx.DB
	queries  *db.Queries
	holder   *rules.Holder
	reloader *descriptor.Reloader
	queue    *metadata.Queue
	service  *metadata.Service
}

func openRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	database, err := db.Open(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	rt, err := wireRuntime(cfg, logger, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return rt, nil
}

func wireRuntime(cfg *config.Config, logger *slog.Logger, database *sqlx.DB) (*runtime, error) {
	if err := requireMigrated(database); err != nil {
		return nil, err
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return nil, fmt.Errorf("failed to load queries: %w", err)
	}

	reg, err := descriptor.Load(cfg.Descriptors.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load descriptors: %w", err)
	}
	holder := rules.NewHolder(reg)
	logger.Info("descriptors loaded",
		slog.String("path", cfg.Descriptors.Path),
		slog.Int("rules", len(reg.Rules())),
		slog.Int("mappings", len(reg.Mappings())),
		slog.String("digest", reg.Digest()))

	processors := processor.NewRegistry(cfg.Processor.Default)
	exiftool := processor.NewExifTool(processor.ExifToolConfig{
		Path:    cfg.Processor.ExifToolPath,
		Timeout: cfg.Processor.ExifToolTimeout,
	}, logger)
	if !exiftool.Available() {
		logger.Warn("exiftool not found; metadata operations will fail",
			slog.String("path", cfg.Processor.ExifToolPath))
	}
	if err := processors.Register(processor.DefaultID, exiftool); err != nil {
		return nil, err
	}

	store, err := document.NewStore(queries)
	if err != nil {
		return nil, err
	}
	queue, err := metadata.NewQueue(queries)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		db:       database,
		queries:  queries,
		holder:   holder,
		reloader: descriptor.NewReloader(cfg.Descriptors.Path, holder, logger),
		queue:    queue,
		service:  metadata.NewService(rules.NewEngine(holder), processors, store, queue, logger),
	}, nil
}

// requireMigrated fails when migrations are pending.
func requireMigrated(database *sqlx.DB) error {
	statuses, err := db.MigrateStatus(database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'metasync migrate up' first", s.ID)
		}
	}
	return nil
}

func (rt *runtime) Close() error {
	return rt.db.Close()
}

func (rt *runtime) newWorker() *metadata.Worker {
	return metadata.NewWorker(rt.service, metadata.WorkerConfig{
		Concurrency:  rt.cfg.Worker.Concurrency,
		BatchSize:    rt.cfg.Worker.BatchSize,
		PollInterval: rt.cfg.Worker.PollInterval,
	}, rt.logger)
}

// watchDescriptors reloads on descriptor changes when enabled.
func (rt *runtime) watchDescriptors(ctx context.Context) error {
	if !rt.cfg.Descriptors.Watch {
		return nil
	}
	return rt.reloader.Watch(ctx)
}
