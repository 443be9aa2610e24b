package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bryanwahyu/sheet-scraper/internal/application"
	appfiles "github.com/bryanwahyu/sheet-scraper/internal/application/files"
	"github.com/bryanwahyu/sheet-scraper/internal/application/processing"
	"github.com/bryanwahyu/sheet-scraper/internal/config"
	domain "github.com/bryanwahyu/sheet-scraper/internal/domain/files"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/db"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/scraper"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/spreadsheet"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/storage"
	"github.com/bryanwahyu/sheet-scraper/internal/logger"
	"github.com/bryanwahyu/sheet-scraper/internal/middleware"
)

// app holds the constructed dependencies shared by the commands.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	db        *sql.DB
	blobs     domain.BlobStore
	repo      *sqlstore.FileRepository
	processor *processing.Processor
	checkers  map[string]middleware.HealthChecker
	logCloser io.Closer
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config load error: %w", err)
	}

	log, closer, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	conn, dialect, err := db.Open(ctx, cfg)
	if err != nil {
		closer.Close()
		return nil, err
	}
	log.Info("database ready", "driver", dialect.Name)

	a := &app{
		cfg:       cfg,
		log:       log,
		db:        conn,
		repo:      sqlstore.NewFileRepository(conn, dialect),
		logCloser: closer,
		checkers: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: conn},
		},
	}

	switch cfg.Storage.Backend {
	case config.BackendMinio:
		m := cfg.Storage.Minio
		store, err := storage.New(ctx, m.Endpoint, m.Region, m.BucketName, m.AccessKey, m.SecretKey, m.UseSSL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("minio init error: %w", err)
		}
		a.blobs = store
		a.checkers["storage"] = store
	default:
		store, err := storage.NewLocal(cfg.Storage.Dir)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.blobs = store
		a.checkers["storage"] = store
	}

	a.processor = &processing.Processor{
		Repo:    a.repo,
		Blobs:   a.blobs,
		Scraper: scraper.NewStub(log),
		Sheets:  spreadsheet.Excel{},
		Clock:   application.SystemClock{},
		Log:     log,
	}
	return a, nil
}

func (a *app) service(q domain.Queue) *appfiles.Service {
	return &appfiles.Service{
		Repo:  a.repo,
		Blobs: a.blobs,
		Queue: q,
		Clock: application.SystemClock{},
		Log:   a.log,
	}
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}
