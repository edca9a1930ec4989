// Package app wires configuration into the database, archive backend and
// services shared by the server and the sheetctl command.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/sheetvault/internal/archive"
	"github.com/JonMunkholm/sheetvault/internal/auth"
	"github.com/JonMunkholm/sheetvault/internal/classify"
	"github.com/JonMunkholm/sheetvault/internal/config"
	"github.com/JonMunkholm/sheetvault/internal/core"
	"github.com/JonMunkholm/sheetvault/internal/store"
)

// App holds the opened resources.
type App struct {
	Config *config.Config
	DB     *store.DB
	Files  *core.Service
	Users  *core.UserService
}

// Open connects to the database and builds the services. Migrations are
// not applied; call DB.Migrate when needed.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := store.Open(ctx, cfg.Database.URL, store.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("connected to database", "dialect", db.Dialect(), "name", databaseName(cfg.Database.URL))

	a, err := build(ctx, cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, db *store.DB) (*App, error) {
	arch, err := Archiver(ctx, cfg)
	if err != nil {
		return nil, err
	}

	classifier, err := Classifier(cfg.Storage.KeywordsFile)
	if err != nil {
		return nil, err
	}

	files, err := core.NewService(db, arch, core.Options{
		Folder:       cfg.Storage.ExcelFolder,
		MaxRow:       cfg.Storage.SheetMaxRow,
		SkipListSync: cfg.Storage.SkipListSync,
		Classifier:   classifier,
		Limiter:      core.NewImportLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
	})
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}

	return &App{
		Config: cfg,
		DB:     db,
		Files:  files,
		Users:  core.NewUserService(db, issuer),
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}

// Archiver returns the configured archive backend.
func Archiver(ctx context.Context, cfg *config.Config) (archive.Archiver, error) {
	switch cfg.Archive.Backend {
	case config.ArchiveS3:
		a, err := archive.NewS3(ctx, archive.S3Options{
			Bucket:    cfg.Archive.S3Bucket,
			Region:    cfg.Archive.S3Region,
			Endpoint:  cfg.Archive.S3Endpoint,
			Prefix:    cfg.Archive.S3Prefix,
			AccessKey: cfg.Archive.S3AccessKey,
			SecretKey: cfg.Archive.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("archive backend", "backend", "s3", "bucket", cfg.Archive.S3Bucket, "prefix", cfg.Archive.S3Prefix)
		return a, nil
	default:
		a, err := archive.NewLocal(cfg.Storage.ArchiveFolder)
		if err != nil {
			return nil, err
		}
		slog.Info("archive backend", "backend", "local", "dir", a.Dir())
		return a, nil
	}
}

// Classifier returns the embedded classifier, or one built from path.
func Classifier(path string) (*classify.Classifier, error) {
	if path == "" {
		return classify.Default(), nil
	}
	kw, err := classify.LoadKeywordsFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}
	slog.Info("classification keywords loaded", "file", path, "version", kw.Version)
	return classify.New(kw), nil
}

// databaseName returns the database name of a URL for logging.
func databaseName(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return strings.TrimPrefix(u.Path, "/")
	}
	return raw
}
