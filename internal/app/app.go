// Package app builds the services shared by the API server and the importer
// from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"denote/internal/auth"
	"denote/internal/cache"
	"denote/internal/config"
	"denote/internal/contentstore"
	"denote/internal/db"
	"denote/internal/logging"
	"denote/internal/repository"
	"denote/internal/service"
)

// App holds the wired services and the resources they hold open.
type App struct {
	AuthService service.AuthService
	NoteService service.NoteService

	closers []func(context.Context) error
}

// New connects the configured store, cache and content store backend.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	userRepo, noteRepo, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pinner, err := newPinner(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	store := contentstore.New(pinner, contentstore.Options{
		Backend:    cfg.PinningProvider,
		GatewayURL: cfg.GatewayURL,
		MaxBytes:   cfg.MaxUploadBytes,
	})

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	a.closers = append(a.closers, func(context.Context) error { return cacheClient.Close() })

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenTTL)
	a.AuthService = service.NewAuthService(userRepo, jwtService)
	a.NoteService = service.NewNoteService(noteRepo, store, cacheClient)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (repository.UserRepository, repository.NoteRepository, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		mdb, err := db.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo init: %w", err)
		}
		if cfg.ResetDB {
			logging.Warn().Msg("reset_db set, dropping collections")
			if err := dropMongo(ctx, mdb); err != nil {
				return nil, nil, err
			}
		}
		a.closers = append(a.closers, mdb.Client().Disconnect)
		return repository.NewMongoUserRepository(mdb), repository.NewMongoNoteRepository(mdb), nil

	default:
		var (
			gormDB *gorm.DB
			err    error
		)
		if cfg.StoreDriver == config.DriverSQLite {
			gormDB, err = db.NewSQLite(cfg.SQLitePath)
		} else {
			gormDB, err = db.NewMySQL(cfg.MySQLDSN)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("database init: %w", err)
		}
		if cfg.ResetDB {
			logging.Warn().Msg("reset_db set, dropping tables")
		}
		if err := db.Migrate(gormDB, cfg.ResetDB); err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func(context.Context) error {
			sqlDB, err := gormDB.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		return repository.NewUserRepository(gormDB), repository.NewNoteRepository(gormDB), nil
	}
}

func dropMongo(ctx context.Context, mdb *mongo.Database) error {
	for _, name := range []string{"notes", "users"} {
		if err := mdb.Collection(name).Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	return db.EnsureMongoIndexes(ctx, mdb)
}

func newPinner(ctx context.Context, cfg *config.Config) (contentstore.Pinner, error) {
	switch cfg.PinningProvider {
	case config.ProviderS3:
		return contentstore.NewS3Pinner(ctx, contentstore.S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	case config.ProviderMemory:
		logging.Warn().Msg("memory pinning provider: uploads are lost on restart")
		return contentstore.NewMemoryPinner(), nil
	default:
		if cfg.PinataJWT == "" {
			return nil, fmt.Errorf("pinata_jwt is required for the pinata provider")
		}
		return contentstore.NewPinataPinner(cfg.PinataAPIURL, cfg.PinataJWT, &http.Client{Timeout: cfg.ServerTimeout}), nil
	}
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logging.Warn().Err(err).Msg("close resource")
		}
	}
	a.closers = nil
}
