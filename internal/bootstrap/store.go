// Package bootstrap wires configuration into concrete stores and event sinks
// for the binaries under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
	"github.com/hackgods/consultation-scheduling/internal/config"
	"github.com/hackgods/consultation-scheduling/internal/db"
)

// Store is an opened repository with its profile writer and a close hook.
type Store struct {
	Repo     appointment.Repository
	Profiles appointment.ProfileWriter
	Close    func()
}

// OpenStore connects the store selected by STORE_DRIVER and brings its
// schema up to date.
func OpenStore(ctx context.Context, cfg config.Config, log *zap.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(connCtx, pool, log); err != nil {
			pool.Close()
			return nil, err
		}

		repo := appointment.NewPgRepository(pool)
		return &Store{Repo: repo, Profiles: repo, Close: pool.Close}, nil

	case config.StoreDriverGormPostgres:
		gdb, err := db.OpenGormPostgres(cfg.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		return gormStore(gdb, log)

	case config.StoreDriverSQLite:
		gdb, err := db.OpenGormSQLite(cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return gormStore(gdb, log)
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

func gormStore(gdb *gorm.DB, log *zap.Logger) (*Store, error) {
	repo := appointment.NewGormRepository(gdb)
	closeDB := func() {
		if sqlDB, err := gdb.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Warn("close database", zap.Error(err))
			}
		}
	}

	if err := repo.Migrate(); err != nil {
		closeDB()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{Repo: repo, Profiles: repo, Close: closeDB}, nil
}
