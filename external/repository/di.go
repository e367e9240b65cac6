package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/foxseedlab/bonfire/internal/config"
	"github.com/foxseedlab/bonfire/internal/dbpool"
	"github.com/foxseedlab/bonfire/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
)

const databaseInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*dbpool.Pool, error) {
		cfg := do.MustInvoke[*config.Config](i)
		reg := do.MustInvoke[*prometheus.Registry](i)
		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()

		connConfig, err := pgx.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse database url: %w", err)
		}
		if err := RunMigration(ctx, connConfig); err != nil {
			return nil, fmt.Errorf("failed to run migration: %w", err)
		}

		dial := func(ctx context.Context) (dbpool.Conn, error) {
			conn, err := pgx.ConnectConfig(ctx, connConfig.Copy())
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
		p, err := dbpool.New(ctx, dial, cfg.DatabasePoolSize, reg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		return p, nil
	})
	do.Provide(injector, func(i do.Injector) (repository.Repository, error) {
		p, err := do.Invoke[*dbpool.Pool](i)
		if err != nil {
			return nil, err
		}
		return NewPostgresRepository(p), nil
	})
}
