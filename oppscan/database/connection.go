package database

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"

	englog "github.com/switchrx/oppscan-app/log"
)

// Variable substitution to support testing.
var LogFatal = log.Fatal

// GetDbConnection opens the engine database using DATABASE_URL and the pool
// settings from the database Config. The process cannot do anything useful
// without a database, so connection failure is fatal.
func GetDbConnection() *sql.DB {
	cfg, err := LoadConfig()
	if err != nil {
		LogFatal(err)
	}
	return connect(cfg.DatabaseURL, cfg)
}

func connect(databaseURL string, cfg *Config) *sql.DB {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		LogFatal(err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMin) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if pingErr := db.Ping(); pingErr != nil {
		LogFatal(pingErr)
	}

	return db
}

// StartHealthCheck pings the connection on the supplied interval until the
// context is cancelled. Individual pings are retried with exponential backoff
// before the failure is logged, so a transient blip does not produce noise.
func StartHealthCheck(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				englog.Engine.Info("Stopping database health check.")
				return
			case <-ticker.C:
				ping := func() error { return db.PingContext(ctx) }
				policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
				if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
					englog.Engine.Errorf("Database health check failed: %s", err.Error())
				}
			}
		}
	}()
}
