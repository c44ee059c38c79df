package db

import (
	"context"
	"log"
	"time"

	"courier/server/internal/apperrors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
)

// Connect opens a pgx pool and verifies connectivity, retrying with
// fibonacci backoff so the server survives a database that is still
// starting up.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing database url")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating connection pool")
	}

	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			log.Printf("Database not reachable yet: %v", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		log.Printf("Giving up on database after retries: %v", err)
		return nil, apperrors.Unavailable("database unavailable")
	}

	log.Printf("Connected to database")
	return pool, nil
}
