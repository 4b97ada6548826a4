package database

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the shared connection pool handed to stores and handlers.
type Pool = pgxpool.Pool

// ApplicationName tags every session so mill traffic is visible in pg_stat_activity.
const ApplicationName = "millerp"

// Connect opens a pool against databaseURL and pings it. An application_name
// already present in the URL is kept.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}

	if maxConns > 0 && maxConns <= math.MaxInt32 {
		config.MaxConns = int32(maxConns) // #nosec G115 -- bounds checked above
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
