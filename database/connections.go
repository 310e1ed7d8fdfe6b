// Package database opens the Postgres pool and Neo4j driver that back the
// passage store and the override graph.
package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/fabfab/contract-agent/config"
)

const applicationName = "contract-agent"

// ErrUnavailable marks a store that could not be reached.
var ErrUnavailable = errors.New("database unavailable")

// PoolConfig builds the pgx pool settings for the passage store.
func PoolConfig(cfg config.Config) (*pgxpool.Config, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.PostgresMaxConns > 0 {
		poolCfg.MaxConns = int32(min(cfg.PostgresMaxConns, math.MaxInt32))
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if _, ok := poolCfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	poolCfg.HealthCheckPeriod = time.Minute
	return poolCfg, nil
}

// NewPostgresPool opens the pool and pings it once so that a missing server
// fails at startup instead of on the first question.
func NewPostgresPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s: %w: %w", poolCfg.ConnConfig.Host, ErrUnavailable, err)
	}
	return pool, nil
}

func neo4jSettings(cfg config.Config) func(*neo4jconfig.Config) {
	return func(c *neo4jconfig.Config) {
		if cfg.Neo4jMaxConns > 0 {
			c.MaxConnectionPoolSize = cfg.Neo4jMaxConns
		}
		if cfg.ConnectTimeout > 0 {
			c.SocketConnectTimeout = cfg.ConnectTimeout
			c.ConnectionAcquisitionTimeout = cfg.ConnectTimeout
		}
		c.UserAgent = applicationName
	}
}

// NewNeo4jDriver opens the override graph driver and verifies it can reach
// the server.
func NewNeo4jDriver(ctx context.Context, cfg config.Config) (neo4j.DriverWithContext, error) {
	uri := strings.TrimSpace(cfg.Neo4jURI)
	if uri == "" {
		return nil, fmt.Errorf("neo4j uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""), neo4jSettings(cfg))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity %s: %w: %w", uri, ErrUnavailable, err)
	}
	return driver, nil
}
