package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const applicationName = "coletivosend"

// PostgresClient はアップロードセッションストアのコネクションプールを保持します
type PostgresClient struct {
	pool *pgxpool.Pool
}

// NewPostgresClient は databaseURL からプールを開き、疎通を確認します。
// pool_max_conns などプール関連のクエリパラメータが URL にあればそちらが優先されます。
func NewPostgresClient(ctx context.Context, databaseURL string) (*PostgresClient, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if !strings.Contains(databaseURL, "pool_max_conns") {
		// パート報告は短いトランザクションが並列に走る
		cfg.MaxConns = 25
	}
	if !strings.Contains(databaseURL, "pool_max_conn_idle_time") {
		cfg.MaxConnIdleTime = 10 * time.Minute
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresClient{pool: pool}, nil
}

// Pool はコネクションプールを返します
func (c *PostgresClient) Pool() *pgxpool.Pool {
	return c.pool
}

func (c *PostgresClient) Close() {
	c.pool.Close()
}

// Health は疎通を確認し、プールが枯渇している場合もエラーとします
func (c *PostgresClient) Health(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return err
	}
	st := c.pool.Stat()
	if st.MaxConns() > 0 && st.AcquiredConns() >= st.MaxConns() && st.EmptyAcquireCount() > 0 {
		return fmt.Errorf("connection pool exhausted (%d/%d acquired)", st.AcquiredConns(), st.MaxConns())
	}
	return nil
}
