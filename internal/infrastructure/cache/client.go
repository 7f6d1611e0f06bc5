package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dialCheckTimeout = 5 * time.Second

// Client はトークン失効とレート制限が共有するRedis接続です。
// プールサイズ等は URL のクエリ (pool_size, dial_timeout など) で指定します。
type Client struct {
	*redis.Client
}

// Connect は redis://[:password@]host:port/db 形式の URL から接続を開き、疎通を確認します
func Connect(ctx context.Context, url string) (*Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if opt.MaxRetries == 0 {
		opt.MaxRetries = 3
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, dialCheckTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Client{Client: rdb}, nil
}

// Health はRedisの接続状態を確認します
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
