package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// JWTBlacklist は失効させたアクセストークンのID (jti) を保持します
type JWTBlacklist struct {
	client *redis.Client
}

// NewJWTBlacklist は新しいJWTBlacklistを作成します
func NewJWTBlacklist(client *redis.Client) *JWTBlacklist {
	return &JWTBlacklist{client: client}
}

// Revoke はトークンを失効させます。エントリはトークンの有効期限まで保持されます。
func (b *JWTBlacklist) Revoke(ctx context.Context, jti string, expiry time.Time) error {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, JWTBlacklistKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked はトークンが失効済みか確認します
func (b *JWTBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := b.client.Exists(ctx, JWTBlacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return n > 0, nil
}
