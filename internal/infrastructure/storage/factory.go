package storage

import (
	"context"
	"fmt"

	"github.com/webcoletivo/coletivosend/internal/domain/service"
)

// バックエンド名
const (
	BackendMinIO = "minio"
	BackendS3    = "s3"
	BackendLocal = "local"
)

// Config はオブジェクトストレージ接続設定を定義します
type Config struct {
	Backend         string // minio, s3, local
	Endpoint        string // 例: localhost:9000
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	Region          string // 空の場合 us-east-1
	LocalRoot       string // local バックエンドのルートディレクトリ
}

func (c Config) region() string {
	if c.Region == "" {
		return "us-east-1"
	}
	return c.Region
}

// HealthChecker は接続確認を提供するバックエンドが実装します
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewMultipartStorage は設定に従ってバックエンドを一度だけ選択し構築します
func NewMultipartStorage(ctx context.Context, cfg Config) (service.MultipartStorage, HealthChecker, error) {
	switch cfg.Backend {
	case BackendMinIO, "":
		adapter, err := NewMinIOMultipartAdapter(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return adapter, adapter, nil

	case BackendS3:
		adapter, err := NewS3MultipartAdapter(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return adapter, adapter, nil

	case BackendLocal:
		adapter, err := NewLocalMultipartAdapter(cfg.LocalRoot)
		if err != nil {
			return nil, nil, err
		}
		return adapter, adapter, nil
	}

	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
