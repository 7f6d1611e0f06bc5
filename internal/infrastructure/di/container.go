package di

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/webcoletivo/coletivosend/internal/domain/repository"
	"github.com/webcoletivo/coletivosend/internal/domain/service"
	"github.com/webcoletivo/coletivosend/internal/infrastructure/cache"
	"github.com/webcoletivo/coletivosend/internal/infrastructure/database"
	"github.com/webcoletivo/coletivosend/internal/infrastructure/filetype"
	"github.com/webcoletivo/coletivosend/internal/infrastructure/memstore"
	infraRepo "github.com/webcoletivo/coletivosend/internal/infrastructure/repository"
	"github.com/webcoletivo/coletivosend/internal/infrastructure/storage"
	"github.com/webcoletivo/coletivosend/internal/usecase/upload"
	"github.com/webcoletivo/coletivosend/pkg/config"
	"github.com/webcoletivo/coletivosend/pkg/jwt"
)

// Container はアプリケーションの依存関係を保持するDIコンテナです
type Container struct {
	// Infrastructure
	PgClient      *database.PostgresClient
	RedisClient   *cache.Client
	TxManager     repository.TransactionManager
	Storage       service.MultipartStorage
	StorageHealth storage.HealthChecker

	// Services
	JWTService        *jwt.JWTService
	JWTBlacklist      *cache.JWTBlacklist
	RateLimiter       *cache.RateLimiter
	FileTypeValidator service.FileTypeValidator

	// Repositories
	UploadSessionRepo repository.UploadSessionRepository
	UploadPartRepo    repository.UploadPartRepository

	// Upload UseCases
	Upload *UploadUseCases

	Policy upload.Policy

	// config
	config *config.Config
}

// NewContainer は新しいContainerを作成します
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	return NewContainerWithOptions(ctx, cfg, Options{})
}

// NewContainerWithOptions はオプションを指定してContainerを作成します
func NewContainerWithOptions(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	c := &Container{
		config: cfg,
		Policy: PolicyFromConfig(cfg),
	}

	// セッションストア
	switch {
	case opts.PostgresPool != nil:
		c.useTxManager(database.NewTxManager(opts.PostgresPool))
	case cfg.Database.Driver == "memory":
		slog.Warn("using in-memory session store; sessions are lost on restart")
		store := memstore.New()
		c.TxManager = store
		c.UploadSessionRepo = store.Sessions()
		c.UploadPartRepo = store.Parts()
	default:
		slog.Info("connecting to PostgreSQL...")
		pgClient, err := database.NewPostgresClient(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		c.PgClient = pgClient
		if cfg.Database.AutoMigrate {
			if err := pgClient.Migrate(ctx); err != nil {
				c.Close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		c.useTxManager(database.NewTxManager(pgClient.Pool()))
		slog.Info("connected to PostgreSQL")
	}

	// Redis（任意）
	switch {
	case opts.RedisClient != nil:
		c.useRedis(opts.RedisClient)
	case cfg.Redis.URL != "":
		slog.Info("connecting to Redis...")
		redisClient, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.RedisClient = redisClient
		c.useRedis(redisClient.Client)
		slog.Info("connected to Redis")
	default:
		slog.Info("redis not configured; token revocation and rate limiting disabled")
	}

	// Object Storage
	if opts.Storage != nil {
		c.Storage = opts.Storage
		if hc, ok := opts.Storage.(storage.HealthChecker); ok {
			c.StorageHealth = hc
		}
	} else {
		slog.Info("initializing object storage...", "backend", cfg.Storage.Backend)
		store, health, err := storage.NewMultipartStorage(ctx, storage.Config{
			Backend:         cfg.Storage.Backend,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKey,
			SecretAccessKey: cfg.Storage.SecretKey,
			BucketName:      cfg.Storage.BucketName,
			UseSSL:          cfg.Storage.UseSSL,
			Region:          cfg.Storage.Region,
			LocalRoot:       cfg.Storage.LocalRoot,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize object storage: %w", err)
		}
		c.Storage = store
		c.StorageHealth = health
		slog.Info("object storage ready", "backend", store.Name(), "min_part_size", store.MinPartSize())
	}

	// JWT Service
	c.JWTService = jwt.NewJWTService(cfg.JWT.Service())

	c.FileTypeValidator = filetype.NewValidator(filetype.Config{
		DeniedExtensions: cfg.Upload.DeniedExtensions,
		AllowedMimeTypes: cfg.Upload.AllowedMimeTypes,
	})

	return c, nil
}

func (c *Container) useTxManager(txManager *database.TxManager) {
	c.TxManager = txManager
	c.UploadSessionRepo = infraRepo.NewUploadSessionRepository(txManager)
	c.UploadPartRepo = infraRepo.NewUploadPartRepository(txManager)
}

func (c *Container) useRedis(client *redis.Client) {
	c.JWTBlacklist = cache.NewJWTBlacklist(client)
	c.RateLimiter = cache.NewRateLimiter(client)
}

// InitUploadUseCases はUpload UseCasesを初期化します
func (c *Container) InitUploadUseCases() {
	c.Upload = NewUploadUseCases(c)
}

// Config はコンテナ構築に使用した設定を返します
func (c *Container) Config() *config.Config {
	return c.config
}

// Close はリソースをクリーンアップします
func (c *Container) Close() error {
	var errs []error

	if c.PgClient != nil {
		c.PgClient.Close()
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

// Options はContainer作成時のオプションを定義します
type Options struct {
	PostgresPool *pgxpool.Pool
	RedisClient  *redis.Client
	Storage      service.MultipartStorage
}

// PolicyFromConfig は設定からアップロードポリシーを組み立てます
func PolicyFromConfig(cfg *config.Config) upload.Policy {
	policy := upload.DefaultPolicy()
	if cfg.Upload.ChunkSize > 0 {
		policy.ChunkSize = cfg.Upload.ChunkSize
	}
	if cfg.Upload.MaxFileSize > 0 {
		policy.MaxFileSize = cfg.Upload.MaxFileSize
	}
	if cfg.Upload.SessionTTL > 0 {
		policy.SessionTTL = cfg.Upload.SessionTTL
	}
	if cfg.Upload.SweepBatchSize > 0 {
		policy.SweepBatchSize = cfg.Upload.SweepBatchSize
	}
	if cfg.Storage.PresignExpiry > 0 {
		policy.PresignExpiry = cfg.Storage.PresignExpiry
	}
	policy.ProxyParts = cfg.Storage.ProxyParts
	return policy
}
