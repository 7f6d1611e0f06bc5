// Package testutil provides utilities for integration testing
package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/webcoletivo/coletivosend/internal/infrastructure/database"
	"github.com/webcoletivo/coletivosend/internal/infrastructure/storage"
)

// S3 credentials and bucket used against LocalStack
const (
	S3AccessKey = "test"
	S3SecretKey = "test"
	S3Bucket    = "coletivosend-test"
)

// Environment holds the backing services shared by integration tests.
// Each service comes from a TEST_* environment variable when set and
// from a throwaway container otherwise.
type Environment struct {
	DatabaseURL string
	RedisURL    string
	S3Endpoint  string
	S3Region    string

	Postgres *database.PostgresClient
	Redis    *redis.Client

	containers []testcontainers.Container
}

var (
	env          *Environment
	envErr       error
	setupOnce    sync.Once
	teardownOnce sync.Once
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// SetupTestEnvironment starts (once) and returns the integration environment
func SetupTestEnvironment(t *testing.T) *Environment {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	setupOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		env, envErr = startEnvironment(ctx)
	})
	if envErr != nil {
		t.Fatalf("failed to set up integration environment: %v", envErr)
	}
	return env
}

func startEnvironment(ctx context.Context) (*Environment, error) {
	e := &Environment{
		DatabaseURL: os.Getenv("TEST_DATABASE_URL"),
		RedisURL:    os.Getenv("TEST_REDIS_URL"),
		S3Endpoint:  os.Getenv("TEST_S3_ENDPOINT"),
		S3Region:    getEnv("TEST_S3_REGION", "us-east-1"),
	}

	if e.DatabaseURL == "" {
		if err := e.startPostgres(ctx); err != nil {
			e.terminate()
			return nil, err
		}
	}
	if e.RedisURL == "" {
		if err := e.startRedis(ctx); err != nil {
			e.terminate()
			return nil, err
		}
	}
	if e.S3Endpoint == "" {
		if err := e.startLocalStack(ctx); err != nil {
			e.terminate()
			return nil, err
		}
	}

	// PostgreSQL
	pg, err := database.NewPostgresClient(ctx, e.DatabaseURL)
	if err != nil {
		e.terminate()
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		e.terminate()
		return nil, err
	}
	e.Postgres = pg

	// Redis
	opt, err := redis.ParseURL(e.RedisURL)
	if err != nil {
		e.terminate()
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	e.Redis = redis.NewClient(opt)
	if err := e.Redis.Ping(ctx).Err(); err != nil {
		e.terminate()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	// S3 bucket
	if err := e.ensureBucket(ctx); err != nil {
		e.terminate()
		return nil, err
	}

	return e, nil
}

func (e *Environment) startPostgres(ctx context.Context) error {
	c, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("coletivosend_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}
	e.containers = append(e.containers, c)

	url, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get postgres connection string: %w", err)
	}
	e.DatabaseURL = url
	return nil
}

func (e *Environment) startRedis(ctx context.Context) error {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start redis container: %w", err)
	}
	e.containers = append(e.containers, c)

	endpoint, err := c.Endpoint(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to get redis endpoint: %w", err)
	}
	e.RedisURL = "redis://" + endpoint + "/0"
	return nil
}

func (e *Environment) startLocalStack(ctx context.Context) error {
	c, err := localstack.Run(ctx, "localstack/localstack:3.8",
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/_localstack/health").
				WithPort("4566").
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start LocalStack container: %w", err)
	}
	e.containers = append(e.containers, c)

	host, err := c.Host(ctx)
	if err != nil {
		return fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := c.MappedPort(ctx, "4566")
	if err != nil {
		return fmt.Errorf("failed to get container port: %w", err)
	}
	e.S3Endpoint = fmt.Sprintf("http://%s:%s", host, port.Port())
	return nil
}

// S3Client returns a raw S3 client pointed at the test endpoint
func (e *Environment) S3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(e.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(S3AccessKey, S3SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(e.S3Endpoint)
	}), nil
}

// StorageConfig returns the S3 backend configuration for the test bucket
func (e *Environment) StorageConfig() storage.Config {
	return storage.Config{
		Backend:         storage.BackendS3,
		Endpoint:        e.S3Endpoint,
		AccessKeyID:     S3AccessKey,
		SecretAccessKey: S3SecretKey,
		BucketName:      S3Bucket,
		Region:          e.S3Region,
	}
}

func (e *Environment) ensureBucket(ctx context.Context) error {
	client, err := e.S3Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(S3Bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (e *Environment) terminate() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for _, c := range e.containers {
		_ = c.Terminate(ctx)
	}
	e.containers = nil
}

// CleanupTestEnvironment closes connections and stops containers
func CleanupTestEnvironment() {
	teardownOnce.Do(func() {
		if env == nil {
			return
		}
		if env.Postgres != nil {
			env.Postgres.Close()
		}
		if env.Redis != nil {
			_ = env.Redis.Close()
		}
		env.terminate()
	})
}

// TruncateTables clears specified tables for test isolation
func TruncateTables(t *testing.T, e *Environment, tables ...string) {
	t.Helper()
	ctx := context.Background()

	for _, table := range tables {
		_, err := e.Postgres.Pool().Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			t.Fatalf("Failed to truncate table %s: %v", table, err)
		}
	}
}

// FlushRedis clears the Redis test database
func FlushRedis(t *testing.T, e *Environment) {
	t.Helper()

	if err := e.Redis.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to flush Redis: %v", err)
	}
}
