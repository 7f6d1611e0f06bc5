package testutil

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/webcoletivo/coletivosend/internal/infrastructure/di"
	"github.com/webcoletivo/coletivosend/internal/interface/middleware"
	"github.com/webcoletivo/coletivosend/internal/interface/router"
	"github.com/webcoletivo/coletivosend/internal/interface/server"
	"github.com/webcoletivo/coletivosend/internal/interface/validator"
	"github.com/webcoletivo/coletivosend/pkg/config"
)

// TestServer holds the upload API wired against the integration environment
type TestServer struct {
	Echo      *echo.Echo
	HTTP      *httptest.Server
	Container *di.Container
	Config    *config.Config
}

// TestConfig returns the configuration used by integration tests
func TestConfig(e *Environment) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "postgres", URL: e.DatabaseURL},
		Redis:    config.RedisConfig{URL: e.RedisURL},
		JWT: config.JWTConfig{
			SecretKey:         "test-secret-key-for-integration-tests",
			Issuer:            "coletivosend-test",
			Audience:          []string{"coletivosend-api-test"},
			AccessTokenExpiry: 15 * time.Minute,
		},
		Storage: config.StorageConfig{
			Backend:       "s3",
			Endpoint:      e.S3Endpoint,
			Region:        e.S3Region,
			AccessKey:     S3AccessKey,
			SecretKey:     S3SecretKey,
			BucketName:    S3Bucket,
			PresignExpiry: 15 * time.Minute,
		},
		Upload: config.UploadConfig{
			ChunkSize:      5 * 1024 * 1024,
			MaxFileSize:    64 * 1024 * 1024,
			SessionTTL:     time.Hour,
			SweepBatchSize: 10,
		},
	}
}

// NewTestServer creates a fully configured test server listening on a local port
func NewTestServer(t *testing.T, e *Environment, opts ...func(*config.Config)) *TestServer {
	t.Helper()

	cfg := TestConfig(e)
	for _, opt := range opts {
		opt(cfg)
	}

	container, err := di.NewContainerWithOptions(context.Background(), cfg, di.Options{
		PostgresPool: e.Postgres.Pool(),
		RedisClient:  e.Redis,
	})
	require.NoError(t, err)
	container.InitUploadUseCases()

	srv := server.NewServer(server.DefaultConfig())
	echoServer := srv.Echo()
	echoServer.Validator = validator.NewCustomValidator()
	echoServer.HTTPErrorHandler = middleware.CustomHTTPErrorHandler

	partLimit := container.Policy.EffectiveChunkSize(container.Storage.MinPartSize())
	router.NewRouter(echoServer, di.NewHandlers(container), di.NewMiddlewares(container), partLimit).Setup()

	ts := httptest.NewServer(echoServer)
	t.Cleanup(ts.Close)

	return &TestServer{
		Echo:      echoServer,
		HTTP:      ts,
		Container: container,
		Config:    cfg,
	}
}

// Token issues an access token for the given user
func (ts *TestServer) Token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := ts.Container.JWTService.GenerateAccessToken(userID)
	require.NoError(t, err)
	return token
}

// Cleanup cleans up test data
func (ts *TestServer) Cleanup(t *testing.T, e *Environment) {
	t.Helper()
	TruncateTables(t, e, "upload_parts", "upload_sessions")
	FlushRedis(t, e)
}
