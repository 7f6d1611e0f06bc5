package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webcoletivo/coletivosend/internal/infrastructure/di"
	"github.com/webcoletivo/coletivosend/internal/infrastructure/storage"
	"github.com/webcoletivo/coletivosend/internal/interface/middleware"
	"github.com/webcoletivo/coletivosend/internal/interface/router"
	"github.com/webcoletivo/coletivosend/internal/interface/server"
	"github.com/webcoletivo/coletivosend/internal/interface/validator"
	"github.com/webcoletivo/coletivosend/pkg/config"
)

const testChunkSize = 1024

type envelope struct {
	Data  json.RawMessage       `json:"data"`
	Error *middleware.ErrorBody `json:"error"`
}

type testAPI struct {
	t         *testing.T
	e         *echo.Echo
	container *di.Container
	ownerID   uuid.UUID
	token     string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "memory"},
		JWT: config.JWTConfig{
			SecretKey:         "test-secret-key",
			Issuer:            "coletivosend",
			Audience:          []string{"coletivosend-api"},
			AccessTokenExpiry: time.Hour,
		},
		Storage: config.StorageConfig{Backend: storage.BackendLocal},
		Upload: config.UploadConfig{
			ChunkSize:        testChunkSize,
			MaxFileSize:      1 << 20,
			SessionTTL:       time.Hour,
			SweepBatchSize:   10,
			DeniedExtensions: []string{".exe"},
		},
	}

	container, err := di.NewContainerWithOptions(context.Background(), cfg, di.Options{
		Storage: storage.NewLocalMultipartAdapterWithFS(memfs.New()),
	})
	require.NoError(t, err)
	container.InitUploadUseCases()

	srv := server.NewServer(server.DefaultConfig())
	e := srv.Echo()
	e.Validator = validator.NewCustomValidator()
	e.HTTPErrorHandler = middleware.CustomHTTPErrorHandler

	partLimit := container.Policy.EffectiveChunkSize(container.Storage.MinPartSize())
	router.NewRouter(e, di.NewHandlersForTest(container), di.NewMiddlewares(container), partLimit).Setup()

	api := &testAPI{t: t, e: e, container: container, ownerID: uuid.New()}
	api.token = api.tokenFor(api.ownerID)
	return api
}

func (a *testAPI) tokenFor(userID uuid.UUID) string {
	token, err := a.container.JWTService.GenerateAccessToken(userID)
	require.NoError(a.t, err)
	return token
}

func (a *testAPI) do(method, path, token string, body io.Reader, contentType string) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (a *testAPI) doJSON(method, path, token string, payload any) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(a.t, err)
		body = bytes.NewReader(raw)
	}
	return a.do(method, path, token, body, echo.MIMEApplicationJSON)
}

type initiated struct {
	SessionID  string `json:"sessionId"`
	ChunkSize  int64  `json:"chunkSize"`
	TotalParts int    `json:"totalParts"`
	StorageKey string `json:"storageKey"`
}

func (a *testAPI) initiate(fileName string, size int64) (initiated, uuid.UUID, uuid.UUID) {
	a.t.Helper()

	transferID, fileID := uuid.New(), uuid.New()
	rec, env := a.doJSON(http.MethodPost, "/api/v1/uploads", a.token, map[string]any{
		"transferId": transferID.String(),
		"fileId":     fileID.String(),
		"fileName":   fileName,
		"fileSize":   size,
		"mimeType":   "application/pdf",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var out initiated
	require.NoError(a.t, json.Unmarshal(env.Data, &out))
	return out, transferID, fileID
}

func payload(size int, seed byte) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = seed + byte(i%7)
	}
	return b
}

func TestUploadRoutes_RequireAuthentication(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.doJSON(http.MethodPost, "/api/v1/uploads", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	rec, _ = api.doJSON(http.MethodGet, "/api/v1/uploads/"+uuid.NewString(), "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadRoutes_ProxiedLifecycle(t *testing.T) {
	api := newTestAPI(t)
	const fileSize = 2*testChunkSize + 452

	session, transferID, fileID := api.initiate("report.pdf", fileSize)
	assert.Equal(t, int64(testChunkSize), session.ChunkSize)
	assert.Equal(t, 3, session.TotalParts)
	base := "/api/v1/uploads/" + session.SessionID

	// ローカルバックエンドは署名付きURLを持たないためプロキシ経由になる
	rec, env := api.doJSON(http.MethodGet, base+"/parts/1/target", api.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var target struct {
		Method string `json:"method"`
		URL    string `json:"url"`
		Proxy  bool   `json:"proxy"`
		Size   int64  `json:"size"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &target))
	assert.True(t, target.Proxy)
	assert.Equal(t, http.MethodPut, target.Method)
	assert.Equal(t, base+"/parts/1", target.URL)
	assert.Equal(t, int64(testChunkSize), target.Size)

	for n, size := range map[int]int{1: testChunkSize, 2: testChunkSize} {
		rec, _ = api.do(http.MethodPut, fmt.Sprintf("%s/parts/%d", base, n), api.token,
			bytes.NewReader(payload(size, byte(n))), echo.MIMEOctetStream)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get("ETag"))
	}

	// 識別子から進行中セッションを再取得できる
	rec, env = api.doJSON(http.MethodGet,
		fmt.Sprintf("/api/v1/uploads/lookup?transferId=%s&fileId=%s", transferID, fileID), api.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var lookup struct {
		SessionID     string `json:"sessionId"`
		UploadedParts int    `json:"uploadedParts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &lookup))
	assert.Equal(t, session.SessionID, lookup.SessionID)
	assert.Equal(t, 2, lookup.UploadedParts)

	// 未完了のまま完了要求すると不足パーツが返る
	rec, env = api.doJSON(http.MethodPost, base+"/complete", api.token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INCOMPLETE_UPLOAD", env.Error.Code)
	assert.Equal(t, []any{float64(3)}, env.Error.Extra["missingParts"])

	rec, _ = api.do(http.MethodPut, base+"/parts/3", api.token, bytes.NewReader(payload(452, 3)), echo.MIMEOctetStream)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = api.doJSON(http.MethodGet, base, api.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress struct {
		Status        string  `json:"status"`
		UploadedParts int     `json:"uploadedParts"`
		UploadedBytes int64   `json:"uploadedBytes"`
		Percent       float64 `json:"percent"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &progress))
	assert.Equal(t, "active", progress.Status)
	assert.Equal(t, 3, progress.UploadedParts)
	assert.Equal(t, int64(fileSize), progress.UploadedBytes)
	assert.InDelta(t, 100.0, progress.Percent, 0.001)

	rec, env = api.doJSON(http.MethodGet, base+"/parts", api.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var parts struct {
		PartNumbers []int `json:"partNumbers"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &parts))
	assert.Equal(t, []int{1, 2, 3}, parts.PartNumbers)

	rec, env = api.doJSON(http.MethodPost, base+"/complete", api.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var completed struct {
		StorageKey string `json:"storageKey"`
		FileSize   int64  `json:"fileSize"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &completed))
	assert.Equal(t, session.StorageKey, completed.StorageKey)
	assert.Equal(t, int64(fileSize), completed.FileSize)

	rec, env = api.doJSON(http.MethodPost, base+"/complete", api.token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ALREADY_COMPLETED", env.Error.Code)
	assert.Equal(t, session.StorageKey, env.Error.Extra["storageKey"])

	rec, env = api.doJSON(http.MethodDelete, base, api.token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SESSION_NOT_ACTIVE", env.Error.Code)
}

func TestUploadRoutes_PartLargerThanChunkIsRejected(t *testing.T) {
	api := newTestAPI(t)
	session, _, _ := api.initiate("big.bin", 3*testChunkSize)

	rec, env := api.do(http.MethodPut, "/api/v1/uploads/"+session.SessionID+"/parts/1", api.token,
		bytes.NewReader(payload(testChunkSize+1, 1)), echo.MIMEOctetStream)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", env.Error.Code)
}

func TestUploadRoutes_InitiateValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name     string
		body     map[string]any
		wantCode string
		status   int
	}{
		{
			name:     "invalid file name",
			body:     map[string]any{"transferId": uuid.NewString(), "fileId": uuid.NewString(), "fileName": "..", "fileSize": 10},
			wantCode: "VALIDATION_ERROR",
			status:   http.StatusBadRequest,
		},
		{
			name:     "missing transfer id",
			body:     map[string]any{"fileId": uuid.NewString(), "fileName": "a.txt", "fileSize": 10},
			wantCode: "VALIDATION_ERROR",
			status:   http.StatusBadRequest,
		},
		{
			name:     "denied extension",
			body:     map[string]any{"transferId": uuid.NewString(), "fileId": uuid.NewString(), "fileName": "setup.exe", "fileSize": 10},
			wantCode: "UNSUPPORTED_FILE_TYPE",
			status:   http.StatusUnsupportedMediaType,
		},
		{
			name:     "too large",
			body:     map[string]any{"transferId": uuid.NewString(), "fileId": uuid.NewString(), "fileName": "a.txt", "fileSize": 2 << 20},
			wantCode: "VALIDATION_ERROR",
			status:   http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := api.doJSON(http.MethodPost, "/api/v1/uploads", api.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestUploadRoutes_MalformedBody(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(http.MethodPost, "/api/v1/uploads", api.token, bytes.NewBufferString(`{"fileName":`), echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
}

func TestUploadRoutes_OtherUserIsForbidden(t *testing.T) {
	api := newTestAPI(t)
	session, _, _ := api.initiate("report.pdf", 10)

	rec, env := api.doJSON(http.MethodGet, "/api/v1/uploads/"+session.SessionID, api.tokenFor(uuid.New()), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestUploadRoutes_AbortIsIdempotent(t *testing.T) {
	api := newTestAPI(t)
	session, _, _ := api.initiate("report.pdf", 2*testChunkSize)
	base := "/api/v1/uploads/" + session.SessionID

	rec, env := api.doJSON(http.MethodDelete, base, api.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first struct {
		Aborted bool `json:"aborted"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.True(t, first.Aborted)

	rec, env = api.doJSON(http.MethodDelete, base, api.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		Aborted bool `json:"aborted"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.False(t, second.Aborted)

	// 中断後のパーツ報告は拒否される
	rec, env = api.doJSON(http.MethodPost, base+"/parts", api.token, map[string]any{
		"partNumber": 1, "etag": "abc", "size": testChunkSize,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SESSION_NOT_ACTIVE", env.Error.Code)
}

func TestUploadRoutes_LookupWithoutActiveSession(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.doJSON(http.MethodGet,
		fmt.Sprintf("/api/v1/uploads/lookup?transferId=%s&fileId=%s", uuid.New(), uuid.New()), api.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SESSION_NOT_FOUND", env.Error.Code)
}
