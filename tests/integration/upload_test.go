//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/pkg/config"
	"github.com/webcoletivo/coletivosend/pkg/uploader"
	"github.com/webcoletivo/coletivosend/tests/testutil"
)

func initiateBody(size int) map[string]any {
	return map[string]any{
		"transferId": uuid.NewString(),
		"fileId":     uuid.NewString(),
		"fileName":   "video.bin",
		"fileSize":   size,
		"mimeType":   "application/octet-stream",
	}
}

func TestUpload_PresignedLifecycleWithClient(t *testing.T) {
	env := testutil.SetupTestEnvironment(t)
	ts := testutil.NewTestServer(t, env)
	ts.Cleanup(t, env)

	userID := uuid.New()
	client, err := uploader.NewHTTPClient(ts.HTTP.URL, uploader.StaticTokenSource(ts.Token(t, userID)))
	require.NoError(t, err)
	store := uploader.NewProgressStore(memfsForTest())
	o := uploader.New(client, store, uploader.DefaultConfig())

	content := bytes.Repeat([]byte("0123456789abcdef"), (11*1024*1024)/16)
	req := uploader.Request{
		TransferID: uuid.New(),
		FileID:     uuid.New(),
		FileName:   "video.bin",
		FileSize:   int64(len(content)),
	}

	result, err := o.UploadFile(context.Background(), bytes.NewReader(content), req, nil)
	require.NoError(t, err)
	assert.Equal(t, req.FileSize, result.Size)
	assert.Equal(t, content, readObject(t, env, result.StorageKey))

	session, err := ts.Container.UploadSessionRepo.FindByID(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, entity.UploadSessionStatusCompleted, session.Status)
	assert.Equal(t, 3, session.TotalParts)

	parts, err := ts.Container.UploadPartRepo.FindBySessionID(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Len(t, parts, 3)
}

func TestUpload_CompleteReportsMissingParts(t *testing.T) {
	env := testutil.SetupTestEnvironment(t)
	ts := testutil.NewTestServer(t, env)
	ts.Cleanup(t, env)
	token := ts.Token(t, uuid.New())

	resp := testutil.DoRequest(t, ts.Echo, testutil.HTTPRequest{
		Method:      http.MethodPost,
		Path:        "/api/v1/uploads",
		Body:        initiateBody(6 * 1024 * 1024),
		AccessToken: token,
	}).AssertStatus(http.StatusCreated)
	sessionID := resp.GetJSONData()["sessionId"].(string)

	testutil.DoRequest(t, ts.Echo, testutil.HTTPRequest{
		Method:      http.MethodPost,
		Path:        fmt.Sprintf("/api/v1/uploads/%s/complete", sessionID),
		AccessToken: token,
	}).
		AssertStatus(http.StatusConflict).
		AssertJSONError("INCOMPLETE_UPLOAD").
		AssertJSONPath("error.extra.missingParts", []any{float64(1), float64(2)})

	testutil.DoRequest(t, ts.Echo, testutil.HTTPRequest{
		Method:      http.MethodDelete,
		Path:        "/api/v1/uploads/" + sessionID,
		AccessToken: token,
	}).AssertStatus(http.StatusOK).AssertJSONPath("data.aborted", true)
}

func TestUpload_RevokedTokenIsRejected(t *testing.T) {
	env := testutil.SetupTestEnvironment(t)
	ts := testutil.NewTestServer(t, env)
	ts.Cleanup(t, env)

	token := ts.Token(t, uuid.New())
	claims, err := ts.Container.JWTService.ValidateAccessToken(token)
	require.NoError(t, err)
	require.NoError(t, ts.Container.JWTBlacklist.Revoke(context.Background(), claims.ID, claims.ExpiresAt.Time))

	testutil.DoRequest(t, ts.Echo, testutil.HTTPRequest{
		Method:      http.MethodPost,
		Path:        "/api/v1/uploads",
		Body:        initiateBody(1024),
		AccessToken: token,
	}).AssertStatus(http.StatusUnauthorized)
}

func TestUpload_InitiateIsRateLimited(t *testing.T) {
	env := testutil.SetupTestEnvironment(t)
	ts := testutil.NewTestServer(t, env, func(cfg *config.Config) {
		cfg.Upload.InitRateLimit = 1
		cfg.Upload.InitRateLimitSpan = time.Minute
	})
	ts.Cleanup(t, env)
	token := ts.Token(t, uuid.New())

	testutil.DoRequest(t, ts.Echo, testutil.HTTPRequest{
		Method:      http.MethodPost,
		Path:        "/api/v1/uploads",
		Body:        initiateBody(1024),
		AccessToken: token,
	}).AssertStatus(http.StatusCreated)

	testutil.DoRequest(t, ts.Echo, testutil.HTTPRequest{
		Method:      http.MethodPost,
		Path:        "/api/v1/uploads",
		Body:        initiateBody(1024),
		AccessToken: token,
	}).AssertStatus(http.StatusTooManyRequests)
}

func TestUpload_SweepAbortsExpiredSessions(t *testing.T) {
	env := testutil.SetupTestEnvironment(t)
	ts := testutil.NewTestServer(t, env, func(cfg *config.Config) {
		cfg.Upload.SessionTTL = 50 * time.Millisecond
	})
	ts.Cleanup(t, env)
	token := ts.Token(t, uuid.New())

	resp := testutil.DoRequest(t, ts.Echo, testutil.HTTPRequest{
		Method:      http.MethodPost,
		Path:        "/api/v1/uploads",
		Body:        initiateBody(1024),
		AccessToken: token,
	}).AssertStatus(http.StatusCreated)
	sessionID := uuid.MustParse(resp.GetJSONData()["sessionId"].(string))

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, ts.Container.Upload.ExpiryJob.Run(context.Background()))

	session, err := ts.Container.UploadSessionRepo.FindByID(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, entity.UploadSessionStatusAborted, session.Status)

	testutil.DoRequest(t, ts.Echo, testutil.HTTPRequest{
		Method:      http.MethodGet,
		Path:        fmt.Sprintf("/api/v1/uploads/%s/parts/1/target", sessionID),
		AccessToken: token,
	}).AssertStatus(http.StatusConflict).AssertJSONError("SESSION_NOT_ACTIVE")
}

func memfsForTest() billy.Filesystem {
	return memfs.New()
}
