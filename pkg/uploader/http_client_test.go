package uploader_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webcoletivo/coletivosend/pkg/uploader"
)

type countingTokens struct {
	refreshes atomic.Int32
}

func (c *countingTokens) Token(context.Context) (string, error) {
	return "token-0", nil
}

func (c *countingTokens) Refresh(context.Context) (string, error) {
	n := c.refreshes.Add(1)
	return "token-" + string(rune('0'+n)), nil
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func newTestClient(t *testing.T, srv *httptest.Server, tokens uploader.TokenSource) *uploader.HTTPClient {
	t.Helper()
	c, err := uploader.NewHTTPClient(srv.URL, tokens, uploader.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestNewHTTPClient_RequiresAbsoluteURL(t *testing.T) {
	_, err := uploader.NewHTTPClient("/relative", uploader.StaticTokenSource("t"))
	assert.Error(t, err)

	_, err = uploader.NewHTTPClient("http://localhost:8080", nil)
	assert.Error(t, err)
}

func TestHTTPClient_InitiateUpload(t *testing.T) {
	transferID, fileID, sessionID := uuid.New(), uuid.New(), uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/uploads", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, transferID.String(), body["transferId"])
		assert.Equal(t, "a.txt", body["fileName"])

		writeData(w, http.StatusCreated, map[string]any{
			"sessionId":  sessionID.String(),
			"storageKey": "transfers/x/y",
			"chunkSize":  1024,
			"totalParts": 2,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, uploader.StaticTokenSource("secret"))
	s, err := c.InitiateUpload(context.Background(), uploader.InitiateRequest{
		TransferID: transferID,
		FileID:     fileID,
		FileName:   "a.txt",
		FileSize:   2000,
	})
	require.NoError(t, err)
	assert.Equal(t, sessionID, s.SessionID)
	assert.Equal(t, int64(1024), s.ChunkSize)
	assert.Equal(t, 2, s.TotalParts)
}

func TestHTTPClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":{"code":"INCOMPLETE_UPLOAD","message":"parts missing","extra":{"missingParts":[3]}}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, uploader.StaticTokenSource("t"))
	_, err := c.CompleteUpload(context.Background(), uuid.New())
	require.Error(t, err)

	e, ok := uploader.AsError(err)
	require.True(t, ok)
	assert.Equal(t, uploader.CodeIncompleteUpload, e.Code)
	assert.Equal(t, http.StatusConflict, e.StatusCode)
	assert.Equal(t, []any{float64(3)}, e.Extra["missingParts"])
	assert.False(t, e.Retryable())
}

func TestHTTPClient_StatusWithoutEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		retryable bool
	}{
		{name: "service unavailable", status: http.StatusServiceUnavailable, code: uploader.CodeTransientNetwork, retryable: true},
		{name: "too many requests", status: http.StatusTooManyRequests, code: uploader.CodeTransientNetwork, retryable: true},
		{name: "unauthorized", status: http.StatusUnauthorized, code: uploader.CodeUnauthorized},
		{name: "body too large", status: http.StatusRequestEntityTooLarge, code: uploader.CodePayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := newTestClient(t, srv, uploader.StaticTokenSource("t"))
			_, err := c.GetProgress(context.Background(), uuid.New())

			e, ok := uploader.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.retryable, e.Retryable())
		})
	}
}

func TestHTTPClient_ListUploadedParts(t *testing.T) {
	sessionID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/uploads/"+sessionID.String()+"/parts", r.URL.Path)
		writeData(w, http.StatusOK, map[string]any{"partNumbers": []int{1, 2, 4}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, uploader.StaticTokenSource("t"))
	parts, err := c.ListUploadedParts(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4}, parts)
}

func TestHTTPClient_UploadPart_Presigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, int64(5), r.ContentLength)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "hello", string(body))
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, uploader.StaticTokenSource("t"))
	target := &uploader.PartTarget{PartNumber: 1, Method: http.MethodPut, URL: srv.URL + "/bucket/key?X-Amz-Signature=s"}
	res, err := c.UploadPart(context.Background(), target, stringsReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, res.ETag)
	assert.False(t, res.Reported)
}

func TestHTTPClient_UploadPart_PresignedRejectionIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "<Error><Code>AccessDenied</Code></Error>")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, uploader.StaticTokenSource("t"))
	target := &uploader.PartTarget{PartNumber: 2, URL: srv.URL + "/bucket/key"}
	_, err := c.UploadPart(context.Background(), target, stringsReader("x"), 1)

	e, ok := uploader.AsError(err)
	require.True(t, ok)
	assert.Equal(t, uploader.CodeTransientNetwork, e.Code)
	assert.True(t, e.Retryable())
}

func TestHTTPClient_UploadPart_ProxyUsesCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/uploads/s/parts/1", r.URL.Path)
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		w.Header().Set("ETag", "etag-1")
		writeData(w, http.StatusOK, map[string]any{"partNumber": 1})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, uploader.StaticTokenSource("t"))
	target := &uploader.PartTarget{PartNumber: 1, Method: http.MethodPut, URL: "/api/v1/uploads/s/parts/1", Proxy: true}
	res, err := c.UploadPart(context.Background(), target, stringsReader("x"), 1)
	require.NoError(t, err)
	assert.Equal(t, "etag-1", res.ETag)
	assert.True(t, res.Reported)
}

func TestHTTPClient_UploadPart_RequiresETag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, uploader.StaticTokenSource("t"))
	_, err := c.UploadPart(context.Background(), &uploader.PartTarget{PartNumber: 1, URL: srv.URL}, stringsReader("x"), 1)
	assert.True(t, uploader.HasCode(err, uploader.CodeTransientNetwork))
}

func TestHTTPClient_RefreshCredentials(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tokens := &countingTokens{}
	c := newTestClient(t, srv, tokens)
	ctx := context.Background()

	require.NoError(t, c.AbortUpload(ctx, uuid.New()))
	require.NoError(t, c.RefreshCredentials(ctx))
	require.NoError(t, c.AbortUpload(ctx, uuid.New()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer token-0", "Bearer token-1"}, seen)
	assert.Equal(t, int32(1), tokens.refreshes.Load())
}

func TestHTTPClient_TransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv, uploader.StaticTokenSource("t"))
	srv.Close()

	_, err := c.GetProgress(context.Background(), uuid.New())
	assert.True(t, uploader.HasCode(err, uploader.CodeTransientNetwork))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.GetProgress(ctx, uuid.New())
	assert.True(t, uploader.HasCode(err, uploader.CodeCancelled))
}

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}
