package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const apiPrefix = "/api/v1/uploads"

// TokenSource はアクセストークンを提供します
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Refresh は新しいトークンを取得します
	Refresh(ctx context.Context) (string, error)
}

// StaticTokenSource は固定トークンを返します。Refreshは同じトークンを返します。
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error)   { return string(s), nil }
func (s StaticTokenSource) Refresh(context.Context) (string, error) { return string(s), nil }

// HTTPClient はアップロードサーバーのHTTP APIを呼び出すAPI実装です
type HTTPClient struct {
	baseURL    *url.URL
	tokens     TokenSource
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// HTTPOption はHTTPClientのオプションです
type HTTPOption func(*HTTPClient)

// WithHTTPClient は使用するhttp.Clientを差し替えます
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// NewHTTPClient は新しいHTTPClientを作成します。baseURLはスキームとホストを含むサーバーのURLです。
func NewHTTPClient(baseURL string, tokens TokenSource, opts ...HTTPOption) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}
	c := &HTTPClient{
		baseURL:    u,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// InitiateUpload はセッションを開始します
func (c *HTTPClient) InitiateUpload(ctx context.Context, req InitiateRequest) (*Session, error) {
	var out Session
	if err := c.doJSON(ctx, http.MethodPost, apiPrefix, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LookupUpload は識別子からアクティブなセッションを検索します
func (c *HTTPClient) LookupUpload(ctx context.Context, transferID, fileID uuid.UUID) (*SessionProgress, error) {
	q := url.Values{}
	q.Set("transferId", transferID.String())
	q.Set("fileId", fileID.String())

	var out SessionProgress
	if err := c.doJSON(ctx, http.MethodGet, apiPrefix+"/lookup?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProgress はセッションの進捗を取得します
func (c *HTTPClient) GetProgress(ctx context.Context, sessionID uuid.UUID) (*SessionProgress, error) {
	var out SessionProgress
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListUploadedParts はアップロード済みのパーツ番号を昇順で返します
func (c *HTTPClient) ListUploadedParts(ctx context.Context, sessionID uuid.UUID) ([]int, error) {
	var out struct {
		PartNumbers []int `json:"partNumbers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(sessionID)+"/parts", nil, &out); err != nil {
		return nil, err
	}
	return out.PartNumbers, nil
}

// GetPartTarget はパーツのアップロード先を取得します
func (c *HTTPClient) GetPartTarget(ctx context.Context, sessionID uuid.UUID, partNumber int) (*PartTarget, error) {
	var out PartTarget
	path := fmt.Sprintf("%s/parts/%d/target", sessionPath(sessionID), partNumber)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadPart はパーツ本体を送信します。署名付きURLには認証ヘッダーを付けません。
func (c *HTTPClient) UploadPart(ctx context.Context, target *PartTarget, body io.Reader, size int64) (*PartUploadResult, error) {
	method := target.Method
	if method == "" {
		method = http.MethodPut
	}

	endpoint := target.URL
	if target.Proxy {
		endpoint = c.resolve(target.URL)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &Error{Code: CodeInvalidRequest, Message: "failed to create request", Err: err}
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	if target.Proxy {
		if err := c.authorize(ctx, req); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := responseError(resp)
		// 期限切れ等で署名付きURLが拒否された場合は新しいURLで再試行できる
		if !target.Proxy && resp.StatusCode == http.StatusForbidden {
			perr.Code = CodeTransientNetwork
			perr.Message = "presigned URL rejected"
		}
		return nil, perr
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return nil, &Error{Code: CodeTransientNetwork, Message: "upload response carried no ETag", StatusCode: resp.StatusCode}
	}
	return &PartUploadResult{ETag: etag, Reported: target.Proxy}, nil
}

// ReportPart はパーツの完了を報告します
func (c *HTTPClient) ReportPart(ctx context.Context, sessionID uuid.UUID, partNumber int, etag string, size int64) error {
	body := map[string]any{"partNumber": partNumber, "etag": etag, "size": size}
	return c.doJSON(ctx, http.MethodPost, sessionPath(sessionID)+"/parts", body, nil)
}

// CompleteUpload はアップロードを完了します
func (c *HTTPClient) CompleteUpload(ctx context.Context, sessionID uuid.UUID) (*CompleteResult, error) {
	var out CompleteResult
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(sessionID)+"/complete", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AbortUpload はアップロードを中断します
func (c *HTTPClient) AbortUpload(ctx context.Context, sessionID uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, sessionPath(sessionID), nil, nil)
}

// RefreshCredentials はトークンを更新します
func (c *HTTPClient) RefreshCredentials(ctx context.Context) error {
	token, err := c.tokens.Refresh(ctx)
	if err != nil {
		return &Error{Code: CodeUnauthorized, Message: "failed to refresh credentials", Err: err}
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &Error{Code: CodeInvalidRequest, Message: "failed to encode request", Err: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return &Error{Code: CodeInvalidRequest, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &Error{Code: CodeTransientNetwork, Message: "failed to decode response", StatusCode: resp.StatusCode, Err: err}
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &Error{Code: CodeTransientNetwork, Message: "failed to decode response data", StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *HTTPClient) authorize(ctx context.Context, req *http.Request) error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == "" {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return &Error{Code: CodeUnauthorized, Message: "failed to obtain credentials", Err: err}
		}
		c.mu.Lock()
		c.token = t
		c.mu.Unlock()
		token = t
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *HTTPClient) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return strings.TrimRight(c.baseURL.String(), "/") + path
	}
	return c.baseURL.ResolveReference(ref).String()
}

func sessionPath(sessionID uuid.UUID) string {
	return apiPrefix + "/" + sessionID.String()
}

func transportError(ctx context.Context, err error) *Error {
	if ctx.Err() != nil {
		return &Error{Code: CodeCancelled, Message: "request cancelled", Err: context.Cause(ctx)}
	}
	return &Error{Code: CodeTransientNetwork, Message: "network error", Err: err}
}

// responseError は非2xxレスポンスを*Errorに変換します
func responseError(resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Extra   map[string]any `json:"extra"`
		} `json:"error"`
	}
	e := &Error{StatusCode: resp.StatusCode}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Code != "" {
		e.Code = envelope.Error.Code
		e.Message = envelope.Error.Message
		e.Extra = envelope.Error.Extra
	}

	if e.Code == "" {
		e.Code = codeForStatus(resp.StatusCode)
		e.Message = strings.TrimSpace(string(raw))
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
	}
	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		e.Code = CodePayloadTooLarge
	}
	return e
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusNotFound:
		return CodeSessionNotFound
	case status == http.StatusRequestEntityTooLarge:
		return CodePayloadTooLarge
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return CodeTransientNetwork
	default:
		return fmt.Sprintf("HTTP_%d", status)
	}
}
