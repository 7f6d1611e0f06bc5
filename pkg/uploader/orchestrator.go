// Package uploader はアップロードサーバーのセッションを使ってファイルをチャンク単位で送信するクライアントです。
//
// 一時停止やプロセス再起動をまたいだ再開に対応し、アップロード済みパーツはサーバーの記録を正とします。
package uploader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	errPaused    = errors.New("upload paused")
	errCancelled = errors.New("upload cancelled")
)

// Config はOrchestratorの設定です
type Config struct {
	Concurrency int           // 同時に送信するパーツ数 (default: 3)
	MaxRetries  int           // 一時的な失敗に対する操作ごとの最大リトライ回数 (default: 3)
	BaseDelay   time.Duration // バックオフの基準時間。attempt回目は BaseDelay × 2^(attempt-1) 待ちます (default: 500ms)
	Logger      *slog.Logger
}

// DefaultConfig はデフォルト設定を返します
func DefaultConfig() Config {
	return Config{
		Concurrency: 3,
		MaxRetries:  3,
		BaseDelay:   500 * time.Millisecond,
	}
}

// Request はアップロード対象のファイルです
type Request struct {
	TransferID uuid.UUID
	FileID     uuid.UUID
	FileName   string
	FileSize   int64
	// MimeType が空の場合は内容から判定します
	MimeType string
}

// Result は完了したアップロードです
type Result struct {
	SessionID  uuid.UUID
	StorageKey string
	Size       int64
}

// Orchestrator はファイルごとのアップロードを実行し、実行中のアップロードをファイルIDで管理します
type Orchestrator struct {
	api   API
	store *ProgressStore
	cfg   Config
	log   *slog.Logger
	now   func() time.Time

	mu      sync.Mutex
	uploads map[uuid.UUID]*Upload
}

// New は新しいOrchestratorを作成します。storeがnilの場合ローカルに進捗を保存しません。
func New(api API, store *ProgressStore, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		api:     api,
		store:   store,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		uploads: make(map[uuid.UUID]*Upload),
	}
}

// Upload は実行中のアップロードのハンドルです
type Upload struct {
	o      *Orchestrator
	req    Request
	src    io.ReaderAt
	cancel context.CancelCauseFunc

	progress  chan Progress
	publishMu sync.Mutex

	done   chan struct{}
	result *Result
	err    error

	mu        sync.Mutex
	sessionID uuid.UUID
	tracker   *tracker
}

// FileID はファイルIDを返します
func (u *Upload) FileID() uuid.UUID {
	return u.req.FileID
}

// SessionID はセッションIDを返します。セッション確定前はuuid.Nilです。
func (u *Upload) SessionID() uuid.UUID {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sessionID
}

// Progress は進捗通知のチャネルを返します。受信が遅れた場合は最新のスナップショットのみ残ります。
// アップロード終了後にクローズされます。
func (u *Upload) Progress() <-chan Progress {
	return u.progress
}

// Done はアップロード終了時にクローズされるチャネルを返します
func (u *Upload) Done() <-chan struct{} {
	return u.done
}

// Wait はアップロードの終了を待ちます
func (u *Upload) Wait() (*Result, error) {
	<-u.done
	return u.result, u.err
}

// Pause は実行中のリクエストを全て取り消します。サーバーのセッションは残り、後で再開できます。
func (u *Upload) Pause() {
	u.cancel(errPaused)
}

// Cancel はアップロードを取り消し、サーバーのセッションを中断してローカルの進捗を削除します。
// 既に完了している場合は何もしません。
func (u *Upload) Cancel(ctx context.Context) error {
	u.cancel(errCancelled)
	<-u.done
	if u.err == nil {
		return nil
	}
	return u.o.discard(ctx, u.req.FileID, u.SessionID())
}

func (u *Upload) setSession(sessionID uuid.UUID, tr *tracker) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sessionID = sessionID
	u.tracker = tr
}

// publish は受信側を待たずに進捗を通知します
func (u *Upload) publish(p Progress) {
	u.publishMu.Lock()
	defer u.publishMu.Unlock()

	select {
	case u.progress <- p:
	default:
		// 未受信の古いスナップショットを置き換える
		select {
		case <-u.progress:
		default:
		}
		select {
		case u.progress <- p:
		default:
		}
	}
}

// UploadFile はファイルをアップロードし、完了まで待ちます。onProgressは別のgoroutineで呼ばれます。
func (o *Orchestrator) UploadFile(ctx context.Context, src io.ReaderAt, req Request, onProgress func(Progress)) (*Result, error) {
	u, err := o.Start(ctx, src, req)
	if err != nil {
		return nil, err
	}

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for p := range u.Progress() {
			if onProgress != nil {
				onProgress(p)
			}
		}
	}()

	res, err := u.Wait()
	<-consumed
	return res, err
}

// Start はアップロードを開始してハンドルを返します。同じファイルIDのアップロードが実行中の場合は失敗します。
func (o *Orchestrator) Start(ctx context.Context, src io.ReaderAt, req Request) (*Upload, error) {
	if err := validateRequest(src, req); err != nil {
		return nil, err
	}
	if req.MimeType == "" {
		req.MimeType = detectMimeType(src, req.FileSize)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.uploads[req.FileID]; ok {
		return nil, &Error{Code: CodeInProgress, Message: "an upload for this file is already running"}
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	u := &Upload{
		o:        o,
		req:      req,
		src:      src,
		cancel:   cancel,
		progress: make(chan Progress, 1),
		done:     make(chan struct{}),
	}
	o.uploads[req.FileID] = u

	go func() {
		res, err := o.run(runCtx, u)
		o.finish(runCtx, u, res, err)
	}()
	return u, nil
}

// Pause は実行中のアップロードを一時停止します。該当が無い場合falseを返します。
func (o *Orchestrator) Pause(fileID uuid.UUID) bool {
	u := o.lookup(fileID)
	if u == nil {
		return false
	}
	u.Pause()
	return true
}

// Cancel はアップロードを取り消します。実行中でない場合もローカルの記録からサーバーのセッションを中断します。
func (o *Orchestrator) Cancel(ctx context.Context, fileID uuid.UUID) error {
	if u := o.lookup(fileID); u != nil {
		return u.Cancel(ctx)
	}

	var sessionID uuid.UUID
	if o.store != nil {
		rec, err := o.store.Load(fileID)
		if err != nil {
			return err
		}
		if rec != nil && rec.Status.resumable() {
			sessionID = rec.SessionID
		}
	}
	return o.discard(ctx, fileID, sessionID)
}

func (o *Orchestrator) lookup(fileID uuid.UUID) *Upload {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.uploads[fileID]
}

func (o *Orchestrator) run(ctx context.Context, u *Upload) (*Result, error) {
	req := u.req

	// 1. セッションを決定（再開または新規）
	session, uploaded, err := o.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	// 2. アップロード済みパーツを反映
	done := make(map[int]bool, len(uploaded))
	var doneBytes int64
	for _, n := range uploaded {
		if n < 1 || n > session.TotalParts || done[n] {
			continue
		}
		done[n] = true
		doneBytes += partSize(n, session.ChunkSize, req.FileSize)
	}
	tr := newTracker(req.FileID, session.SessionID, session.TotalParts, req.FileSize, o.now)
	tr.resumeFrom(len(done), doneBytes)
	u.setSession(session.SessionID, tr)

	started := tr.snapshot(StatusUploading)
	o.persist(u, started, nil)
	u.publish(started)

	// 3. 残りのパーツを上限付きで並行送信
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for n := 1; n <= session.TotalParts; n++ {
		if done[n] {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return o.uploadPart(gctx, u, session, n, tr)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}

	// 4. 完了
	var completed *CompleteResult
	err = o.withRetry(ctx, 0, func(ctx context.Context) error {
		r, err := o.api.CompleteUpload(ctx, session.SessionID)
		completed = r
		return err
	})
	if err != nil {
		e, ok := AsError(err)
		if !ok || e.Code != CodeAlreadyCompleted {
			return nil, err
		}
		// 前回の実行で完了済み
		completed = &CompleteResult{SessionID: session.SessionID, StorageKey: session.StorageKey, FileSize: req.FileSize}
		if key, ok := e.Extra["storageKey"].(string); ok && key != "" {
			completed.StorageKey = key
		}
	}

	return &Result{
		SessionID:  session.SessionID,
		StorageKey: completed.StorageKey,
		Size:       req.FileSize,
	}, nil
}

// resolveSession は再開可能なセッションがあればそれを、無ければ新しいセッションを返します
func (o *Orchestrator) resolveSession(ctx context.Context, req Request) (*Session, []int, error) {
	var candidate *SessionProgress

	if o.store != nil {
		rec, err := o.store.Load(req.FileID)
		if err != nil {
			o.log.Warn("ignoring unreadable progress record", "file_id", req.FileID, "error", err)
		}
		if rec != nil && rec.Status.resumable() && rec.SessionID != uuid.Nil && rec.FileSize == req.FileSize {
			err := o.withRetry(ctx, 0, func(ctx context.Context) error {
				p, err := o.api.GetProgress(ctx, rec.SessionID)
				candidate = p
				return err
			})
			if err != nil && !isSessionGone(err) {
				return nil, nil, err
			}
		}
	}

	// ローカルの記録から再開できない場合はサーバーに識別子で問い合わせる
	if !o.resumable(candidate, req) {
		candidate = nil
		err := o.withRetry(ctx, 0, func(ctx context.Context) error {
			p, err := o.api.LookupUpload(ctx, req.TransferID, req.FileID)
			candidate = p
			return err
		})
		if err != nil && !isSessionGone(err) {
			return nil, nil, err
		}
	}

	if o.resumable(candidate, req) {
		var parts []int
		err := o.withRetry(ctx, 0, func(ctx context.Context) error {
			p, err := o.api.ListUploadedParts(ctx, candidate.SessionID)
			parts = p
			return err
		})
		if err == nil {
			o.log.Info("resuming upload", "file_id", req.FileID, "session_id", candidate.SessionID, "uploaded_parts", len(parts))
			session := candidate.Session
			return &session, parts, nil
		}
		if !isSessionGone(err) {
			return nil, nil, err
		}
	}

	var session *Session
	err := o.withRetry(ctx, 0, func(ctx context.Context) error {
		s, err := o.api.InitiateUpload(ctx, InitiateRequest{
			TransferID: req.TransferID,
			FileID:     req.FileID,
			FileName:   req.FileName,
			FileSize:   req.FileSize,
			MimeType:   req.MimeType,
		})
		session = s
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	o.log.Info("upload session started", "file_id", req.FileID, "session_id", session.SessionID, "total_parts", session.TotalParts)
	return session, nil, nil
}

func (o *Orchestrator) resumable(p *SessionProgress, req Request) bool {
	return p != nil &&
		p.Status == "active" &&
		p.FileSize == req.FileSize &&
		p.ChunkSize > 0 &&
		p.ExpiresAt.After(o.now())
}

// uploadPart はパーツを送信して報告します
func (o *Orchestrator) uploadPart(ctx context.Context, u *Upload, s *Session, n int, tr *tracker) error {
	offset := int64(n-1) * s.ChunkSize
	size := partSize(n, s.ChunkSize, u.req.FileSize)

	var sent *PartUploadResult
	err := o.withRetry(ctx, n, func(ctx context.Context) error {
		target, err := o.api.GetPartTarget(ctx, s.SessionID, n)
		if err != nil {
			return err
		}
		r, err := o.api.UploadPart(ctx, target, io.NewSectionReader(u.src, offset, size), size)
		sent = r
		return err
	})
	if err != nil {
		return err
	}

	if !sent.Reported {
		err := o.withRetry(ctx, n, func(ctx context.Context) error {
			return o.api.ReportPart(ctx, s.SessionID, n, sent.ETag, size)
		})
		if err != nil {
			return err
		}
	}

	u.publish(tr.partDone(size))
	return nil
}

// withRetry は一時的な失敗を指数バックオフでリトライします。
// 認証失敗は一度だけ資格情報を更新して再試行し、リトライ回数には数えません。
func (o *Orchestrator) withRetry(ctx context.Context, partNumber int, op func(ctx context.Context) error) error {
	refreshed := false
	attempt := 0
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return &Error{Code: CodeCancelled, Message: "upload interrupted", PartNumber: partNumber, Err: context.Cause(ctx)}
		}

		e := toError(err)
		if e.authFailure() && !refreshed {
			refreshed = true
			if rerr := o.api.RefreshCredentials(ctx); rerr != nil {
				return withPart(toError(rerr), partNumber)
			}
			continue
		}
		if !e.Retryable() || attempt >= o.cfg.MaxRetries {
			return withPart(e, partNumber)
		}

		attempt++
		delay := o.cfg.BaseDelay << (attempt - 1)
		o.log.Debug("retrying after transient failure", "part", partNumber, "attempt", attempt, "delay", delay, "error", e)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &Error{Code: CodeCancelled, Message: "upload interrupted", PartNumber: partNumber, Err: context.Cause(ctx)}
		case <-timer.C:
		}
	}
}

// finish は終了状態を確定し、ローカルの記録と最終の進捗通知を行います
func (o *Orchestrator) finish(ctx context.Context, u *Upload, res *Result, err error) {
	status := StatusCompleted
	if err != nil {
		cause := context.Cause(ctx)
		switch {
		case errors.Is(cause, errCancelled):
			status = StatusCancelled
			err = &Error{Code: CodeCancelled, Message: "upload cancelled", Err: err}
		case errors.Is(cause, errPaused), ctx.Err() != nil:
			// 呼び出し側のコンテキスト終了も再開可能な一時停止として扱う
			status = StatusPaused
			err = &Error{Code: CodePaused, Message: "upload paused", Err: cause}
		default:
			status = StatusError
			err = toError(err)
		}
	}

	u.mu.Lock()
	tr := u.tracker
	u.mu.Unlock()

	final := Progress{FileID: u.req.FileID, TotalBytes: u.req.FileSize}
	if tr != nil {
		final = tr.snapshot(status)
	}
	final.Status = status
	final.Err = err

	if err != nil {
		o.log.Warn("upload stopped", "file_id", u.req.FileID, "session_id", final.SessionID, "status", status, "error", err)
	} else {
		o.log.Info("upload completed", "file_id", u.req.FileID, "session_id", res.SessionID, "storage_key", res.StorageKey)
	}
	o.persist(u, final, err)

	u.result, u.err = res, err
	u.publish(final)
	close(u.progress)

	o.mu.Lock()
	delete(o.uploads, u.req.FileID)
	o.mu.Unlock()

	u.cancel(nil)
	close(u.done)
}

// discard はサーバーのセッションを中断し、ローカルの記録を削除します
func (o *Orchestrator) discard(ctx context.Context, fileID, sessionID uuid.UUID) error {
	if sessionID != uuid.Nil {
		err := o.withRetry(ctx, 0, func(ctx context.Context) error {
			return o.api.AbortUpload(ctx, sessionID)
		})
		if err != nil && !HasCode(err, CodeSessionNotFound) {
			return err
		}
	}
	if o.store != nil {
		return o.store.Delete(fileID)
	}
	return nil
}

func (o *Orchestrator) persist(u *Upload, p Progress, cause error) {
	if o.store == nil {
		return
	}
	rec := Record{
		FileID:        u.req.FileID,
		TransferID:    u.req.TransferID,
		SessionID:     p.SessionID,
		FileName:      u.req.FileName,
		FileSize:      u.req.FileSize,
		TotalParts:    p.TotalParts,
		UploadedParts: p.UploadedParts,
		Status:        p.Status,
		UpdatedAt:     o.now(),
	}
	if cause != nil {
		rec.LastError = cause.Error()
	}
	if err := o.store.Save(rec); err != nil {
		o.log.Warn("failed to persist upload progress", "file_id", u.req.FileID, "error", err)
	}
}

func isSessionGone(err error) bool {
	e, ok := AsError(err)
	return ok && e.sessionGone()
}

func validateRequest(src io.ReaderAt, req Request) error {
	switch {
	case src == nil:
		return &Error{Code: CodeInvalidRequest, Message: "source is required"}
	case req.FileID == uuid.Nil:
		return &Error{Code: CodeInvalidRequest, Message: "file ID is required"}
	case req.TransferID == uuid.Nil:
		return &Error{Code: CodeInvalidRequest, Message: "transfer ID is required"}
	case strings.TrimSpace(req.FileName) == "":
		return &Error{Code: CodeInvalidRequest, Message: "file name is required"}
	case req.FileSize <= 0:
		return &Error{Code: CodeInvalidRequest, Message: "file size must be positive"}
	}
	return nil
}

// detectMimeType はファイル先頭からMIMEタイプを判定します。パラメータ部分は除きます。
func detectMimeType(src io.ReaderAt, size int64) string {
	m, err := mimetype.DetectReader(io.NewSectionReader(src, 0, size))
	if err != nil {
		return ""
	}
	essence, _, _ := strings.Cut(m.String(), ";")
	return strings.TrimSpace(essence)
}
