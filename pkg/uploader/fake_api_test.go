package uploader_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/pkg/uploader"
)

// fakeAPI はメモリ上でセッションとパーツを保持するAPI実装です
type fakeAPI struct {
	mu        sync.Mutex
	chunkSize int64

	sessions map[uuid.UUID]*fakeSession
	byFile   map[uuid.UUID]uuid.UUID

	inFlight    int
	maxInFlight int

	uploadAttempts map[int]int
	// uploadErrs はパーツ番号ごとに先頭から順に返すエラーです
	uploadErrs map[int][]error
	uploadHook func(ctx context.Context, partNumber int) error
	targetErrs []error
	completeErr error
	progressErr error
	lookups     int

	initiated int
	refreshes int
	aborted   []uuid.UUID
}

type fakeSession struct {
	session  uploader.Session
	fileSize int64
	status   string
	data     map[int][]byte
	reported map[int]bool
	content  []byte
}

func newFakeAPI(chunkSize int64) *fakeAPI {
	return &fakeAPI{
		chunkSize:      chunkSize,
		sessions:       make(map[uuid.UUID]*fakeSession),
		byFile:         make(map[uuid.UUID]uuid.UUID),
		uploadAttempts: make(map[int]int),
		uploadErrs:     make(map[int][]error),
	}
}

// seed は既存のアクティブなセッションを登録します
func (f *fakeAPI) seed(fileID uuid.UUID, content []byte, reported ...int) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.newSessionLocked(fileID, int64(len(content)))
	for _, n := range reported {
		start := int64(n-1) * f.chunkSize
		end := min(start+f.chunkSize, int64(len(content)))
		s.data[n] = append([]byte(nil), content[start:end]...)
		s.reported[n] = true
	}
	return s.session.SessionID
}

func (f *fakeAPI) newSessionLocked(fileID uuid.UUID, fileSize int64) *fakeSession {
	id := uuid.New()
	s := &fakeSession{
		session: uploader.Session{
			SessionID:  id,
			StorageKey: "uploads/" + id.String(),
			ChunkSize:  f.chunkSize,
			TotalParts: int((fileSize + f.chunkSize - 1) / f.chunkSize),
			ExpiresAt:  time.Now().Add(time.Hour),
		},
		fileSize: fileSize,
		status:   "active",
		data:     make(map[int][]byte),
		reported: make(map[int]bool),
	}
	f.sessions[id] = s
	f.byFile[fileID] = id
	return s
}

func (f *fakeAPI) session(id uuid.UUID) (*fakeSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, &uploader.Error{Code: uploader.CodeSessionNotFound, Message: "not found", StatusCode: http.StatusNotFound}
	}
	return s, nil
}

func (f *fakeAPI) InitiateUpload(_ context.Context, req uploader.InitiateRequest) (*uploader.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiated++
	s := f.newSessionLocked(req.FileID, req.FileSize)
	out := s.session
	return &out, nil
}

func (f *fakeAPI) LookupUpload(ctx context.Context, _, fileID uuid.UUID) (*uploader.SessionProgress, error) {
	f.mu.Lock()
	f.lookups++
	id, ok := f.byFile[fileID]
	f.mu.Unlock()
	if !ok {
		return nil, &uploader.Error{Code: uploader.CodeSessionNotFound, Message: "not found", StatusCode: http.StatusNotFound}
	}
	return f.GetProgress(ctx, id)
}

func (f *fakeAPI) GetProgress(_ context.Context, sessionID uuid.UUID) (*uploader.SessionProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progressErr != nil {
		return nil, f.progressErr
	}
	s, err := f.session(sessionID)
	if err != nil {
		return nil, err
	}
	return &uploader.SessionProgress{
		Session:       s.session,
		Status:        s.status,
		FileSize:      s.fileSize,
		UploadedParts: len(s.reported),
	}, nil
}

func (f *fakeAPI) ListUploadedParts(_ context.Context, sessionID uuid.UUID) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.session(sessionID)
	if err != nil {
		return nil, err
	}
	parts := make([]int, 0, len(s.reported))
	for n := range s.reported {
		parts = append(parts, n)
	}
	sort.Ints(parts)
	return parts, nil
}

func (f *fakeAPI) GetPartTarget(_ context.Context, sessionID uuid.UUID, partNumber int) (*uploader.PartTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.targetErrs) > 0 {
		err := f.targetErrs[0]
		f.targetErrs = f.targetErrs[1:]
		return nil, err
	}
	if _, err := f.session(sessionID); err != nil {
		return nil, err
	}
	return &uploader.PartTarget{PartNumber: partNumber, Method: http.MethodPut, URL: sessionID.String()}, nil
}

func (f *fakeAPI) UploadPart(ctx context.Context, target *uploader.PartTarget, body io.Reader, _ int64) (*uploader.PartUploadResult, error) {
	n := target.PartNumber

	f.mu.Lock()
	f.uploadAttempts[n]++
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	var injected error
	if errs := f.uploadErrs[n]; len(errs) > 0 {
		injected = errs[0]
		f.uploadErrs[n] = errs[1:]
	}
	hook := f.uploadHook
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if hook != nil {
		if err := hook(ctx, n); err != nil {
			return nil, err
		}
	}
	if injected != nil {
		return nil, injected
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.session(uuid.MustParse(target.URL))
	if err != nil {
		return nil, err
	}
	s.data[n] = data
	return &uploader.PartUploadResult{ETag: "etag-" + target.URL[:8]}, nil
}

func (f *fakeAPI) ReportPart(_ context.Context, sessionID uuid.UUID, partNumber int, _ string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.session(sessionID)
	if err != nil {
		return err
	}
	if s.status != "active" {
		return &uploader.Error{Code: uploader.CodeSessionNotActive, Message: "not active", StatusCode: http.StatusConflict}
	}
	s.reported[partNumber] = true
	return nil
}

func (f *fakeAPI) CompleteUpload(_ context.Context, sessionID uuid.UUID) (*uploader.CompleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	s, err := f.session(sessionID)
	if err != nil {
		return nil, err
	}
	if s.status == "completed" {
		return nil, &uploader.Error{
			Code:       uploader.CodeAlreadyCompleted,
			Message:    "already completed",
			StatusCode: http.StatusConflict,
			Extra:      map[string]any{"storageKey": s.session.StorageKey},
		}
	}

	var buf bytes.Buffer
	for n := 1; n <= s.session.TotalParts; n++ {
		if !s.reported[n] {
			return nil, &uploader.Error{Code: uploader.CodeIncompleteUpload, Message: "incomplete", StatusCode: http.StatusConflict}
		}
		buf.Write(s.data[n])
	}
	s.content = buf.Bytes()
	s.status = "completed"
	return &uploader.CompleteResult{SessionID: sessionID, StorageKey: s.session.StorageKey, FileSize: s.fileSize}, nil
}

func (f *fakeAPI) AbortUpload(_ context.Context, sessionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, sessionID)
	if s, ok := f.sessions[sessionID]; ok && s.status == "active" {
		s.status = "aborted"
	}
	return nil
}

func (f *fakeAPI) RefreshCredentials(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeAPI) snapshot(sessionID uuid.UUID) fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.sessions[sessionID]
}
