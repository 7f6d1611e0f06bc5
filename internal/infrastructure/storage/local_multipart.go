package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/service"
)

const (
	localUploadIDPrefix = "local-"
	localMultipartDir   = ".multipart"
	localObjectKeyFile  = "object"
)

// LocalMultipartAdapter はファイルシステム上でマルチパートアップロードを模倣します。
// パーツは .multipart/{uploadID}/ 配下に保存され、完了時に連結されます。
type LocalMultipartAdapter struct {
	fs billy.Filesystem
}

// NewLocalMultipartAdapter はルートディレクトリ配下を使うアダプタを作成します
func NewLocalMultipartAdapter(root string) (*LocalMultipartAdapter, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return NewLocalMultipartAdapterWithFS(osfs.New(root)), nil
}

// NewLocalMultipartAdapterWithFS は任意のbillyファイルシステムを使うアダプタを作成します
func NewLocalMultipartAdapterWithFS(fs billy.Filesystem) *LocalMultipartAdapter {
	return &LocalMultipartAdapter{fs: fs}
}

// Name はバックエンド名を返します
func (a *LocalMultipartAdapter) Name() string {
	return BackendLocal
}

// MinPartSize は最小パートサイズを返します（制約なし）
func (a *LocalMultipartAdapter) MinPartSize() int64 {
	return 1
}

// Health はルートディレクトリにアクセスできるかを確認します
func (a *LocalMultipartAdapter) Health(ctx context.Context) error {
	_, err := a.fs.ReadDir("/")
	return err
}

// CreateMultipartUpload は合成アップロードIDを発行し作業ディレクトリを作成します
func (a *LocalMultipartAdapter) CreateMultipartUpload(ctx context.Context, objectKey, contentType string) (string, error) {
	if err := validateObjectKey(objectKey); err != nil {
		return "", err
	}

	uploadID := localUploadIDPrefix + uuid.NewString()
	dir := a.uploadDir(uploadID)
	if err := a.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := util.WriteFile(a.fs, a.fs.Join(dir, localObjectKeyFile), []byte(objectKey), 0o644); err != nil {
		return "", fmt.Errorf("failed to record object key: %w", err)
	}
	return uploadID, nil
}

// UploadPart はパートを保存し、内容のMD5をETagとして返します
func (a *LocalMultipartAdapter) UploadPart(ctx context.Context, objectKey, uploadID string, partNumber int, body io.Reader, size int64) (string, error) {
	dir, err := a.openUpload(objectKey, uploadID)
	if err != nil {
		return "", err
	}

	tmpName := a.fs.Join(dir, strconv.Itoa(partNumber)+"."+uuid.NewString()+".tmp")
	f, err := a.fs.Create(tmpName)
	if err != nil {
		return "", fmt.Errorf("failed to create part file: %w", err)
	}

	hash := md5.New()
	written, copyErr := io.Copy(io.MultiWriter(f, hash), io.LimitReader(body, size+1))
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil && written != size {
		copyErr = fmt.Errorf("part %d size mismatch: expected %d bytes, got %d", partNumber, size, written)
	}
	if copyErr != nil {
		_ = a.fs.Remove(tmpName)
		return "", copyErr
	}

	etag := hex.EncodeToString(hash.Sum(nil))
	if err := util.WriteFile(a.fs, a.partETagPath(dir, partNumber), []byte(etag), 0o644); err != nil {
		return "", fmt.Errorf("failed to record part etag: %w", err)
	}
	_ = a.fs.Remove(a.partPath(dir, partNumber))
	if err := a.fs.Rename(tmpName, a.partPath(dir, partNumber)); err != nil {
		return "", fmt.Errorf("failed to store part: %w", err)
	}
	return etag, nil
}

// PresignPartUpload はローカルバックエンドでは利用できません
func (a *LocalMultipartAdapter) PresignPartUpload(ctx context.Context, objectKey, uploadID string, partNumber int, expiry time.Duration) (*service.PresignedURL, error) {
	return nil, service.ErrPresignUnsupported
}

// CompleteMultipartUpload はパーツを番号順に連結してオブジェクトを作成します
func (a *LocalMultipartAdapter) CompleteMultipartUpload(ctx context.Context, objectKey, uploadID string, parts []entity.CompletedPart) error {
	dir, err := a.openUpload(objectKey, uploadID)
	if err != nil {
		return err
	}

	for i, p := range parts {
		if i > 0 && p.PartNumber <= parts[i-1].PartNumber {
			return fmt.Errorf("%w: parts out of order", service.ErrInvalidPart)
		}
		stored, err := util.ReadFile(a.fs, a.partETagPath(dir, p.PartNumber))
		if err != nil {
			return fmt.Errorf("%w: part %d not uploaded", service.ErrInvalidPart, p.PartNumber)
		}
		if normalizeETag(string(stored)) != normalizeETag(p.ETag) {
			return fmt.Errorf("%w: part %d etag mismatch", service.ErrInvalidPart, p.PartNumber)
		}
	}

	if dirName := path.Dir(objectKey); dirName != "." {
		if err := a.fs.MkdirAll(dirName, 0o755); err != nil {
			return fmt.Errorf("failed to create object directory: %w", err)
		}
	}

	tmpObject := a.fs.Join(dir, "assembled.tmp")
	if err := a.assemble(tmpObject, dir, parts); err != nil {
		_ = a.fs.Remove(tmpObject)
		return err
	}
	_ = a.fs.Remove(objectKey)
	if err := a.fs.Rename(tmpObject, objectKey); err != nil {
		return fmt.Errorf("failed to publish object: %w", err)
	}

	return util.RemoveAll(a.fs, dir)
}

// AbortMultipartUpload は作業ディレクトリを削除します
func (a *LocalMultipartAdapter) AbortMultipartUpload(ctx context.Context, objectKey, uploadID string) error {
	dir, err := a.openUpload(objectKey, uploadID)
	if err != nil {
		return err
	}
	return util.RemoveAll(a.fs, dir)
}

func (a *LocalMultipartAdapter) assemble(target, dir string, parts []entity.CompletedPart) error {
	out, err := a.fs.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create object: %w", err)
	}
	defer out.Close()

	for _, p := range parts {
		in, err := a.fs.Open(a.partPath(dir, p.PartNumber))
		if err != nil {
			return fmt.Errorf("failed to open part %d: %w", p.PartNumber, err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return fmt.Errorf("failed to append part %d: %w", p.PartNumber, err)
		}
	}
	return out.Close()
}

// openUpload はアップロードIDの作業ディレクトリを検証して返します
func (a *LocalMultipartAdapter) openUpload(objectKey, uploadID string) (string, error) {
	if !strings.HasPrefix(uploadID, localUploadIDPrefix) {
		return "", fmt.Errorf("%w: %s", service.ErrUploadNotFound, uploadID)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(uploadID, localUploadIDPrefix)); err != nil {
		return "", fmt.Errorf("%w: %s", service.ErrUploadNotFound, uploadID)
	}

	dir := a.uploadDir(uploadID)
	recorded, err := util.ReadFile(a.fs, a.fs.Join(dir, localObjectKeyFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", service.ErrUploadNotFound, uploadID)
		}
		return "", fmt.Errorf("failed to read upload metadata: %w", err)
	}
	if string(recorded) != objectKey {
		return "", fmt.Errorf("%w: object key mismatch", service.ErrUploadNotFound)
	}
	return dir, nil
}

func (a *LocalMultipartAdapter) uploadDir(uploadID string) string {
	return a.fs.Join(localMultipartDir, uploadID)
}

func (a *LocalMultipartAdapter) partPath(dir string, partNumber int) string {
	return a.fs.Join(dir, strconv.Itoa(partNumber)+".part")
}

func (a *LocalMultipartAdapter) partETagPath(dir string, partNumber int) string {
	return a.fs.Join(dir, strconv.Itoa(partNumber)+".etag")
}

func validateObjectKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasPrefix(key, localMultipartDir) {
		return fmt.Errorf("invalid object key %q", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("invalid object key %q", key)
		}
	}
	return nil
}

func normalizeETag(etag string) string {
	return strings.Trim(strings.TrimSpace(etag), `"`)
}

var _ service.MultipartStorage = (*LocalMultipartAdapter)(nil)
