package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/service"
)

// S3互換ストレージの最終パート以外の最小サイズ
const s3MinPartSize int64 = 5 * 1024 * 1024

// MinIOMultipartAdapter はminio-goの低レベルAPI (minio.Core) でマルチパートアップロードを行います
type MinIOMultipartAdapter struct {
	core   *minio.Core
	bucket string
}

// NewMinIOMultipartAdapter は接続を作成し、バケットがなければ作成します
func NewMinIOMultipartAdapter(ctx context.Context, cfg Config) (*MinIOMultipartAdapter, error) {
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.region(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := core.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.BucketName, err)
	}
	if !exists {
		if err := core.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.region()}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.BucketName, err)
		}
	}
	return &MinIOMultipartAdapter{core: core, bucket: cfg.BucketName}, nil
}

// Health はバケットに到達できるか確認します
func (a *MinIOMultipartAdapter) Health(ctx context.Context) error {
	_, err := a.core.BucketExists(ctx, a.bucket)
	return err
}

// Name はバックエンド名を返します
func (a *MinIOMultipartAdapter) Name() string {
	return BackendMinIO
}

// MinPartSize は最小パートサイズを返します
func (a *MinIOMultipartAdapter) MinPartSize() int64 {
	return s3MinPartSize
}

// CreateMultipartUpload はマルチパートアップロードを開始します
func (a *MinIOMultipartAdapter) CreateMultipartUpload(ctx context.Context, objectKey, contentType string) (string, error) {
	uploadID, err := a.core.NewMultipartUpload(ctx, a.bucket, objectKey, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload: %w", err)
	}
	return uploadID, nil
}

// UploadPart はパートをアップロードしETagを返します
func (a *MinIOMultipartAdapter) UploadPart(ctx context.Context, objectKey, uploadID string, partNumber int, body io.Reader, size int64) (string, error) {
	part, err := a.core.PutObjectPart(ctx, a.bucket, objectKey, uploadID, partNumber, body, size, minio.PutObjectPartOptions{})
	if err != nil {
		return "", translateMinIOError(err, fmt.Sprintf("failed to upload part %d", partNumber))
	}
	return part.ETag, nil
}

// PresignPartUpload はパートアップロード用の署名付きPUT URLを生成します
func (a *MinIOMultipartAdapter) PresignPartUpload(ctx context.Context, objectKey, uploadID string, partNumber int, expiry time.Duration) (*service.PresignedURL, error) {
	params := url.Values{}
	params.Set("uploadId", uploadID)
	params.Set("partNumber", strconv.Itoa(partNumber))

	u, err := a.core.Presign(ctx, http.MethodPut, a.bucket, objectKey, expiry, params)
	if err != nil {
		return nil, fmt.Errorf("failed to presign part upload: %w", err)
	}

	return &service.PresignedURL{
		URL:       u.String(),
		Method:    http.MethodPut,
		ExpiresAt: time.Now().Add(expiry),
	}, nil
}

// CompleteMultipartUpload はマルチパートアップロードを完了します
func (a *MinIOMultipartAdapter) CompleteMultipartUpload(ctx context.Context, objectKey, uploadID string, parts []entity.CompletedPart) error {
	completeParts := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completeParts[i] = minio.CompletePart{
			PartNumber: p.PartNumber,
			ETag:       p.ETag,
		}
	}

	_, err := a.core.CompleteMultipartUpload(ctx, a.bucket, objectKey, uploadID, completeParts, minio.PutObjectOptions{})
	if err != nil {
		return translateMinIOError(err, "failed to complete multipart upload")
	}
	return nil
}

// AbortMultipartUpload はマルチパートアップロードを中断します
func (a *MinIOMultipartAdapter) AbortMultipartUpload(ctx context.Context, objectKey, uploadID string) error {
	if err := a.core.AbortMultipartUpload(ctx, a.bucket, objectKey, uploadID); err != nil {
		return translateMinIOError(err, "failed to abort multipart upload")
	}
	return nil
}

// translateMinIOError はS3エラーコードをドメインエラーに変換します
func translateMinIOError(err error, msg string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchUpload":
		return fmt.Errorf("%s: %w: %v", msg, service.ErrUploadNotFound, err)
	case "InvalidPart", "InvalidPartOrder", "EntityTooSmall":
		return fmt.Errorf("%s: %w: %v", msg, service.ErrInvalidPart, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

var _ service.MultipartStorage = (*MinIOMultipartAdapter)(nil)
