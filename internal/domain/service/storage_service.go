package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
)

// ストレージ関連エラー
var (
	// ErrUploadNotFound はストレージがアップロードIDを認識していない場合のエラー
	ErrUploadNotFound = errors.New("multipart upload not found in storage")
	// ErrPresignUnsupported はバックエンドが署名付きURLを発行できない場合のエラー
	ErrPresignUnsupported = errors.New("presigned part upload not supported")
	// ErrInvalidPart は完了時に指定されたパーツがストレージ上の内容と一致しない場合のエラー
	ErrInvalidPart = errors.New("invalid part")
)

// PresignedURL は署名付きURL情報を表します
type PresignedURL struct {
	URL       string
	Method    string
	ExpiresAt time.Time
}

// MultipartStorage はマルチパートアップロードを扱うストレージのドメインサービスインターフェースです。
// 実装はプロセス起動時に設定から一度だけ選択されます。
type MultipartStorage interface {
	// Name はバックエンド名を返します（minio, s3, local）
	Name() string

	// MinPartSize は最終パート以外のパートに要求される最小サイズを返します
	MinPartSize() int64

	// マルチパートアップロード開始
	CreateMultipartUpload(ctx context.Context, objectKey, contentType string) (uploadID string, err error)

	// パートアップロード（サーバー経由の経路）
	UploadPart(ctx context.Context, objectKey, uploadID string, partNumber int, body io.Reader, size int64) (etag string, err error)

	// パートアップロード用の署名付きURL生成
	PresignPartUpload(ctx context.Context, objectKey, uploadID string, partNumber int, expiry time.Duration) (*PresignedURL, error)

	// マルチパートアップロード完了（パート番号昇順）
	CompleteMultipartUpload(ctx context.Context, objectKey, uploadID string, parts []entity.CompletedPart) error

	// マルチパートアップロード中断
	AbortMultipartUpload(ctx context.Context, objectKey, uploadID string) error
}

// FileTypeValidator はアップロード可能なファイル種別かどうかを検証します
type FileTypeValidator interface {
	Validate(fileName, mimeType string) error
}
