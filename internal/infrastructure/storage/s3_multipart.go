package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/service"
)

// s3API はアダプタが利用するS3クライアントの操作
type s3API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// s3Presigner はパートアップロードURLの署名を行います
type s3Presigner interface {
	PresignUploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3MultipartAdapter はaws-sdk-go-v2でマルチパートアップロードを行います
type S3MultipartAdapter struct {
	client     s3API
	presigner  s3Presigner
	bucketName string
}

// NewS3MultipartAdapter は設定からS3クライアントを構築してアダプタを作成します。
// Endpointが指定された場合はパススタイルでS3互換ストレージに接続します。
func NewS3MultipartAdapter(ctx context.Context, cfg Config) (*S3MultipartAdapter, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.region()),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
			o.UsePathStyle = true
		}
	})

	return newS3MultipartAdapter(client, s3.NewPresignClient(client), cfg.BucketName), nil
}

func newS3MultipartAdapter(client s3API, presigner s3Presigner, bucketName string) *S3MultipartAdapter {
	return &S3MultipartAdapter{
		client:     client,
		presigner:  presigner,
		bucketName: bucketName,
	}
}

// Name はバックエンド名を返します
func (a *S3MultipartAdapter) Name() string {
	return BackendS3
}

// MinPartSize は最小パートサイズを返します
func (a *S3MultipartAdapter) MinPartSize() int64 {
	return s3MinPartSize
}

// Health はバケットへの到達性を確認します
func (a *S3MultipartAdapter) Health(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucketName)})
	return err
}

// CreateMultipartUpload はマルチパートアップロードを開始します
func (a *S3MultipartAdapter) CreateMultipartUpload(ctx context.Context, objectKey, contentType string) (string, error) {
	out, err := a.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(a.bucketName),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload: %w", err)
	}
	if out.UploadId == nil || *out.UploadId == "" {
		return "", errors.New("failed to create multipart upload: empty upload id")
	}
	return *out.UploadId, nil
}

// UploadPart はパートをアップロードしETagを返します。
// パートはチャンクサイズ以下のためメモリに読み込んでから送信します。
func (a *S3MultipartAdapter) UploadPart(ctx context.Context, objectKey, uploadID string, partNumber int, body io.Reader, size int64) (string, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(body, buf); err != nil {
		return "", fmt.Errorf("failed to read part %d: %w", partNumber, err)
	}

	out, err := a.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(a.bucketName),
		Key:           aws.String(objectKey),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(int32(partNumber)),
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", translateS3Error(err, fmt.Sprintf("failed to upload part %d", partNumber))
	}
	return aws.ToString(out.ETag), nil
}

// PresignPartUpload はパートアップロード用の署名付きPUT URLを生成します
func (a *S3MultipartAdapter) PresignPartUpload(ctx context.Context, objectKey, uploadID string, partNumber int, expiry time.Duration) (*service.PresignedURL, error) {
	req, err := a.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(a.bucketName),
		Key:        aws.String(objectKey),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(int32(partNumber)),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign part upload: %w", err)
	}

	method := req.Method
	if method == "" {
		method = http.MethodPut
	}
	return &service.PresignedURL{
		URL:       req.URL,
		Method:    method,
		ExpiresAt: time.Now().Add(expiry),
	}, nil
}

// CompleteMultipartUpload はマルチパートアップロードを完了します
func (a *S3MultipartAdapter) CompleteMultipartUpload(ctx context.Context, objectKey, uploadID string, parts []entity.CompletedPart) error {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(int32(p.PartNumber)),
			ETag:       aws.String(p.ETag),
		}
	}

	_, err := a.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(a.bucketName),
		Key:             aws.String(objectKey),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return translateS3Error(err, "failed to complete multipart upload")
	}
	return nil
}

// AbortMultipartUpload はマルチパートアップロードを中断します
func (a *S3MultipartAdapter) AbortMultipartUpload(ctx context.Context, objectKey, uploadID string) error {
	_, err := a.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(a.bucketName),
		Key:      aws.String(objectKey),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return translateS3Error(err, "failed to abort multipart upload")
	}
	return nil
}

// translateS3Error はAPIエラーコードをドメインエラーに変換します
func translateS3Error(err error, msg string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchUpload":
			return fmt.Errorf("%s: %w: %v", msg, service.ErrUploadNotFound, err)
		case "InvalidPart", "InvalidPartOrder", "EntityTooSmall":
			return fmt.Errorf("%s: %w: %v", msg, service.ErrInvalidPart, err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

var _ service.MultipartStorage = (*S3MultipartAdapter)(nil)
