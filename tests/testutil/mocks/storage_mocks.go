package mocks

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/webcoletivo/coletivosend/internal/domain/entity"
	"github.com/webcoletivo/coletivosend/internal/domain/service"
)

// MockMultipartStorage is a mock of service.MultipartStorage
type MockMultipartStorage struct {
	mock.Mock
}

func NewMockMultipartStorage(t *testing.T) *MockMultipartStorage {
	m := &MockMultipartStorage{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockMultipartStorage) Name() string {
	return "mock"
}

func (m *MockMultipartStorage) MinPartSize() int64 {
	return 1
}

func (m *MockMultipartStorage) CreateMultipartUpload(ctx context.Context, objectKey, contentType string) (string, error) {
	args := m.Called(ctx, objectKey, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockMultipartStorage) UploadPart(ctx context.Context, objectKey, uploadID string, partNumber int, body io.Reader, size int64) (string, error) {
	args := m.Called(ctx, objectKey, uploadID, partNumber, body, size)
	return args.String(0), args.Error(1)
}

func (m *MockMultipartStorage) PresignPartUpload(ctx context.Context, objectKey, uploadID string, partNumber int, expiry time.Duration) (*service.PresignedURL, error) {
	args := m.Called(ctx, objectKey, uploadID, partNumber, expiry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PresignedURL), args.Error(1)
}

func (m *MockMultipartStorage) CompleteMultipartUpload(ctx context.Context, objectKey, uploadID string, parts []entity.CompletedPart) error {
	args := m.Called(ctx, objectKey, uploadID, parts)
	return args.Error(0)
}

func (m *MockMultipartStorage) AbortMultipartUpload(ctx context.Context, objectKey, uploadID string) error {
	args := m.Called(ctx, objectKey, uploadID)
	return args.Error(0)
}

// MockFileTypeValidator is a mock of service.FileTypeValidator
type MockFileTypeValidator struct {
	mock.Mock
}

func NewMockFileTypeValidator(t *testing.T) *MockFileTypeValidator {
	m := &MockFileTypeValidator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockFileTypeValidator) Validate(fileName, mimeType string) error {
	args := m.Called(fileName, mimeType)
	return args.Error(0)
}
