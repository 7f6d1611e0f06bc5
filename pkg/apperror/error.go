package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode はエラーコードを表します
type ErrorCode string

const (
	CodeValidationError    ErrorCode = "VALIDATION_ERROR"
	CodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeConflict           ErrorCode = "CONFLICT"
	CodeRateLimitExceeded  ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInternalError      ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// アップロードセッション
	CodeSessionNotFound      ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionExpired       ErrorCode = "SESSION_EXPIRED"
	CodeSessionNotActive     ErrorCode = "SESSION_NOT_ACTIVE"
	CodeAlreadyCompleted     ErrorCode = "ALREADY_COMPLETED"
	CodeIncompleteUpload     ErrorCode = "INCOMPLETE_UPLOAD"
	CodeStorageInitError     ErrorCode = "STORAGE_INIT_ERROR"
	CodeStorageFinalizeError ErrorCode = "STORAGE_FINALIZE_ERROR"
	CodePayloadTooLarge      ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedFileType  ErrorCode = "UNSUPPORTED_FILE_TYPE"
)

// AppError はアプリケーションエラーを表します
type AppError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Details    []FieldError   `json:"details,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"`
}

// FieldError はフィールドエラーを表します
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error はerrorインターフェースを実装します
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap は元のエラーを返します
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError はバリデーションエラーを作成します
func NewValidationError(message string, details []FieldError) *AppError {
	return &AppError{
		Code:       CodeValidationError,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError は不正リクエストエラーを作成します
func NewInvalidRequestError(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewUnauthorizedError は認証エラーを作成します
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewTokenExpiredError はトークン期限切れエラーを作成します
func NewTokenExpiredError() *AppError {
	return &AppError{
		Code:       CodeTokenExpired,
		Message:    "token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbiddenError は権限エラーを作成します
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflictError は競合エラーを作成します
func NewConflictError(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewTooManyRequestsError はレート制限エラーを作成します
func NewTooManyRequestsError(message string) *AppError {
	return &AppError{
		Code:       CodeRateLimitExceeded,
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// NewInternalError は内部エラーを作成します
func NewInternalError(err error) *AppError {
	return &AppError{
		Code:       CodeInternalError,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewServiceUnavailableError はサービス利用不可エラーを作成します
func NewServiceUnavailableError(message string) *AppError {
	return &AppError{
		Code:       CodeServiceUnavailable,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// NewSessionNotFoundError はアップロードセッション不在エラーを作成します
func NewSessionNotFoundError() *AppError {
	return &AppError{
		Code:       CodeSessionNotFound,
		Message:    "upload session not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// NewSessionExpiredError はアップロードセッション期限切れエラーを作成します
func NewSessionExpiredError() *AppError {
	return &AppError{
		Code:       CodeSessionExpired,
		Message:    "upload session has expired",
		HTTPStatus: http.StatusGone,
	}
}

// NewSessionNotActiveError は非アクティブなセッションへの操作エラーを作成します
func NewSessionNotActiveError(status string) *AppError {
	return &AppError{
		Code:       CodeSessionNotActive,
		Message:    fmt.Sprintf("upload session is %s", status),
		Extra:      map[string]any{"status": status},
		HTTPStatus: http.StatusConflict,
	}
}

// NewAlreadyCompletedError は完了済みセッションへの再完了エラーを作成します
func NewAlreadyCompletedError(storageKey string, fileSize int64) *AppError {
	return &AppError{
		Code:       CodeAlreadyCompleted,
		Message:    "upload session already completed",
		Extra:      map[string]any{"storageKey": storageKey, "fileSize": fileSize},
		HTTPStatus: http.StatusConflict,
	}
}

// NewIncompleteUploadError は未アップロードのパーツがある場合のエラーを作成します
func NewIncompleteUploadError(missingParts []int) *AppError {
	return &AppError{
		Code:       CodeIncompleteUpload,
		Message:    fmt.Sprintf("%d part(s) missing", len(missingParts)),
		Extra:      map[string]any{"missingParts": missingParts},
		HTTPStatus: http.StatusConflict,
	}
}

// NewStorageInitError はマルチパートアップロード開始失敗エラーを作成します
func NewStorageInitError(err error) *AppError {
	return &AppError{
		Code:       CodeStorageInitError,
		Message:    "failed to initialize multipart upload",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewStorageFinalizeError はマルチパートアップロード完了失敗エラーを作成します
func NewStorageFinalizeError(err error) *AppError {
	return &AppError{
		Code:       CodeStorageFinalizeError,
		Message:    "failed to finalize multipart upload",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewPayloadTooLargeError はペイロード過大エラーを作成します
func NewPayloadTooLargeError(message string) *AppError {
	return &AppError{
		Code:       CodePayloadTooLarge,
		Message:    message,
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
}

// NewUnsupportedFileTypeError は許可されていないファイル種別のエラーを作成します
func NewUnsupportedFileTypeError(message string) *AppError {
	return &AppError{
		Code:       CodeUnsupportedFileType,
		Message:    message,
		HTTPStatus: http.StatusUnsupportedMediaType,
	}
}

// HasCode はエラーが特定のコードかどうかを判定します
func (e *AppError) HasCode(code ErrorCode) bool {
	return e.Code == code
}

// As はエラーチェーンからAppErrorを取り出します
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasErrorCode はエラーチェーンに指定コードのAppErrorが含まれるかを判定します
func HasErrorCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// IsNotFound はリソース不在エラーかどうかを判定します
func IsNotFound(err error) bool {
	return HasErrorCode(err, CodeNotFound) || HasErrorCode(err, CodeSessionNotFound)
}

// IsForbidden は権限エラーかどうかを判定します
func IsForbidden(err error) bool {
	return HasErrorCode(err, CodeForbidden)
}
