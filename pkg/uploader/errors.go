package uploader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// エラーコード。サーバー由来のコードはpkg/apperrorと同じ値を使います。
const (
	CodeTransientNetwork = "TRANSIENT_NETWORK_ERROR"
	CodePaused           = "PAUSED"
	CodeCancelled        = "CANCELLED"
	CodeInProgress       = "UPLOAD_IN_PROGRESS"
	CodeInvalidRequest   = "INVALID_REQUEST"

	CodeUnauthorized     = "UNAUTHORIZED"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeForbidden        = "FORBIDDEN"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodeSessionExpired   = "SESSION_EXPIRED"
	CodeSessionNotActive = "SESSION_NOT_ACTIVE"
	CodeAlreadyCompleted = "ALREADY_COMPLETED"
	CodeIncompleteUpload = "INCOMPLETE_UPLOAD"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
)

// Error はアップロード失敗を表す型付きエラーです
type Error struct {
	Code       string
	Message    string
	PartNumber int // パーツ単位の失敗の場合のみ
	StatusCode int // HTTPレスポンス由来の場合のみ
	Extra      map[string]any
	Err        error
}

func (e *Error) Error() string {
	msg := e.Code + ": " + e.Message
	if e.PartNumber > 0 {
		msg = fmt.Sprintf("%s (part %d)", msg, e.PartNumber)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable は自動リトライの対象かどうかを返します
func (e *Error) Retryable() bool {
	if e.Code == CodeTransientNetwork {
		return true
	}
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// authFailure は資格情報の更新で回復し得る失敗かどうかを返します
func (e *Error) authFailure() bool {
	return e.Code == CodeUnauthorized || e.Code == CodeTokenExpired
}

// sessionGone はセッションを作り直すべき失敗かどうかを返します。
// FORBIDDEN は資格情報の取り違えを示すため含めません。
func (e *Error) sessionGone() bool {
	switch e.Code {
	case CodeSessionNotFound, CodeSessionExpired, CodeSessionNotActive:
		return true
	}
	return false
}

// AsError はerrから*Errorを取り出します
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode はerrが指定コードの*Errorかどうかを判定します
func HasCode(err error, code string) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// toError は任意のエラーを*Errorに正規化します
func toError(err error) *Error {
	if e, ok := AsError(err); ok {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeCancelled, Message: "operation cancelled", Err: err}
	}
	return &Error{Code: CodeTransientNetwork, Message: "request failed", Err: err}
}

func withPart(err *Error, partNumber int) *Error {
	if partNumber <= 0 || err.PartNumber == partNumber {
		return err
	}
	cp := *err
	cp.PartNumber = partNumber
	return &cp
}
