package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/webcoletivo/coletivosend/pkg/apperror"
)

// ErrorResponse はエラーレスポンス構造を定義します
type ErrorResponse struct {
	Error ErrorBody   `json:"error"`
	Meta  interface{} `json:"meta"`
}

// ErrorBody はエラー本体を定義します
type ErrorBody struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Details []apperror.FieldError `json:"details,omitempty"`
	Extra   map[string]any        `json:"extra,omitempty"`
}

// CustomHTTPErrorHandler はカスタムエラーハンドラーです
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		response := ErrorResponse{
			Error: ErrorBody{
				Code:    string(appErr.Code),
				Message: appErr.Message,
				Details: appErr.Details,
				Extra:   appErr.Extra,
			},
		}

		// 5xxはログ出力
		if appErr.HTTPStatus >= 500 {
			slog.Error("request failed",
				"request_id", GetRequestID(c),
				"code", appErr.Code,
				"error", appErr.Error(),
			)
		}

		_ = c.JSON(appErr.HTTPStatus, response)
		return
	}

	// Echo HTTPErrorの場合（ルーティング失敗、BodyLimit等）
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := echoErrorCode(he.Code)
		_ = c.JSON(he.Code, ErrorResponse{
			Error: ErrorBody{
				Code:    code,
				Message: fmt.Sprintf("%v", he.Message),
			},
		})
		return
	}

	// 未知のエラー
	slog.Error("unknown error",
		"request_id", GetRequestID(c),
		"error", err.Error(),
	)

	_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: ErrorBody{
			Code:    string(apperror.CodeInternalError),
			Message: "internal server error",
		},
	})
}

// echoErrorCode はEchoのステータスコードをエラーコードに変換します
func echoErrorCode(status int) string {
	switch status {
	case http.StatusRequestEntityTooLarge:
		return string(apperror.CodePayloadTooLarge)
	case http.StatusUnauthorized:
		return string(apperror.CodeUnauthorized)
	case http.StatusNotFound:
		return string(apperror.CodeNotFound)
	case http.StatusTooManyRequests:
		return string(apperror.CodeRateLimitExceeded)
	case http.StatusBadRequest:
		return string(apperror.CodeInvalidRequest)
	}
	return http.StatusText(status)
}
