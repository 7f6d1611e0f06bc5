package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	ContextKeyUserID  = "user_id"
	ContextKeyTokenID = "token_id"
)

// GetUserID はコンテキストから認証済みユーザーIDを取得します。未認証の場合はuuid.Nilです。
func GetUserID(c echo.Context) uuid.UUID {
	if id, ok := c.Get(ContextKeyUserID).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetTokenID はコンテキストからアクセストークンのIDを取得します
func GetTokenID(c echo.Context) string {
	if id, ok := c.Get(ContextKeyTokenID).(string); ok {
		return id
	}
	return ""
}

// SetUserID はコンテキストにユーザーIDを設定します
func SetUserID(c echo.Context, userID uuid.UUID) {
	c.Set(ContextKeyUserID, userID)
}
