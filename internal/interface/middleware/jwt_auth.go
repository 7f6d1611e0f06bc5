package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/webcoletivo/coletivosend/pkg/apperror"
	"github.com/webcoletivo/coletivosend/pkg/jwt"
	"github.com/webcoletivo/coletivosend/pkg/logger"
)

// TokenValidator はアクセストークンを検証します
type TokenValidator interface {
	ValidateAccessToken(token string) (*jwt.AccessTokenClaims, error)
}

// RevocationChecker は失効済みトークンを判定します
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// JWTAuthMiddleware はJWT認証ミドルウェアを提供します
type JWTAuthMiddleware struct {
	validator  TokenValidator
	revocation RevocationChecker
}

// NewJWTAuthMiddleware は新しいJWTAuthMiddlewareを作成します。revocationはnilでも構いません。
func NewJWTAuthMiddleware(validator TokenValidator, revocation RevocationChecker) *JWTAuthMiddleware {
	return &JWTAuthMiddleware{
		validator:  validator,
		revocation: revocation,
	}
}

// Authenticate は認証ミドルウェアを返します
func (m *JWTAuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Authorizationヘッダーを取得
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return apperror.NewUnauthorizedError("authorization header required")
			}

			// Bearer トークンを抽出
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				return apperror.NewUnauthorizedError("invalid authorization header format")
			}

			// トークンを検証
			claims, err := m.validator.ValidateAccessToken(strings.TrimSpace(token))
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					return apperror.NewTokenExpiredError()
				}
				return apperror.NewUnauthorizedError("invalid token")
			}

			ctx := c.Request().Context()

			// 失効チェック（Redis障害時は認証を通す）
			if m.revocation != nil {
				revoked, err := m.revocation.IsRevoked(ctx, claims.ID)
				if err != nil {
					logger.Warn(ctx, "token revocation check failed", "error", err)
				} else if revoked {
					return apperror.NewUnauthorizedError("token has been revoked")
				}
			}

			// コンテキストにユーザー情報を設定
			c.Set(ContextKeyUserID, claims.UserID)
			c.Set(ContextKeyTokenID, claims.ID)

			// リクエストコンテキストにも設定（ログ出力で使用）
			c.SetRequest(c.Request().WithContext(logger.ContextWithUserID(ctx, claims.UserID.String())))

			return next(c)
		}
	}
}
