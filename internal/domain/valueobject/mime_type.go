package valueobject

import (
	"errors"
	"strings"
)

var (
	ErrInvalidMimeType = errors.New("invalid MIME type")
)

// MimeType はクライアントが申告したMIMEタイプを表す値オブジェクト
type MimeType struct {
	value string
}

// NewMimeType は文字列からMimeTypeを生成します
func NewMimeType(mimeType string) (MimeType, error) {
	trimmed := strings.TrimSpace(mimeType)
	if trimmed == "" {
		return MimeType{}, ErrInvalidMimeType
	}

	// パラメータ部は形式チェックの対象外（例: text/plain; charset=utf-8）
	essence := trimmed
	if idx := strings.Index(essence, ";"); idx != -1 {
		essence = strings.TrimSpace(essence[:idx])
	}

	parts := strings.Split(essence, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return MimeType{}, ErrInvalidMimeType
	}

	return MimeType{value: strings.ToLower(trimmed)}, nil
}

// ReconstructMimeType はDBからMimeTypeを復元します
func ReconstructMimeType(value string) MimeType {
	return MimeType{value: value}
}

// Value は値を返します
func (m MimeType) Value() string {
	return m.value
}

// String は文字列を返します（Stringerインターフェース）
func (m MimeType) String() string {
	return m.value
}

// Essence はパラメータを除いた type/subtype を返します
func (m MimeType) Essence() string {
	if idx := strings.Index(m.value, ";"); idx != -1 {
		return strings.TrimSpace(m.value[:idx])
	}
	return m.value
}

// Type はMIMEタイプの主タイプを返します（例: "text", "image"）
func (m MimeType) Type() string {
	parts := strings.SplitN(m.Essence(), "/", 2)
	return parts[0]
}

// Equals は等価性を判定します
func (m MimeType) Equals(other MimeType) bool {
	return m.value == other.value
}

// MimeTypeOctetStream は種別不明のバイナリを表します
var MimeTypeOctetStream = MimeType{value: "application/octet-stream"}
