package valueobject

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	FileNameMaxBytes = 255

	// fallbackSanitizedName はサニタイズ後に何も残らなかった場合の名前
	fallbackSanitizedName = "file"
)

var (
	ErrFileNameEmpty          = errors.New("file name cannot be empty")
	ErrFileNameTooLong        = errors.New("file name too long")
	ErrFileNameForbiddenChars = errors.New("file name contains forbidden characters")
	ErrFileNameReserved       = errors.New("file name is reserved")
)

// forbiddenFileChars はファイル名に使用できない文字。
// パス区切りは元の名前として保持し、ストレージキーではサニタイズで取り除く。
var forbiddenFileChars = []string{"\x00"}

// FileName はアップロードされるファイルの元の名前を表す値オブジェクト
type FileName struct {
	value string
}

// NewFileName は文字列からFileNameを生成します
func NewFileName(name string) (FileName, error) {
	trimmed := strings.TrimSpace(name)

	if trimmed == "" {
		return FileName{}, ErrFileNameEmpty
	}

	if trimmed == "." || trimmed == ".." {
		return FileName{}, ErrFileNameReserved
	}

	if utf8.RuneCountInString(trimmed) > FileNameMaxBytes {
		return FileName{}, ErrFileNameTooLong
	}

	for _, char := range forbiddenFileChars {
		if strings.Contains(trimmed, char) {
			return FileName{}, ErrFileNameForbiddenChars
		}
	}

	return FileName{value: trimmed}, nil
}

// ReconstructFileName はDBからFileNameを復元します
func ReconstructFileName(name string) FileName {
	return FileName{value: name}
}

// Value は値を返します
func (fn FileName) Value() string {
	return fn.value
}

// String は文字列を返します（Stringerインターフェース）
func (fn FileName) String() string {
	return fn.value
}

// Extension は拡張子を小文字で返します（ドット付き）
func (fn FileName) Extension() string {
	return strings.ToLower(filepath.Ext(fn.value))
}

// Sanitized はストレージキーに使える形へ変換した名前を返します。
// 英数字と . - _ 以外の文字は取り除かれ、先頭のドットも除去されます。
func (fn FileName) Sanitized() string {
	return SanitizeFileName(fn.value)
}

// SanitizeFileName は任意の文字列をストレージキー用の名前に変換します
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}

	sanitized := strings.TrimLeft(b.String(), ".")
	if sanitized == "" {
		return fallbackSanitizedName
	}
	return sanitized
}
