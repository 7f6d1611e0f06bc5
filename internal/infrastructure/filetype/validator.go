// Package filetype はアップロード可能なファイル種別の判定を提供します
package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/webcoletivo/coletivosend/internal/domain/service"
	"github.com/webcoletivo/coletivosend/pkg/apperror"
)

// Config はファイル種別判定の設定を定義します
type Config struct {
	// DeniedExtensions は拒否する拡張子（".exe" 形式、大文字小文字は区別しない）
	DeniedExtensions []string
	// AllowedMimeTypes は許可するMIMEタイプ。空の場合は全て許可します。"image/*" のようなワイルドカードを使えます。
	AllowedMimeTypes []string
}

// Validator は拡張子とMIMEタイプによるファイル種別判定です
type Validator struct {
	deniedExtensions map[string]struct{}
	allowedMimeTypes []string
}

// NewValidator は新しいValidatorを作成します
func NewValidator(cfg Config) *Validator {
	denied := make(map[string]struct{}, len(cfg.DeniedExtensions))
	for _, ext := range cfg.DeniedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		denied[ext] = struct{}{}
	}

	allowed := make([]string, 0, len(cfg.AllowedMimeTypes))
	for _, m := range cfg.AllowedMimeTypes {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			allowed = append(allowed, m)
		}
	}

	return &Validator{deniedExtensions: denied, allowedMimeTypes: allowed}
}

// Validate はファイル名とMIMEタイプがアップロード可能かを判定します
func (v *Validator) Validate(fileName, mimeType string) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := v.deniedExtensions[ext]; ok {
		return apperror.NewUnsupportedFileTypeError(fmt.Sprintf("file extension %s is not allowed", ext))
	}

	if len(v.allowedMimeTypes) == 0 {
		return nil
	}

	essence := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	for _, allowed := range v.allowedMimeTypes {
		if matches(allowed, essence) {
			return nil
		}
	}
	return apperror.NewUnsupportedFileTypeError(fmt.Sprintf("mime type %s is not allowed", essence))
}

// matches は許可エントリと宣言されたMIMEタイプを比較します。
// 既知のMIMEタイプはエイリアス（例: application/x-zip-compressed と application/zip）も一致とみなします。
func matches(allowed, essence string) bool {
	if prefix, ok := strings.CutSuffix(allowed, "/*"); ok {
		return strings.HasPrefix(essence, prefix+"/")
	}
	if allowed == essence {
		return true
	}
	if known := mimetype.Lookup(allowed); known != nil {
		return known.Is(essence)
	}
	if known := mimetype.Lookup(essence); known != nil {
		return known.Is(allowed)
	}
	return false
}

var _ service.FileTypeValidator = (*Validator)(nil)
