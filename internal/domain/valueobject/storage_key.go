package valueobject

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	StorageKeyMaxBytes = 1024

	storageKeyPrefix = "transfers"
)

var (
	ErrInvalidStorageKey = errors.New("invalid storage key")
)

// StorageKey はオブジェクトストレージ内のキーを表す値オブジェクト
// 形式: transfers/{transfer_id}/{file_id}/{sanitized_file_name}
type StorageKey struct {
	value string
}

// NewStorageKey は転送ID、ファイルID、ファイル名からStorageKeyを導出します。
// 同じ入力からは常に同じキーが得られます。
func NewStorageKey(transferID, fileID uuid.UUID, fileName FileName) StorageKey {
	return StorageKey{
		value: fmt.Sprintf("%s/%s/%s/%s", storageKeyPrefix, transferID, fileID, fileName.Sanitized()),
	}
}

// NewStorageKeyFromString は文字列からStorageKeyを生成します
func NewStorageKeyFromString(key string) (StorageKey, error) {
	if key == "" {
		return StorageKey{}, fmt.Errorf("%w: empty key", ErrInvalidStorageKey)
	}
	if len(key) > StorageKeyMaxBytes {
		return StorageKey{}, fmt.Errorf("%w: key too long", ErrInvalidStorageKey)
	}
	if strings.HasPrefix(key, "/") {
		return StorageKey{}, fmt.Errorf("%w: absolute key", ErrInvalidStorageKey)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return StorageKey{}, fmt.Errorf("%w: bad segment %q", ErrInvalidStorageKey, segment)
		}
	}

	return StorageKey{value: key}, nil
}

// Value はキー文字列を返します
func (k StorageKey) Value() string {
	return k.value
}

// String はキー文字列を返します（Stringerインターフェース）
func (k StorageKey) String() string {
	return k.value
}

// IsEmpty はキーが空かどうかを判定します
func (k StorageKey) IsEmpty() bool {
	return k.value == ""
}
