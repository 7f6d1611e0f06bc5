package valueobject

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewFileName_ValidName_ReturnsFileName(t *testing.T) {
	fn, err := NewFileName("report.pdf")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fn.Value() != "report.pdf" {
		t.Errorf("got %q, want %q", fn.Value(), "report.pdf")
	}
}

func TestNewFileName_EmptyString_ReturnsErrFileNameEmpty(t *testing.T) {
	_, err := NewFileName("   ")

	if err != ErrFileNameEmpty {
		t.Errorf("expected ErrFileNameEmpty, got: %v", err)
	}
}

func TestNewFileName_DotDot_ReturnsErrFileNameReserved(t *testing.T) {
	_, err := NewFileName("..")

	if err != ErrFileNameReserved {
		t.Errorf("expected ErrFileNameReserved, got: %v", err)
	}
}

func TestNewFileName_PathSeparators_KeepsOriginalName(t *testing.T) {
	for _, name := range []string{"a/b.txt", "../../etc/passwd", `..\..\boot.ini`} {
		fn, err := NewFileName(name)

		if err != nil {
			t.Fatalf("NewFileName(%q): unexpected error: %v", name, err)
		}
		if fn.Value() != name {
			t.Errorf("got %q, want %q", fn.Value(), name)
		}
	}
}

func TestNewFileName_NulByte_ReturnsErrFileNameForbiddenChars(t *testing.T) {
	_, err := NewFileName("a\x00b.txt")

	if err != ErrFileNameForbiddenChars {
		t.Errorf("expected ErrFileNameForbiddenChars, got: %v", err)
	}
}

func TestNewFileName_TooLong_ReturnsErrFileNameTooLong(t *testing.T) {
	_, err := NewFileName(strings.Repeat("a", FileNameMaxBytes+1))

	if err != ErrFileNameTooLong {
		t.Errorf("expected ErrFileNameTooLong, got: %v", err)
	}
}

func TestFileName_Extension_IsLowercased(t *testing.T) {
	fn, _ := NewFileName("Setup.EXE")

	if fn.Extension() != ".exe" {
		t.Errorf("got %q, want %q", fn.Extension(), ".exe")
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"my report (final).pdf", "myreportfinal.pdf"},
		{"relatório_2024-01.xlsx", "relatrio_2024-01.xlsx"},
		{"..hidden", "hidden"},
		{"日本語", "file"},
		{"...", "file"},
		{"../../etc/passwd", "etcpasswd"},
		{`..\..\boot.ini`, "boot.ini"},
		{"a/b.txt", "ab.txt"},
	}

	for _, tt := range tests {
		if got := SanitizeFileName(tt.in); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewStorageKey_Format(t *testing.T) {
	transferID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	fileID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	fn, _ := NewFileName("hello world.txt")

	key := NewStorageKey(transferID, fileID, fn)

	want := "transfers/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222/helloworld.txt"
	if key.Value() != want {
		t.Errorf("got %q, want %q", key.Value(), want)
	}
}

func TestNewStorageKey_SameInputs_SameKey(t *testing.T) {
	transferID, fileID := uuid.New(), uuid.New()
	fn, _ := NewFileName("video.mp4")

	first := NewStorageKey(transferID, fileID, fn)
	second := NewStorageKey(transferID, fileID, fn)

	if first.Value() != second.Value() {
		t.Errorf("expected identical keys, got %q and %q", first.Value(), second.Value())
	}
}

func TestNewStorageKey_TraversalNameStaysUnderFilePrefix(t *testing.T) {
	transferID, fileID := uuid.New(), uuid.New()
	fn, err := NewFileName("../../etc/passwd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key := NewStorageKey(transferID, fileID, fn)

	want := "transfers/" + transferID.String() + "/" + fileID.String() + "/etcpasswd"
	if key.Value() != want {
		t.Errorf("got %q, want %q", key.Value(), want)
	}
	if _, err := NewStorageKeyFromString(key.Value()); err != nil {
		t.Errorf("derived key failed validation: %v", err)
	}
}

func TestNewStorageKeyFromString_RejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "/abs/key", "a/../b", "a//b"} {
		if _, err := NewStorageKeyFromString(key); err == nil {
			t.Errorf("expected error for %q", key)
		}
	}
}

func TestNewMimeType_WithParameters_KeepsEssence(t *testing.T) {
	mt, err := NewMimeType("Text/Plain; charset=utf-8")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mt.Essence() != "text/plain" {
		t.Errorf("got %q, want %q", mt.Essence(), "text/plain")
	}
	if mt.Type() != "text" {
		t.Errorf("got %q, want %q", mt.Type(), "text")
	}
}

func TestNewMimeType_Invalid_ReturnsErr(t *testing.T) {
	for _, v := range []string{"", "plain", "/json", "text/"} {
		if _, err := NewMimeType(v); err != ErrInvalidMimeType {
			t.Errorf("NewMimeType(%q): expected ErrInvalidMimeType, got %v", v, err)
		}
	}
}
