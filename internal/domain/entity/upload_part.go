package entity

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// UploadPart はマルチパートアップロードの各パーツ情報エンティティ
type UploadPart struct {
	SessionID  uuid.UUID
	PartNumber int
	Size       int64
	ETag       string // ストレージが返却したETag
	UploadedAt time.Time
}

// NewUploadPart は新しいUploadPartを作成します
func NewUploadPart(
	sessionID uuid.UUID,
	partNumber int,
	size int64,
	etag string,
) *UploadPart {
	return &UploadPart{
		SessionID:  sessionID,
		PartNumber: partNumber,
		Size:       size,
		ETag:       etag,
		UploadedAt: time.Now(),
	}
}

// ReconstructUploadPart はDBからUploadPartを復元します
func ReconstructUploadPart(
	sessionID uuid.UUID,
	partNumber int,
	size int64,
	etag string,
	uploadedAt time.Time,
) *UploadPart {
	return &UploadPart{
		SessionID:  sessionID,
		PartNumber: partNumber,
		Size:       size,
		ETag:       etag,
		UploadedAt: uploadedAt,
	}
}

// CompletedPart は完了時にストレージへ渡すパート情報
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// UploadPartSet はセッションのパーツ一覧（パート番号昇順）
type UploadPartSet []*UploadPart

// NewUploadPartSet はパート番号の重複を後勝ちで除き、昇順に並べたセットを返します
func NewUploadPartSet(parts []*UploadPart) UploadPartSet {
	byNumber := make(map[int]*UploadPart, len(parts))
	for _, p := range parts {
		byNumber[p.PartNumber] = p
	}

	set := make(UploadPartSet, 0, len(byNumber))
	for _, p := range byNumber {
		set = append(set, p)
	}
	sort.Slice(set, func(i, j int) bool { return set[i].PartNumber < set[j].PartNumber })
	return set
}

// Numbers はアップロード済みのパート番号を昇順で返します
func (s UploadPartSet) Numbers() []int {
	numbers := make([]int, len(s))
	for i, p := range s {
		numbers[i] = p.PartNumber
	}
	return numbers
}

// TotalSize はアップロード済みバイト数の合計を返します
func (s UploadPartSet) TotalSize() int64 {
	var total int64
	for _, p := range s {
		total += p.Size
	}
	return total
}

// Missing は 1..totalParts のうち未アップロードのパート番号を返します
func (s UploadPartSet) Missing(totalParts int) []int {
	have := make(map[int]struct{}, len(s))
	for _, p := range s {
		have[p.PartNumber] = struct{}{}
	}

	missing := []int{}
	for n := 1; n <= totalParts; n++ {
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// Covers は 1..totalParts が欠けなく揃っているかを判定します
func (s UploadPartSet) Covers(totalParts int) bool {
	return len(s.Missing(totalParts)) == 0
}

// CompletedParts はパート番号順の完了用パート情報を返します
func (s UploadPartSet) CompletedParts() []CompletedPart {
	parts := make([]CompletedPart, len(s))
	for i, p := range s {
		parts[i] = CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag}
	}
	return parts
}
