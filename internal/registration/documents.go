package registration

import (
	"strings"
	"time"
)

// DocumentCategory は審査書類の分類。
type DocumentCategory string

const (
	CategoryEducational  DocumentCategory = "educational"
	CategoryProfessional DocumentCategory = "professional"
	CategoryExperience   DocumentCategory = "experience"
	CategoryGovernment   DocumentCategory = "government"
)

// categoryMarkers は分類ごとの目印。書類の参照文字列に含まれていればその分類とみなす。
var categoryMarkers = []struct {
	category DocumentCategory
	marker   string
}{
	{CategoryEducational, "educational"},
	{CategoryProfessional, "professional"},
	{CategoryExperience, "experience"},
	{CategoryGovernment, "government"},
}

// CategorizeDocuments は分類ごとに最初に一致した書類を返す。
// どの分類にも一致しない書類は結果に含めない。
func CategorizeDocuments(documents []string) map[DocumentCategory]string {
	out := make(map[DocumentCategory]string)
	for _, cm := range categoryMarkers {
		for _, d := range documents {
			if strings.Contains(strings.ToLower(d), cm.marker) {
				out[cm.category] = d
				break
			}
		}
	}
	return out
}

// ReviewMetadata は審査リクエストのメタデータ。
type ReviewMetadata struct {
	Documents   map[DocumentCategory]string `json:"documents"`
	SubmittedAt string                      `json:"submitted_at"`
}

func newReviewMetadata(documents []string, now time.Time) ReviewMetadata {
	return ReviewMetadata{
		Documents:   CategorizeDocuments(documents),
		SubmittedAt: now.UTC().Format(time.RFC3339),
	}
}
