package ingestion

import (
	"regexp"
	"strings"
)

// DefaultKeyPrefix はドキュメントを配置するキーのプレフィックス
const DefaultKeyPrefix = "docs/"

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// NormalizeKey はキーが prefix で始まっていなければ付与する
func NormalizeKey(key, prefix string) string {
	if prefix == "" || strings.HasPrefix(key, prefix) {
		return key
	}
	return prefix + key
}

// DocumentID はストレージキーからドキュメントIDを生成する
// 英数字以外の文字はすべて "_" に置き換える（例: docs/report.pdf → docs_report_pdf）
func DocumentID(key string) string {
	return nonAlphanumeric.ReplaceAllString(key, "_")
}

// IndexReport はチャンク登録の結果
type IndexReport struct {
	DocumentID string
	Chunks     int
	Indexed    int
	Failed     int
}

// IngestResult は1ドキュメントの取り込み結果
type IngestResult struct {
	Bucket     string
	Key        string
	DocumentID string
	Report     IndexReport
}
