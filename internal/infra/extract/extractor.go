package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"github.com/ledongthuc/pdf"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

var (
	// ErrUnsupportedType は抽出に対応していない拡張子の場合のエラー
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrBinaryContent はテキストとして扱う拡張子なのに中身がバイナリの場合のエラー
	ErrBinaryContent = errors.New("binary content in text document")
)

// Extractor はキーの拡張子に応じてテキストを抽出する
// .txt / .md はそのまま、.pdf はページごとのプレーンテキストを連結する
type Extractor struct{}

// NewExtractor は新しい Extractor を作成する
func NewExtractor() *Extractor {
	return &Extractor{}
}

var _ ingestion.TextExtractor = (*Extractor)(nil)

// Supported は key が抽出可能な拡張子かどうかを返す
func Supported(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".txt", ".md", ".markdown", ".pdf":
		return true
	default:
		return false
	}
}

// Extract は key の拡張子に応じて data からテキストを取り出す
func (e *Extractor) Extract(key string, data []byte) (string, error) {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return extractPDF(data)
	case ".txt", ".md", ".markdown":
		return extractText(key, data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, key)
	}
}

func extractText(key string, data []byte) (string, error) {
	if enry.IsBinary(data) {
		return "", fmt.Errorf("%w: %s", ErrBinaryContent, key)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
