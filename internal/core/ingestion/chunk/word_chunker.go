package chunk

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultChunkSize は1チャンクあたりの単語数のデフォルト値
	DefaultChunkSize = 500
	// DefaultOverlap は隣接チャンク間で共有する単語数のデフォルト値
	DefaultOverlap = 100
)

var (
	// ErrInvalidChunkSize はチャンクサイズが0以下の場合に返されます
	ErrInvalidChunkSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap はオーバーラップが負、またはチャンクサイズ以上の場合に返されます
	ErrInvalidOverlap = errors.New("overlap must be >= 0 and < chunk size")
)

// WordChunker は空白区切りの単語ウィンドウでテキストを分割します
type WordChunker struct {
	size    int
	overlap int
}

type wordChunkerOptions struct {
	size    int
	overlap int
}

// Option は WordChunker のオプション設定
type Option func(*wordChunkerOptions)

// WithChunkSize はチャンクサイズ（単語数）を上書きする
func WithChunkSize(size int) Option {
	return func(o *wordChunkerOptions) {
		o.size = size
	}
}

// WithOverlap はオーバーラップ（単語数）を上書きする
func WithOverlap(overlap int) Option {
	return func(o *wordChunkerOptions) {
		o.overlap = overlap
	}
}

// NewWordChunker は新しい WordChunker を作成します
// overlap >= size の場合はステップが進まないため生成時点でエラーにする
func NewWordChunker(opts ...Option) (*WordChunker, error) {
	options := wordChunkerOptions{
		size:    DefaultChunkSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.size <= 0 {
		return nil, fmt.Errorf("%w: size=%d", ErrInvalidChunkSize, options.size)
	}
	if options.overlap < 0 || options.overlap >= options.size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidOverlap, options.size, options.overlap)
	}

	return &WordChunker{
		size:    options.size,
		overlap: options.overlap,
	}, nil
}

// Split はテキストを単語ウィンドウ [i, i+size) に分割します
// i は size-overlap ずつ進み、最後のチャンクは size より短くなることがある
func (c *WordChunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{}
	}

	step := c.size - c.overlap
	chunks := make([]string, 0, len(words)/step+1)
	for i := 0; i < len(words); i += step {
		end := min(i+c.size, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}

	return chunks
}

// Size はチャンクサイズを返す
func (c *WordChunker) Size() int {
	return c.size
}

// Overlap はオーバーラップを返す
func (c *WordChunker) Overlap() int {
	return c.overlap
}
