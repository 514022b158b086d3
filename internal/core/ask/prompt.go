package ask

import (
	"fmt"
	"strings"

	"github.com/jinford/doc-rag/internal/core/search"
)

const (
	// NoContextMessage は検索結果が空の場合の回答
	NoContextMessage = "I couldn't find any relevant information to answer your question."

	fallbackPrefix    = "Based on the available information:\n\n"
	fallbackRuneLimit = 500
)

const promptTemplate = `I need you to answer a question based on the following context information.
Only use information from the provided context to answer the question.
If you don't know the answer or can't find it in the context, just say so.
Be concise and to the point.

Do not mention that you're using context information or that your knowledge is limited.
Just answer as if you know the information directly.

Context:
%s

Question: %s
`

// BuildContext はチャンク本文を順位順に空行区切りで連結する
func BuildContext(chunks []*search.Result) string {
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	return strings.Join(texts, "\n\n")
}

// BuildPrompt は回答生成用のプロンプトを構築する
func BuildPrompt(query, context string) string {
	return fmt.Sprintf(promptTemplate, context, query)
}

// FallbackAnswer は生成に失敗した場合にコンテキスト先頭から組み立てる回答
func FallbackAnswer(context string) string {
	runes := []rune(context)
	if len(runes) > fallbackRuneLimit {
		runes = runes[:fallbackRuneLimit]
	}
	return fallbackPrefix + string(runes) + "..."
}
