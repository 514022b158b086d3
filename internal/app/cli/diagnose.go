package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/core/search"
)

// DefaultDiagnoseQuery は --query 未指定時の検索テストクエリ
const DefaultDiagnoseQuery = "What is this document about?"

const (
	sampleSize       = 3
	previewRunes     = 100
	fullPreviewRunes = 1000
	vectorPreview    = 5
)

// diagnoser は診断に必要な操作
type diagnoser struct {
	index     search.VectorIndex
	embed     func(ctx context.Context, text string) ([]float32, error)
	search    func(ctx context.Context, vector []float32, topK int) search.Outcome
	dimension int
	model     string
}

// DiagnoseAction はインデックスとEmbedding、検索の状態を診断する
func DiagnoseAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	query := cmd.String("query")
	full := cmd.Bool("full")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	c := appCtx.Container
	d := &diagnoser{
		index:     c.Index,
		embed:     c.Embedding.EmbedStrict,
		search:    c.Retriever.Search,
		dimension: c.Embedding.Dimension(),
		model:     c.Embedding.ModelName(),
	}
	return d.run(ctx, os.Stdout, query, full)
}

// run は各診断を順に実行する
// 個々の診断の失敗は出力して次に進み、最後にまとめてエラーを返す
func (d *diagnoser) run(ctx context.Context, out io.Writer, query string, full bool) error {
	if query == "" {
		query = DefaultDiagnoseQuery
	}
	limit := previewRunes
	if full {
		limit = fullPreviewRunes
	}

	failed := 0

	fmt.Fprintln(out, "=== Collection ===")
	stats, err := d.index.Stats(ctx)
	if err != nil {
		fmt.Fprintf(out, "Error getting collection stats: %v\n", err)
		failed++
	} else {
		fmt.Fprintf(out, "Name:       %s\n", stats.Name)
		fmt.Fprintf(out, "Backend:    %s\n", stats.Backend)
		fmt.Fprintf(out, "Dimension:  %d\n", stats.Dimension)
		fmt.Fprintf(out, "Chunks:     %d\n", stats.ChunkCount)
		fmt.Fprintf(out, "Documents:  %d\n", len(stats.Documents))
	}

	fmt.Fprintln(out, "\n=== Sample Documents ===")
	samples, err := d.index.Sample(ctx, sampleSize)
	if err != nil {
		fmt.Fprintf(out, "Error sampling documents: %v\n", err)
		failed++
	} else if len(samples) == 0 {
		fmt.Fprintln(out, "No documents found in the collection")
	} else {
		for i, r := range samples {
			fmt.Fprintf(out, "[%d] %s (%s)\n    %s\n", i+1, r.ChunkID, r.DocumentID, preview(r.Text, limit))
		}
	}

	fmt.Fprintln(out, "\n=== Embedding Test ===")
	vector, err := d.embed(ctx, query)
	if err != nil {
		fmt.Fprintf(out, "Error generating embedding: %v\n", err)
		failed++
	} else {
		fmt.Fprintf(out, "Model:      %s\n", d.model)
		fmt.Fprintf(out, "Dimension:  %d (expected %d)\n", len(vector), d.dimension)
		fmt.Fprintf(out, "First values: %v\n", vector[:min(vectorPreview, len(vector))])
	}

	fmt.Fprintln(out, "\n=== Search Test ===")
	fmt.Fprintf(out, "Query: %s\n", query)
	if vector == nil {
		fmt.Fprintln(out, "Skipped: no query embedding")
	} else {
		outcome := d.search(ctx, vector, search.DefaultTopK)
		fmt.Fprintf(out, "Mode: %s\n", outcome.Mode)
		if outcome.PrimaryErr != nil {
			fmt.Fprintf(out, "Nearest neighbor error: %v\n", outcome.PrimaryErr)
		}
		if outcome.FallbackErr != nil {
			fmt.Fprintf(out, "Fallback error: %v\n", outcome.FallbackErr)
			failed++
		}
		for i, r := range outcome.Results {
			fmt.Fprintf(out, "[%d] score=%.4f %s\n    %s\n", i+1, r.Score, r.DocumentID, preview(r.Text, limit))
		}
	}

	fmt.Fprintln(out, "\n=== Document Distribution ===")
	if stats == nil || len(stats.Documents) == 0 {
		fmt.Fprintln(out, "No documents indexed")
	} else {
		table := tablewriter.NewWriter(out)
		table.Header("Document ID", "Chunks")
		for _, doc := range stats.Documents {
			table.Append(doc.DocumentID, fmt.Sprintf("%d", doc.Chunks))
		}
		table.Render()
	}

	if failed > 0 {
		return fmt.Errorf("%d 件の診断に失敗しました", failed)
	}
	return nil
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
