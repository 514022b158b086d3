package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/infra/invoke"
)

// askFunc はクエリに対して回答と参照ドキュメントを返す
type askFunc func(ctx context.Context, query string) (string, []string, error)

// AskAction は質問応答コマンドのアクション
// -q を省略した場合は対話モードで起動する
func AskAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	query := cmd.String("query")
	endpoint := cmd.String("endpoint")

	var ask askFunc
	if endpoint != "" {
		client := invoke.NewClient(endpoint)
		ask = func(ctx context.Context, query string) (string, []string, error) {
			result, err := client.Query(ctx, query)
			if err != nil {
				return "", nil, err
			}
			return result.Response, result.Sources, nil
		}
	} else {
		appCtx, err := NewAppContext(ctx, envFile)
		if err != nil {
			return err
		}
		defer appCtx.Close()

		svc := appCtx.Container.AskService
		ask = func(ctx context.Context, query string) (string, []string, error) {
			answer, err := svc.Ask(ctx, query)
			if err != nil {
				return "", nil, err
			}
			return answer.Response, answer.Sources, nil
		}
	}

	if query != "" {
		return askOnce(ctx, os.Stdout, ask, query)
	}
	return runInteractive(ctx, os.Stdin, os.Stdout, ask)
}

func askOnce(ctx context.Context, out io.Writer, ask askFunc, query string) error {
	fmt.Fprintf(out, "Query: %s\n", query)
	response, sources, err := ask(ctx, query)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return err
	}
	printAnswer(out, response, sources)
	return nil
}

// runInteractive は exit / quit が入力されるか入力が終わるまで質問を受け付ける
// 個々の質問の失敗ではループを抜けない
func runInteractive(ctx context.Context, in io.Reader, out io.Writer, ask askFunc) error {
	fmt.Fprintln(out, "RAG Query Tool (type 'exit' or 'quit' to end)")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nEnter your question: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "exit", "quit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "":
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		response, sources, err := ask(ctx, query)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		printAnswer(out, response, sources)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("入力の読み込みに失敗: %w", err)
	}
	fmt.Fprintln(out)
	return nil
}

func printAnswer(out io.Writer, response string, sources []string) {
	fmt.Fprintf(out, "\nAnswer:\n%s\n", response)
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(out, "\nSources:")
	for i, source := range sources {
		fmt.Fprintf(out, "[%d] %s\n", i+1, source)
	}
}
