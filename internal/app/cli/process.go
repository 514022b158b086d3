package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/infra/invoke"
	"github.com/jinford/doc-rag/internal/interface/function"
)

// ProcessAction は取り込みトリガーを同期的に呼び出してドキュメントを処理する
// --endpoint を指定した場合はゲートウェイ経由で呼び出す
func ProcessAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	functionName := cmd.String("function")
	endpoint := cmd.String("endpoint")
	bucket := cmd.String("bucket")

	key := cmd.Args().First()
	if key == "" {
		return fmt.Errorf("処理するドキュメントのキーを指定してください")
	}

	var invoker invoke.Invoker
	if endpoint != "" {
		invoker = invoke.NewClient(endpoint)
	} else {
		appCtx, err := NewAppContext(ctx, envFile)
		if err != nil {
			return err
		}
		defer appCtx.Close()
		invoker = invoke.NewLocal(appCtx.Container.Registry)
	}

	return processDocument(ctx, os.Stdout, invoker, functionName, bucket, key)
}

func processDocument(ctx context.Context, out io.Writer, invoker invoke.Invoker, functionName, bucket, key string) error {
	if functionName == "" {
		functionName = function.IngestFunction
	}

	event := map[string]string{"key": key}
	if bucket != "" {
		event["bucket"] = bucket
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("イベントのエンコードに失敗: %w", err)
	}

	fmt.Fprintf(out, "Processing document: %s\n", key)

	resp, err := invoker.Invoke(ctx, functionName, payload)
	if err != nil {
		fmt.Fprintf(out, "Error invoking function: %v\n", err)
		return err
	}

	fmt.Fprintf(out, "Status: %d\n", resp.StatusCode)
	fmt.Fprintf(out, "Response: %s\n", resp.Body)
	if resp.StatusCode != 200 {
		return fmt.Errorf("ドキュメント処理に失敗しました (status %d)", resp.StatusCode)
	}
	return nil
}
