package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// UploadAction はローカルファイルをドキュメントストレージへアップロードする
func UploadAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	bucket := cmd.String("bucket")

	filePath := cmd.Args().First()
	if filePath == "" {
		return fmt.Errorf("アップロードするファイルを指定してください")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Printf("Error: File %s not found\n", filePath)
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if bucket == "" {
		bucket = appCtx.Config.Storage.DefaultBucket
	}

	key, err := appCtx.Container.IngestService.Upload(ctx, bucket, filePath, data)
	if err != nil {
		fmt.Printf("Error uploading file: %v\n", err)
		return err
	}

	fmt.Printf("Successfully uploaded %s to %s/%s\n", filePath, bucket, key)
	return nil
}
