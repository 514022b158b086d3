package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/doc-rag/internal/app/cli"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "doc-rag",
		Usage: "ドキュメント取り込みと検索拡張生成による質問応答システム",
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "ローカルファイルをドキュメントストレージにアップロード",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "bucket",
						Usage: "アップロード先バケット（省略時は DOCUMENT_BUCKET）",
					},
				},
				Action: appcli.UploadAction,
			},
			{
				Name:      "process",
				Usage:     "取り込みトリガーを呼び出してドキュメントをインデックス化",
				ArgsUsage: "<key>",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "function",
						Usage: "呼び出す関数名",
						Value: "ingest",
					},
					&cli.StringFlag{
						Name:  "endpoint",
						Usage: "ゲートウェイのURL（省略時はプロセス内で実行）",
					},
					&cli.StringFlag{
						Name:  "bucket",
						Usage: "ドキュメントのバケット（省略時は DOCUMENT_BUCKET）",
					},
				},
				Action: appcli.ProcessAction,
			},
			{
				Name:  "ask",
				Usage: "質問に回答（-q 省略時は対話モード）",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "質問文",
					},
					&cli.StringFlag{
						Name:  "endpoint",
						Usage: "ゲートウェイのURL（省略時はプロセス内で実行）",
					},
				},
				Action: appcli.AskAction,
			},
			{
				Name:  "diagnose",
				Usage: "インデックス、Embedding、検索の状態を診断",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "query",
						Usage: "検索テストに使うクエリ",
					},
					&cli.BoolFlag{
						Name:  "full",
						Usage: "チャンク本文を長めに表示",
					},
				},
				Action: appcli.DiagnoseAction,
			},
			{
				Name:  "server",
				Usage: "HTTPゲートウェイ",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPゲートウェイを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "待ち受けポート（省略時は PORT）",
								Value: 8080,
							},
						},
						Action: appcli.ServerStartAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
