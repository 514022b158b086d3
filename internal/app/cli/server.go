package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/interface/httpapi"
)

// ServerStartAction はHTTPゲートウェイを起動するコマンドのアクション
// シグナルで ctx がキャンセルされるとグレースフルシャットダウンする
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	port := appCtx.Config.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}

	router := httpapi.NewRouter(
		appCtx.Container.Registry,
		appCtx.Container.Index,
		httpapi.WithRouterLogger(appCtx.Logger()),
	)
	server := httpapi.NewServer(port, router.Handler(), appCtx.Config.Server.ShutdownTimeout, appCtx.Logger())

	return server.Run(ctx)
}
