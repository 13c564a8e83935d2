package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dwarvesf/zenz-bridge/internal/cli"
	"github.com/dwarvesf/zenz-bridge/internal/ledger"
	"github.com/dwarvesf/zenz-bridge/internal/relayer"
	"github.com/dwarvesf/zenz-bridge/internal/server"
	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

// backend runs commands in process against the relayer and ledger.
type backend struct {
	*relayer.Relayer
	*ledger.Ledger

	app *server.App
}

func (b *backend) Close() error {
	b.app.Logger.Sync()
	return b.app.Close()
}

func connect(ctx context.Context, runID string) (cli.Backend, error) {
	appConfig := config.New()
	log := logger.New(appConfig.Environment).With(map[string]string{"run_id": runID})

	app, err := server.NewApp(ctx, appConfig, log)
	if err != nil {
		return nil, err
	}
	return &backend{Relayer: app.Relayer, Ledger: app.Ledger, app: app}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand(connect).ExecuteContext(ctx)
	stop()

	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
