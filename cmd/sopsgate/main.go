package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"

	"github.com/macropower/sopsgate/internal/cli"
	"github.com/macropower/sopsgate/pkg/version"
)

func main() {
	err := fang.Execute(context.Background(), cli.NewRootCmd(),
		fang.WithVersion(version.String()),
		fang.WithErrorHandler(cli.ErrorHandler),
		fang.WithColorSchemeFunc(cli.ColorSchemeFunc),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	)
	if err != nil {
		os.Exit(1)
	}
}
