package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/macropower/sopsgate/pkg/log"
	"github.com/macropower/sopsgate/pkg/trace"
	"github.com/macropower/sopsgate/pkg/version"
)

const (
	cmdName = "sopsgate"
	cmdDesc = `Base64-normalize secrets and encrypt them with sops before they are committed.`
)

type RootArgs struct {
	LogLevel     string
	LogFormat    string
	OTLPEndpoint string
}

func NewRootArgs() *RootArgs {
	return &RootArgs{}
}

func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVar(&ra.LogLevel, "log-level", "info", fmt.Sprintf("Log level, one of: %s", log.AllLevels))
	cmd.PersistentFlags().
		StringVar(&ra.LogFormat, "log-format", "text", fmt.Sprintf("Log format, one of: %s", log.AllFormats))
	cmd.PersistentFlags().
		StringVar(&ra.OTLPEndpoint, "otlp-endpoint", "", "Export traces to an OTLP/gRPC collector")

	must(cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(log.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	))
	must(cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(log.AllLevels, cobra.ShellCompDirectiveNoFileComp),
	))
	must(cmd.RegisterFlagCompletionFunc("otlp-endpoint", cobra.NoFileCompletions))
}

// startTracing installs the OTLP exporter when an endpoint is configured.
// The returned function flushes pending spans.
func (ra *RootArgs) startTracing(ctx context.Context) (func(), error) {
	if ra.OTLPEndpoint == "" {
		return func() {}, nil
	}

	shutdown, err := trace.Setup(ctx, ra.OTLPEndpoint, version.GetVersion())
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	return func() {
		// The run context may already be canceled; spans still need flushing.
		err := shutdown(context.WithoutCancel(ctx))
		if err != nil {
			slog.Warn("flush traces", slog.Any("error", err))
		}
	}, nil
}

func NewRootCmd() *cobra.Command {
	args := NewRootArgs()
	encryptArgs := NewEncryptArgs(args)

	encryptCmd := NewEncryptCmd(encryptArgs)
	cmd := &cobra.Command{
		Use:               cmdName + " [files...]",
		Short:             cmdDesc,
		Example:           cmdExamples,
		PersistentPreRunE: setupLogging(args),
		Args:              encryptCmd.Args,
		RunE:              encryptCmd.RunE,
	}

	args.AddFlags(cmd)
	encryptArgs.AddFlags(cmd)
	cmd.AddCommand(
		encryptCmd,
		NewWatchCmd(NewWatchArgs(args)),
		NewSchemaCmd(),
	)

	bindEnvVars(cmd)

	return cmd
}

func setupLogging(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		logHandler, err := log.NewHandler(cmd.ErrOrStderr(), ra.LogLevel, ra.LogFormat)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		slog.SetDefault(slog.New(logHandler))

		return nil
	}
}
