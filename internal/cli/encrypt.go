package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/macropower/sopsgate/pkg/diff"
	"github.com/macropower/sopsgate/pkg/log"
	"github.com/macropower/sopsgate/pkg/sops"
)

const (
	cmdExamples = `  # Encrypt the files staged for commit (as a pre-commit hook):
  sopsgate secrets/db.yaml secrets/api.yaml

  # Fail the hook when a file was changed, so it can be re-staged:
  sopsgate --exit-code secrets/db.yaml

  # Show what would be normalized, without encrypting anything:
  sopsgate --dry-run secrets/db.yaml

  # Use a specific sops binary and configuration:
  sopsgate --sops-command "/opt/bin/sops --verbose" --config deploy/.sops.yaml deploy/secrets.yaml

  # Encrypt files as they change:
  sopsgate watch ./secrets`
)

// ErrFilesModified is returned with --exit-code when any file was modified.
var ErrFilesModified = errors.New("files were modified")

type EncryptArgs struct {
	*SopsArgs

	DryRun   bool
	ExitCode bool
}

func NewEncryptArgs(rootArgs *RootArgs) *EncryptArgs {
	return &EncryptArgs{
		SopsArgs: &SopsArgs{RootArgs: rootArgs},
	}
}

func (ea *EncryptArgs) AddFlags(cmd *cobra.Command) {
	ea.SopsArgs.AddFlags(cmd)

	cmd.Flags().BoolVar(&ea.DryRun, "dry-run", false,
		"Print the normalization as a diff instead of encrypting")
	cmd.Flags().BoolVar(&ea.ExitCode, "exit-code", false,
		"Exit with a non-zero status when any file was modified")
}

func NewEncryptCmd(ea *EncryptArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "encrypt [files...]",
		Short:   "Default command, normalize and encrypt the given files",
		Example: cmdExamples,
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncrypt(cmd, ea, args)
		},
	}
	ea.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func runEncrypt(cmd *cobra.Command, ea *EncryptArgs, paths []string) error {
	ctx := cmd.Context()
	logger := log.WithContext(ctx)

	if len(paths) == 0 {
		logger.DebugContext(ctx, "no files given")

		return nil
	}

	stopTracing, err := ea.startTracing(ctx)
	if err != nil {
		return err
	}
	defer stopTracing()

	rules, configDir, err := ea.loadRules(ctx)
	if err != nil {
		return err
	}

	opts, err := ea.encrypterOpts(configDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ea.DryRun {
		opts = append(opts, sops.WithDryRun(out, diff.NewRenderer(colorProfile(out))))
	}

	modified, err := sops.NewEncrypter(rules, opts...).EncryptFiles(ctx, paths)

	for _, path := range modified {
		if ea.DryRun {
			logger.InfoContext(ctx, "would encrypt file", slog.String("path", path))

			continue
		}

		mustN(fmt.Fprintln(out, path))
	}

	if err != nil {
		return err //nolint:wrapcheck // Errors are wrapped with the file path.
	}

	if ea.ExitCode && len(modified) > 0 {
		return fmt.Errorf("%w: %d", ErrFilesModified, len(modified))
	}

	return nil
}

// colorProfile returns the color profile to use for w. Anything that is not a
// terminal gets plain text.
func colorProfile(w io.Writer) termenv.Profile {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return termenv.Ascii
	}

	return termenv.NewOutput(f).EnvColorProfile()
}
