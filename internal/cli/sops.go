package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/macropower/sopsgate/pkg/config"
	"github.com/macropower/sopsgate/pkg/execs"
	"github.com/macropower/sopsgate/pkg/log"
	"github.com/macropower/sopsgate/pkg/rule"
	"github.com/macropower/sopsgate/pkg/sops"
)

// SopsArgs holds the flags shared by every command that runs sops.
type SopsArgs struct {
	*RootArgs

	ConfigPath       string
	SopsCommand      string
	InheritEnv       string
	TempPrefix       string
	FilenameOverride bool
}

func (sa *SopsArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sa.ConfigPath, "config", "",
		"Path to the sops configuration file (default: search for .sops.yaml upwards); path_regex is matched relative to its directory")
	cmd.Flags().StringVar(&sa.SopsCommand, "sops-command", sops.DefaultCommand,
		"Command used to run sops, split like a shell would")
	cmd.Flags().StringVar(&sa.InheritEnv, "inherit-env", ".*",
		"Regular expression of environment variable names passed to sops")
	cmd.Flags().StringVar(&sa.TempPrefix, "temp-prefix", sops.DefaultTempPrefix,
		"Prefix of the staged files handed to sops")
	cmd.Flags().BoolVar(&sa.FilenameOverride, "filename-override", false,
		"Let sops match creation rules against the original file name instead of the staged one")

	must(cmd.MarkFlagFilename("config", "yaml", "yml"))
	must(cmd.RegisterFlagCompletionFunc("inherit-env", cobra.NoFileCompletions))
	must(cmd.RegisterFlagCompletionFunc("temp-prefix", cobra.NoFileCompletions))
}

// loadRules loads the creation rules and returns them with the directory of the
// configuration file, which their path patterns are relative to. A missing
// configuration file is not an error: it yields no rules, so nothing is
// encrypted.
func (sa *SopsArgs) loadRules(ctx context.Context) (rule.Rules, string, error) {
	logger := log.WithContext(ctx)

	path := sa.ConfigPath
	if path == "" {
		found, err := config.Find(".")
		if err != nil {
			return nil, "", fmt.Errorf("find config: %w", err)
		}

		path = found
	}

	if path == "" {
		logger.WarnContext(ctx, "no sops configuration found, nothing to encrypt",
			slog.Any("names", config.DefaultFileNames),
		)

		return nil, "", nil
	}

	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.WarnContext(ctx, "sops configuration does not exist, nothing to encrypt",
			slog.String("config", path),
		)

		return nil, "", nil
	}

	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}

	logger.DebugContext(ctx, "loaded sops configuration",
		slog.String("config", path),
		slog.Int("rules", len(cfg.CreationRules)),
	)

	return cfg.CreationRules, filepath.Dir(path), nil
}

// encrypterOpts returns the options that configure how sops is run. Creation
// rules are matched relative to configDir.
func (sa *SopsArgs) encrypterOpts(configDir string) ([]sops.EncrypterOpt, error) {
	cmd, err := execs.ParseCommand(os.Environ(), sa.SopsCommand)
	if err != nil {
		return nil, fmt.Errorf("%w: --sops-command: %w", errInvalidArgument, err)
	}

	cmd.AddEnvFrom(execs.EnvFromSource{
		CallerRef: &execs.CallerRef{Pattern: sa.InheritEnv},
	})

	err = cmd.CompilePatterns()
	if err != nil {
		return nil, fmt.Errorf("%w: --inherit-env: %w", errInvalidArgument, err)
	}

	return []sops.EncrypterOpt{
		sops.WithCommand(cmd),
		sops.WithTempPrefix(sa.TempPrefix),
		sops.WithFilenameOverride(sa.FilenameOverride),
		sops.WithBaseDir(configDir),
	}, nil
}
