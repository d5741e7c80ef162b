package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macropower/sopsgate/pkg/sops"
	"github.com/macropower/sopsgate/pkg/watch"
)

type WatchArgs struct {
	*SopsArgs
}

func NewWatchArgs(rootArgs *RootArgs) *WatchArgs {
	return &WatchArgs{
		SopsArgs: &SopsArgs{RootArgs: rootArgs},
	}
}

func NewWatchCmd(wa *WatchArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dirs...]",
		Short: "Encrypt files as they are written, until interrupted",
		Long: `Watch directories (default: the current directory) and encrypt every file
that is written or created below them, following the same rules as encrypt.
Failures are logged, and watching continues.`,
		Args: cobra.ArbitraryArgs,
		ValidArgsFunction: func(_ *cobra.Command, _ []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveFilterDirs
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}

			return runWatch(cmd, wa, args)
		},
	}
	wa.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func runWatch(cmd *cobra.Command, wa *WatchArgs, dirs []string) error {
	ctx := cmd.Context()

	stopTracing, err := wa.startTracing(ctx)
	if err != nil {
		return err
	}
	defer stopTracing()

	rules, configDir, err := wa.loadRules(ctx)
	if err != nil {
		return err
	}

	opts, err := wa.encrypterOpts(configDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	w, err := watch.New(sops.NewEncrypter(rules, opts...), dirs,
		watch.WithOnModified(func(path string) {
			mustN(fmt.Fprintln(out, path))
		}),
	)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	err = w.Run(ctx)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	return nil
}
