package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/semguard/config"
)

func checkCmd(flags *globalFlags) *cobra.Command {
	var (
		changed []string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "check [paths...]",
		Short: "Validate files against the architecture registry",
		Long: `Validate files against the architecture registry.

With no paths every file selected by the configured globs is checked.
With --changed only the named files and the files importing them, up to
two hops away, are checked.

Exit status is 1 when any file fails or cannot be validated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flags.format); err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, flags, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			batch, err := a.check(ctx, args, changed)
			if batch != nil {
				if werr := writeBatch(cmd.OutOrStdout(), batch, flags.format, verbose); werr != nil {
					return werr
				}
			}
			return exitStatus(batch, err)
		},
	}

	cmd.Flags().StringSliceVar(&changed, "changed", nil, "Check only these files and their dependents")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List passing and skipped files too")
	return cmd
}

func resolveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <arch-id> [+mixin...]",
		Short: "Show the flattened rule set for an architecture",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flags.format); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), flags, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var mixins []string
			for _, m := range args[1:] {
				mixins = append(mixins, strings.TrimPrefix(m, "+"))
			}

			res, err := a.engine.ResolveArch(args[0], mixins...)
			if err != nil {
				return err
			}
			return writeResolved(cmd.OutOrStdout(), res, flags.format)
		},
	}
}

func initCmd(flags *globalFlags) *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default semguard.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(flags.logLevel)

			if user {
				return config.NewLoader(logger).EnsureUserConfig()
			}

			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path := filepath.Join(dir, config.ProjectConfigFile)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := config.DefaultConfig().SaveToFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	cmd.Flags().BoolVar(&user, "user", false, "Create the user config instead")
	return cmd
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
