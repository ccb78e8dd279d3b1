// Package main provides the semguard binary entry point.
// Semguard checks source files against a registry of architecture rules.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	// Register language adapters via init()
	_ "github.com/c360studio/semguard/semantic/golang"
	_ "github.com/c360studio/semguard/semantic/python"
	_ "github.com/c360studio/semguard/semantic/ts"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semguard"
)

// errViolations makes the process exit 1 without printing an error line;
// the report already explains what failed.
var errViolations = errors.New("validation failed")

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(3)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		if errors.Is(err, errViolations) {
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	format     string
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Architectural governance for source code",
		Long: `Semguard parses TypeScript, JavaScript, Python and Go files into a
language-agnostic model and checks them against a hierarchical registry
of architecture rules.

Files opt in with a header tag such as:

  // @arch app.service +no-console

The tag names the architecture node; "+name" applies an inline mixin.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Project config file (default: semguard.yaml search)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.format, "format", "text", "Output format (text, json)")

	cmd.AddCommand(
		checkCmd(&flags),
		resolveCmd(&flags),
		watchCmd(&flags),
		initCmd(&flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}
