// Package commands implements the quotebot command line.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quotebot/internal/platform/config"
)

// Build identifies the binary.
type Build struct {
	Version   string
	Commit    string
	BuildTime string
}

// options are the persistent flags shared by every subcommand.
type options struct {
	build     Build
	configDir string
	profile   string
	envFiles  []string
}

// Execute runs the command line and returns the process exit code.
// SIGINT and SIGTERM cancel the command's context.
func Execute(build Build) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(build)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "error: %v\n", err)
	}

	return ExitCode(err)
}

// NewRootCommand builds the command tree.
func NewRootCommand(build Build) *cobra.Command {
	opts := &options{build: build}

	root := &cobra.Command{
		Use:           "quotebot",
		Short:         "Post themed quotes on a schedule without repeats",
		Version:       build.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	profile := os.Getenv("APP_ENVIRONMENT")
	if profile == "" {
		profile = "local"
	}

	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", config.DefaultConfigDir, "directory holding base.yaml and the profile files")
	root.PersistentFlags().StringVar(&opts.profile, "profile", profile, "configuration profile (default from APP_ENVIRONMENT)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files with credentials")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(
		serveCmd(opts),
		daemonCmd(opts),
		postCmd(opts),
		addCmd(opts),
		themesCmd(opts),
		listCmd(opts),
	)

	return root
}
