package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reforge",
		Short:         "Rewrite the history of a repository through transformation plugins",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().CountP("verbose", "v", "log more (-v info, -vv debug)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newRewriteCmd())
	root.AddCommand(newGraphCmd())
	root.AddCommand(newShowMapCmd())
	root.AddCommand(newRunsCmd())
	root.AddCommand(newGcCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "reforge "+version)
		},
	}
}

// newLogger builds the stderr logger for the verbosity given by -v.
func newLogger(cmd *cobra.Command) *slog.Logger {
	return newLoggerTo(cmd.ErrOrStderr(), verbosity(cmd))
}

func verbosity(cmd *cobra.Command) int {
	n, err := cmd.Flags().GetCount("verbose")
	if err != nil {
		return 0
	}
	return n
}

func newLoggerTo(w io.Writer, verbose int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose >= 2:
		level = slog.LevelDebug
	case verbose == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
