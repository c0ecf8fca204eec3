package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/reforge/pkg/repo"
)

func newGcCmd() *cobra.Command {
	var (
		source string
		bare   bool
	)
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete objects of a native repository no ref reaches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(source, bare)
			if err != nil {
				return err
			}
			summary, err := r.GC()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if summary.Removed == 0 {
				fmt.Fprintln(out, "nothing to remove")
				return nil
			}
			fmt.Fprintf(out, "removed %d unreachable object(s), kept %d\n", summary.Removed, summary.Kept)
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", ".", "repository to collect")
	cmd.Flags().BoolVar(&bare, "bare", false, "the repository path is a bare repository")
	return cmd
}
