package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/reforge/pkg/cachedb"
)

func newRunsCmd() *cobra.Command {
	var cachePath string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the runs recorded in a cache database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := cachedb.Open(cachePath)
			if err != nil {
				return err
			}
			defer db.Close()
			runs, err := db.Runs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %s  %d commit(s)  %d ref(s)\n",
					r.ID,
					time.Unix(r.FinishedAt, 0).UTC().Format(time.RFC3339),
					r.Commits,
					r.Refs,
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cachePath, "cache", "", "cache database path")
	_ = cmd.MarkFlagRequired("cache")
	return cmd
}
