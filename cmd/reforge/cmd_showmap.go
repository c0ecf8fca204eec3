package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/reforge/pkg/object"
	"github.com/odvcencio/reforge/pkg/rewrite"
)

func newShowMapCmd() *cobra.Command {
	var lookup string
	cmd := &cobra.Command{
		Use:   "show-map <file>",
		Short: "Print an exported commit map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := rewrite.LoadCommitMap(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if lookup != "" {
				rewritten, ok := m.Lookup(object.Hash(lookup))
				if !ok {
					return fmt.Errorf("show-map: %s is not in the map", lookup)
				}
				fmt.Fprintln(out, rewritten)
				return nil
			}
			if m.Run != "" {
				fmt.Fprintf(out, "# run %s\n", m.Run)
			}
			for _, p := range m.Commits {
				fmt.Fprintf(out, "%s %s\n", p.Old, p.New)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lookup, "lookup", "", "print only the rewritten id of this commit")
	return cmd
}
