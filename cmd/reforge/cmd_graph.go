package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/reforge/pkg/config"
	"github.com/odvcencio/reforge/pkg/object"
	"github.com/odvcencio/reforge/pkg/rewrite"
)

func newGraphCmd() *cobra.Command {
	var (
		sf         storeFlags
		source     string
		configPath string
	)
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the commit graph after applying the configured recipe",
		Long: "Walks the history that a rewrite would visit, applies the recipe\n" +
			"from the configuration file and prints each commit with its parents\n" +
			"in rewrite order. Nothing is written.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &config.File{}
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			recipe, err := cfg.BuildRecipe()
			if err != nil {
				return err
			}
			src, err := sf.open(source)
			if err != nil {
				return err
			}
			engine, err := rewrite.New(rewrite.Options{Source: src, Recipe: recipe, Logger: newLogger(cmd)})
			if err != nil {
				return err
			}
			g, order, err := engine.Plan(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, id := range order {
				parents := g.GetParents(id)
				short := make([]string, len(parents))
				for i, p := range parents {
					short[i] = p.Short()
				}
				fmt.Fprintf(out, "%s %s\n", id.Short(), strings.Join(short, " "))
			}
			merged := g.Merged()
			targets := make([]object.Hash, 0, len(merged))
			for target := range merged {
				targets = append(targets, target)
			}
			sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
			for _, target := range targets {
				fmt.Fprintf(out, "merged %s -> %s\n", target.Short(), merged[target].Short())
			}
			return nil
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVarP(&source, "source", "s", ".", "repository to inspect")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML run configuration holding the recipe")
	return cmd
}
