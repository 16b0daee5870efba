// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ManuGH/testgen/internal/record"
	"github.com/spf13/cobra"
)

// withStore loads config, opens the configured store and runs fn.
func (g *globalFlags) withStore(cmd *cobra.Command, fn func(record.Store) error) error {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := record.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func newListCmd(g *globalFlags) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved tests, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("%w: --limit must be positive", errUsage)
			}
			return g.withStore(cmd, func(s record.Store) error {
				list, err := s.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(list)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCOMPLETED\tSTEPS\tDEVICE\tGOAL")
				for _, r := range list {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.CompletedAt.Format(time.RFC3339), r.Steps, r.Device, r.Goal)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <record-id>",
		Short: "Print a saved test as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(s record.Store) error {
				rec, err := s.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			})
		},
	}
}

func newAssetsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "assets <record-id>",
		Short: "List the assets of a saved test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(s record.Store) error {
				list, err := s.LoadAssets(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSTATUS\tPATH")
				for _, a := range list {
					status, where := "ok", a.Path
					if a.Missing {
						status, where = "missing", a.URL
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Name, status, where)
				}
				return tw.Flush()
			})
		},
	}
}
