// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"io"

	"github.com/ManuGH/testgen/internal/config"
	"github.com/ManuGH/testgen/internal/log"
	"github.com/ManuGH/testgen/internal/version"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "testgen",
		Short:         "Generate UI tests with a remote generation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file (YAML)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newRunCmd(g),
		newListCmd(g),
		newShowCmd(g),
		newAssetsCmd(g),
		newValidateCmd(g),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads and validates the config, then reconfigures logging to
// stderr at the resulting level.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (config.AppConfig, error) {
	cfg, err := config.NewLoader(g.configPath, version.Version).Load()
	if err != nil {
		return config.AppConfig{}, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Output:  cmd.ErrOrStderr(),
		Version: version.Version,
	})
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (commit: %s, built: %s, protocol: %d)\n",
				version.Version, version.Commit, version.Date, version.ProtocolVersion)
			return err
		},
	}
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := config.RequireServer(cfg); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "configuration is valid")
			fmt.Fprintf(out, "  server:    %s (%s)\n", maskURL(cfg.Server.URL), cfg.Server.Transport)
			fmt.Fprintf(out, "  store:     %s\n", cfg.Store.Backend)
			fmt.Fprintf(out, "  data dir:  %s\n", cfg.DataDir)
			fmt.Fprintf(out, "  assets:    %s (max %d attempts, %s apart)\n", cfg.Assets.Dir, cfg.Assets.MaxAttempts, cfg.Assets.RetryInterval)
			return nil
		},
	}
}
