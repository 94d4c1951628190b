// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the openmcp command-line application.
package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stacklok/toolhive-core/env"

	"github.com/stacklok/openmcp/pkg/config"
	"github.com/stacklok/openmcp/pkg/logger"
	"github.com/stacklok/openmcp/pkg/server"
	"github.com/stacklok/openmcp/pkg/versions"
)

// envPrefix namespaces the environment variables bound to flags, e.g.
// OPENMCP_LISTEN.
const envPrefix = "OPENMCP"

// NewRootCmd creates a new root command for the openmcp CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "openmcp",
		DisableAutoGenTag: true,
		Short:             "Serve MCP servers to stateless HTTP clients",
		Long: `openmcp serves MCP servers over the SSE and streamable HTTP transports.

Every request is routed by its session id to the actor owning the session, so
clients can reach the same server state from any replica. Sessions opened
without an id are given one; query parameters of that first request become
the configuration of the actor behind it.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
		// Silence printing the usage on error
		SilenceUsage: true,
	}

	v := viper.GetViper()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the openmcp configuration file")
	if err := v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newServeCmd creates the serve command for starting the server
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the openmcp server",
		Long: `Start the openmcp server.

The configuration file given with --config is optional; without it a single
"echo" server type is served on the default address.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "Address to listen on, overrides the configuration file")
	if err := viper.BindPFlag("listen", cmd.Flags().Lookup("listen")); err != nil {
		logger.Errorf("Error binding listen flag: %v", err)
	}

	return cmd
}

// newValidateCmd creates the validate command for checking configuration
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the openmcp configuration file for syntax and semantic errors.

This command checks:
- YAML syntax validity and unknown fields
- Server names and implementations
- Limits and Redis settings`,
		RunE: func(_ *cobra.Command, _ []string) error {
			configPath := viper.GetString("config")
			if configPath == "" {
				return fmt.Errorf("no configuration file specified, use --config flag")
			}

			logger.Infof("Validating configuration: %s", configPath)
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			logger.Infof("✓ Configuration is valid")
			logger.Infof("  Listen: %s", cfg.Listen)
			for _, s := range cfg.Servers {
				logger.Infof("  Server: /%s (%s)", s.Name, s.Type)
			}
			if cfg.Redis != nil {
				logger.Infof("  Redis: %s", cfg.Redis.Addr)
			}
			return nil
		},
	}
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "openmcp %s\nCommit: %s\nBuilt: %s\nGo: %s\nPlatform: %s\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print version information as JSON")
	return cmd
}

// runServe implements the serve command logic
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg := config.Default()
	if configPath := viper.GetString("config"); configPath != "" {
		logger.Infof("Loading configuration from: %s", configPath)
		loaded, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if listen := viper.GetString("listen"); listen != "" {
		cfg.Listen = listen
	}

	srv, err := server.New(ctx, cfg, versions.GetVersionInfo().Version)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Start server (blocks until shutdown signal)
	return srv.Start(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewYAMLLoader(path, &env.OSReader{}).Load()
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		return nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("Configuration validation failed: %v", err)
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}
