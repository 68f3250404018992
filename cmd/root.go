// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for kqlnb.
// It implements subcommands to manage cluster connections, browse their
// schema and run Kusto notebooks or .kql files, using the Cobra CLI
// framework and pterm for terminal output.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kqlnb/cli/internal/app"
	"kqlnb/cli/internal/config"
	"kqlnb/cli/internal/logging"
)

var (
	cfgFile string
	verbose bool

	current *app.App
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kqlnb",
	Short: "Run Kusto notebooks and queries from the terminal",
	Long: `kqlnb runs Kusto notebooks (.knb, .ipynb) and .kql files against Azure Data
Explorer clusters, Application Insights apps, PostgreSQL databases and kqlnb
gateways. Each document remembers the connection it last ran against.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI application.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, logging.Mask(err.Error()))
		os.Exit(1)
	}
}

// getApp builds the shared components on first use, after flags are parsed.
func getApp(cmd *cobra.Command) (*app.App, error) {
	if current != nil {
		return current, nil
	}
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log, err := logging.New(level)
	if err != nil {
		return nil, err
	}
	log.Debug("config loaded", zap.String("file", cfg.File), logging.Masked("store", cfg.Store.Path))

	p := &capturePrompt{}
	a, err := app.New(app.Options{Config: cfg, Logger: log, Prompt: p})
	if err != nil {
		return nil, err
	}
	p.connections = a.Connections
	current = a
	return a, nil
}

func closeApp() {
	if current == nil {
		return
	}
	if err := current.Close(); err != nil {
		fmt.Fprintln(os.Stderr, logging.PresentError("shutdown", err))
	}
	current = nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/kqlnb/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("store", "", "path of the state database")
	pf.String("workspace", "", "workspace that scopes recently used connections (default: current directory)")
	pf.Duration("timeout", 60*time.Second, "HTTP timeout for cluster requests")
}
