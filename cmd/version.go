// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kqlnb/cli/internal/backend"
	"kqlnb/cli/internal/credentials"
)

var (
	// Version holds the CLI version information.
	// This value is typically set at build time using -ldflags.
	Version = "0.0.0-dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the CLI version and supported cluster schemes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemes := backend.Default(credentials.New(nil), nil).Schemes()
		fmt.Printf("kqlnb %s\nbackends: %s\n", Version, strings.Join(schemes, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
