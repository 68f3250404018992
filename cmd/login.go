// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/credentials"
	"kqlnb/cli/internal/keychain"
	"kqlnb/cli/internal/terminal"
)

var loginToken string

// loginCmd stores a bearer token for a cluster in the OS keychain.
var loginCmd = &cobra.Command{
	Use:   "login <cluster>",
	Short: "Store an access token for a cluster",
	Long: `Stores a bearer token for the cluster in the OS keychain. For Azure Data
Explorer use a token from 'az account get-access-token --resource <cluster>'.
For a kqlnb gateway use the token it was started with.

The KQLNB_ACCESS_TOKEN environment variable overrides every stored token.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		cluster := connection.NormalizeCluster(args[0])
		token := loginToken
		if token == "" {
			if token, err = terminal.ReadSecret("Access token: ", os.Stdin); err != nil {
				return err
			}
		}
		if token == "" {
			return errors.New("token is required")
		}
		if err := a.Credentials.SaveToken(cluster, token); err != nil {
			pterm.Error.Println("Failed to save the token securely")
			return err
		}
		a.Sessions.Clear()
		pterm.Success.Printf("Token saved for %s\n", cluster)
		return nil
	},
}

var logoutAppInsights bool

var logoutCmd = &cobra.Command{
	Use:   "logout <cluster|app id>",
	Short: "Remove the stored token or API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		if logoutAppInsights {
			err = a.Credentials.DeleteAppInsights(args[0])
		} else {
			err = a.Credentials.DeleteToken(connection.NormalizeCluster(args[0]))
		}
		if err != nil && !errors.Is(err, keychain.ErrNotFound) {
			return err
		}
		pterm.Success.Println("Credentials removed")
		if os.Getenv(credentials.EnvAccessToken) != "" {
			pterm.Warning.Printf("%s is still set in the environment\n", credentials.EnvAccessToken)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd)
	loginCmd.Flags().StringVar(&loginToken, "token", "", "token value (prompted when omitted)")
	logoutCmd.Flags().BoolVar(&logoutAppInsights, "app-insights", false, "the argument is an Application Insights app id")
}
