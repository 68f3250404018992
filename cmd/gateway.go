// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"kqlnb/cli/internal/app"
	"kqlnb/cli/internal/connection"
	"kqlnb/cli/internal/gateway"
	"kqlnb/cli/internal/kusto"
	"kqlnb/cli/internal/session"
)

var gatewayToken string

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Serve a connection to other kqlnb clients over gRPC",
}

var gatewayServeCmd = &cobra.Command{
	Use:   "serve <cluster>",
	Short: "Proxy queries and schema requests to a saved connection",
	Long: `Listens on gateway.listen (or --listen) and forwards every query to the
given connection with this machine's credentials. Clients connect with
'kqlnb connect grpc://<listen address>' and 'kqlnb login' using --token.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		info, ok, err := a.Connections.Find(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			info = connection.NewAzureAuth(args[0], "")
		}
		if err := a.Backends.Validate(info); err != nil {
			return err
		}
		client, err := a.Backends.NewClient(ctx, info)
		if err != nil {
			return err
		}
		defer client.Close()

		lis, err := net.Listen("tcp", a.Config.Gateway.Listen)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", a.Config.Gateway.Listen, err)
		}
		gs := grpc.NewServer()
		gateway.NewServer(upstream{app: a, info: info, client: client}, gatewayToken, a.Log).Register(gs)

		go func() {
			<-ctx.Done()
			gs.GracefulStop()
		}()
		a.Log.Info("gateway listening", zap.String("addr", lis.Addr().String()), zap.String("upstream", info.ID))
		pterm.Info.Printf("Serving %s on %s (Ctrl+C to stop)\n", info.ID, lis.Addr())
		if gatewayToken == "" {
			pterm.Warning.Println("No --token given; any client can run queries")
		}
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	},
}

// upstream forwards gateway calls to one connection.
type upstream struct {
	app    *app.App
	info   connection.Info
	client session.Client
}

func (u upstream) Execute(ctx context.Context, database, query string) (*kusto.ResultSet, error) {
	if database == "" {
		database = u.info.Database
	}
	return u.client.Execute(ctx, database, query)
}

func (u upstream) FetchSchema(ctx context.Context) (*kusto.EngineSchema, error) {
	return u.app.Schemas.Get(ctx, u.info, false)
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
	gatewayCmd.AddCommand(gatewayServeCmd)
	gatewayServeCmd.Flags().String("listen", "", "address to listen on (default gateway.listen)")
	gatewayServeCmd.Flags().StringVar(&gatewayToken, "token", "", "bearer token clients must present")
}
