// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"kqlnb/cli/internal/kusto"
)

// Client talks to a gateway server.
type Client struct {
	conn  *grpc.ClientConn
	token string
}

// Target converts a grpc:// or grpcs:// cluster URI into a dial target and
// reports whether TLS is used. grpcs targets default to port 443.
func Target(cluster string) (target, serverName string, secure bool, err error) {
	u, err := url.Parse(cluster)
	if err != nil || u.Host == "" {
		return "", "", false, fmt.Errorf("invalid gateway address %q", cluster)
	}
	switch strings.ToLower(u.Scheme) {
	case "grpc":
	case "grpcs":
		secure = true
	default:
		return "", "", false, fmt.Errorf("unsupported gateway scheme %q", u.Scheme)
	}
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		port := "80"
		if secure {
			port = "443"
		}
		host = net.JoinHostPort(host, port)
	}
	return host, u.Hostname(), secure, nil
}

// Dial creates a client for cluster. token, when set, is sent as a bearer
// token with every call. Extra dial options are appended, which tests use
// to inject a bufconn dialer.
func Dial(cluster, token string, opts ...grpc.DialOption) (*Client, error) {
	target, serverName, secure, err := Target(cluster)
	if err != nil {
		return nil, err
	}
	creds := insecure.NewCredentials()
	if secure {
		creds = credentials.NewTLS(&tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12})
	}
	conn, err := grpc.NewClient("passthrough:///"+target, append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, token: token}, nil
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

// Execute runs query on the gateway's upstream.
func (c *Client) Execute(ctx context.Context, database, query string) (*kusto.ResultSet, error) {
	req, err := toStruct(executeRequest{Database: database, Query: query})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.outgoing(ctx), MethodExecute, req, out); err != nil {
		return nil, fromStatus(err)
	}
	var rs kusto.ResultSet
	if err := fromStruct(out, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// FetchSchema returns the upstream schema.
func (c *Client) FetchSchema(ctx context.Context) (*kusto.EngineSchema, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.outgoing(ctx), MethodGetSchema, &structpb.Struct{}, out); err != nil {
		return nil, fromStatus(err)
	}
	var s kusto.EngineSchema
	if err := fromStruct(out, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// fromStatus restores a *kusto.QueryError carried in status details.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			if qe, ok := queryErrorFromDetail(s); ok {
				return qe
			}
		}
	}
	return err
}
