// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package gateway

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"kqlnb/cli/internal/kusto"
)

// Upstream is the backend a gateway server forwards to.
type Upstream interface {
	Execute(ctx context.Context, database, query string) (*kusto.ResultSet, error)
	FetchSchema(ctx context.Context) (*kusto.EngineSchema, error)
}

// Server serves the QueryGateway service over an Upstream.
type Server struct {
	upstream Upstream
	token    string
	log      *zap.Logger
}

// NewServer creates a Server. A non-empty token is required as a bearer
// token on every call.
func NewServer(upstream Upstream, token string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{upstream: upstream, token: token, log: log.Named("gateway")}
}

// Register adds the service to s.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// gatewayServer is the handler type checked by RegisterService.
type gatewayServer interface {
	execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	getSchema(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*gatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: unaryHandler(MethodExecute, gatewayServer.execute)},
		{MethodName: "GetSchema", Handler: unaryHandler(MethodGetSchema, gatewayServer.getSchema)},
	},
	Streams: []grpc.StreamDesc{},
}

type methodFunc func(gatewayServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call methodFunc) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		gs := srv.(gatewayServer)
		if interceptor == nil {
			return call(gs, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(gs, ctx, req.(*structpb.Struct))
		})
	}
}

func (s *Server) authorize(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	for _, v := range md.Get("authorization") {
		if parseBearerToken(v) == s.token {
			return nil
		}
	}
	return status.Error(codes.Unauthenticated, "missing or invalid bearer token")
}

// parseBearerToken extracts the token from "Bearer <token>", matching the
// scheme case-insensitively.
func parseBearerToken(value string) string {
	v := strings.TrimSpace(value)
	if len(v) < 7 || !strings.EqualFold(v[:6], "bearer") || v[6] != ' ' {
		return ""
	}
	return strings.TrimSpace(v[7:])
}

func (s *Server) execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	var r executeRequest
	if err := fromStruct(req, &r); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if strings.TrimSpace(r.Query) == "" {
		return nil, status.Error(codes.InvalidArgument, "query is required")
	}
	s.log.Debug("execute", zap.String("database", r.Database))
	rs, err := s.upstream.Execute(ctx, r.Database, r.Query)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(rs)
}

func (s *Server) getSchema(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	schema, err := s.upstream.FetchSchema(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(schema)
}

func toStatus(err error) error {
	var qe *kusto.QueryError
	if errors.As(err, &qe) {
		st, derr := status.New(codes.InvalidArgument, qe.Message).WithDetails(queryErrorDetail(qe))
		if derr == nil {
			return st.Err()
		}
		return status.Error(codes.InvalidArgument, qe.Message)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Unavailable, err.Error())
}
