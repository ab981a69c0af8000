// Package aiservice exposes alert analysis over gRPC. Messages are protobuf
// well-known types, so no generated code is required on either side.
package aiservice

import (
	"context"
	"errors"

	"CyberGuard/internal/ai"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "cyberguard.ai.v1.AIService"

const (
	analyzeAlertMethod = "/" + ServiceName + "/AnalyzeAlert"
	analyzeTextMethod  = "/" + ServiceName + "/AnalyzeText"
)

// Server is the service contract.
type Server interface {
	AnalyzeAlert(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error)
	AnalyzeText(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// ServiceDesc describes the AI service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AnalyzeAlert", Handler: analyzeAlertHandler},
		{MethodName: "AnalyzeText", Handler: analyzeTextHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cyberguard/ai/v1/ai.proto",
}

// Register adds srv to s.
func Register(s *grpc.Server, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func analyzeAlertHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).AnalyzeAlert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeAlertMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).AnalyzeAlert(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func analyzeTextHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).AnalyzeText(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeTextMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).AnalyzeText(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Analyzer is what the service needs from its backend.
type Analyzer interface {
	AnalyzeAlert(ctx context.Context, alert model.Alert) (string, error)
	AnalyzeText(ctx context.Context, input string) (string, error)
}

// Service implements Server on top of an Analyzer. A nil analyzer answers
// every call with FailedPrecondition, which clients map to ai.ErrNoAPIKey.
type Service struct {
	analyzer Analyzer
}

func NewService(a Analyzer) *Service {
	return &Service{analyzer: a}
}

func (s *Service) AnalyzeAlert(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	if s.analyzer == nil {
		return nil, toStatus(ai.ErrNoAPIKey)
	}
	alert, err := AlertFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	logging.Info().Str("alert", alert.ID).Str("attack", alert.AttackType.String()).Msg("Received AnalyzeAlert request")
	out, err := s.analyzer.AnalyzeAlert(ctx, alert)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(out), nil
}

func (s *Service) AnalyzeText(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if s.analyzer == nil {
		return nil, toStatus(ai.ErrNoAPIKey)
	}
	logging.Info().Int("bytes", len(req.GetValue())).Msg("Received AnalyzeText request")
	out, err := s.analyzer.AnalyzeText(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(out), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ai.ErrNoAPIKey):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ai.ErrEmptyResponse):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Unavailable, err.Error())
}

// fromStatus maps service errors back onto the ai sentinels.
func fromStatus(err error) error {
	switch status.Code(err) {
	case codes.FailedPrecondition:
		return ai.ErrNoAPIKey
	case codes.NotFound:
		return ai.ErrEmptyResponse
	}
	return err
}
