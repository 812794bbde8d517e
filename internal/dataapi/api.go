// Package dataapi implements the gRPC Analyzer service.
// It serves the same verdicts as the REST API to internal callers
// (mail gateways, proxies) over a long-lived connection.
package dataapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rafaeljc/phishguard/internal/analyzer"
	"github.com/rafaeljc/phishguard/internal/validation"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "phishguard.v1.Analyzer"

// Full method names, as used by clients and interceptors.
const (
	AnalyzeMethod    = "/" + ServiceName + "/Analyze"
	GetRuleSetMethod = "/" + ServiceName + "/GetRuleSet"
)

// AnalyzerServer is the server API of the Analyzer service.
// Messages are google.protobuf.Struct so the contract needs no generated code.
type AnalyzerServer interface {
	Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetRuleSet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the Analyzer service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalyzerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
		{MethodName: "GetRuleSet", Handler: getRuleSetHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "phishguard/v1/analyzer.proto",
}

func analyzeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AnalyzeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getRuleSetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalyzerServer).GetRuleSet(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetRuleSetMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalyzerServer).GetRuleSet(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// API implements AnalyzerServer on top of the analyzer service.
type API struct {
	analyzer *analyzer.Service
}

var _ AnalyzerServer = (*API)(nil)

// NewAPI creates a new Analyzer gRPC API instance.
func NewAPI(svc *analyzer.Service) *API {
	validation.AssertNotNil(svc, "dataapi", "analyzer")
	return &API{analyzer: svc}
}

// Register connects this implementation to the grpc.Server engine.
func (a *API) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&ServiceDesc, a)
}
