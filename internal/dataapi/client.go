package dataapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rafaeljc/phishguard/internal/ruleengine"
)

// Client calls a remote Analyzer service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	if cc == nil {
		panic("dataapi: client connection cannot be nil")
	}
	return &Client{cc: cc}
}

// WithRequestID attaches a request id that the server logs with the call.
func WithRequestID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, RequestIDKey, id)
}

// Analyze evaluates input remotely. Validation failures come back as
// status errors with codes.InvalidArgument.
func (c *Client) Analyze(ctx context.Context, kind ruleengine.Kind, input string, opts ...grpc.CallOption) (*ruleengine.Verdict, error) {
	req, err := structpb.NewStruct(map[string]any{
		"input": input,
		"type":  string(kind),
	})
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AnalyzeMethod, req, out, opts...); err != nil {
		return nil, err
	}

	var msg verdictMessage
	if err := fromStruct(out, &msg); err != nil {
		return nil, err
	}
	return msg.verdict(), nil
}

// RuleSet describes the remote rule set of kind.
func (c *Client) RuleSet(ctx context.Context, kind ruleengine.Kind, opts ...grpc.CallOption) (*RuleSetInfo, error) {
	req, err := structpb.NewStruct(map[string]any{"type": string(kind)})
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetRuleSetMethod, req, out, opts...); err != nil {
		return nil, err
	}

	var info RuleSetInfo
	if err := fromStruct(out, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
