package dataapi

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rafaeljc/phishguard/internal/logger"
	"github.com/rafaeljc/phishguard/internal/ruleengine"
)

// Analyze evaluates {input, type} and returns the verdict.
//
// It returns:
//   - OK with the verdict if successful.
//   - INVALID_ARGUMENT if the candidate is blank, of unknown type or not a valid URL.
//   - INTERNAL if the verdict cannot be encoded.
func (a *API) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := logger.FromContext(ctx)

	kind := requestKind(req)
	verdict, err := a.analyzer.Analyze(ctx, kind, stringField(req, "input"))
	if err != nil {
		var vErr *ruleengine.ValidationError
		if errors.As(err, &vErr) {
			// Warn: client error, not a server failure.
			log.Warn("bad request", slog.String("field", vErr.Field), slog.String("reason", vErr.Reason))
			return nil, status.Error(codes.InvalidArgument, vErr.Error())
		}
		log.Error("analysis failed", slog.String("error", err.Error()))
		return nil, status.Error(codes.Internal, "failed to analyze input")
	}

	out, err := toStruct(newVerdictMessage(verdict))
	if err != nil {
		log.Error("failed to encode verdict", slog.String("error", err.Error()))
		return nil, status.Error(codes.Internal, "failed to encode verdict")
	}
	return out, nil
}

// GetRuleSet describes the active rule set of {type}.
func (a *API) GetRuleSet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kind := requestKind(req)
	if !kind.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "type must be %q or %q", ruleengine.KindURL, ruleengine.KindEmail)
	}

	info := newRuleSetInfo(kind, a.analyzer.RuleSet(kind), a.analyzer.Scoring().Threshold)
	out, err := toStruct(info)
	if err != nil {
		logger.FromContext(ctx).Error("failed to encode rule set", slog.String("error", err.Error()))
		return nil, status.Error(codes.Internal, "failed to encode rule set")
	}
	return out, nil
}

// requestKind reads the "type" field, defaulting to url like the REST API.
func requestKind(req *structpb.Struct) ruleengine.Kind {
	kind := strings.ToLower(strings.TrimSpace(stringField(req, "type")))
	if kind == "" {
		return ruleengine.KindURL
	}
	return ruleengine.Kind(kind)
}
