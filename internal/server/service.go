package server

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/stancewatch/internal/model"
)

// Method names of the decision service.
const (
	ServiceName    = "stancewatch.v1.DecisionService"
	EvaluateMethod = "/" + ServiceName + "/Evaluate"
	RevokeMethod   = "/" + ServiceName + "/Revoke"
)

// DecisionService is the gRPC surface. Messages are structpb.Struct values
// carrying the JSON form of the model types.
type DecisionService interface {
	Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Revoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DecisionService).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EvaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DecisionService).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func revokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DecisionService).Revoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RevokeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DecisionService).Revoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the decision service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DecisionService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "Revoke", Handler: revokeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stancewatch/v1/decision.proto",
}

// ToStruct converts a JSON-serializable value to a structpb.Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes a structpb.Struct into v.
func FromStruct(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// RevokeRequest is the Revoke message.
type RevokeRequest struct {
	TokenID string `json:"token_id"`
}

// RevokeResponse is the Revoke reply.
type RevokeResponse struct {
	TokenID string `json:"token_id"`
	Revoked bool   `json:"revoked"`
}

// decodeRequest reads a request context. Unknown fields are ignored.
func decodeRequest(s *structpb.Struct) (model.RequestContext, error) {
	var req model.RequestContext
	if s == nil {
		return req, fmt.Errorf("missing request")
	}
	if err := FromStruct(s, &req); err != nil {
		return req, err
	}
	return req, nil
}
