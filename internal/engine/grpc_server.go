package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/idp-admin-gateway/internal/connectors/okta"
)

// Сервис описан вручную поверх google.protobuf.Struct:
//
//	service ToolService { rpc Invoke(google.protobuf.Struct) returns (google.protobuf.Struct); }
//
// Запрос: {"tool": "...", "input": {...}}; ответ: {"result": ...}.
const (
	ToolServiceName     = "idpgw.v1.ToolService"
	toolServiceInvoke   = "/" + ToolServiceName + "/Invoke"
	toolServiceMetadata = "idpgw/v1/tool.proto"
)

type ToolServiceServer interface {
	Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var toolServiceDesc = grpc.ServiceDesc{
	ServiceName: ToolServiceName,
	HandlerType: (*ToolServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: toolServiceMetadata,
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ToolServiceServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: toolServiceInvoke}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ToolServiceServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterToolServiceServer регистрирует сервис на gRPC сервере.
func RegisterToolServiceServer(s grpc.ServiceRegistrar, srv ToolServiceServer) {
	s.RegisterService(&toolServiceDesc, srv)
}

// ToolClient — клиент сервиса для других Go-процессов и тестов.
type ToolClient struct {
	cc grpc.ClientConnInterface
}

func NewToolClient(cc grpc.ClientConnInterface) *ToolClient {
	return &ToolClient{cc: cc}
}

func (c *ToolClient) Invoke(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, toolServiceInvoke, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type GRPCGatewayServer struct {
	gw     *Gateway
	logger *zap.Logger
}

func NewGRPCGatewayServer(gw *Gateway, logger *zap.Logger) *GRPCGatewayServer {
	return &GRPCGatewayServer{gw: gw, logger: logger.Named("grpc")}
}

func (s *GRPCGatewayServer) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	name, _ := fields["tool"].(string)
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "field 'tool' is required")
	}

	// Struct -> JSON, дальше тот же пайплайн, что и у HTTP
	var raw json.RawMessage
	if input, ok := fields["input"]; ok && input != nil {
		b, err := json.Marshal(input)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "input: %v", err)
		}
		raw = b
	}

	result, err := s.gw.Invoke(ctx, name, raw)
	if err != nil {
		return nil, grpcError(err)
	}

	out, err := toStruct(map[string]interface{}{"result": result})
	if err != nil {
		s.logger.Error("result conversion failed", zap.String("tool", name), zap.Error(err))
		return nil, status.Error(codes.Internal, "result conversion failed")
	}
	return out, nil
}

// toStruct приводит типизированный результат к Struct через JSON.
func toStruct(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func grpcError(err error) error {
	switch Outcome(err) {
	case "invalid_input":
		return status.Error(codes.InvalidArgument, err.Error())
	case "forbidden":
		return status.Error(codes.PermissionDenied, err.Error())
	case "unknown_operation":
		return status.Error(codes.NotFound, err.Error())
	case "circuit_open":
		return status.Error(codes.Unavailable, err.Error())
	case "upstream":
		var apiErr *okta.APIError
		if errors.As(err, &apiErr) {
			return status.Error(codes.Unavailable, fmt.Sprintf("upstream status %d: %s", apiErr.StatusCode, err.Error()))
		}
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}
