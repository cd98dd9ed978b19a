// internal/handler/service.go
package handler

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// ServiceName is the fully qualified gRPC service name
	ServiceName = "intent.v1.IntentClassifier"
	// ClassifyMethod is the full method name of Classify
	ClassifyMethod = "/" + ServiceName + "/Classify"
)

// IntentClassifierServer is the server API for the IntentClassifier service.
// Messages are well-known protobuf types so no generated code is needed.
type IntentClassifierServer interface {
	Classify(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

func classifyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntentClassifierServer).Classify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ClassifyMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IntentClassifierServer).Classify(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc.ServiceDesc for the IntentClassifier service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IntentClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Classify",
			Handler:    classifyHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "intent/v1/intent.proto",
}

// Register registers srv with s.
func Register(s grpc.ServiceRegistrar, srv IntentClassifierServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the IntentClassifier service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a Client on cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Classify sends text and decodes the response.
func (c *Client) Classify(ctx context.Context, text string, opts ...grpc.CallOption) (*Response, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ClassifyMethod, wrapperspb.String(text), out, opts...); err != nil {
		return nil, err
	}
	return ParseResponse(out)
}

// Response is the decoded form of the Classify response struct.
type Response struct {
	ClassIndex    int
	Label         string
	Logits        []float32
	Probabilities []float64
	TokenIDs      []int64
	Cached        bool
}

// ParseResponse reads the fields written by the server. Numbers arrive
// as float64 because google.protobuf.Value has no integer kind.
func ParseResponse(s *structpb.Struct) (*Response, error) {
	if s == nil {
		return nil, fmt.Errorf("empty response")
	}
	f := s.GetFields()

	label, ok := f["label"]
	if !ok {
		return nil, fmt.Errorf("response has no label")
	}
	resp := &Response{
		ClassIndex: int(f["class_index"].GetNumberValue()),
		Label:      label.GetStringValue(),
		Cached:     f["cached"].GetBoolValue(),
	}
	for _, v := range f["logits"].GetListValue().GetValues() {
		resp.Logits = append(resp.Logits, float32(v.GetNumberValue()))
	}
	for _, v := range f["probabilities"].GetListValue().GetValues() {
		resp.Probabilities = append(resp.Probabilities, v.GetNumberValue())
	}
	for _, v := range f["token_ids"].GetListValue().GetValues() {
		resp.TokenIDs = append(resp.TokenIDs, int64(v.GetNumberValue()))
	}
	return resp, nil
}
