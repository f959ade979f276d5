package muxpb

import (
	"context"
	"io"

	"google.golang.org/grpc"
)

// callOpt is applied to every client call so it negotiates the JSON codec
// registered in codec.go instead of grpc-go's default proto codec.
var callOpt = grpc.CallContentSubtype(codecName)

// Invoke performs a single unary RPC against cc, encoding req and decoding
// into a new Resp. It is the generic replacement for the per-method client
// stub protoc-gen-go-grpc would otherwise generate.
func Invoke[Req, Resp any](ctx context.Context, cc *grpc.ClientConn, method string, req *Req) (*Resp, error) {
	resp := new(Resp)
	if err := cc.Invoke(ctx, method, req, resp, callOpt); err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream is a typed wrapper over grpc.ClientStream, giving bidi/streaming
// RPCs Send/Recv methods typed to Req/Resp instead of interface{}.
type Stream[Req, Resp any] struct {
	grpc.ClientStream
}

func (s *Stream[Req, Resp]) Send(req *Req) error {
	return s.ClientStream.SendMsg(req)
}

func (s *Stream[Req, Resp]) Recv() (*Resp, error) {
	resp := new(Resp)
	if err := s.ClientStream.RecvMsg(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// NewStream opens a streaming RPC named method against cc.
func NewStream[Req, Resp any](ctx context.Context, cc *grpc.ClientConn, desc *grpc.StreamDesc, method string) (*Stream[Req, Resp], error) {
	cs, err := cc.NewStream(ctx, desc, method, callOpt)
	if err != nil {
		return nil, err
	}
	return &Stream[Req, Resp]{ClientStream: cs}, nil
}

// --- Server-side generic handler factories ---------------------------------

// UnaryHandlerFunc is the business logic behind one unary RPC.
type UnaryHandlerFunc[Req, Resp any] func(ctx context.Context, req *Req) (*Resp, error)

// unaryHandler adapts a UnaryHandlerFunc into the grpc.methodHandler shape
// that grpc.ServiceDesc.Methods expects, the same signature
// protoc-gen-go-grpc emits for every unary method.
func unaryHandler[Req, Resp any](fn UnaryHandlerFunc[Req, Resp]) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(ctx, in)
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			typed, ok := req.(*Req)
			if !ok {
				return nil, errUnexpectedType(in, req)
			}
			return fn(ctx, typed)
		}
		return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv}, handler)
	}
}

// ServerStream is a typed wrapper over grpc.ServerStream for handlers that
// implement bidi/server-streaming RPCs.
type ServerStream[Req, Resp any] struct {
	grpc.ServerStream
}

func (s *ServerStream[Req, Resp]) Send(resp *Resp) error {
	return s.ServerStream.SendMsg(resp)
}

func (s *ServerStream[Req, Resp]) Recv() (*Req, error) {
	req := new(Req)
	if err := s.ServerStream.RecvMsg(req); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	return req, nil
}

// StreamHandlerFunc is the business logic behind one streaming RPC.
type StreamHandlerFunc[Req, Resp any] func(srv interface{}, stream *ServerStream[Req, Resp]) error

// streamHandler adapts a StreamHandlerFunc into the grpc.StreamHandler shape
// grpc.ServiceDesc.Streams expects.
func streamHandler[Req, Resp any](fn StreamHandlerFunc[Req, Resp]) func(srv interface{}, stream grpc.ServerStream) error {
	return func(srv interface{}, stream grpc.ServerStream) error {
		return fn(srv, &ServerStream[Req, Resp]{ServerStream: stream})
	}
}
