package muxpb

import (
	"context"

	"google.golang.org/grpc"
)

// multiplexerServiceName is the gRPC service the manager itself exposes:
// the superset RPC surface that accepts a routing Target alongside every
// native worker request and forwards to the addressed backend.
const multiplexerServiceName = "teimanager.Multiplexer"

// MultiplexerServer is implemented by internal/mux.Service and registered
// against a *grpc.Server via RegisterMultiplexerServer.
type MultiplexerServer interface {
	Info(ctx context.Context, req *MuxInfoRequest) (*InfoResponse, error)

	Embed(ctx context.Context, req *MuxEmbedRequest) (*EmbedResponse, error)
	EmbedStream(srv interface{}, stream *ServerStream[MuxEmbedRequest, EmbedResponse]) error

	EmbedSparse(ctx context.Context, req *MuxEmbedSparseRequest) (*EmbedSparseResponse, error)
	EmbedSparseStream(srv interface{}, stream *ServerStream[MuxEmbedSparseRequest, EmbedSparseResponse]) error

	EmbedAll(ctx context.Context, req *MuxEmbedAllRequest) (*EmbedAllResponse, error)
	EmbedAllStream(srv interface{}, stream *ServerStream[MuxEmbedAllRequest, EmbedAllResponse]) error

	Predict(ctx context.Context, req *MuxPredictRequest) (*PredictResponse, error)
	PredictStream(srv interface{}, stream *ServerStream[MuxPredictRequest, PredictResponse]) error

	PredictPair(ctx context.Context, req *MuxPredictPairRequest) (*PredictPairResponse, error)
	PredictPairStream(srv interface{}, stream *ServerStream[MuxPredictPairRequest, PredictPairResponse]) error

	Rerank(ctx context.Context, req *MuxRerankRequest) (*RerankResponse, error)
	RerankStream(srv interface{}, stream *ServerStream[MuxRerankStreamRequest, RerankResponse]) error

	Tokenize(ctx context.Context, req *MuxTokenizeRequest) (*EncodeResponse, error)
	TokenizeStream(srv interface{}, stream *ServerStream[MuxTokenizeRequest, EncodeResponse]) error

	Decode(ctx context.Context, req *MuxDecodeRequest) (*DecodeResponse, error)
	DecodeStream(srv interface{}, stream *ServerStream[MuxDecodeRequest, DecodeResponse]) error
}

// MultiplexerServiceDesc is built the way protoc-gen-go-grpc would emit it,
// substituting the generic handler factories in rpc.go for generated
// per-method glue.
var MultiplexerServiceDesc = grpc.ServiceDesc{
	ServiceName: multiplexerServiceName,
	HandlerType: (*MultiplexerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Info", Handler: multiplexerInfoHandler},
		{MethodName: "Embed", Handler: multiplexerEmbedHandler},
		{MethodName: "EmbedSparse", Handler: multiplexerEmbedSparseHandler},
		{MethodName: "EmbedAll", Handler: multiplexerEmbedAllHandler},
		{MethodName: "Predict", Handler: multiplexerPredictHandler},
		{MethodName: "PredictPair", Handler: multiplexerPredictPairHandler},
		{MethodName: "Rerank", Handler: multiplexerRerankHandler},
		{MethodName: "Tokenize", Handler: multiplexerTokenizeHandler},
		{MethodName: "Decode", Handler: multiplexerDecodeHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "EmbedStream", Handler: multiplexerEmbedStreamHandler, ClientStreams: true, ServerStreams: true},
		{StreamName: "EmbedSparseStream", Handler: multiplexerEmbedSparseStreamHandler, ClientStreams: true, ServerStreams: true},
		{StreamName: "EmbedAllStream", Handler: multiplexerEmbedAllStreamHandler, ClientStreams: true, ServerStreams: true},
		{StreamName: "PredictStream", Handler: multiplexerPredictStreamHandler, ClientStreams: true, ServerStreams: true},
		{StreamName: "PredictPairStream", Handler: multiplexerPredictPairStreamHandler, ClientStreams: true, ServerStreams: true},
		{StreamName: "TokenizeStream", Handler: multiplexerTokenizeStreamHandler, ClientStreams: true, ServerStreams: true},
		{StreamName: "DecodeStream", Handler: multiplexerDecodeStreamHandler, ClientStreams: true, ServerStreams: true},
		{StreamName: "RerankStream", Handler: multiplexerRerankStreamHandler, ClientStreams: true, ServerStreams: true},
	},
	Metadata: "multiplexer.proto",
}

func multiplexerInfoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[MuxInfoRequest, InfoResponse](srv.(MultiplexerServer).Info)(srv, ctx, dec, interceptor)
}
func multiplexerEmbedHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[MuxEmbedRequest, EmbedResponse](srv.(MultiplexerServer).Embed)(srv, ctx, dec, interceptor)
}
func multiplexerEmbedSparseHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[MuxEmbedSparseRequest, EmbedSparseResponse](srv.(MultiplexerServer).EmbedSparse)(srv, ctx, dec, interceptor)
}
func multiplexerEmbedAllHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[MuxEmbedAllRequest, EmbedAllResponse](srv.(MultiplexerServer).EmbedAll)(srv, ctx, dec, interceptor)
}
func multiplexerPredictHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[MuxPredictRequest, PredictResponse](srv.(MultiplexerServer).Predict)(srv, ctx, dec, interceptor)
}
func multiplexerPredictPairHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[MuxPredictPairRequest, PredictPairResponse](srv.(MultiplexerServer).PredictPair)(srv, ctx, dec, interceptor)
}
func multiplexerRerankHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[MuxRerankRequest, RerankResponse](srv.(MultiplexerServer).Rerank)(srv, ctx, dec, interceptor)
}
func multiplexerTokenizeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[MuxTokenizeRequest, EncodeResponse](srv.(MultiplexerServer).Tokenize)(srv, ctx, dec, interceptor)
}
func multiplexerDecodeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return unaryHandler[MuxDecodeRequest, DecodeResponse](srv.(MultiplexerServer).Decode)(srv, ctx, dec, interceptor)
}

func multiplexerEmbedStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return streamHandler[MuxEmbedRequest, EmbedResponse](srv.(MultiplexerServer).EmbedStream)(srv, stream)
}
func multiplexerEmbedSparseStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return streamHandler[MuxEmbedSparseRequest, EmbedSparseResponse](srv.(MultiplexerServer).EmbedSparseStream)(srv, stream)
}
func multiplexerEmbedAllStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return streamHandler[MuxEmbedAllRequest, EmbedAllResponse](srv.(MultiplexerServer).EmbedAllStream)(srv, stream)
}
func multiplexerPredictStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return streamHandler[MuxPredictRequest, PredictResponse](srv.(MultiplexerServer).PredictStream)(srv, stream)
}
func multiplexerPredictPairStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return streamHandler[MuxPredictPairRequest, PredictPairResponse](srv.(MultiplexerServer).PredictPairStream)(srv, stream)
}
func multiplexerTokenizeStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return streamHandler[MuxTokenizeRequest, EncodeResponse](srv.(MultiplexerServer).TokenizeStream)(srv, stream)
}
func multiplexerDecodeStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return streamHandler[MuxDecodeRequest, DecodeResponse](srv.(MultiplexerServer).DecodeStream)(srv, stream)
}
func multiplexerRerankStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return streamHandler[MuxRerankStreamRequest, RerankResponse](srv.(MultiplexerServer).RerankStream)(srv, stream)
}

// RegisterMultiplexerServer registers impl against s, the same call shape
// generated _grpc.pb.go files expose.
func RegisterMultiplexerServer(s grpc.ServiceRegistrar, impl MultiplexerServer) {
	s.RegisterService(&MultiplexerServiceDesc, impl)
}
