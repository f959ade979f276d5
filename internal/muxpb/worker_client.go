package muxpb

import (
	"context"

	"google.golang.org/grpc"
)

// workerServiceName is the gRPC service path a TEI embedding worker answers
// on -- the process the manager launches and speaks to directly, as opposed
// to the multiplexer surface the manager itself exposes (see service.go).
const workerServiceName = "tei.worker.Worker"

func workerMethod(name string) string { return "/" + workerServiceName + "/" + name }

// WorkerClient calls a single backend worker's native RPC surface over one
// grpc.ClientConn. BackendPool caches one WorkerClient per live instance.
type WorkerClient struct {
	cc *grpc.ClientConn
}

// NewWorkerClient wraps an established connection to one worker instance.
func NewWorkerClient(cc *grpc.ClientConn) *WorkerClient {
	return &WorkerClient{cc: cc}
}

// Conn returns the underlying connection, e.g. for health/state inspection.
func (c *WorkerClient) Conn() *grpc.ClientConn { return c.cc }

func (c *WorkerClient) Info(ctx context.Context, req *InfoRequest) (*InfoResponse, error) {
	return Invoke[InfoRequest, InfoResponse](ctx, c.cc, workerMethod("Info"), req)
}

func (c *WorkerClient) Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error) {
	return Invoke[EmbedRequest, EmbedResponse](ctx, c.cc, workerMethod("Embed"), req)
}

func (c *WorkerClient) EmbedSparse(ctx context.Context, req *EmbedSparseRequest) (*EmbedSparseResponse, error) {
	return Invoke[EmbedSparseRequest, EmbedSparseResponse](ctx, c.cc, workerMethod("EmbedSparse"), req)
}

func (c *WorkerClient) EmbedAll(ctx context.Context, req *EmbedAllRequest) (*EmbedAllResponse, error) {
	return Invoke[EmbedAllRequest, EmbedAllResponse](ctx, c.cc, workerMethod("EmbedAll"), req)
}

func (c *WorkerClient) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	return Invoke[PredictRequest, PredictResponse](ctx, c.cc, workerMethod("Predict"), req)
}

func (c *WorkerClient) PredictPair(ctx context.Context, req *PredictPairRequest) (*PredictPairResponse, error) {
	return Invoke[PredictPairRequest, PredictPairResponse](ctx, c.cc, workerMethod("PredictPair"), req)
}

func (c *WorkerClient) Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error) {
	return Invoke[RerankRequest, RerankResponse](ctx, c.cc, workerMethod("Rerank"), req)
}

func (c *WorkerClient) Tokenize(ctx context.Context, req *EncodeRequest) (*EncodeResponse, error) {
	return Invoke[EncodeRequest, EncodeResponse](ctx, c.cc, workerMethod("Tokenize"), req)
}

func (c *WorkerClient) Decode(ctx context.Context, req *DecodeRequest) (*DecodeResponse, error) {
	return Invoke[DecodeRequest, DecodeResponse](ctx, c.cc, workerMethod("Decode"), req)
}

var (
	embedStreamDesc       = &grpc.StreamDesc{StreamName: "EmbedStream", ClientStreams: true, ServerStreams: true}
	embedSparseStreamDesc = &grpc.StreamDesc{StreamName: "EmbedSparseStream", ClientStreams: true, ServerStreams: true}
	embedAllStreamDesc    = &grpc.StreamDesc{StreamName: "EmbedAllStream", ClientStreams: true, ServerStreams: true}
	predictStreamDesc     = &grpc.StreamDesc{StreamName: "PredictStream", ClientStreams: true, ServerStreams: true}
	predictPairStreamDesc = &grpc.StreamDesc{StreamName: "PredictPairStream", ClientStreams: true, ServerStreams: true}
	tokenizeStreamDesc    = &grpc.StreamDesc{StreamName: "TokenizeStream", ClientStreams: true, ServerStreams: true}
	decodeStreamDesc      = &grpc.StreamDesc{StreamName: "DecodeStream", ClientStreams: true, ServerStreams: true}
	rerankStreamDesc      = &grpc.StreamDesc{StreamName: "RerankStream", ClientStreams: true, ServerStreams: true}
)

func (c *WorkerClient) EmbedStream(ctx context.Context) (*Stream[EmbedRequest, EmbedResponse], error) {
	return NewStream[EmbedRequest, EmbedResponse](ctx, c.cc, embedStreamDesc, workerMethod("EmbedStream"))
}

func (c *WorkerClient) EmbedSparseStream(ctx context.Context) (*Stream[EmbedSparseRequest, EmbedSparseResponse], error) {
	return NewStream[EmbedSparseRequest, EmbedSparseResponse](ctx, c.cc, embedSparseStreamDesc, workerMethod("EmbedSparseStream"))
}

func (c *WorkerClient) EmbedAllStream(ctx context.Context) (*Stream[EmbedAllRequest, EmbedAllResponse], error) {
	return NewStream[EmbedAllRequest, EmbedAllResponse](ctx, c.cc, embedAllStreamDesc, workerMethod("EmbedAllStream"))
}

func (c *WorkerClient) PredictStream(ctx context.Context) (*Stream[PredictRequest, PredictResponse], error) {
	return NewStream[PredictRequest, PredictResponse](ctx, c.cc, predictStreamDesc, workerMethod("PredictStream"))
}

func (c *WorkerClient) PredictPairStream(ctx context.Context) (*Stream[PredictPairRequest, PredictPairResponse], error) {
	return NewStream[PredictPairRequest, PredictPairResponse](ctx, c.cc, predictPairStreamDesc, workerMethod("PredictPairStream"))
}

func (c *WorkerClient) TokenizeStream(ctx context.Context) (*Stream[EncodeRequest, EncodeResponse], error) {
	return NewStream[EncodeRequest, EncodeResponse](ctx, c.cc, tokenizeStreamDesc, workerMethod("TokenizeStream"))
}

func (c *WorkerClient) DecodeStream(ctx context.Context) (*Stream[DecodeRequest, DecodeResponse], error) {
	return NewStream[DecodeRequest, DecodeResponse](ctx, c.cc, decodeStreamDesc, workerMethod("DecodeStream"))
}

// RerankStream is the one bidi-to-unary RPC: the worker accepts a stream of
// query/candidate chunks and replies with a single RerankResponse once the
// client half-closes.
func (c *WorkerClient) RerankStream(ctx context.Context) (*Stream[RerankStreamRequest, RerankResponse], error) {
	return NewStream[RerankStreamRequest, RerankResponse](ctx, c.cc, rerankStreamDesc, workerMethod("RerankStream"))
}
