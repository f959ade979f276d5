package mux

import (
	"context"
	"io"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nazq/tei-manager-sub000/internal/logging"
	"github.com/nazq/tei-manager-sub000/internal/metrics"
	"github.com/nazq/tei-manager-sub000/internal/muxpb"
	"github.com/nazq/tei-manager-sub000/internal/pool"
	"github.com/nazq/tei-manager-sub000/internal/registry"
)

var log = logging.WithComponent("mux")

// defaultResponseBacklog matches config.Default().GRPCMaxParallelStreams,
// used when New is called without an explicit override.
const defaultResponseBacklog = 1024

// Service implements muxpb.MultiplexerServer, forwarding every call to the
// backend instance its Target resolves to.
type Service struct {
	registry *registry.Registry
	pool     *pool.Pool
	metrics  *metrics.Collector

	// responseBacklog bounds how many backend responses may queue up inside
	// forwardStream waiting for a slow client to drain them -- the system's
	// backpressure knob (SPEC_FULL SS4.6).
	responseBacklog int
}

// New constructs a Service over reg and p, recording forwarding metrics on
// collector (may be nil in tests).
func New(reg *registry.Registry, p *pool.Pool, collector *metrics.Collector) *Service {
	return &Service{registry: reg, pool: p, metrics: collector, responseBacklog: defaultResponseBacklog}
}

// WithMaxParallelStreams overrides the per-stream response backlog, typically
// from ManagerConfig.GRPCMaxParallelStreams.
func (s *Service) WithMaxParallelStreams(n int) *Service {
	if n > 0 {
		s.responseBacklog = n
	}
	return s
}

func (s *Service) observe(method string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveForward(method, time.Since(start), err)
	if err != nil {
		s.metrics.ForwardError(method, status.Code(err).String())
	}
}

func (s *Service) backendFor(ctx context.Context, target *muxpb.Target) (*muxpb.WorkerClient, error) {
	name, err := resolveTarget(s.registry, target)
	if err != nil {
		return nil, err
	}
	client, err := s.pool.Get(ctx, name)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return client, nil
}

// --- Unary RPCs --------------------------------------------------------

// errMissingPayload is returned by every unary method when the envelope's
// inner request is unset, before any backend is contacted.
var errMissingPayload = status.Error(codes.InvalidArgument, "request payload is required")

func (s *Service) Info(ctx context.Context, req *muxpb.MuxInfoRequest) (resp *muxpb.InfoResponse, err error) {
	defer func(start time.Time) { s.observe("Info", start, err) }(time.Now())
	if req.Request == nil {
		return nil, errMissingPayload
	}
	client, err := s.backendFor(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return client.Info(ctx, req.Request)
}

func (s *Service) Embed(ctx context.Context, req *muxpb.MuxEmbedRequest) (resp *muxpb.EmbedResponse, err error) {
	defer func(start time.Time) { s.observe("Embed", start, err) }(time.Now())
	if req.Request == nil {
		return nil, errMissingPayload
	}
	client, err := s.backendFor(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return client.Embed(ctx, req.Request)
}

func (s *Service) EmbedSparse(ctx context.Context, req *muxpb.MuxEmbedSparseRequest) (resp *muxpb.EmbedSparseResponse, err error) {
	defer func(start time.Time) { s.observe("EmbedSparse", start, err) }(time.Now())
	if req.Request == nil {
		return nil, errMissingPayload
	}
	client, err := s.backendFor(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return client.EmbedSparse(ctx, req.Request)
}

func (s *Service) EmbedAll(ctx context.Context, req *muxpb.MuxEmbedAllRequest) (resp *muxpb.EmbedAllResponse, err error) {
	defer func(start time.Time) { s.observe("EmbedAll", start, err) }(time.Now())
	if req.Request == nil {
		return nil, errMissingPayload
	}
	client, err := s.backendFor(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return client.EmbedAll(ctx, req.Request)
}

func (s *Service) Predict(ctx context.Context, req *muxpb.MuxPredictRequest) (resp *muxpb.PredictResponse, err error) {
	defer func(start time.Time) { s.observe("Predict", start, err) }(time.Now())
	if req.Request == nil {
		return nil, errMissingPayload
	}
	client, err := s.backendFor(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return client.Predict(ctx, req.Request)
}

func (s *Service) PredictPair(ctx context.Context, req *muxpb.MuxPredictPairRequest) (resp *muxpb.PredictPairResponse, err error) {
	defer func(start time.Time) { s.observe("PredictPair", start, err) }(time.Now())
	if req.Request == nil {
		return nil, errMissingPayload
	}
	client, err := s.backendFor(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return client.PredictPair(ctx, req.Request)
}

func (s *Service) Rerank(ctx context.Context, req *muxpb.MuxRerankRequest) (resp *muxpb.RerankResponse, err error) {
	defer func(start time.Time) { s.observe("Rerank", start, err) }(time.Now())
	if req.Request == nil {
		return nil, errMissingPayload
	}
	client, err := s.backendFor(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return client.Rerank(ctx, req.Request)
}

func (s *Service) Tokenize(ctx context.Context, req *muxpb.MuxTokenizeRequest) (resp *muxpb.EncodeResponse, err error) {
	defer func(start time.Time) { s.observe("Tokenize", start, err) }(time.Now())
	if req.Request == nil {
		return nil, errMissingPayload
	}
	client, err := s.backendFor(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return client.Tokenize(ctx, req.Request)
}

func (s *Service) Decode(ctx context.Context, req *muxpb.MuxDecodeRequest) (resp *muxpb.DecodeResponse, err error) {
	defer func(start time.Time) { s.observe("Decode", start, err) }(time.Now())
	if req.Request == nil {
		return nil, errMissingPayload
	}
	client, err := s.backendFor(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return client.Decode(ctx, req.Request)
}

// --- Streaming RPCs ------------------------------------------------------
//
// Each of the seven streaming RPCs shares one shape: the first client
// message carries the routing Target, every message (including the first)
// carries one native request to forward, and every backend response is
// relayed back as soon as it arrives. forwardStream in stream.go implements
// this once, as a generic function over (Req, Resp), in place of the
// per-RPC macro expansion the original used.

func (s *Service) EmbedStream(srv interface{}, stream *muxpb.ServerStream[muxpb.MuxEmbedRequest, muxpb.EmbedResponse]) error {
	return forwardStream(s, "EmbedStream", stream,
		func(ctx context.Context, c *muxpb.WorkerClient) (*muxpb.Stream[muxpb.EmbedRequest, muxpb.EmbedResponse], error) {
			return c.EmbedStream(ctx)
		})
}

func (s *Service) EmbedSparseStream(srv interface{}, stream *muxpb.ServerStream[muxpb.MuxEmbedSparseRequest, muxpb.EmbedSparseResponse]) error {
	return forwardStream(s, "EmbedSparseStream", stream,
		func(ctx context.Context, c *muxpb.WorkerClient) (*muxpb.Stream[muxpb.EmbedSparseRequest, muxpb.EmbedSparseResponse], error) {
			return c.EmbedSparseStream(ctx)
		})
}

func (s *Service) EmbedAllStream(srv interface{}, stream *muxpb.ServerStream[muxpb.MuxEmbedAllRequest, muxpb.EmbedAllResponse]) error {
	return forwardStream(s, "EmbedAllStream", stream,
		func(ctx context.Context, c *muxpb.WorkerClient) (*muxpb.Stream[muxpb.EmbedAllRequest, muxpb.EmbedAllResponse], error) {
			return c.EmbedAllStream(ctx)
		})
}

func (s *Service) PredictStream(srv interface{}, stream *muxpb.ServerStream[muxpb.MuxPredictRequest, muxpb.PredictResponse]) error {
	return forwardStream(s, "PredictStream", stream,
		func(ctx context.Context, c *muxpb.WorkerClient) (*muxpb.Stream[muxpb.PredictRequest, muxpb.PredictResponse], error) {
			return c.PredictStream(ctx)
		})
}

func (s *Service) PredictPairStream(srv interface{}, stream *muxpb.ServerStream[muxpb.MuxPredictPairRequest, muxpb.PredictPairResponse]) error {
	return forwardStream(s, "PredictPairStream", stream,
		func(ctx context.Context, c *muxpb.WorkerClient) (*muxpb.Stream[muxpb.PredictPairRequest, muxpb.PredictPairResponse], error) {
			return c.PredictPairStream(ctx)
		})
}

func (s *Service) TokenizeStream(srv interface{}, stream *muxpb.ServerStream[muxpb.MuxTokenizeRequest, muxpb.EncodeResponse]) error {
	return forwardStream(s, "TokenizeStream", stream,
		func(ctx context.Context, c *muxpb.WorkerClient) (*muxpb.Stream[muxpb.EncodeRequest, muxpb.EncodeResponse], error) {
			return c.TokenizeStream(ctx)
		})
}

func (s *Service) DecodeStream(srv interface{}, stream *muxpb.ServerStream[muxpb.MuxDecodeRequest, muxpb.DecodeResponse]) error {
	return forwardStream(s, "DecodeStream", stream,
		func(ctx context.Context, c *muxpb.WorkerClient) (*muxpb.Stream[muxpb.DecodeRequest, muxpb.DecodeResponse], error) {
			return c.DecodeStream(ctx)
		})
}

// RerankStream is the one bidi-to-unary RPC: the client streams query and
// candidate-text chunks, and the server replies with a single RerankResponse
// once the client half-closes. It cannot share forwardStream's
// every-message-gets-a-reply shape, so it is implemented directly.
func (s *Service) RerankStream(srv interface{}, stream *muxpb.ServerStream[muxpb.MuxRerankStreamRequest, muxpb.RerankResponse]) (err error) {
	defer func(start time.Time) { s.observe("RerankStream", start, err) }(time.Now())

	ctx := stream.Context()

	first, recvErr := stream.Recv()
	if recvErr != nil {
		if recvErr == io.EOF {
			return status.Error(codes.InvalidArgument, "rerank stream closed before target was sent")
		}
		return recvErr
	}

	client, err := s.backendFor(ctx, first.Target)
	if err != nil {
		return err
	}

	backend, err := client.RerankStream(ctx)
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}

	if first.Request != nil {
		if err = backend.Send(first.Request); err != nil {
			return err
		}
	}

	for {
		msg, recvErr := stream.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			return recvErr
		}
		if msg.Request != nil {
			if err = backend.Send(msg.Request); err != nil {
				return err
			}
		}
	}

	if err = backend.CloseSend(); err != nil {
		return err
	}

	resp, err := backend.Recv()
	if err != nil {
		return err
	}
	return stream.Send(resp)
}
