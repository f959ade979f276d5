package mux

import (
	"context"
	"io"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nazq/tei-manager-sub000/internal/muxpb"
)

// forwardStream implements the shared shape of all seven streaming RPCs:
// the first client message carries the routing Target, every message
// (including the first) carries one native request, and every backend
// response is relayed back as soon as it arrives. It replaces the
// impl_stream_rpc! macro the original expanded once per RPC with a single
// generic function, instantiated once per RPC in service.go.
func forwardStream[Req, Resp any](
	s *Service,
	method string,
	stream *muxpb.ServerStream[muxpb.Envelope[Req], Resp],
	dial func(ctx context.Context, client *muxpb.WorkerClient) (*muxpb.Stream[Req, Resp], error),
) (err error) {
	defer func(start time.Time) { s.observe(method, start, err) }(time.Now())

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	first, recvErr := stream.Recv()
	if recvErr == io.EOF {
		return status.Error(codes.InvalidArgument, "Empty stream")
	}
	if recvErr != nil {
		return recvErr
	}

	client, err := s.backendFor(ctx, first.Target)
	if err != nil {
		return err
	}

	backend, err := dial(ctx, client)
	if err != nil {
		return err
	}

	respCh := make(chan *Resp, s.responseBacklog)
	recvDone := make(chan error, 1)
	sendDone := make(chan error, 1)

	// backend -> respCh: builds the lazy response stream the forwarder
	// relays to the client as soon as each message arrives.
	go func() {
		for {
			resp, rerr := backend.Recv()
			if rerr == io.EOF {
				close(respCh)
				recvDone <- nil
				return
			}
			if rerr != nil {
				close(respCh)
				recvDone <- rerr
				return
			}
			respCh <- resp
		}
	}()

	// client -> backend: forwards the first message already read, then
	// every subsequent one, half-closing the backend stream when the
	// client does.
	go func() {
		if first.Request != nil {
			if serr := backend.Send(first.Request); serr != nil {
				sendDone <- serr
				return
			}
		}
		for {
			msg, rerr := stream.Recv()
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				log.Warn().Str("method", method).Err(rerr).Msg("inbound stream read failed, closing backend send side")
				sendDone <- rerr
				return
			}
			if msg.Request == nil {
				continue
			}
			if serr := backend.Send(msg.Request); serr != nil {
				sendDone <- serr
				return
			}
		}
		sendDone <- backend.CloseSend()
	}()

	for resp := range respCh {
		if serr := stream.Send(resp); serr != nil {
			err = serr
			// The client is gone: cancelling ctx tears down the backend
			// stream, so backend.Recv fails and respCh is closed.
			cancel()
			for range respCh {
			}
			break
		}
	}

	if recvErr := <-recvDone; err == nil && recvErr != nil {
		err = recvErr
	}
	if sendErr := <-sendDone; err == nil && sendErr != nil {
		err = sendErr
	}
	return err
}
