package health

import (
	"context"

	"github.com/nazq/tei-manager-sub000/internal/instance"
	"github.com/nazq/tei-manager-sub000/internal/muxpb"
	"github.com/nazq/tei-manager-sub000/internal/pool"
)

// GRPCProber probes an instance by calling its Info RPC through the shared
// connection pool, reusing the same cached connection the multiplexer
// forwards requests over instead of opening a side channel per check.
type GRPCProber struct {
	Pool *pool.Pool
}

func (p GRPCProber) Probe(ctx context.Context, inst *instance.Instance) error {
	client, err := p.Pool.Get(ctx, inst.Config.Name)
	if err != nil {
		return err
	}
	_, err = client.Info(ctx, &muxpb.InfoRequest{})
	return err
}
