// Package mux implements the multiplexer's superset RPC surface: one gRPC
// service taking a routing Target alongside each native worker request and
// forwarding to the addressed backend through the connection pool.
package mux

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nazq/tei-manager-sub000/internal/muxpb"
	"github.com/nazq/tei-manager-sub000/internal/registry"
)

// resolveTarget turns a routing Target into the concrete instance name to
// forward to. Only by-name routing is implemented; by-model-id and
// by-instance-index are recognized but not resolved, matching the
// original's partially-implemented routing surface (see SPEC_FULL SS4.6).
func resolveTarget(reg *registry.Registry, target *muxpb.Target) (string, error) {
	if target == nil {
		return "", status.Error(codes.InvalidArgument, "target is required")
	}

	switch target.Kind {
	case muxpb.RoutingInstanceName:
		if target.InstanceName == "" {
			return "", status.Error(codes.InvalidArgument, "target.instance_name must not be empty")
		}
		if reg.Get(target.InstanceName) == nil {
			return "", status.Errorf(codes.NotFound, "instance %q not found", target.InstanceName)
		}
		return target.InstanceName, nil

	case muxpb.RoutingModelID:
		return "", status.Errorf(codes.Unimplemented, "Model-based routing not yet implemented: %q", target.ModelID)

	case muxpb.RoutingInstanceIndex:
		return "", status.Errorf(codes.Unimplemented, "Instance-index routing not yet implemented: %d", target.InstanceIndex)

	default:
		return "", status.Error(codes.InvalidArgument, "target routing is unset")
	}
}
