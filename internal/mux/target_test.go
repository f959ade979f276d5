package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nazq/tei-manager-sub000/internal/config"
	"github.com/nazq/tei-manager-sub000/internal/muxpb"
	"github.com/nazq/tei-manager-sub000/internal/registry"
)

func TestResolveTargetNilReturnsInvalidArgument(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	_, err := resolveTarget(reg, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestResolveTargetUnsetKindReturnsInvalidArgument(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	_, err := resolveTarget(reg, &muxpb.Target{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestResolveTargetByNameEmptyNameIsInvalidArgument(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	_, err := resolveTarget(reg, &muxpb.Target{Kind: muxpb.RoutingInstanceName})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestResolveTargetByNameUnknownInstanceIsNotFound(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	_, err := resolveTarget(reg, &muxpb.Target{Kind: muxpb.RoutingInstanceName, InstanceName: "ghost"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestResolveTargetByNameKnownInstanceResolves(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	_, err := reg.Add(config.InstanceConfig{Name: "a", Port: 8081})
	require.NoError(t, err)

	name, err := resolveTarget(reg, &muxpb.Target{Kind: muxpb.RoutingInstanceName, InstanceName: "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", name)
}

func TestResolveTargetByModelIDIsUnimplemented(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	_, err := resolveTarget(reg, &muxpb.Target{Kind: muxpb.RoutingModelID, ModelID: "bge-small"})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestResolveTargetByInstanceIndexIsUnimplemented(t *testing.T) {
	reg := registry.New(nil, 8080, 8090)
	_, err := resolveTarget(reg, &muxpb.Target{Kind: muxpb.RoutingInstanceIndex, InstanceIndex: 0})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
