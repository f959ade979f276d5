package gpudetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoCount(t *testing.T) {
	info := Info{Indices: []uint32{0, 1, 2}}
	assert.Equal(t, 3, info.Count())
	assert.Equal(t, 0, Info{}.Count())
}

func TestIsValidGPUID(t *testing.T) {
	info := Info{Indices: []uint32{0, 1}}
	assert.True(t, info.IsValidGPUID(0))
	assert.True(t, info.IsValidGPUID(1))
	assert.False(t, info.IsValidGPUID(2))
	assert.False(t, Info{}.IsValidGPUID(0))
}

func TestResolveCUDADevice(t *testing.T) {
	info := Info{Indices: []uint32{3, 7}}

	dev, ok := info.ResolveCUDADevice(0)
	assert.True(t, ok)
	assert.Equal(t, "3", dev)

	dev, ok = info.ResolveCUDADevice(1)
	assert.True(t, ok)
	assert.Equal(t, "7", dev)

	_, ok = info.ResolveCUDADevice(2)
	assert.False(t, ok)
}

func TestDetectWithoutNvidiaSMIReturnsEmptyInfo(t *testing.T) {
	// nvidia-smi is assumed absent in the CI/test environment, exercising
	// Detect's non-fatal failure path rather than a mocked subprocess.
	info := Detect()
	assert.Equal(t, 0, info.Count())
}

func TestDetectOnceCachesResult(t *testing.T) {
	first := DetectOnce()
	second := DetectOnce()
	assert.Equal(t, first, second)
}
