// Package gpudetect detects GPUs visible to this process and maps the
// manager's virtual GPU indices onto the physical indices nvidia-smi reports.
//
// In multi-tenant environments the container may see device files for only a
// subset of the host's GPUs; the virtual index (0, 1, 2...) a caller passes
// as InstanceConfig.GPUID always refers to position within that visible set,
// never a raw physical ordinal.
package gpudetect

import (
	"bufio"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/nazq/tei-manager-sub000/internal/logging"
)

var log = logging.WithComponent("gpudetect")

// Info is the detected GPU topology visible to this process.
type Info struct {
	Indices            []uint32
	CUDAVisibleDevices string
}

// Count returns the number of visible GPUs.
func (i Info) Count() int { return len(i.Indices) }

// IsValidGPUID reports whether id indexes into the visible set.
func (i Info) IsValidGPUID(id uint32) bool {
	return int(id) < len(i.Indices)
}

// ResolveCUDADevice maps a virtual GPU id to the physical index nvidia-smi
// reported for it.
func (i Info) ResolveCUDADevice(virtualID uint32) (string, bool) {
	if !i.IsValidGPUID(virtualID) {
		return "", false
	}
	return strconv.FormatUint(uint64(i.Indices[virtualID]), 10), true
}

// Detect runs nvidia-smi and parses the visible GPU indices. A failure to
// run or parse nvidia-smi is not fatal: it is logged and an empty Info
// (zero GPUs) is returned, matching hosts with no GPU at all.
func Detect() Info {
	cmd := exec.Command("nvidia-smi", "--query-gpu=index", "--format=csv,noheader")
	out, err := cmd.Output()
	if err != nil {
		log.Warn().Err(err).Msg("nvidia-smi unavailable, assuming no GPUs")
		return Info{}
	}

	var indices []uint32
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := strconv.ParseUint(line, 10, 32)
		if err != nil {
			continue
		}
		indices = append(indices, uint32(n))
	}

	strs := make([]string, len(indices))
	for idx, v := range indices {
		strs[idx] = strconv.FormatUint(uint64(v), 10)
	}

	info := Info{Indices: indices, CUDAVisibleDevices: strings.Join(strs, ",")}
	log.Info().Int("gpu_count", info.Count()).Str("cuda_visible_devices", info.CUDAVisibleDevices).
		Msg("detected available GPUs")
	return info
}

var (
	once   sync.Once
	cached Info
)

// DetectOnce runs Detect at most once per process and caches the result.
func DetectOnce() Info {
	once.Do(func() {
		cached = Detect()
	})
	return cached
}
