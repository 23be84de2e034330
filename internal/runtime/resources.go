package runtime

import (
	goruntime "runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const cpuSecondsMetric = "/sched/cpu:seconds"

// ResourceUsage is a coarse view of process load, reported by heapstalk and
// the status endpoint.
type ResourceUsage struct {
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryBytes uint64    `json:"memory_bytes"`
	HeapObjects uint64    `json:"heap_objects"`
	Goroutines  int       `json:"goroutines"`
	SampledAt   time.Time `json:"sampled_at"`
}

// resourceTracker derives CPU usage from the delta between two samples.
type resourceTracker struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	numCPU         float64
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		samples: []metrics.Sample{{Name: cpuSecondsMetric}},
		numCPU:  float64(goruntime.NumCPU()),
	}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		r.samples = []metrics.Sample{{Name: cpuSecondsMetric}}
	}
	metrics.Read(r.samples)

	now := time.Now()
	usage := ResourceUsage{SampledAt: now, Goroutines: goruntime.NumGoroutine()}

	if sample := r.samples[0]; sample.Value.Kind() == metrics.KindFloat64 {
		cpuSeconds := sample.Value.Float64()
		if !r.lastSample.IsZero() && r.numCPU > 0 {
			if wall := now.Sub(r.lastSample).Seconds(); wall > 0 {
				usage.CPUPercent = (cpuSeconds - r.lastCPUSeconds) / wall / r.numCPU * 100
			}
		}
		r.lastCPUSeconds = cpuSeconds
	}
	r.lastSample = now

	var mem goruntime.MemStats
	goruntime.ReadMemStats(&mem)
	usage.MemoryBytes = mem.HeapAlloc
	usage.HeapObjects = mem.HeapObjects
	return usage
}

// HeapBytes is the probe handed to heapstalk.
func (r *resourceTracker) HeapBytes() uint64 {
	return r.Snapshot().MemoryBytes
}
