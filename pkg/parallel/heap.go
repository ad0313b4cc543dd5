package parallel

import (
	"context"
	"runtime/metrics"
	"sync"
	"time"
)

const (
	heapMetric         = "/memory/classes/heap/objects:bytes"
	heapSampleInterval = 5 * time.Millisecond
)

// heapSampler tracks the largest heap seen while one job runs. The heap is
// the process's, so jobs running side by side see each other's allocations.
type heapSampler struct {
	stop chan struct{}
	done chan struct{}
	mu   sync.Mutex
	peak uint64
}

// sampleHeap starts sampling until Stop or ctx is done
func sampleHeap(ctx context.Context) *heapSampler {
	h := &heapSampler{stop: make(chan struct{}), done: make(chan struct{})}
	h.observe()
	go h.loop(ctx)
	return h
}

func (h *heapSampler) loop(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(heapSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.observe()
		}
	}
}

func (h *heapSampler) observe() {
	sample := []metrics.Sample{{Name: heapMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return
	}
	v := sample[0].Value.Uint64()
	h.mu.Lock()
	if v > h.peak {
		h.peak = v
	}
	h.mu.Unlock()
}

// Stop ends sampling and returns the peak, including a last sample
func (h *heapSampler) Stop() uint64 {
	close(h.stop)
	<-h.done
	h.observe()
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peak
}
