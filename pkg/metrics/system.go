package metrics

import (
	"context"
	"runtime"
	"time"
)

const nanosecondsPerMillisecond = 1e6

// RefreshInterval returns how often the runtime gauges are sampled.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// CollectSystem samples memory, goroutine and GC statistics once.
func CollectSystem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	UpdateSystemMemoryUsage(ms.Alloc)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if ms.NumGC > 0 {
		RecordSystemGCPauseTime(float64(ms.PauseTotalNs) / float64(ms.NumGC) / nanosecondsPerMillisecond)
	}
}

// RunSystemCollector samples the runtime gauges every interval until ctx
// is done. A non-positive interval uses the global manager's refresh
// interval.
func RunSystemCollector(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = globalManager.RefreshInterval()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	CollectSystem()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			CollectSystem()
		}
	}
}
