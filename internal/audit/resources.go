package audit

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/org/servercatalog/pkg/models"
)

const HighMemoryUsage = "HIGH_MEMORY_USAGE"

// CheckResources logs HIGH_MEMORY_USAGE when the heap exceeds threshold bytes.
// It reports whether the alert fired.
func (l *Logger) CheckResources(threshold uint64) bool {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapAlloc <= threshold {
		return false
	}
	l.LogEvent(models.EventSuspiciousActivity, models.SeverityMedium, map[string]any{
		"event": HighMemoryUsage,
		"memoryUsage": map[string]any{
			"heapUsed":  toMB(m.HeapAlloc),
			"heapTotal": toMB(m.HeapSys),
		},
	})
	return true
}

// MonitorResources calls CheckResources every interval until ctx is cancelled.
func (l *Logger) MonitorResources(ctx context.Context, every time.Duration, threshold uint64) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.CheckResources(threshold)
		}
	}
}

func toMB(b uint64) string {
	return strconv.FormatUint(b/1024/1024, 10) + "MB"
}
