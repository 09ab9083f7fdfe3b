// Package perfmonitor provides a small stopwatch used to time session
// lifetimes and message fan-outs for debug logging.
package perfmonitor

import (
	"sync"
	"time"
)

// PerformanceMonitor measures the wall-clock time between Start and Stop. It is
// safe for concurrent use.
type PerformanceMonitor struct {
	mu        sync.Mutex
	startTime time.Time
	endTime   time.Time
}

// NewPerformanceMonitor returns a stopwatch with no recorded times.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{}
}

// StartNew returns a stopwatch that is already running.
func StartNew() *PerformanceMonitor {
	pm := NewPerformanceMonitor()
	pm.Start()
	return pm
}

// Start records the start time and clears any previous end time.
func (pm *PerformanceMonitor) Start() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.startTime = time.Now()
	pm.endTime = time.Time{}
}

// Stop records the end time. It does nothing if Start has not been called
// since the last Reset. Calling Stop again moves the end time forward.
func (pm *PerformanceMonitor) Stop() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.startTime.IsZero() {
		return
	}

	pm.endTime = time.Now()
}

// Reset clears both recorded times.
func (pm *PerformanceMonitor) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.startTime = time.Time{}
	pm.endTime = time.Time{}
}

// Elapsed returns the time between Start and Stop, or zero when either is
// missing.
func (pm *PerformanceMonitor) Elapsed() time.Duration {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.startTime.IsZero() || pm.endTime.IsZero() {
		return 0
	}

	return pm.endTime.Sub(pm.startTime)
}

// ElapsedMilliseconds returns Elapsed as fractional milliseconds.
func (pm *PerformanceMonitor) ElapsedMilliseconds() float64 {
	return float64(pm.Elapsed()) / float64(time.Millisecond)
}
