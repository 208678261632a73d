package meterz

import (
	"sync"
)

// Collector is an in-memory append-only Sink.
// Safe for concurrent use by multiple goroutines.
type Collector struct {
	lines []string
	limit int
	mu    sync.Mutex
}

// NewCollector creates a collector reporting the given line limit (0 = none).
func NewCollector(limit int) *Collector {
	return &Collector{
		lines: make([]string, 0, 8), // Start with small capacity.
		limit: limit,
	}
}

// Log appends a line.
func (c *Collector) Log(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if buffer needs to grow - optimized growth strategy.
	if len(c.lines) >= cap(c.lines) {
		currentCap := cap(c.lines)
		var newCap int
		if currentCap < 1024 {
			// Double capacity for small buffers.
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers to avoid excessive memory usage.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		newSlice := make([]string, len(c.lines), newCap)
		copy(newSlice, c.lines)
		c.lines = newSlice
	}
	c.lines = append(c.lines, line)
}

// LineLimit returns the limit given to NewCollector.
func (c *Collector) LineLimit() int {
	return c.limit
}

// Lines returns a copy of all buffered lines without clearing them.
func (c *Collector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]string, len(c.lines))
	copy(result, c.lines)
	return result
}

// Export returns a copy of all buffered lines and clears the buffer.
// The returned slice is safe to modify without affecting the collector.
func (c *Collector) Export() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.lines) == 0 {
		return nil
	}

	result := make([]string, len(c.lines))
	copy(result, c.lines)

	// Only shrink if buffer is very oversized to avoid allocation churn.
	if cap(c.lines) > 256 && len(c.lines) < cap(c.lines)/8 {
		newCap := cap(c.lines) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.lines = make([]string, 0, newCap)
	} else {
		clear(c.lines)
		c.lines = c.lines[:0] // Keep capacity, reset length.
	}

	return result
}

// Count returns the current number of buffered lines.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Reset clears all buffered lines.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.lines)
	c.lines = c.lines[:0]
}
