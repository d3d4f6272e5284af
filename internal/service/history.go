package service

import (
	"sync"

	"github.com/rmahmud/route-director/internal/domain"
)

// DefaultHistorySize bounds the decision history when no size is configured.
const DefaultHistorySize = 1000

// History is a bounded FIFO record of recent routing decisions. One entry
// is written per completed route; the adaptive strategy and the reporting
// layer read windows of it. Oldest entries are evicted when full.
type History struct {
	mu       sync.RWMutex
	records  []domain.DecisionRecord
	next     int
	size     int
	capacity int
}

// NewHistory creates a history ring with the given capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		records:  make([]domain.DecisionRecord, capacity),
		capacity: capacity,
	}
}

// Append records one decision, evicting the oldest entry when full.
func (h *History) Append(record domain.DecisionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records[h.next] = record
	h.next = (h.next + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	}
}

// Len returns the number of records currently held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Recent returns up to n most recent records, oldest first.
func (h *History) Recent(n int) []domain.DecisionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > h.size {
		n = h.size
	}
	if n <= 0 {
		return nil
	}

	out := make([]domain.DecisionRecord, 0, n)
	start := h.next - n
	if start < 0 {
		start += h.capacity
	}
	for i := 0; i < n; i++ {
		out = append(out, h.records[(start+i)%h.capacity])
	}
	return out
}

// All returns every held record, oldest first.
func (h *History) All() []domain.DecisionRecord {
	return h.Recent(h.capacity)
}
