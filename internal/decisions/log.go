// Package decisions keeps a bounded log of agentic decisions for status
// reporting. The log is write-only with respect to routing: the router never
// reads it.
package decisions

import (
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// DefaultCapacity is the number of decisions retained before the oldest are
// evicted.
const DefaultCapacity = 1000

// Type classifies an agentic decision.
type Type string

const (
	RoutingOptimization       Type = "routing_optimization"
	CostOptimization          Type = "cost_optimization"
	PerformanceEnhancement    Type = "performance_enhancement"
	ModelSelection            Type = "model_selection"
	InfrastructureScaling     Type = "infrastructure_scaling"
	UserExperienceImprovement Type = "user_experience_improvement"
)

// Decision is one recorded agentic decision.
type Decision struct {
	ID              string    `json:"id"`
	Type            Type      `json:"type"`
	Reasoning       string    `json:"reasoning"`
	Action          string    `json:"action"`
	ExpectedBenefit string    `json:"expected_benefit"`
	Timestamp       time.Time `json:"timestamp"`
	Success         *bool     `json:"success"`
}

// Log is a fixed-size ring of decisions, safe for concurrent use.
type Log struct {
	mu    sync.RWMutex
	buf   []Decision
	next  int
	full  bool
	total int64
	now   func() time.Time
}

// NewLog creates a log holding at most capacity decisions.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{buf: make([]Decision, capacity), now: time.Now}
}

// Record stores d, assigning an ID and timestamp when missing, and returns
// the stored value.
func (l *Log) Record(d Decision) Decision {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if d.Timestamp.IsZero() {
		d.Timestamp = l.now()
	}
	l.buf[l.next] = d
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	l.total++
	return d
}

// Len returns the number of retained decisions.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return len(l.buf)
	}
	return l.next
}

// Total returns the number of decisions ever recorded, including evicted ones.
func (l *Log) Total() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Recent returns up to limit decisions made at or after since, newest first.
// A non-positive limit returns all matches.
func (l *Log) Recent(since time.Time, limit int) []Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.next
	if l.full {
		n = len(l.buf)
	}
	out := make([]Decision, 0)
	for i := 0; i < n; i++ {
		idx := (l.next - 1 - i + len(l.buf)) % len(l.buf)
		d := l.buf[idx]
		if d.Timestamp.Before(since) {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Export renders all retained decisions, oldest first, as JSON.
func (l *Log) Export() ([]byte, error) {
	all := l.Recent(time.Time{}, 0)
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return json.Marshal(all)
}
