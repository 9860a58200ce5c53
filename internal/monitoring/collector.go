// Package monitoring tracks verification outcomes, raises webhook alerts on
// elevated hard-failure rates, and detects stale source documents.
package monitoring

import (
	"sync"
	"time"

	"github.com/sells-group/claimtrace/internal/model"
)

// MetricsSnapshot holds a point-in-time view of verification health.
type MetricsSnapshot struct {
	Requests  int `json:"requests"` // accepted + exhausted
	Accepted  int `json:"accepted"`
	Verified  int `json:"verified"`
	Flagged   int `json:"flagged"`
	Exhausted int `json:"exhausted"`

	// TotalAttempts counts every proposal attempt consumed, accepted or not.
	TotalAttempts int `json:"total_attempts"`

	// HardFailRate is exhausted / (accepted + exhausted).
	HardFailRate float64 `json:"hard_fail_rate"`

	// CheckFailures counts failed verification checks by check id, across
	// all attempts.
	CheckFailures map[string]int `json:"check_failures"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector accumulates verification outcomes in process. It implements the
// pipeline Observer interface and is safe for concurrent use.
type Collector struct {
	mu            sync.Mutex
	accepted      int
	verified      int
	flagged       int
	exhausted     int
	totalAttempts int
	checkFailures map[string]int
}

func NewCollector() *Collector {
	return &Collector{checkFailures: map[string]int{}}
}

func (c *Collector) ExtractionAccepted(status model.VerificationStatus, attempts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted++
	c.totalAttempts += attempts
	if status == model.StatusFlagged {
		c.flagged++
	} else {
		c.verified++
	}
}

func (c *Collector) ExtractionExhausted(attempts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exhausted++
	c.totalAttempts += attempts
}

func (c *Collector) CheckFailed(checkID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkFailures[checkID]++
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := MetricsSnapshot{
		Requests:      c.accepted + c.exhausted,
		Accepted:      c.accepted,
		Verified:      c.verified,
		Flagged:       c.flagged,
		Exhausted:     c.exhausted,
		TotalAttempts: c.totalAttempts,
		CheckFailures: make(map[string]int, len(c.checkFailures)),
		CollectedAt:   time.Now().UTC(),
	}
	for k, v := range c.checkFailures {
		snap.CheckFailures[k] = v
	}
	if snap.Requests > 0 {
		snap.HardFailRate = float64(c.exhausted) / float64(snap.Requests)
	}
	return snap
}

// Reset zeroes all counters, starting a new observation window.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accepted = 0
	c.verified = 0
	c.flagged = 0
	c.exhausted = 0
	c.totalAttempts = 0
	c.checkFailures = map[string]int{}
}
