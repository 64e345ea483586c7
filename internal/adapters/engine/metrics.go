package engine

import (
	"sync"
	"time"
)

type MetricsTracker struct {
	mu      sync.RWMutex
	metrics Metrics
}

type Metrics struct {
	RunsStarted     int64         `json:"runs_started"`
	RunsCompleted   int64         `json:"runs_completed"`
	NodesStarted    int64         `json:"nodes_started"`
	NodesCompleted  int64         `json:"nodes_completed"`
	NodesFailed     int64         `json:"nodes_failed"`
	NodesSkipped    int64         `json:"nodes_skipped"`
	Retries         int64         `json:"retries"`
	Heals           int64         `json:"heals"`
	HealFailures    int64         `json:"heal_failures"`
	Timeouts        int64         `json:"timeouts"`
	Panics          int64         `json:"panics"`
	LastPanicAt     *time.Time    `json:"last_panic_at,omitempty"`
	TotalNodeTime   time.Duration `json:"total_node_time"`
	LongestNodeTime time.Duration `json:"longest_node_time"`
}

func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{}
}

func (mt *MetricsTracker) update(fn func(m *Metrics)) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	fn(&mt.metrics)
}

func (mt *MetricsTracker) RecordRun(finished bool) {
	mt.update(func(m *Metrics) {
		if finished {
			m.RunsCompleted++
		} else {
			m.RunsStarted++
		}
	})
}

func (mt *MetricsTracker) RecordNodeStart() {
	mt.update(func(m *Metrics) { m.NodesStarted++ })
}

func (mt *MetricsTracker) RecordNodeExecution(duration time.Duration, success bool) {
	mt.update(func(m *Metrics) {
		if success {
			m.NodesCompleted++
		} else {
			m.NodesFailed++
		}
		m.TotalNodeTime += duration
		if duration > m.LongestNodeTime {
			m.LongestNodeTime = duration
		}
	})
}

func (mt *MetricsTracker) RecordSkip() {
	mt.update(func(m *Metrics) { m.NodesSkipped++ })
}

func (mt *MetricsTracker) RecordRetry() {
	mt.update(func(m *Metrics) { m.Retries++ })
}

func (mt *MetricsTracker) RecordHeal(success bool) {
	mt.update(func(m *Metrics) {
		if success {
			m.Heals++
		} else {
			m.HealFailures++
		}
	})
}

func (mt *MetricsTracker) RecordTimeout() {
	mt.update(func(m *Metrics) { m.Timeouts++ })
}

func (mt *MetricsTracker) RecordPanic() {
	mt.update(func(m *Metrics) {
		now := time.Now()
		m.Panics++
		m.LastPanicAt = &now
	})
}

func (mt *MetricsTracker) Snapshot() Metrics {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	snapshot := mt.metrics
	if mt.metrics.LastPanicAt != nil {
		at := *mt.metrics.LastPanicAt
		snapshot.LastPanicAt = &at
	}
	return snapshot
}
