package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Metrics captures the counters of one crawl session.
type Metrics struct {
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	QueriesSent       int       `json:"queries_sent"`
	QueriesFailed     int       `json:"queries_failed"`
	NodesAdded        int       `json:"nodes_added"`
	EdgesAdded        int       `json:"edges_added"`
	TotalQueryTimeMs  int64     `json:"total_query_time_ms"`
	AvgQueryTimeMs    int64     `json:"avg_query_time_ms"`
	TerminationReason string    `json:"termination_reason"`
}

// Tracker holds and manages crawl metrics
type Tracker struct {
	mu               sync.Mutex
	data             Metrics
	totalQueryTimeMs int64
	queryCount       int
}

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	return &Tracker{
		data: Metrics{
			StartTime: time.Now(),
		},
	}
}

// RecordQuery counts an API query and whether it succeeded.
func (t *Tracker) RecordQuery(succeeded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.QueriesSent++
	if !succeeded {
		t.data.QueriesFailed++
	}
}

// RecordGraphSize accumulates nodes and edges added to the graph.
func (t *Tracker) RecordGraphSize(nodesAdded, edgesAdded int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.NodesAdded += nodesAdded
	t.data.EdgesAdded += edgesAdded
}

// RecordQueryTime records one query round-trip duration
func (t *Tracker) RecordQueryTime(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalQueryTimeMs += duration.Milliseconds()
	t.queryCount++
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.TotalQueryTimeMs = t.totalQueryTimeMs
	if t.queryCount > 0 {
		snapshot.AvgQueryTimeMs = t.totalQueryTimeMs / int64(t.queryCount)
	}

	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.data.TotalQueryTimeMs = t.totalQueryTimeMs
	if t.queryCount > 0 {
		t.data.AvgQueryTimeMs = t.totalQueryTimeMs / int64(t.queryCount)
	}

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats current metrics for periodic log updates
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Queries: %d sent, %d failed | Nodes: %d | Edges: %d",
		t.data.QueriesSent,
		t.data.QueriesFailed,
		t.data.NodesAdded,
		t.data.EdgesAdded,
	)
}
