package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Counters(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordQuery(true)
	tracker.RecordQuery(true)
	tracker.RecordQuery(false)
	tracker.RecordGraphSize(2, 0)
	tracker.RecordGraphSize(1, 3)

	snapshot := tracker.GetSnapshot()
	assert.Equal(t, 3, snapshot.QueriesSent)
	assert.Equal(t, 1, snapshot.QueriesFailed)
	assert.Equal(t, 3, snapshot.NodesAdded)
	assert.Equal(t, 3, snapshot.EdgesAdded)
}

func TestTracker_QueryTimes(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordQueryTime(100 * time.Millisecond)
	tracker.RecordQueryTime(300 * time.Millisecond)

	snapshot := tracker.GetSnapshot()
	assert.Equal(t, int64(400), snapshot.TotalQueryTimeMs)
	assert.Equal(t, int64(200), snapshot.AvgQueryTimeMs)
}

func TestTracker_WriteToFile(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordQuery(true)
	tracker.RecordGraphSize(5, 4)

	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, tracker.WriteToFile(path, "completed"))

	payload, err := os.ReadFile(path)
	require.NoError(t, err)

	var written Metrics
	require.NoError(t, json.Unmarshal(payload, &written))
	assert.Equal(t, 1, written.QueriesSent)
	assert.Equal(t, 5, written.NodesAdded)
	assert.Equal(t, "completed", written.TerminationReason)
	assert.False(t, written.EndTime.IsZero())
}

func TestTracker_LogProgress(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordQuery(true)
	tracker.RecordQuery(false)
	tracker.RecordGraphSize(3, 2)

	assert.Equal(t, "Queries: 2 sent, 1 failed | Nodes: 3 | Edges: 2", tracker.LogProgress())
}
