package runs

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// TimeFormat is the fixed string format for run timestamps inside persisted
// graph metadata.
const TimeFormat = "2006-01-02 15:04:05.000000"

// IDSet is a set of node ids of one kind observed during a run. It
// serializes as a set repr ("{a, b}", "set()") for metadata round trips.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

// Contains reports membership.
func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the ids, sorted.
func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// String renders the set repr used in persisted metadata.
func (s IDSet) String() string {
	if len(s) == 0 {
		return "set()"
	}
	return "{" + strings.Join(s.Slice(), ", ") + "}"
}

// ParseIDSet reverses String. It accepts "set()" and "{a, b}" forms.
func ParseIDSet(repr string) (IDSet, bool) {
	if repr == "set()" {
		return IDSet{}, true
	}
	if !strings.HasPrefix(repr, "{") || !strings.HasSuffix(repr, "}") {
		return nil, false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(repr, "{"), "}")
	s := IDSet{}
	for _, part := range strings.Split(inner, ", ") {
		part = strings.Trim(strings.TrimSpace(part), "'")
		if part != "" {
			s.Add(part)
		}
	}
	return s, true
}

// Record captures one network-construction invocation: its parameters,
// timing, per-kind id sets and connectivity stats. A record summarizing a
// multi-seed composition carries the child records in ComposedRuns.
type Record struct {
	RootID                   string
	RootIDs                  []string
	Kind                     string
	ParameterState           map[string]interface{}
	StartTime                time.Time
	EndTime                  time.Time
	ConnectedComponentsCount int
	KindsIDs                 map[string]IDSet
	// Success is only meaningful for charity runs, where a root query can
	// fail outright. Nil for company runs.
	Success      *bool
	ComposedRuns []*Record
}

// SameParameters reports whether two records ran under identical
// configuration snapshots. Used for parameter-drift warnings.
func (r *Record) SameParameters(other *Record) bool {
	if other == nil {
		return false
	}
	if len(r.ParameterState) != len(other.ParameterState) {
		return false
	}
	for k, v := range r.ParameterState {
		if other.ParameterState[k] != v {
			return false
		}
	}
	return true
}

// Ledger is an append-only list of run records owned by one client.
type Ledger struct {
	mu      sync.Mutex
	records []*Record
}

// Append adds a record to the ledger.
func (l *Ledger) Append(r *Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
}

// Records returns a snapshot of the ledger.
func (l *Ledger) Records() []*Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Record, len(l.records))
	copy(out, l.records)
	return out
}

// Last returns the most recent record, or nil.
func (l *Ledger) Last() *Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return nil
	}
	return l.records[len(l.records)-1]
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Reset clears the ledger.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}
