package runs

import (
	"encoding/json"
	"fmt"
	"time"
)

// The metadata block inside a persisted graph stores datetimes in
// TimeFormat and kind-id sets as their set repr, so a reader must
// special-case those two string patterns on load.

type recordJSON struct {
	RootID                   string            `json:"root_id,omitempty"`
	RootIDs                  []string          `json:"root_ids,omitempty"`
	Kind                     string            `json:"kind"`
	ParameterState           map[string]any    `json:"parameter_state"`
	StartTime                string            `json:"start_time"`
	EndTime                  string            `json:"end_time"`
	ConnectedComponentsCount int               `json:"connected_components_count"`
	KindsIDs                 map[string]string `json:"kinds_ids_dict,omitempty"`
	Success                  *bool             `json:"success,omitempty"`
	ComposedRuns             []*Record         `json:"composed_runs,omitempty"`
}

// MarshalJSON implements json.Marshaler with the fixed metadata formats.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		RootID:                   r.RootID,
		RootIDs:                  r.RootIDs,
		Kind:                     r.Kind,
		ParameterState:           r.ParameterState,
		StartTime:                r.StartTime.Format(TimeFormat),
		EndTime:                  r.EndTime.Format(TimeFormat),
		ConnectedComponentsCount: r.ConnectedComponentsCount,
		Success:                  r.Success,
		ComposedRuns:             r.ComposedRuns,
	}
	if r.KindsIDs != nil {
		out.KindsIDs = make(map[string]string, len(r.KindsIDs))
		for kind, ids := range r.KindsIDs {
			out.KindsIDs[kind] = ids.String()
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler, reversing MarshalJSON.
func (r *Record) UnmarshalJSON(payload []byte) error {
	var in recordJSON
	if err := json.Unmarshal(payload, &in); err != nil {
		return err
	}
	start, err := parseTime(in.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := parseTime(in.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end_time: %w", err)
	}
	r.RootID = in.RootID
	r.RootIDs = in.RootIDs
	r.Kind = in.Kind
	r.ParameterState = in.ParameterState
	r.StartTime = start
	r.EndTime = end
	r.ConnectedComponentsCount = in.ConnectedComponentsCount
	r.Success = in.Success
	r.ComposedRuns = in.ComposedRuns
	if in.KindsIDs != nil {
		r.KindsIDs = make(map[string]IDSet, len(in.KindsIDs))
		for kind, repr := range in.KindsIDs {
			ids, ok := ParseIDSet(repr)
			if !ok {
				return fmt.Errorf("invalid id set repr %q for kind %q", repr, kind)
			}
			r.KindsIDs[kind] = ids
		}
	}
	return nil
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(TimeFormat, value)
}

// DecodeMetadata parses the raw metadata block read back from a graph file.
func DecodeMetadata(raw json.RawMessage) (*Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode run metadata: %w", err)
	}
	return &rec, nil
}
