package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Snapshot is a set of readings taken at one instant, keyed by probe or
// channel label. Non-numeric or missing readings are left out of Values so
// the receiver keeps its previous value.
type Snapshot struct {
	Timestamp float64
	Values    map[string]float64
}

// Time converts the unix-seconds timestamp.
func (s Snapshot) Time() time.Time {
	if s.Timestamp == 0 {
		return time.Time{}
	}
	sec := int64(s.Timestamp)
	nsec := int64((s.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.Values = make(map[string]float64, len(raw))
	for k, v := range raw {
		f, ok := number(v)
		if !ok {
			continue
		}
		switch k {
		case "timestamp", "time":
			s.Timestamp = f
		default:
			s.Values[k] = f
		}
	}
	return nil
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]float64, len(s.Values)+1)
	for k, v := range s.Values {
		out[k] = v
	}
	out["timestamp"] = s.Timestamp
	return json.Marshal(out)
}

// Trace is a time-ordered list of snapshots. The server sends it either as an
// array of snapshots or as columns keyed by label next to a "times" column.
type Trace []Snapshot

func (t *Trace) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var rows []Snapshot
		if err := json.Unmarshal(b, &rows); err != nil {
			return err
		}
		*t = rows
		return nil
	}

	var cols map[string][]json.RawMessage
	if err := json.Unmarshal(b, &cols); err != nil {
		return err
	}
	times := cols["times"]
	rows := make([]Snapshot, len(times))
	for i, rawTS := range times {
		ts, _ := number(rawTS)
		rows[i] = Snapshot{Timestamp: ts, Values: map[string]float64{}}
	}
	labels := make([]string, 0, len(cols))
	for k := range cols {
		if k != "times" {
			labels = append(labels, k)
		}
	}
	sort.Strings(labels)
	for _, label := range labels {
		for i, raw := range cols[label] {
			if i >= len(rows) {
				break
			}
			if f, ok := number(raw); ok {
				rows[i].Values[label] = f
			}
		}
	}
	*t = rows
	return nil
}

// MagnetTrace is the field strength over time, replaced wholesale on every update.
type MagnetTrace struct {
	Times  []float64 `json:"times"`
	Values []float64 `json:"magnet_trace"`
}

// CryoStatus is the gas-handling system state and its last acknowledgement.
type CryoStatus struct {
	Status Text `json:"status"`
	Ack    Text `json:"ack"`
}

// ExperimentRow is one configured experiment as listed on the data page.
type ExperimentRow struct {
	ID          int64            `json:"id"`
	Created     time.Time        `json:"created"`
	PointsTaken int              `json:"points_taken"`
	PointsTotal int              `json:"points_total"`
	Config      ExperimentConfig `json:"config"`
}

// ExperimentList is one page of the experiment list.
type ExperimentList struct {
	Count int             `json:"count"`
	Page  int             `json:"page"`
	Rows  []ExperimentRow `json:"rows"`
}

// ExperimentListRequest asks for a 1-indexed page.
type ExperimentListRequest struct {
	Page int `json:"page"`
}

// Text accepts a JSON string or number and keeps it as display text.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	if f, ok := number(b); ok {
		*t = Text(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	if string(bytes.TrimSpace(b)) == "null" {
		return nil
	}
	return fmt.Errorf("text: unsupported value %s", b)
}

// DecodeFloat reads a bare numeric payload such as a field strength.
func DecodeFloat(m Message) (float64, bool) {
	return number(m.Data)
}

// DecodeInt reads a bare integer payload such as a point count.
func DecodeInt(m Message) (int, bool) {
	f, ok := number(m.Data)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func number(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}
