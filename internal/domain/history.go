package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// HistoryRecord captures one executed command and the environment it ran in.
type HistoryRecord struct {
	ID         int64     `json:"id"`
	Command    string    `json:"command"`
	Prompt     string    `json:"prompt,omitempty"`
	Success    bool      `json:"success"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
	Snapshot   Snapshot  `json:"context_snapshot,omitempty"`
}

// ValueKind tags the primitive held by a SnapshotValue.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindBool   ValueKind = "bool"
)

// SnapshotValue is a tagged primitive.
type SnapshotValue struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

// StringValue tags s as a string.
func StringValue(s string) SnapshotValue { return SnapshotValue{Kind: KindString, Str: s} }

// IntValue tags i as an integer.
func IntValue(i int64) SnapshotValue { return SnapshotValue{Kind: KindInt, Int: i} }

// FloatValue tags f as a float.
func FloatValue(f float64) SnapshotValue { return SnapshotValue{Kind: KindFloat, Float: f} }

// BoolValue tags b as a boolean.
func BoolValue(b bool) SnapshotValue { return SnapshotValue{Kind: KindBool, Bool: b} }

// String renders the value for prompts and CLI output.
func (v SnapshotValue) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return v.Str
	}
}

type snapshotWire struct {
	Kind  ValueKind `json:"kind"`
	Value any       `json:"value"`
}

// MarshalJSON writes {"kind": ..., "value": ...}.
func (v SnapshotValue) MarshalJSON() ([]byte, error) {
	wire := snapshotWire{Kind: v.Kind}
	switch v.Kind {
	case KindInt:
		wire.Value = v.Int
	case KindFloat:
		wire.Value = v.Float
	case KindBool:
		wire.Value = v.Bool
	case KindString:
		wire.Value = v.Str
	default:
		return nil, fmt.Errorf("snapshot value: unknown kind %q", v.Kind)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON reads the tagged form written by MarshalJSON.
func (v *SnapshotValue) UnmarshalJSON(data []byte) error {
	var wire struct {
		Kind  ValueKind       `json:"kind"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := SnapshotValue{Kind: wire.Kind}
	var err error
	switch wire.Kind {
	case KindString:
		err = json.Unmarshal(wire.Value, &out.Str)
	case KindInt:
		err = json.Unmarshal(wire.Value, &out.Int)
	case KindFloat:
		err = json.Unmarshal(wire.Value, &out.Float)
	case KindBool:
		err = json.Unmarshal(wire.Value, &out.Bool)
	default:
		return fmt.Errorf("snapshot value: unknown kind %q", wire.Kind)
	}
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// Snapshot is the context captured alongside a history record.
type Snapshot map[string]SnapshotValue

// SnapshotFromFacts turns environment facts into a string-valued snapshot.
func SnapshotFromFacts(facts []EnvironmentFact) Snapshot {
	if len(facts) == 0 {
		return nil
	}
	snap := make(Snapshot, len(facts))
	for _, f := range facts {
		snap[f.Key] = StringValue(f.Value)
	}
	return snap
}

// Keys returns snapshot keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
