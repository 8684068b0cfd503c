package task

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeTopics canonicalizes a topic value. A list keeps its order with
// blank entries dropped; a string is split on ',' and ';' and trimmed; any
// other value yields an empty list. Duplicates are kept.
func NormalizeTopics(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range t {
			if item == nil {
				continue
			}
			s := fmt.Sprint(item)
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(strings.ReplaceAll(t, ",", ";"), ";") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// NormalizeDifficulty maps "hard" and "medium" (case-insensitive) to their
// enum values. Everything else, including unset values, is Easy.
func NormalizeDifficulty(v any) Difficulty {
	switch strings.ToLower(strings.TrimSpace(text(v))) {
	case "hard":
		return Hard
	case "medium":
		return Medium
	}
	return Easy
}

// snapshotKeys are the keys a snapshot may carry. Bit i of a keySet marks
// snapshotKeys[i] as present.
var snapshotKeys = append(append([]string{}, CanonicalKeys...), KeyNotes)

type keySet uint32

func keyBit(key string) keySet {
	for i, k := range snapshotKeys {
		if k == key {
			return 1 << i
		}
	}
	return 0
}

// Snapshot is a normalized payload of canonical fields plus notes, as
// captured by a version or merged into a task. It remembers which keys were
// supplied so a merge only touches those.
type Snapshot struct {
	Canonical
	Notes string

	keys keySet
}

// NormalizeSnapshot builds a Snapshot from a loosely typed map. Topics and
// difficulty are normalized, null text fields become "", absent keys stay
// absent and non-canonical keys are dropped. It never fails.
func NormalizeSnapshot(raw map[string]any) Snapshot {
	var s Snapshot
	for _, k := range snapshotKeys {
		if v, ok := raw[k]; ok {
			s.Set(k, v)
		}
	}
	return s
}

// Set normalizes v and stores it under key, marking the key present.
// Unknown keys are ignored.
func (s *Snapshot) Set(key string, v any) {
	bit := keyBit(key)
	if bit == 0 {
		return
	}
	s.keys |= bit
	if key == KeyNotes {
		s.Notes = text(v)
		return
	}
	s.Canonical.assign(key, v)
}

// Has reports whether key was supplied.
func (s Snapshot) Has(key string) bool {
	bit := keyBit(key)
	return bit != 0 && s.keys&bit != 0
}

// Keys returns the supplied keys in canonical order.
func (s Snapshot) Keys() []string {
	var keys []string
	for _, k := range snapshotKeys {
		if s.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Empty reports whether no key was supplied.
func (s Snapshot) Empty() bool { return s.keys == 0 }

// Normalize re-applies normalization. Snapshots built through
// NormalizeSnapshot or Set are already normal, so this is the identity on them.
func (s Snapshot) Normalize() Snapshot {
	return NormalizeSnapshot(s.Map())
}

// Map returns the supplied keys and their values.
func (s Snapshot) Map() map[string]any {
	m := make(map[string]any, len(snapshotKeys))
	for _, k := range s.Keys() {
		if k == KeyNotes {
			m[k] = s.Notes
			continue
		}
		m[k] = s.Canonical.Get(k)
	}
	return m
}

// MarshalJSON encodes the snapshot as an object of its supplied keys.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

// UnmarshalJSON decodes an object and normalizes it. A JSON null decodes to
// an empty snapshot.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	*s = NormalizeSnapshot(raw)
	return nil
}

// text coerces a loosely typed value to a string; nil becomes "".
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case Difficulty:
		return string(t)
	}
	return fmt.Sprint(v)
}

// nullableText is text for nullable fields: nil stays nil.
func nullableText(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case *string:
		return clonePtr(t)
	}
	s := text(v)
	return &s
}
