package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// SlotKind is the wire shape of a slot value.
type SlotKind int

const (
	SlotNull SlotKind = iota
	SlotString
	SlotBool
	SlotStrings
	// SlotRaw covers shapes outside the declared schema (numbers, objects,
	// mixed arrays). Raw values are carried through untouched.
	SlotRaw
)

// SlotValue holds one slot (or evidence) value together with its original
// wire shape. Values parsed from disk keep their raw bytes and echo them
// back unchanged on write; values produced by an edit serialize canonically
// for their kind. Multi-valued slots are held uniformly as a string set and
// collapse back to the external null/string/array typing at the edge.
type SlotValue struct {
	kind SlotKind
	str  string
	b    bool
	set  []string
	raw  json.RawMessage
}

// NullSlot returns an explicit null value.
func NullSlot() SlotValue { return SlotValue{kind: SlotNull} }

// StringSlot returns a string value.
func StringSlot(s string) SlotValue { return SlotValue{kind: SlotString, str: s} }

// BoolSlot returns a boolean value.
func BoolSlot(v bool) SlotValue { return SlotValue{kind: SlotBool, b: v} }

// StringsSlot returns a multi-select value. An empty set is the same as null.
func StringsSlot(vals []string) SlotValue {
	if len(vals) == 0 {
		return NullSlot()
	}
	return SlotValue{kind: SlotStrings, set: vals}
}

func (v SlotValue) Kind() SlotKind { return v.kind }

// IsNull reports whether the value is JSON null (or was never set).
func (v SlotValue) IsNull() bool { return v.kind == SlotNull }

// Str returns the string form, empty for non-string kinds.
func (v SlotValue) Str() string { return v.str }

// Bool returns the boolean value and whether the kind is boolean.
func (v SlotValue) Bool() (bool, bool) { return v.b, v.kind == SlotBool }

// Strings returns the value as a string set: nil for null, a single-element
// set for a string, the set itself for an array.
func (v SlotValue) Strings() []string {
	switch v.kind {
	case SlotString:
		return []string{v.str}
	case SlotStrings:
		return v.set
	default:
		return nil
	}
}

// Display renders the value for search and reporting.
func (v SlotValue) Display() string {
	switch v.kind {
	case SlotString:
		return v.str
	case SlotBool:
		if v.b {
			return "true"
		}
		return "false"
	case SlotStrings:
		return strings.Join(v.set, ", ")
	case SlotRaw:
		return string(v.raw)
	default:
		return ""
	}
}

func (v *SlotValue) UnmarshalJSON(data []byte) error {
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	*v = SlotValue{raw: raw}

	t := bytes.TrimSpace(data)
	if len(t) == 0 {
		v.kind = SlotRaw
		return nil
	}
	switch t[0] {
	case 'n':
		v.kind = SlotNull
	case '"':
		var s string
		if err := json.Unmarshal(t, &s); err != nil {
			return err
		}
		v.kind, v.str = SlotString, s
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(t, &b); err != nil {
			return err
		}
		v.kind, v.b = SlotBool, b
	case '[':
		var set []string
		if err := json.Unmarshal(t, &set); err != nil {
			v.kind = SlotRaw
		} else {
			v.kind, v.set = SlotStrings, set
		}
	default:
		v.kind = SlotRaw
	}
	return nil
}

func (v SlotValue) MarshalJSON() ([]byte, error) {
	if v.raw != nil {
		return v.raw, nil
	}
	switch v.kind {
	case SlotString:
		return json.Marshal(v.str)
	case SlotBool:
		return json.Marshal(v.b)
	case SlotStrings:
		if len(v.set) == 0 {
			return []byte("null"), nil
		}
		return json.Marshal(v.set)
	default:
		return []byte("null"), nil
	}
}
