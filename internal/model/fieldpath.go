package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Field paths name the editable pieces of an entry the way the API and the
// edit session refer to them:
//
//	message.role
//	context[2].role
//	gold.slots.<name>
//	gold.evidence.<name>
//	gold.intentions
//	qa_hint
//	reviewed
//
// Values are typed per path: roles and qa_hint are strings, reviewed is a
// bool, intentions is a []string, slot and evidence values are SlotValue.

// FieldValue returns the current value at path. Missing containers yield the
// zero value for the path rather than an error, so reading a slot that was
// never annotated returns null.
func (e *Entry) FieldValue(path string) (any, error) {
	switch {
	case path == "qa_hint":
		// Absent and set-to-empty are distinct: an undo of the first edit
		// must restore the missing field, not materialize "".
		if e.QAHint == nil {
			return nil, nil
		}
		return *e.QAHint, nil
	case path == "reviewed":
		return e.Reviewed, nil
	case path == "message.role":
		if e.Message == nil {
			return "", nil
		}
		return e.Message.Role, nil
	case path == "gold.intentions":
		if e.Gold == nil {
			return []string(nil), nil
		}
		return e.Gold.Intentions, nil
	case strings.HasPrefix(path, "gold.slots."):
		name := path[len("gold.slots."):]
		if e.Gold == nil {
			return NullSlot(), nil
		}
		return e.Gold.Slots[name], nil
	case strings.HasPrefix(path, "gold.evidence."):
		name := path[len("gold.evidence."):]
		if e.Gold == nil {
			return NullSlot(), nil
		}
		return e.Gold.Evidence[name], nil
	case strings.HasPrefix(path, "context["):
		i, err := contextIndex(path)
		if err != nil {
			return nil, err
		}
		if i >= len(e.Context) || e.Context[i] == nil {
			return nil, fmt.Errorf("field path %q: context index out of range", path)
		}
		return e.Context[i].Role, nil
	}
	return nil, fmt.Errorf("unknown field path %q", path)
}

// SetFieldValue writes value at path, creating intermediate containers as
// needed. The value's dynamic type must match the path.
func (e *Entry) SetFieldValue(path string, value any) error {
	switch {
	case path == "qa_hint":
		if value == nil {
			e.QAHint = nil
			e.hasQAHint = false
			return nil
		}
		s, ok := value.(string)
		if !ok {
			return pathTypeError(path, value)
		}
		e.SetQAHint(s)
		return nil
	case path == "reviewed":
		v, ok := value.(bool)
		if !ok {
			return pathTypeError(path, value)
		}
		e.SetReviewed(v)
		return nil
	case path == "message.role":
		role, ok := value.(string)
		if !ok {
			return pathTypeError(path, value)
		}
		if e.Message == nil {
			e.Message = &Message{}
		}
		e.Message.Role = role
		return nil
	case path == "gold.intentions":
		vals, ok := value.([]string)
		if !ok {
			return pathTypeError(path, value)
		}
		e.ensureGold()
		e.Gold.Intentions = vals
		e.Gold.hasIntentions = true
		return nil
	case strings.HasPrefix(path, "gold.slots."):
		v, ok := value.(SlotValue)
		if !ok {
			return pathTypeError(path, value)
		}
		e.ensureGold()
		if e.Gold.Slots == nil {
			e.Gold.Slots = map[string]SlotValue{}
		}
		e.Gold.Slots[path[len("gold.slots."):]] = v
		return nil
	case strings.HasPrefix(path, "gold.evidence."):
		v, ok := value.(SlotValue)
		if !ok {
			return pathTypeError(path, value)
		}
		e.ensureGold()
		if e.Gold.Evidence == nil {
			e.Gold.Evidence = map[string]SlotValue{}
		}
		e.Gold.Evidence[path[len("gold.evidence."):]] = v
		return nil
	case strings.HasPrefix(path, "context["):
		role, ok := value.(string)
		if !ok {
			return pathTypeError(path, value)
		}
		i, err := contextIndex(path)
		if err != nil {
			return err
		}
		if i >= len(e.Context) || e.Context[i] == nil {
			return fmt.Errorf("field path %q: context index out of range", path)
		}
		e.Context[i].Role = role
		return nil
	}
	return fmt.Errorf("unknown field path %q", path)
}

// SlotFieldPath builds the field path for a named slot.
func SlotFieldPath(name string) string { return "gold.slots." + name }

// EvidenceFieldPath builds the field path for a named evidence value.
func EvidenceFieldPath(name string) string { return "gold.evidence." + name }

// ContextRolePath builds the field path for a context message's role.
func ContextRolePath(i int) string { return fmt.Sprintf("context[%d].role", i) }

func (e *Entry) ensureGold() {
	if e.Gold == nil {
		e.Gold = &Gold{}
	}
}

func contextIndex(path string) (int, error) {
	rest := path[len("context["):]
	end := strings.IndexByte(rest, ']')
	if end < 0 || rest[end:] != "].role" {
		return 0, fmt.Errorf("unknown field path %q", path)
	}
	i, err := strconv.Atoi(rest[:end])
	if err != nil || i < 0 {
		return 0, fmt.Errorf("field path %q: bad context index", path)
	}
	return i, nil
}

func pathTypeError(path string, value any) error {
	return fmt.Errorf("field path %q: unsupported value type %T", path, value)
}
