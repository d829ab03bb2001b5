package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Entry is one annotation record, corresponding to one line of a JSONL file.
// Fields outside the declared schema are preserved verbatim and re-emitted on
// write, so files produced by newer tooling survive an edit round-trip.
type Entry struct {
	ID       string
	Source   *Source
	Message  *Message
	Context  []*Message
	Gold     *Gold
	QAHint   *string
	Reviewed bool

	hasContext  bool
	hasQAHint   bool
	hasReviewed bool
	extra       map[string]json.RawMessage
}

// Source records where an entry came from. Immutable once read.
type Source struct {
	DrivePath    string
	ThreadDir    string
	MessageIndex int

	extra map[string]json.RawMessage
}

// Message is a single conversational message.
type Message struct {
	Role string
	Text string
	TsMS int64

	extra map[string]json.RawMessage
}

// Gold holds the annotation payload: typed slot values, per-slot evidence
// text, and the intention labels.
type Gold struct {
	Slots      map[string]SlotValue
	Evidence   map[string]SlotValue
	Intentions []string

	hasIntentions bool
	extra         map[string]json.RawMessage
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*e = Entry{}
	if err := takeField(fields, "id", &e.ID); err != nil {
		return err
	}
	if err := takeField(fields, "source", &e.Source); err != nil {
		return err
	}
	if err := takeField(fields, "message", &e.Message); err != nil {
		return err
	}
	if raw, ok := fields["context"]; ok {
		e.hasContext = true
		if err := json.Unmarshal(raw, &e.Context); err != nil {
			return fmt.Errorf("field context: %w", err)
		}
		delete(fields, "context")
	}
	if err := takeField(fields, "gold", &e.Gold); err != nil {
		return err
	}
	if raw, ok := fields["qa_hint"]; ok {
		e.hasQAHint = true
		if err := json.Unmarshal(raw, &e.QAHint); err != nil {
			return fmt.Errorf("field qa_hint: %w", err)
		}
		delete(fields, "qa_hint")
	}
	if raw, ok := fields["reviewed"]; ok {
		e.hasReviewed = true
		if err := json.Unmarshal(raw, &e.Reviewed); err != nil {
			return fmt.Errorf("field reviewed: %w", err)
		}
		delete(fields, "reviewed")
	}
	if len(fields) > 0 {
		e.extra = fields
	}
	return nil
}

func (e *Entry) MarshalJSON() ([]byte, error) {
	var o jsonObject
	if err := o.add("id", e.ID); err != nil {
		return nil, err
	}
	if e.Source != nil {
		if err := o.add("source", e.Source); err != nil {
			return nil, err
		}
	}
	if e.Message != nil {
		if err := o.add("message", e.Message); err != nil {
			return nil, err
		}
	}
	// Fields absent on input stay absent on output; writing defaults into
	// them would rewrite untouched lines and pollute the audit trail.
	if e.hasContext || len(e.Context) > 0 {
		ctx := e.Context
		if ctx == nil {
			ctx = []*Message{}
		}
		if err := o.add("context", ctx); err != nil {
			return nil, err
		}
	}
	if e.Gold != nil {
		if err := o.add("gold", e.Gold); err != nil {
			return nil, err
		}
	}
	if e.hasQAHint {
		if err := o.add("qa_hint", e.QAHint); err != nil {
			return nil, err
		}
	}
	if e.hasReviewed {
		if err := o.add("reviewed", e.Reviewed); err != nil {
			return nil, err
		}
	}
	o.addExtras(e.extra)
	return o.bytes(), nil
}

func (s *Source) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*s = Source{}
	if err := takeField(fields, "drive_path", &s.DrivePath); err != nil {
		return err
	}
	if err := takeField(fields, "thread_dir", &s.ThreadDir); err != nil {
		return err
	}
	if err := takeNumber(fields, "message_index", &s.MessageIndex); err != nil {
		return err
	}
	if len(fields) > 0 {
		s.extra = fields
	}
	return nil
}

func (s *Source) MarshalJSON() ([]byte, error) {
	var o jsonObject
	if err := o.add("drive_path", s.DrivePath); err != nil {
		return nil, err
	}
	if err := o.add("thread_dir", s.ThreadDir); err != nil {
		return nil, err
	}
	if err := o.add("message_index", s.MessageIndex); err != nil {
		return nil, err
	}
	o.addExtras(s.extra)
	return o.bytes(), nil
}

func (m *Message) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*m = Message{}
	if err := takeField(fields, "role", &m.Role); err != nil {
		return err
	}
	if err := takeField(fields, "text", &m.Text); err != nil {
		return err
	}
	if err := takeNumber(fields, "ts_ms", &m.TsMS); err != nil {
		return err
	}
	if len(fields) > 0 {
		m.extra = fields
	}
	return nil
}

func (m *Message) MarshalJSON() ([]byte, error) {
	var o jsonObject
	if err := o.add("role", m.Role); err != nil {
		return nil, err
	}
	if err := o.add("text", m.Text); err != nil {
		return nil, err
	}
	if err := o.add("ts_ms", m.TsMS); err != nil {
		return nil, err
	}
	o.addExtras(m.extra)
	return o.bytes(), nil
}

func (g *Gold) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*g = Gold{}
	if err := takeField(fields, "slots", &g.Slots); err != nil {
		return err
	}
	if err := takeField(fields, "evidence", &g.Evidence); err != nil {
		return err
	}
	if raw, ok := fields["intentions"]; ok {
		g.hasIntentions = true
		if err := json.Unmarshal(raw, &g.Intentions); err != nil {
			return fmt.Errorf("field intentions: %w", err)
		}
		delete(fields, "intentions")
	}
	if len(fields) > 0 {
		g.extra = fields
	}
	return nil
}

func (g *Gold) MarshalJSON() ([]byte, error) {
	var o jsonObject
	slots := g.Slots
	if slots == nil {
		slots = map[string]SlotValue{}
	}
	if err := o.add("slots", slots); err != nil {
		return nil, err
	}
	evidence := g.Evidence
	if evidence == nil {
		evidence = map[string]SlotValue{}
	}
	if err := o.add("evidence", evidence); err != nil {
		return nil, err
	}
	if g.hasIntentions {
		intentions := g.Intentions
		if intentions == nil {
			intentions = []string{}
		}
		if err := o.add("intentions", intentions); err != nil {
			return nil, err
		}
	}
	o.addExtras(g.extra)
	return o.bytes(), nil
}

// Clone returns a deep copy of the entry via a JSON round-trip. The copy
// shares no state with the original, so session overlays can be applied to
// it without touching the loaded record.
func (e *Entry) Clone() (*Entry, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("clone entry %s: %w", e.ID, err)
	}
	var c Entry
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("clone entry %s: %w", e.ID, err)
	}
	return &c, nil
}

// QAHintText returns the hint as plain text, empty when unset.
func (e *Entry) QAHintText() string {
	if e.QAHint == nil {
		return ""
	}
	return *e.QAHint
}

// SetQAHint replaces the hint, making the field explicit on the next write.
func (e *Entry) SetQAHint(s string) {
	e.QAHint = &s
	e.hasQAHint = true
}

// SetReviewed sets the reviewed flag.
func (e *Entry) SetReviewed(v bool) {
	e.Reviewed = v
	e.hasReviewed = true
}

// HasNonNullSlot reports whether any slot carries a value.
func (e *Entry) HasNonNullSlot() bool {
	if e.Gold == nil {
		return false
	}
	for _, v := range e.Gold.Slots {
		if !v.IsNull() {
			return true
		}
	}
	return false
}

// SearchText concatenates the entry's human-readable content for substring
// search: message text, context texts, slot values, and the QA hint.
func (e *Entry) SearchText() string {
	var parts []string
	if e.Message != nil {
		parts = append(parts, e.Message.Text)
	}
	for _, m := range e.Context {
		if m != nil {
			parts = append(parts, m.Text)
		}
	}
	if e.Gold != nil {
		names := make([]string, 0, len(e.Gold.Slots))
		for name := range e.Gold.Slots {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := e.Gold.Slots[name]
			if !v.IsNull() {
				parts = append(parts, v.Display())
			}
		}
	}
	if hint := e.QAHintText(); hint != "" {
		parts = append(parts, hint)
	}
	return strings.Join(parts, " ")
}

func takeField(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %s: %w", name, err)
	}
	delete(fields, name)
	return nil
}

// takeNumber tolerates float-encoded integers (e.g. 1000.0), which show up
// in files touched by other tooling.
func takeNumber[T int | int64](fields map[string]json.RawMessage, name string, dst *T) error {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("field %s: %w", name, err)
	}
	*dst = T(f)
	delete(fields, name)
	return nil
}

// jsonObject assembles a JSON object with a fixed key order followed by the
// preserved unknown keys sorted by name, keeping output deterministic.
type jsonObject struct {
	buf bytes.Buffer
	n   int
}

func (o *jsonObject) add(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	o.addRaw(name, b)
	return nil
}

func (o *jsonObject) addRaw(name string, raw json.RawMessage) {
	if o.n == 0 {
		o.buf.WriteByte('{')
	} else {
		o.buf.WriteByte(',')
	}
	key, _ := json.Marshal(name)
	o.buf.Write(key)
	o.buf.WriteByte(':')
	o.buf.Write(raw)
	o.n++
}

func (o *jsonObject) addExtras(extra map[string]json.RawMessage) {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.addRaw(k, extra[k])
	}
}

func (o *jsonObject) bytes() []byte {
	if o.n == 0 {
		return []byte("{}")
	}
	o.buf.WriteByte('}')
	return o.buf.Bytes()
}
