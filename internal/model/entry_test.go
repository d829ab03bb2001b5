package model

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gowebpki/jcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLine = `{
	"id": "thr1-3",
	"source": {"drive_path": "exports/thr1", "thread_dir": "thr1", "message_index": 3, "origin": "drive"},
	"message": {"role": "client", "text": "Хочу записаться на лазерную эпиляцию", "ts_ms": 1716200000000, "lang": "ru"},
	"context": [
		{"role": "client", "text": "Добрый день", "ts_ms": 1716199000000},
		{"role": "manager", "text": "Здравствуйте!", "ts_ms": 1716199100000}
	],
	"gold": {
		"slots": {
			"treatment": ["hair_removal"],
			"name": "Анна",
			"is_first_time": true,
			"city": null,
			"budget_rub": 15000
		},
		"evidence": {"name": "Анна"},
		"intentions": ["greet", "book_appointment"],
		"annotator": "m.k"
	},
	"qa_hint": "уточнить зону",
	"reviewed": false,
	"pipeline_version": 7
}`

func parseEntry(t *testing.T, line string) *Entry {
	t.Helper()
	var e Entry
	require.NoError(t, json.Unmarshal([]byte(line), &e))
	return &e
}

func asMap(t *testing.T, e *Entry) map[string]any {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func canonical(t *testing.T, data []byte) string {
	t.Helper()
	c, err := jcs.Transform(data)
	require.NoError(t, err)
	return string(c)
}

func TestEntryRoundTripPreservesUnknownFields(t *testing.T) {
	e := parseEntry(t, sampleLine)

	assert.Equal(t, "thr1-3", e.ID)
	assert.Equal(t, "client", e.Message.Role)
	assert.Equal(t, int64(1716200000000), e.Message.TsMS)
	assert.Len(t, e.Context, 2)
	assert.Equal(t, []string{"greet", "book_appointment"}, e.Gold.Intentions)
	assert.Equal(t, "уточнить зону", e.QAHintText())
	assert.False(t, e.Reviewed)

	out, err := json.Marshal(e)
	require.NoError(t, err)

	// Unknown fields at every level (pipeline_version, origin, lang,
	// annotator, the numeric budget_rub slot) must survive the round-trip.
	assert.Equal(t, canonical(t, []byte(sampleLine)), canonical(t, out))
}

func TestEntryRoundTripIsStable(t *testing.T) {
	e := parseEntry(t, sampleLine)
	first, err := json.Marshal(e)
	require.NoError(t, err)

	again := parseEntry(t, string(first))
	second, err := json.Marshal(again)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestEntryOptionalFieldsStayAbsent(t *testing.T) {
	e := parseEntry(t, `{"id": "x", "message": {"role": "client", "text": "hi", "ts_ms": 1}, "context": [], "gold": {"slots": {}, "evidence": {}}}`)

	out, err := json.Marshal(e)
	require.NoError(t, err)
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &m))

	// Fields absent on input must not be invented on output.
	assert.NotContains(t, m, "qa_hint")
	assert.NotContains(t, m, "reviewed")
	var g map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(m["gold"], &g))
	assert.NotContains(t, g, "intentions")
}

func TestEntryMinimalRoundTrip(t *testing.T) {
	// A bare entry gains nothing on a load-save cycle: no context, no
	// reviewed, no gold.
	line := `{"id": "m-0", "message": {"role": "client", "text": "hi", "ts_ms": 1716200000000}}`
	e := parseEntry(t, line)

	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Equal(t, canonical(t, []byte(line)), canonical(t, out))

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &m))
	assert.NotContains(t, m, "context")
	assert.NotContains(t, m, "reviewed")
}

func TestSetReviewedMakesFieldExplicit(t *testing.T) {
	e := parseEntry(t, `{"id": "x"}`)
	e.SetReviewed(false)

	out, err := json.Marshal(e)
	require.NoError(t, err)
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &m))
	assert.JSONEq(t, `false`, string(m["reviewed"]))
}

func TestEntryFloatEncodedTimestamps(t *testing.T) {
	// Upstream exporters sometimes emit ts_ms as a float.
	e := parseEntry(t, `{"id": "x", "message": {"role": "client", "text": "hi", "ts_ms": 1716200000000.0}, "context": []}`)
	assert.Equal(t, int64(1716200000000), e.Message.TsMS)
}

func TestCloneIsIndependent(t *testing.T) {
	e := parseEntry(t, sampleLine)
	c, err := e.Clone()
	require.NoError(t, err)

	if diff := cmp.Diff(asMap(t, e), asMap(t, c)); diff != "" {
		t.Fatalf("clone differs from original (-original +clone):\n%s", diff)
	}

	c.Message.Role = "manager"
	c.Gold.Slots["name"] = StringSlot("Мария")
	c.SetReviewed(true)

	assert.Equal(t, "client", e.Message.Role)
	assert.Equal(t, "Анна", e.Gold.Slots["name"].Str())
	assert.False(t, e.Reviewed)
}

func TestSetQAHintMakesFieldExplicit(t *testing.T) {
	e := parseEntry(t, `{"id": "x", "context": []}`)
	e.SetQAHint("check the date")

	out, err := json.Marshal(e)
	require.NoError(t, err)
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &m))
	assert.JSONEq(t, `"check the date"`, string(m["qa_hint"]))
}

func TestHasNonNullSlot(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"no gold", `{"id": "x", "context": []}`, false},
		{"all null", `{"id": "x", "context": [], "gold": {"slots": {"city": null, "name": null}, "evidence": {}}}`, false},
		{"one value", `{"id": "x", "context": [], "gold": {"slots": {"city": null, "name": "Анна"}, "evidence": {}}}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseEntry(t, tt.line).HasNonNullSlot())
		})
	}
}

func TestSearchTextCoversMessageContextSlotsAndHint(t *testing.T) {
	e := parseEntry(t, sampleLine)
	text := e.SearchText()

	assert.Contains(t, text, "Хочу записаться")
	assert.Contains(t, text, "Добрый день")
	assert.Contains(t, text, "hair_removal")
	assert.Contains(t, text, "Анна")
	assert.Contains(t, text, "уточнить зону")
}

func TestSlotValueShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind SlotKind
	}{
		{"null", `null`, SlotNull},
		{"string", `"nano"`, SlotString},
		{"bool", `true`, SlotBool},
		{"strings", `["face", "legs"]`, SlotStrings},
		{"number", `42`, SlotRaw},
		{"object", `{"a": 1}`, SlotRaw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v SlotValue
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.Equal(t, tt.kind, v.Kind())

			out, err := json.Marshal(v)
			require.NoError(t, err)
			assert.JSONEq(t, tt.in, string(out))
		})
	}
}

func TestSlotValueConstructors(t *testing.T) {
	assert.True(t, NullSlot().IsNull())
	assert.True(t, StringsSlot(nil).IsNull())
	assert.Equal(t, []string{"face"}, StringSlot("face").Strings())
	assert.Equal(t, []string{"face", "legs"}, StringsSlot([]string{"face", "legs"}).Strings())

	b, ok := BoolSlot(true).Bool()
	assert.True(t, ok)
	assert.True(t, b)
	_, ok = StringSlot("x").Bool()
	assert.False(t, ok)
}

func TestSlotValueDisplay(t *testing.T) {
	assert.Equal(t, "", NullSlot().Display())
	assert.Equal(t, "nano", StringSlot("nano").Display())
	assert.Equal(t, "false", BoolSlot(false).Display())
	assert.Equal(t, "face, legs", StringsSlot([]string{"face", "legs"}).Display())
}
