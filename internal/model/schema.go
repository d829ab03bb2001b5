package model

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SlotType is the declared type of an annotation slot.
type SlotType int

const (
	// SlotTypeString holds free text (or null).
	SlotTypeString SlotType = iota
	// SlotTypeBool is tri-state: true, false, or null.
	SlotTypeBool
	// SlotTypeMulti holds a set of strings, loosely typed on the wire as
	// null, a single string, or an array.
	SlotTypeMulti
)

// ValidationError rejects a single field update; prior session state is
// left untouched by the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Field, e.Reason)
}

// Schema declares the known slots, their types, optional predefined option
// lists, and the intention vocabulary. Slots not in the schema are accepted
// and stored as-is: the dataset format is forward compatible and the editor
// must not reject fields it does not know.
type Schema struct {
	types      map[string]SlotType
	options    map[string][]string
	intentions map[string]bool

	stringSlots   []string
	boolSlots     []string
	intentionList []string
}

// slotDecls is the built-in registry, in UI display order. Deployment data
// such as city and address option lists comes from the YAML schema file, not
// from code.
var slotDecls = []struct {
	name    string
	typ     SlotType
	options []string
}{
	{"treatment", SlotTypeMulti, []string{
		"hair_removal", "blood_vessels_removal", "tattoo_removal",
		"pigmentation_removal", "photorejuvenation", "3d_rejuvenation",
		"thermolifting", "laser_treatment_of_nail_fungus",
		"laser_resurfacing_of_scars", "laser_stretch_mark_resurfacing",
		"laser_peeling", "laser_posta_acne_resurfacing",
		"laser_hair_treatment", "laser_blepharoplasty",
		"intimate_area_whitening", "focus_rejuvenation", "heel_treatment",
		"pms", "endosphere", "other",
	}},
	{"hair_removal_areas", SlotTypeMulti, nil},
	{"hair_removal_type", SlotTypeMulti, []string{"nano", "gold_standard", "exclusive"}},
	{"hair_type_on_face", SlotTypeMulti, []string{
		"coarse_pigmented_hair", "fine_pigmented_hair",
		"hair_has_no_pigment", "doesnt_know_or_mixed",
	}},
	{"tattoo_removal_category", SlotTypeMulti, []string{
		"first", "second", "third", "fourth", "eyeild", "test_area",
	}},
	{"tattoo_equipment", SlotTypeMulti, []string{"qswitch", "picoseconds_lazer"}},
	{"blood_vessels_area", SlotTypeMulti, []string{"peri_orbital", "face", "legs", "arms"}},
	{"specialist", SlotTypeMulti, []string{"podiatrist", "other"}},
	{"specialist_name", SlotTypeString, nil},
	{"city", SlotTypeMulti, nil},
	{"address", SlotTypeMulti, nil},
	{"number_phone", SlotTypeString, nil},
	{"name", SlotTypeString, nil},
	{"date_time", SlotTypeString, nil},
	{"has_contraindications", SlotTypeBool, nil},
	{"is_first_time", SlotTypeBool, nil},
	{"can_visit_center", SlotTypeBool, nil},
	{"is_consultation", SlotTypeBool, nil},
}

var defaultIntentions = []string{
	"greet",
	"ask_question",
	"ask_work_schedule",
	"book_appointment",
	"reschedule_appointment",
	"cancel_appointment",
	"existing_appointment",
	"ask_about_the_price",
	"appointment_availability",
	"end_conversation",
}

// DefaultSchema returns the built-in slot registry.
func DefaultSchema() *Schema {
	s := &Schema{
		types:      map[string]SlotType{},
		options:    map[string][]string{},
		intentions: map[string]bool{},
	}
	for _, d := range slotDecls {
		s.declare(d.name, d.typ, d.options)
	}
	s.setIntentions(defaultIntentions)
	return s
}

type schemaFile struct {
	Slots []struct {
		Name    string   `yaml:"name"`
		Type    string   `yaml:"type"`
		Options []string `yaml:"options"`
	} `yaml:"slots"`
	Intentions []string `yaml:"intentions"`
}

// LoadSchema overlays a YAML schema file onto the built-in registry. New
// slots are appended; existing slots can be retyped or given option lists;
// a non-empty intentions list replaces the default vocabulary.
func LoadSchema(path string) (*Schema, error) {
	s := DefaultSchema()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read slots schema: %w", err)
	}
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse slots schema %s: %w", path, err)
	}
	for _, decl := range f.Slots {
		typ, err := parseSlotType(decl.Type)
		if err != nil {
			return nil, fmt.Errorf("slots schema %s: slot %s: %w", path, decl.Name, err)
		}
		s.declare(decl.Name, typ, decl.Options)
	}
	if len(f.Intentions) > 0 {
		s.setIntentions(f.Intentions)
	}
	return s, nil
}

func parseSlotType(t string) (SlotType, error) {
	switch t {
	case "string", "":
		return SlotTypeString, nil
	case "bool":
		return SlotTypeBool, nil
	case "multi":
		return SlotTypeMulti, nil
	}
	return 0, fmt.Errorf("unknown slot type %q", t)
}

func (s *Schema) declare(name string, typ SlotType, options []string) {
	if prev, known := s.types[name]; known {
		// Redeclaration keeps display order, drops the slot from its old
		// type bucket if the type changed.
		if prev != typ {
			s.stringSlots = remove(s.stringSlots, name)
			s.boolSlots = remove(s.boolSlots, name)
		} else {
			s.types[name] = typ
			if len(options) > 0 {
				s.options[name] = options
			}
			return
		}
	}
	s.types[name] = typ
	if len(options) > 0 {
		s.options[name] = options
	}
	if typ == SlotTypeBool {
		s.boolSlots = append(s.boolSlots, name)
	} else {
		s.stringSlots = append(s.stringSlots, name)
	}
}

func (s *Schema) setIntentions(list []string) {
	s.intentionList = list
	s.intentions = map[string]bool{}
	for _, name := range list {
		s.intentions[name] = true
	}
}

// SlotType reports the declared type of a slot.
func (s *Schema) SlotType(name string) (SlotType, bool) {
	t, ok := s.types[name]
	return t, ok
}

// KnownSlots lists all declared slots: string/multi slots first, then bool
// slots, each in declaration order.
func (s *Schema) KnownSlots() []string {
	out := make([]string, 0, len(s.stringSlots)+len(s.boolSlots))
	out = append(out, s.stringSlots...)
	out = append(out, s.boolSlots...)
	return out
}

// BoolSlots lists the tri-state boolean slots in declaration order.
func (s *Schema) BoolSlots() []string { return s.boolSlots }

// Options returns the predefined option list for a slot, nil if free-form.
func (s *Schema) Options(name string) []string { return s.options[name] }

// Intentions returns the intention vocabulary in declaration order.
func (s *Schema) Intentions() []string { return s.intentionList }

// NormalizeSlot collapses edge typing before validation: a comma-separated
// string submitted for a multi-select slot becomes a string set, the way the
// UI edits list-valued slots.
func (s *Schema) NormalizeSlot(name string, v SlotValue) SlotValue {
	if s.types[name] != SlotTypeMulti || v.Kind() != SlotString {
		return v
	}
	var set []string
	for _, part := range strings.Split(v.Str(), ",") {
		if part = strings.TrimSpace(part); part != "" {
			set = append(set, part)
		}
	}
	return StringsSlot(set)
}

// ValidateSlot checks a value against the slot's declared type. Unknown
// slots pass: the schema constrains what it declares and nothing else.
func (s *Schema) ValidateSlot(name string, v SlotValue) error {
	typ, known := s.types[name]
	if !known || v.IsNull() {
		return nil
	}
	switch typ {
	case SlotTypeBool:
		if v.Kind() != SlotBool {
			return &ValidationError{Field: name, Reason: "expected true, false, or null"}
		}
	case SlotTypeMulti:
		if v.Kind() != SlotString && v.Kind() != SlotStrings {
			return &ValidationError{Field: name, Reason: "expected a string, a list of strings, or null"}
		}
	case SlotTypeString:
		if v.Kind() != SlotString {
			return &ValidationError{Field: name, Reason: "expected a string or null"}
		}
	}
	return nil
}

// ValidateIntentions checks every label against the vocabulary.
func (s *Schema) ValidateIntentions(labels []string) error {
	for _, label := range labels {
		if !s.intentions[label] {
			return &ValidationError{Field: "intentions", Reason: fmt.Sprintf("unknown intention %q", label)}
		}
	}
	return nil
}

func remove(list []string, name string) []string {
	out := list[:0]
	for _, v := range list {
		if v != name {
			out = append(out, v)
		}
	}
	return out
}
