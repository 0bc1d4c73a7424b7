package fields

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/crim50n/falai-paw/pkg/schema"
)

const (
	// defaultSizeField is the canonical name of the preset-or-custom size
	// field in generative endpoint schemas.
	defaultSizeField = "image_size"

	// defaultLongDescription is the description length at which a plain text
	// field is promoted to a multi-line area.
	defaultLongDescription = 100
)

// ErrNoInputSchema is returned when the document carries no resolvable write
// operation to synthesize a form from.
var ErrNoInputSchema = errors.New("fields: document has no resolvable input schema")

// Note records a non-fatal synthesis decision: a skipped field or a
// constraint violation that degraded the field to a weaker kind.
type Note struct {
	Field  string
	Reason string
}

// Report collects the notes of one synthesis pass.
type Report struct {
	Notes []Note
}

func (r *Report) add(field, format string, args ...any) {
	if r == nil {
		return
	}
	r.Notes = append(r.Notes, Note{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// Option customises a Synthesizer.
type Option func(*Synthesizer)

// WithSizeField overrides the canonical size-field name.
func WithSizeField(name string) Option {
	return func(s *Synthesizer) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			s.sizeField = trimmed
		}
	}
}

// WithLongDescriptionThreshold overrides the text/long-text cutover length.
func WithLongDescriptionThreshold(length int) Option {
	return func(s *Synthesizer) {
		if length > 0 {
			s.longDescription = length
		}
	}
}

// Synthesizer turns resolved field schemas into descriptors. It never
// mutates the schemas it reads.
type Synthesizer struct {
	resolver        *schema.Resolver
	sizeField       string
	longDescription int
}

// New constructs a Synthesizer over the supplied resolver.
func New(resolver *schema.Resolver, options ...Option) *Synthesizer {
	s := &Synthesizer{
		resolver:        resolver,
		sizeField:       defaultSizeField,
		longDescription: defaultLongDescription,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Synthesize resolves the document's input schema and classifies every
// property into a descriptor, visiting properties in sorted order. Individual
// fields that cannot be classified are skipped and noted in the report; only
// a missing input schema aborts the pass.
func (s *Synthesizer) Synthesize() ([]Descriptor, *Report, error) {
	if s.resolver == nil {
		return nil, nil, errors.New("fields: resolver is required")
	}
	input, ok := s.resolver.InputSchema()
	if !ok {
		return nil, nil, ErrNoInputSchema
	}

	report := &Report{}
	requiredSet := make(map[string]struct{}, len(input.Required))
	for _, name := range input.Required {
		requiredSet[name] = struct{}{}
	}

	names := make([]string, 0, len(input.Properties))
	for name := range input.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	descriptors := make([]Descriptor, 0, len(names))
	for _, name := range names {
		_, required := requiredSet[name]
		desc, ok := s.Field(name, input.Properties[name], required, report)
		if !ok {
			continue
		}
		descriptors = append(descriptors, desc)
	}
	return descriptors, report, nil
}

// Field classifies a single property schema. The boolean is false when the
// field cannot be represented and was noted in the report.
func (s *Synthesizer) Field(name string, prop schema.Schema, required bool, report *Report) (Descriptor, bool) {
	union := s.resolver.Deref(prop)
	narrowed := union
	if len(union.AnyOf) > 0 {
		narrowed = s.resolver.ResolveAnyOf(union)
	}

	if narrowed.Type == "array" {
		return s.arrayField(name, narrowed, required, report)
	}

	desc := classifyScalar(name, narrowed, required, s.longDescription, s.sizeField, report)

	// The canonical size field becomes preset-or-custom when the union's
	// non-enum branch resolves to a width/height pair.
	if desc.Kind == KindEnum && name == s.sizeField {
		if custom, ok := s.resolver.NonEnumBranch(union); ok && hasDimensions(custom) {
			cloned := custom.Clone()
			desc.Kind = KindSizedPreset
			desc.CustomSize = &cloned
		}
	}
	return desc, true
}

func (s *Synthesizer) arrayField(name string, narrowed schema.Schema, required bool, report *Report) (Descriptor, bool) {
	items, ok := s.resolver.ResolveItems(narrowed)
	if !ok {
		report.add(name, "array field without a resolvable item schema")
		return Descriptor{}, false
	}

	desc := Descriptor{
		Name:        name,
		Required:    required,
		Default:     narrowed.Default,
		Description: sanitizeDescription(narrowed.Description),
	}

	if items.Type == "string" && imageSemantics(name, s.sizeField) {
		desc.Kind = KindMultiImageUpload
		return desc, true
	}

	cloned := items.Clone()
	desc.Kind = KindRepeatingGroup
	desc.ItemSchema = &cloned
	return desc, true
}

// Elements synthesizes the per-row descriptors of a repeating group. Object
// items expand into one descriptor per property addressed as name[i].prop;
// scalar items produce a single descriptor addressed as name[i]. The group
// descriptor itself is never mutated.
func Elements(group Descriptor, index int) []Descriptor {
	if group.Kind != KindRepeatingGroup || group.ItemSchema == nil || index < 0 {
		return nil
	}
	item := *group.ItemSchema

	if item.Type == "object" || len(item.Properties) > 0 {
		requiredSet := make(map[string]struct{}, len(item.Required))
		for _, name := range item.Required {
			requiredSet[name] = struct{}{}
		}

		names := make([]string, 0, len(item.Properties))
		for name := range item.Properties {
			names = append(names, name)
		}
		sort.Strings(names)

		out := make([]Descriptor, 0, len(names))
		for _, name := range names {
			_, required := requiredSet[name]
			desc := classifyScalar(name, item.Properties[name], required, defaultLongDescription, defaultSizeField, nil)
			desc.Name = fmt.Sprintf("%s[%d].%s", group.Name, index, name)
			out = append(out, desc)
		}
		return out
	}

	desc := classifyScalar(group.Name, item, false, defaultLongDescription, defaultSizeField, nil)
	desc.Name = fmt.Sprintf("%s[%d]", group.Name, index)
	return []Descriptor{desc}
}

// classifyScalar applies the non-array classification rules, first match
// wins. It is pure: the input schema is only read.
func classifyScalar(name string, s schema.Schema, required bool, longDescription int, sizeField string, report *Report) Descriptor {
	desc := Descriptor{
		Name:        name,
		Required:    required,
		Default:     s.Default,
		Description: sanitizeDescription(s.Description),
	}

	switch {
	case s.Type == "string" && imageSemantics(name, sizeField):
		desc.Kind = KindImageUpload

	case s.HasEnum():
		desc.Kind = KindEnum
		desc.Constraints.EnumValues = stringifyEnum(s.Enum)

	case s.Type == "boolean":
		desc.Kind = KindBoolean

	case s.Type == "integer" || s.Type == "number":
		desc.Constraints.Min = s.Minimum
		desc.Constraints.Max = s.Maximum
		switch {
		case !s.HasBounds():
			desc.Kind = KindNumber
		case *s.Minimum > *s.Maximum:
			// An inverted bound pair cannot drive a continuous control;
			// degrade to a plain numeric entry.
			report.add(name, "minimum %v exceeds maximum %v", *s.Minimum, *s.Maximum)
			desc.Kind = KindNumber
			desc.Constraints.Min = nil
			desc.Constraints.Max = nil
		default:
			desc.Kind = KindBoundedNumber
		}

	case s.Type == "string" && len(s.Description) >= longDescription:
		desc.Kind = KindLongText
		desc.Constraints.Pattern = s.Pattern

	default:
		desc.Kind = KindText
		desc.Constraints.Pattern = s.Pattern
		if strings.EqualFold(s.Format, "password") {
			desc.Kind = KindSecretText
		}
	}

	return desc
}

// imageSemantics reports whether a field name implies an uploaded image or
// mask value. The canonical size field is excluded: its name mentions images
// but its value is a preset choice.
func imageSemantics(name, sizeField string) bool {
	lower := strings.ToLower(name)
	if lower == sizeField {
		return false
	}
	return strings.Contains(lower, "image") || strings.Contains(lower, "mask")
}

func hasDimensions(s schema.Schema) bool {
	if len(s.Properties) == 0 {
		return false
	}
	_, hasWidth := s.Properties["width"]
	_, hasHeight := s.Properties["height"]
	return hasWidth && hasHeight
}

func stringifyEnum(values []any) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, fmt.Sprint(value))
	}
	return out
}
