package fields

import (
	"github.com/crim50n/falai-paw/pkg/schema"
)

// Constraints carries the validation subset a widget needs. Unused members
// stay at their zero value.
type Constraints struct {
	Min        *float64
	Max        *float64
	EnumValues []string
	Pattern    string
}

// Descriptor describes one synthesized form field: what it is, how to render
// it and how to validate it. Descriptors are plain values; mutating one never
// affects the schema it was derived from.
type Descriptor struct {
	Name        string
	Kind        Kind
	Required    bool
	Constraints Constraints
	Default     any
	Description string

	// ItemSchema is the resolved element schema of a repeating group.
	ItemSchema *schema.Schema

	// CustomSize is the resolved width/height companion schema of a
	// sized-preset field, when the union carries one.
	CustomSize *schema.Schema
}

// HasEnum reports whether the descriptor offers fixed choices.
func (d Descriptor) HasEnum() bool {
	return len(d.Constraints.EnumValues) > 0
}
