// Package fields classifies resolved field schemas into typed descriptors
// that an external UI can render without understanding schema documents.
package fields

// Kind identifies the widget class a descriptor should be rendered with. The
// set is closed: classification is a total function over the resolved schema
// and every descriptor carries exactly one of these values.
type Kind string

const (
	// KindEnum is a fixed-choice field backed by an enum constraint.
	KindEnum Kind = "enum"
	// KindBoolean is a toggle.
	KindBoolean Kind = "boolean"
	// KindBoundedNumber is a numeric field with both bounds present; the UI
	// pairs a continuous control with a precise entry kept in sync.
	KindBoundedNumber Kind = "bounded-number"
	// KindNumber is a numeric field without a complete bound pair.
	KindNumber Kind = "number"
	// KindText is a single-line string field.
	KindText Kind = "text"
	// KindLongText is a string field with a long description, rendered as a
	// multi-line area.
	KindLongText Kind = "long-text"
	// KindSecretText is a string field flagged with password formatting.
	KindSecretText Kind = "secret-text"
	// KindImageUpload is a string field whose name carries image or mask
	// semantics; its value is an uploaded resource URL.
	KindImageUpload Kind = "image-upload"
	// KindMultiImageUpload is a string array whose name carries image
	// semantics; its value is a list of uploaded resource URLs.
	KindMultiImageUpload Kind = "multi-image-upload"
	// KindRepeatingGroup is any other array field; rows are synthesized per
	// element via Elements.
	KindRepeatingGroup Kind = "repeating-group"
	// KindSizedPreset is the canonical size field: preset choices from the
	// enum branch of its union plus an optional custom width/height pair.
	KindSizedPreset Kind = "sized-preset-or-custom"
)

// Valid reports whether the kind belongs to the closed set.
func (k Kind) Valid() bool {
	switch k {
	case KindEnum, KindBoolean, KindBoundedNumber, KindNumber, KindText,
		KindLongText, KindSecretText, KindImageUpload, KindMultiImageUpload,
		KindRepeatingGroup, KindSizedPreset:
		return true
	}
	return false
}

// IsArray reports whether values for this kind are collected as lists.
func (k Kind) IsArray() bool {
	return k == KindMultiImageUpload || k == KindRepeatingGroup
}

func (k Kind) String() string {
	return string(k)
}
