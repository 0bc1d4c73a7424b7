package formstate

import (
	"fmt"
	"strings"

	"github.com/crim50n/falai-paw/pkg/fields"
)

// MissingFieldsError names the required fields that carry no collected
// value. Submission is blocked while one is returned.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("formstate: required fields missing: %s", strings.Join(e.Fields, ", "))
}

// ValidateRequired checks every required descriptor against the collected
// tree. A field counts as missing when no value exists at its path, the
// value is an empty string, or an array kind has no rows. Returns a
// *MissingFieldsError listing the fields in descriptor order, or nil.
func ValidateRequired(descs []fields.Descriptor, tree Tree) error {
	var missing []string
	for _, desc := range descs {
		if !desc.Required {
			continue
		}
		value, ok := tree.Get(desc.Name)
		if !ok || isEmptyValue(value) {
			missing = append(missing, desc.Name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

func isEmptyValue(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return typed == ""
	case []any:
		return len(typed) == 0
	default:
		return false
	}
}
