package formstate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/crim50n/falai-paw/pkg/fields"
)

// RawValue is one edit reported by a form control: the field path and the
// control's string serialization of the value.
type RawValue struct {
	Name  string
	Value string
}

// Collect folds an ordered slice of raw edits into a payload tree. Later
// writes to the same path win, so two synchronized controls reporting under
// one path apply exactly once with the most recent edit. Coercion is driven
// by the kind tag, never by sniffing the value: boolean kinds parse
// "true"/"on"/"1", numeric kinds parse floats, array kinds decode a JSON
// list arriving as a string. Empty scalar strings clear the path instead of
// writing an empty value.
//
// Kinds are looked up by exact path first, then by the path with its indices
// stripped, so a map built from row-zero element descriptors covers every
// row.
func Collect(raw []RawValue, kinds map[string]fields.Kind) (Tree, error) {
	lookup := make(map[string]fields.Kind, len(kinds))
	for name, kind := range kinds {
		lookup[stripIndexes(name)] = kind
	}
	for name, kind := range kinds {
		lookup[name] = kind
	}

	tree := NewTree()
	for _, rv := range raw {
		kind, ok := lookup[rv.Name]
		if !ok {
			kind = lookup[stripIndexes(rv.Name)]
		}
		// A JSON-encoded list arrives under the array's own path. An indexed
		// path under an array kind addresses one element and stays a scalar.
		if kind.IsArray() && strings.ContainsRune(rv.Name, '[') {
			kind = ""
		}

		if rv.Value == "" {
			tree.Remove(rv.Name)
			continue
		}

		value, err := coerce(kind, rv.Value)
		if err != nil {
			return nil, fmt.Errorf("formstate: collect %s: %w", rv.Name, err)
		}
		if err := tree.Set(rv.Name, value); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func coerce(kind fields.Kind, value string) (any, error) {
	switch {
	case kind == fields.KindBoolean:
		return parseBool(value), nil

	case kind == fields.KindNumber || kind == fields.KindBoundedNumber:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("parse number %q: %w", value, err)
		}
		return parsed, nil

	case kind.IsArray():
		var list []any
		if err := sonic.Unmarshal([]byte(value), &list); err != nil {
			return nil, fmt.Errorf("decode list %q: %w", value, err)
		}
		return list, nil

	default:
		return value, nil
	}
}

// parseBool accepts the checkbox serializations browsers and terminals emit.
// Anything else is false.
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "on", "1":
		return true
	default:
		return false
	}
}
