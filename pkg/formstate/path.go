// Package formstate turns flat form edits into nested request payloads and
// back again: path parsing, ordered value collection, merging with persisted
// snapshots, and the filters applied to payloads before they are stored.
package formstate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a field path: a map key or a list index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// ParsePath splits a field path into segments. The grammar is a chain of
// identifiers and bracketed integer indices: "prompt", "loras[2]",
// "loras[2].scale". Keys may contain any character except '.' and '['.
func ParsePath(path string) ([]Segment, error) {
	if path == "" {
		return nil, errors.New("formstate: empty path")
	}

	var segments []Segment
	i := 0
	for i < len(path) {
		switch path[i] {
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("formstate: path %q: unterminated index", path)
			}
			digits := path[i+1 : i+end]
			index, err := strconv.Atoi(digits)
			if err != nil || index < 0 {
				return nil, fmt.Errorf("formstate: path %q: invalid index %q", path, digits)
			}
			if len(segments) == 0 {
				return nil, fmt.Errorf("formstate: path %q: index without a field name", path)
			}
			segments = append(segments, Segment{Index: index, IsIndex: true})
			i += end + 1
		case '.':
			if i+1 >= len(path) || path[i+1] == '.' || path[i+1] == '[' {
				return nil, fmt.Errorf("formstate: path %q: empty segment", path)
			}
			i++
		default:
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				j++
			}
			segments = append(segments, Segment{Key: path[i:j]})
			i = j
		}
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("formstate: path %q: no segments", path)
	}
	return segments, nil
}

// stripIndexes removes every bracketed index from a path so per-row names
// collapse onto their template: "loras[2].scale" becomes "loras.scale".
func stripIndexes(path string) string {
	if !strings.ContainsRune(path, '[') {
		return path
	}
	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		if path[i] == '[' {
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				b.WriteString(path[i:])
				break
			}
			i += end
			continue
		}
		b.WriteByte(path[i])
	}
	return b.String()
}
