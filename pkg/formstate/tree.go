package formstate

// Tree is the nested form-value container: maps keyed by field name, lists
// indexed by row, scalars at the leaves. The zero value is not usable; start
// from NewTree or a decoded snapshot.
type Tree map[string]any

// NewTree returns an empty tree.
func NewTree() Tree {
	return Tree{}
}

// Set builds value into the tree at path, lazily creating a list when the
// next segment is an index and a keyed map otherwise. Lists grow with nil
// padding up to the addressed index. A container of the wrong shape is
// replaced, later writes win.
func (t Tree) Set(path string, value any) error {
	segments, err := ParsePath(path)
	if err != nil {
		return err
	}
	// The grammar guarantees the first segment is a key, so the root map is
	// mutated in place and never replaced.
	setValue(map[string]any(t), segments, value)
	return nil
}

func setValue(node any, segments []Segment, value any) any {
	if len(segments) == 0 {
		return value
	}
	seg := segments[0]

	if seg.IsIndex {
		list, _ := node.([]any)
		for len(list) <= seg.Index {
			list = append(list, nil)
		}
		list[seg.Index] = setValue(list[seg.Index], segments[1:], value)
		return list
	}

	m, ok := node.(map[string]any)
	if !ok || m == nil {
		m = map[string]any{}
	}
	m[seg.Key] = setValue(m[seg.Key], segments[1:], value)
	return m
}

// Get walks the tree along path. The boolean is false when any step is
// missing or the container shape does not match the path.
func (t Tree) Get(path string) (any, bool) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, false
	}

	var node any = map[string]any(t)
	for _, seg := range segments {
		if seg.IsIndex {
			list, ok := node.([]any)
			if !ok || seg.Index >= len(list) {
				return nil, false
			}
			node = list[seg.Index]
			continue
		}
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg.Key]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// Remove deletes the value at path and reports whether anything was removed.
// Removing a list element splices it out, renumbering the tail so indices
// stay contiguous and zero-based.
func (t Tree) Remove(path string) bool {
	segments, err := ParsePath(path)
	if err != nil {
		return false
	}
	_, removed := removeValue(map[string]any(t), segments)
	return removed
}

func removeValue(node any, segments []Segment) (any, bool) {
	seg := segments[0]

	if seg.IsIndex {
		list, ok := node.([]any)
		if !ok || seg.Index >= len(list) {
			return node, false
		}
		if len(segments) == 1 {
			return append(list[:seg.Index], list[seg.Index+1:]...), true
		}
		child, removed := removeValue(list[seg.Index], segments[1:])
		list[seg.Index] = child
		return list, removed
	}

	m, ok := node.(map[string]any)
	if !ok {
		return node, false
	}
	if len(segments) == 1 {
		if _, exists := m[seg.Key]; !exists {
			return m, false
		}
		delete(m, seg.Key)
		return m, true
	}
	child, exists := m[seg.Key]
	if !exists {
		return m, false
	}
	updated, removed := removeValue(child, segments[1:])
	m[seg.Key] = updated
	return m, removed
}

// Clone returns a deep copy of the tree.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	return Tree(copyMap(map[string]any(t)))
}

func copyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = copyValue(value)
	}
	return out
}

func copyValue(value any) any {
	switch typed := value.(type) {
	case Tree:
		return copyMap(map[string]any(typed))
	case map[string]any:
		return copyMap(typed)
	case []any:
		out := make([]any, len(typed))
		for idx, entry := range typed {
			out[idx] = copyValue(entry)
		}
		return out
	default:
		return typed
	}
}
