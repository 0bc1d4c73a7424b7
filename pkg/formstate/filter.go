package formstate

import "strings"

// inlinePayloadThreshold is the encoded length above which an inline data
// URI is considered a binary payload rather than a value worth persisting.
const inlinePayloadThreshold = 4096

// base64Marker splits a data URI's media type from its encoded payload.
const base64Marker = ";base64,"

// FilterLargeInlinePayloads recursively strips string values that carry an
// oversized inline-encoded binary (a data: URI whose base64 payload exceeds
// the threshold). Containers that become empty are dropped with them. The
// input is not mutated; the filtered copy is returned, or nil when the whole
// value was dropped.
func FilterLargeInlinePayloads(v any) any {
	filtered, keep := filterInline(v)
	if !keep {
		return nil
	}
	return filtered
}

// FilterSnapshot applies FilterLargeInlinePayloads to a tree, preserving the
// Tree type for callers that persist the result.
func FilterSnapshot(tree Tree) Tree {
	filtered, keep := filterInline(tree)
	if !keep {
		return NewTree()
	}
	if m, ok := filtered.(map[string]any); ok {
		return Tree(m)
	}
	return NewTree()
}

func filterInline(v any) (any, bool) {
	switch typed := v.(type) {
	case string:
		if isLargeInlinePayload(typed) {
			return nil, false
		}
		return typed, true

	case Tree:
		return filterInlineMap(map[string]any(typed))

	case map[string]any:
		return filterInlineMap(typed)

	case []any:
		out := make([]any, 0, len(typed))
		for _, entry := range typed {
			if filtered, keep := filterInline(entry); keep {
				out = append(out, filtered)
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true

	default:
		return typed, true
	}
}

func filterInlineMap(src map[string]any) (any, bool) {
	out := make(map[string]any, len(src))
	for key, value := range src {
		if filtered, keep := filterInline(value); keep {
			out[key] = filtered
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func isLargeInlinePayload(s string) bool {
	if !strings.HasPrefix(s, "data:") {
		return false
	}
	marker := strings.Index(s, base64Marker)
	if marker < 0 {
		return false
	}
	return len(s)-(marker+len(base64Marker)) > inlinePayloadThreshold
}

// FilterZeroWeightModules drops dead entries from weighted-module lists: any
// top-level array whose elements all look like module records (a map with a
// path-like string and an optional scale/weight number) loses entries with
// an empty path or an exactly-zero weight. An array emptied this way is
// removed from the tree. Other values pass through untouched; the input is
// not mutated.
func FilterZeroWeightModules(tree Tree) Tree {
	out := tree.Clone()
	if out == nil {
		return nil
	}

	for key, value := range out {
		list, ok := value.([]any)
		if !ok || !isModuleList(list) {
			continue
		}

		kept := make([]any, 0, len(list))
		for _, entry := range list {
			record := entry.(map[string]any)
			path, _ := modulePath(record)
			weight, hasWeight := moduleWeight(record)
			if path == "" || (hasWeight && weight == 0) {
				continue
			}
			kept = append(kept, record)
		}

		if len(kept) == 0 {
			delete(out, key)
			continue
		}
		out[key] = kept
	}
	return out
}

func isModuleList(list []any) bool {
	if len(list) == 0 {
		return false
	}
	for _, entry := range list {
		record, ok := entry.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := modulePath(record); !ok {
			return false
		}
	}
	return true
}

func modulePath(record map[string]any) (string, bool) {
	for _, key := range []string{"path", "url"} {
		if raw, present := record[key]; present {
			s, ok := raw.(string)
			return s, ok
		}
	}
	return "", false
}

func moduleWeight(record map[string]any) (float64, bool) {
	for _, key := range []string{"scale", "weight"} {
		raw, present := record[key]
		if !present {
			continue
		}
		switch n := raw.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
	}
	return 0, false
}
