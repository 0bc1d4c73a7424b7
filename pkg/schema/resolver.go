package schema

import (
	"sort"
	"strings"
)

// writeMethods lists the operations that can carry a request body, in the
// order they are considered within one path entry.
var writeMethods = []string{"post", "put", "patch"}

// Resolver answers schema questions against one immutable Document. It is a
// total function from pointer to node: lookups that miss report ok=false and
// never mutate the document. Cyclic reference chains are out of contract;
// only a single level of indirection is ever followed, which keeps cycles
// unreachable.
type Resolver struct {
	doc Document
}

// NewResolver wraps the supplied document.
func NewResolver(doc Document) *Resolver {
	return &Resolver{doc: doc}
}

// Document returns the wrapped document.
func (r *Resolver) Document() Document {
	return r.doc
}

// InputSchema locates the first documented write operation carrying a request
// body and returns its schema. Path keys are visited in sorted order and
// write methods in POST, PUT, PATCH order so the result is deterministic for
// a given document. The boolean is false when no such operation exists;
// callers treat that as an incompatible document, not an error.
func (r *Resolver) InputSchema() (Schema, bool) {
	paths, ok := r.doc.root["paths"].(map[string]any)
	if !ok || len(paths) == 0 {
		return Schema{}, false
	}

	keys := make([]string, 0, len(paths))
	for key := range paths {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		item, ok := paths[key].(map[string]any)
		if !ok {
			continue
		}
		for _, method := range writeMethods {
			op, ok := item[method].(map[string]any)
			if !ok {
				continue
			}
			if node, ok := r.requestSchemaNode(op); ok {
				return fromNode(node), true
			}
		}
	}
	return Schema{}, false
}

// InputPath returns the path key of the operation InputSchema would pick,
// using the identical visit order. Registries derive stable endpoint ids
// from it.
func (r *Resolver) InputPath() (string, bool) {
	paths, ok := r.doc.root["paths"].(map[string]any)
	if !ok || len(paths) == 0 {
		return "", false
	}

	keys := make([]string, 0, len(paths))
	for key := range paths {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		item, ok := paths[key].(map[string]any)
		if !ok {
			continue
		}
		for _, method := range writeMethods {
			op, ok := item[method].(map[string]any)
			if !ok {
				continue
			}
			if _, ok := r.requestSchemaNode(op); ok {
				return key, true
			}
		}
	}
	return "", false
}

func (r *Resolver) requestSchemaNode(op map[string]any) (map[string]any, bool) {
	body, ok := r.maybeDeref(op["requestBody"])
	if !ok {
		return nil, false
	}
	content, ok := body["content"].(map[string]any)
	if !ok || len(content) == 0 {
		return nil, false
	}

	media, ok := content["application/json"].(map[string]any)
	if !ok {
		// Fall back to the first media type in sorted order.
		types := make([]string, 0, len(content))
		for mt := range content {
			types = append(types, mt)
		}
		sort.Strings(types)
		for _, mt := range types {
			if candidate, okMT := content[mt].(map[string]any); okMT {
				media = candidate
				ok = true
				break
			}
		}
		if !ok {
			return nil, false
		}
	}

	return r.maybeDeref(media["schema"])
}

// maybeDeref follows a single level of $ref indirection on a raw node.
func (r *Resolver) maybeDeref(raw any) (map[string]any, bool) {
	node, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	ref, _ := node["$ref"].(string)
	if ref == "" {
		return node, true
	}
	return r.ResolvePointer(ref)
}

// Resolve produces the concrete schema for one field: a single level of $ref
// indirection followed by union narrowing. Field-level title, description
// and default survive resolution.
func (r *Resolver) Resolve(s Schema) Schema {
	s = r.Deref(s)
	if len(s.AnyOf) > 0 {
		s = r.ResolveAnyOf(s)
	}
	return s
}

// Deref follows a single level of $ref indirection, leaving any union in
// place. An unresolvable pointer returns the schema unchanged.
func (r *Resolver) Deref(s Schema) Schema {
	if s.Ref == "" {
		return s
	}
	node, ok := r.ResolvePointer(s.Ref)
	if !ok {
		return s
	}
	return overlayField(fromNode(node), s)
}

// ResolveAnyOf narrows a union schema: the first branch carrying an enum
// constraint is preferred (it is the primary interactive variant), otherwise
// the first branch is merged in verbatim. Unions beyond the enum/object
// duality are not modeled.
func (r *Resolver) ResolveAnyOf(s Schema) Schema {
	if len(s.AnyOf) == 0 {
		return s
	}

	branch, ok := r.enumBranch(s)
	if !ok {
		branch = r.resolveBranch(s.AnyOf[0])
	}

	merged := overlayField(branch, s)
	merged.AnyOf = nil
	return merged
}

// NonEnumBranch returns the first union branch without an enum constraint,
// resolved one level. The synthesizer uses it to locate the custom
// width/height companion of a size-preset union.
func (r *Resolver) NonEnumBranch(s Schema) (Schema, bool) {
	for _, raw := range s.AnyOf {
		branch := r.resolveBranch(raw)
		if !branch.HasEnum() {
			return branch, true
		}
	}
	return Schema{}, false
}

func (r *Resolver) enumBranch(s Schema) (Schema, bool) {
	for _, raw := range s.AnyOf {
		branch := r.resolveBranch(raw)
		if branch.HasEnum() {
			return branch, true
		}
	}
	return Schema{}, false
}

func (r *Resolver) resolveBranch(branch Schema) Schema {
	if branch.Ref == "" {
		return branch
	}
	node, ok := r.ResolvePointer(branch.Ref)
	if !ok {
		return branch
	}
	return overlayField(fromNode(node), branch)
}

// ResolveItems resolves one level of reference on an array's item schema.
func (r *Resolver) ResolveItems(s Schema) (Schema, bool) {
	if s.Items == nil {
		return Schema{}, false
	}
	items := *s.Items
	if items.Ref == "" {
		return items.Clone(), true
	}
	node, ok := r.ResolvePointer(items.Ref)
	if !ok {
		return Schema{}, false
	}
	return overlayField(fromNode(node), items), true
}

// ResolvePointer walks the pointer's path segments against the document root
// and returns a copy of the addressed node. Only in-document pointers
// (fragment form, e.g. "#/components/schemas/X") are supported; ~0 and ~1
// escapes are decoded per the JSON pointer rules.
func (r *Resolver) ResolvePointer(ref string) (map[string]any, bool) {
	fragment, ok := strings.CutPrefix(ref, "#")
	if !ok {
		return nil, false
	}
	if fragment == "" {
		return cloneMap(r.doc.root), true
	}
	if !strings.HasPrefix(fragment, "/") {
		return nil, false
	}

	current := any(r.doc.root)
	for _, segment := range strings.Split(fragment, "/")[1:] {
		segment = strings.ReplaceAll(segment, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")

		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	node, ok := current.(map[string]any)
	if !ok {
		return nil, false
	}
	return cloneMap(node), true
}

// overlayField merges the resolved target with the referring field schema:
// the field's own title, description and default win when present so that
// per-field annotations survive shared component references.
func overlayField(resolved, field Schema) Schema {
	merged := resolved.Clone()
	if field.Title != "" {
		merged.Title = field.Title
	}
	if field.Description != "" {
		merged.Description = field.Description
	}
	if field.Default != nil {
		merged.Default = field.Default
	}
	return merged
}

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = cloneAny(value)
	}
	return out
}

func cloneAny(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for idx, entry := range typed {
			out[idx] = cloneAny(entry)
		}
		return out
	default:
		return typed
	}
}
