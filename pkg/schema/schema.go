package schema

// Schema is the plain intermediate representation of one field schema. It
// carries only the subset of keywords the synthesizer consumes; everything
// else in the source node is ignored rather than rejected.
type Schema struct {
	Ref         string
	Type        string
	Format      string
	Title       string
	Description string
	Default     any
	Enum        []any
	AnyOf       []Schema
	Required    []string
	Properties  map[string]Schema
	Items       *Schema
	Minimum     *float64
	Maximum     *float64
	MinLength   *int
	MaxLength   *int
	Pattern     string
}

// Clone creates a deep copy of the schema tree to avoid accidental mutation.
func (s Schema) Clone() Schema {
	cloned := s
	if len(s.Required) > 0 {
		cloned.Required = append([]string(nil), s.Required...)
	}
	if len(s.Enum) > 0 {
		cloned.Enum = append([]any(nil), s.Enum...)
	}
	if len(s.AnyOf) > 0 {
		cloned.AnyOf = make([]Schema, len(s.AnyOf))
		for i, branch := range s.AnyOf {
			cloned.AnyOf[i] = branch.Clone()
		}
	}
	if len(s.Properties) > 0 {
		cloned.Properties = make(map[string]Schema, len(s.Properties))
		for k, v := range s.Properties {
			cloned.Properties[k] = v.Clone()
		}
	}
	if s.Items != nil {
		items := s.Items.Clone()
		cloned.Items = &items
	}
	if s.Minimum != nil {
		v := *s.Minimum
		cloned.Minimum = &v
	}
	if s.Maximum != nil {
		v := *s.Maximum
		cloned.Maximum = &v
	}
	if s.MinLength != nil {
		v := *s.MinLength
		cloned.MinLength = &v
	}
	if s.MaxLength != nil {
		v := *s.MaxLength
		cloned.MaxLength = &v
	}
	return cloned
}

// HasEnum reports whether the schema carries a non-empty enum constraint.
func (s Schema) HasEnum() bool {
	return len(s.Enum) > 0
}

// HasBounds reports whether both numeric bounds are present.
func (s Schema) HasBounds() bool {
	return s.Minimum != nil && s.Maximum != nil
}

// fromNode decodes a raw schema node into the IR. Unknown keywords are
// skipped; malformed values degrade to their zero form instead of failing the
// whole field.
func fromNode(node map[string]any) Schema {
	if len(node) == 0 {
		return Schema{}
	}

	s := Schema{
		Ref:         readString(node, "$ref"),
		Type:        readString(node, "type"),
		Format:      readString(node, "format"),
		Title:       readString(node, "title"),
		Description: readString(node, "description"),
		Pattern:     readString(node, "pattern"),
		Default:     node["default"],
	}

	if list, ok := node["enum"].([]any); ok && len(list) > 0 {
		s.Enum = append([]any(nil), list...)
	}
	if list, ok := node["anyOf"].([]any); ok {
		for _, entry := range list {
			branch, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			s.AnyOf = append(s.AnyOf, fromNode(branch))
		}
	}
	if list, ok := node["required"].([]any); ok {
		for _, entry := range list {
			if name, ok := entry.(string); ok && name != "" {
				s.Required = append(s.Required, name)
			}
		}
	}
	if props, ok := node["properties"].(map[string]any); ok && len(props) > 0 {
		s.Properties = make(map[string]Schema, len(props))
		for name, raw := range props {
			child, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			s.Properties[name] = fromNode(child)
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		child := fromNode(items)
		s.Items = &child
	}
	if v, ok := readFloat(node, "minimum"); ok {
		s.Minimum = &v
	}
	if v, ok := readFloat(node, "maximum"); ok {
		s.Maximum = &v
	}
	if v, ok := readFloat(node, "minLength"); ok {
		length := int(v)
		s.MinLength = &length
	}
	if v, ok := readFloat(node, "maxLength"); ok {
		length := int(v)
		s.MaxLength = &length
	}

	return s
}

func readString(node map[string]any, key string) string {
	value, ok := node[key].(string)
	if !ok {
		return ""
	}
	return value
}

func readFloat(node map[string]any, key string) (float64, bool) {
	switch v := node[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
