package tui

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/crim50n/falai-paw/pkg/fields"
	"github.com/crim50n/falai-paw/pkg/formstate"
)

const customSizeOption = "custom (width x height)"

// Prompter walks a descriptor set and prompts for each field. Saved
// snapshot values become prompt defaults; the output is the ordered raw
// edit list plus the kind tags formstate.Collect needs.
type Prompter struct {
	driver PromptDriver
}

// NewPrompter wraps a prompt driver.
func NewPrompter(driver PromptDriver) *Prompter {
	return &Prompter{driver: driver}
}

// Run prompts for every descriptor in order. prior may be nil.
func (p *Prompter) Run(ctx context.Context, descriptors []fields.Descriptor, prior formstate.Tree) ([]formstate.RawValue, map[string]fields.Kind, error) {
	var values []formstate.RawValue
	kinds := make(map[string]fields.Kind, len(descriptors))

	for _, d := range descriptors {
		kinds[d.Name] = d.Kind

		var err error
		switch d.Kind {
		case fields.KindEnum:
			values, err = p.promptEnum(ctx, d, prior, values)
		case fields.KindSizedPreset:
			values, err = p.promptSizedPreset(ctx, d, prior, values, kinds)
		case fields.KindBoolean:
			values, err = p.promptBoolean(ctx, d, prior, values)
		case fields.KindMultiImageUpload:
			values, err = p.promptImageList(ctx, d, prior, values)
		case fields.KindRepeatingGroup:
			values, err = p.promptRows(ctx, d, prior, values, kinds)
		default:
			var v string
			v, err = p.promptScalar(ctx, d, priorString(prior, d.Name))
			if err == nil && v != "" {
				values = append(values, formstate.RawValue{Name: d.Name, Value: v})
			}
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return values, kinds, nil
}

// promptScalar handles every single-value kind, including elements of
// repeating groups.
func (p *Prompter) promptScalar(ctx context.Context, d fields.Descriptor, def string) (string, error) {
	cfg := InputConfig{
		Message:   d.Name,
		Default:   def,
		Help:      d.Description,
		Validator: scalarValidator(d),
	}
	switch d.Kind {
	case fields.KindSecretText:
		cfg.Default = ""
		return p.driver.Password(ctx, cfg)
	case fields.KindLongText:
		return p.driver.TextArea(ctx, TextAreaConfig{Message: d.Name, Default: def, Help: d.Description})
	case fields.KindEnum:
		options := d.Constraints.EnumValues
		if len(options) == 0 {
			return p.driver.Input(ctx, cfg)
		}
		choice, err := p.driver.Select(ctx, SelectConfig{
			Message:      d.Name,
			Options:      options,
			DefaultIndex: defaultIndex(options, def, d.Default),
			Help:         d.Description,
			PageSize:     10,
		})
		if err != nil || choice < 0 {
			return "", err
		}
		return options[choice], nil
	case fields.KindBoolean:
		on, err := p.driver.Confirm(ctx, ConfirmConfig{Message: d.Name, Help: d.Description, Default: def == "true"})
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(on), nil
	default:
		return p.driver.Input(ctx, cfg)
	}
}

func (p *Prompter) promptEnum(ctx context.Context, d fields.Descriptor, prior formstate.Tree, values []formstate.RawValue) ([]formstate.RawValue, error) {
	options := d.Constraints.EnumValues
	if len(options) == 0 {
		v, err := p.driver.Input(ctx, InputConfig{Message: d.Name, Help: d.Description})
		if err != nil {
			return nil, err
		}
		if v != "" {
			values = append(values, formstate.RawValue{Name: d.Name, Value: v})
		}
		return values, nil
	}

	choice, err := p.driver.Select(ctx, SelectConfig{
		Message:      d.Name,
		Options:      options,
		DefaultIndex: defaultIndex(options, priorString(prior, d.Name), d.Default),
		Help:         d.Description,
		PageSize:     10,
	})
	if err != nil {
		return nil, err
	}
	if choice >= 0 && choice < len(options) {
		values = append(values, formstate.RawValue{Name: d.Name, Value: options[choice]})
	}
	return values, nil
}

// promptSizedPreset offers the documented presets plus a custom entry that
// expands into width/height prompts.
func (p *Prompter) promptSizedPreset(ctx context.Context, d fields.Descriptor, prior formstate.Tree, values []formstate.RawValue, kinds map[string]fields.Kind) ([]formstate.RawValue, error) {
	options := append(append([]string(nil), d.Constraints.EnumValues...), customSizeOption)

	def := defaultIndex(options, priorString(prior, d.Name), d.Default)
	if prior != nil {
		// A saved custom size is a map, not a preset string.
		if v, ok := prior.Get(d.Name); ok {
			if _, isMap := v.(map[string]any); isMap {
				def = len(options) - 1
			}
		}
	}

	choice, err := p.driver.Select(ctx, SelectConfig{
		Message:      d.Name,
		Options:      options,
		DefaultIndex: def,
		Help:         d.Description,
		PageSize:     10,
	})
	if err != nil {
		return nil, err
	}
	if choice != len(options)-1 {
		if choice >= 0 {
			values = append(values, formstate.RawValue{Name: d.Name, Value: options[choice]})
		}
		return values, nil
	}

	widthPath := d.Name + ".width"
	heightPath := d.Name + ".height"
	kinds[widthPath] = fields.KindNumber
	kinds[heightPath] = fields.KindNumber

	for _, path := range []string{widthPath, heightPath} {
		v, err := p.driver.Input(ctx, InputConfig{
			Message:   path,
			Default:   priorString(prior, path),
			Validator: positiveIntValidator,
		})
		if err != nil {
			return nil, err
		}
		values = append(values, formstate.RawValue{Name: path, Value: v})
	}
	return values, nil
}

func (p *Prompter) promptBoolean(ctx context.Context, d fields.Descriptor, prior formstate.Tree, values []formstate.RawValue) ([]formstate.RawValue, error) {
	def := false
	if v, ok := prior.Get(d.Name); ok {
		if b, isBool := v.(bool); isBool {
			def = b
		}
	} else if b, isBool := d.Default.(bool); isBool {
		def = b
	}

	on, err := p.driver.Confirm(ctx, ConfirmConfig{Message: d.Name, Default: def, Help: d.Description})
	if err != nil {
		return nil, err
	}
	return append(values, formstate.RawValue{Name: d.Name, Value: strconv.FormatBool(on)}), nil
}

// promptImageList collects URLs one by one until an empty entry, then
// reports them as one JSON-encoded list under the field's own path.
func (p *Prompter) promptImageList(ctx context.Context, d fields.Descriptor, prior formstate.Tree, values []formstate.RawValue) ([]formstate.RawValue, error) {
	var saved []string
	if prior != nil {
		if v, ok := prior.Get(d.Name); ok {
			if list, isList := v.([]any); isList {
				for _, entry := range list {
					if s, isString := entry.(string); isString {
						saved = append(saved, s)
					}
				}
			}
		}
	}

	var urls []string
	for i := 0; ; i++ {
		def := ""
		if i < len(saved) {
			def = saved[i]
		}
		url, err := p.driver.Input(ctx, InputConfig{
			Message: fmt.Sprintf("%s[%d] (empty to finish)", d.Name, i),
			Default: def,
			Help:    d.Description,
		})
		if err != nil {
			return nil, err
		}
		if url == "" {
			break
		}
		urls = append(urls, url)
	}
	if len(urls) == 0 {
		return values, nil
	}

	encoded, err := sonic.Marshal(urls)
	if err != nil {
		return nil, fmt.Errorf("tui: encode %s: %w", d.Name, err)
	}
	return append(values, formstate.RawValue{Name: d.Name, Value: string(encoded)}), nil
}

// promptRows walks a repeating group: saved rows replay with their values
// as defaults, then the user confirms each additional row.
func (p *Prompter) promptRows(ctx context.Context, group fields.Descriptor, prior formstate.Tree, values []formstate.RawValue, kinds map[string]fields.Kind) ([]formstate.RawValue, error) {
	priorRows := 0
	if prior != nil {
		if v, ok := prior.Get(group.Name); ok {
			if list, isList := v.([]any); isList {
				priorRows = len(list)
			}
		}
	}

	for i := 0; ; i++ {
		if i >= priorRows {
			add, err := p.driver.Confirm(ctx, ConfirmConfig{
				Message: fmt.Sprintf("Add %s[%d]?", group.Name, i),
				Help:    group.Description,
			})
			if err != nil {
				return nil, err
			}
			if !add {
				break
			}
		}

		elements := fields.Elements(group, i)
		if len(elements) == 0 {
			break
		}
		for _, el := range elements {
			kinds[el.Name] = el.Kind
			v, err := p.promptScalar(ctx, el, priorString(prior, el.Name))
			if err != nil {
				return nil, err
			}
			if v != "" {
				values = append(values, formstate.RawValue{Name: el.Name, Value: v})
			}
		}
	}
	return values, nil
}

func scalarValidator(d fields.Descriptor) func(string) error {
	numeric := d.Kind == fields.KindNumber || d.Kind == fields.KindBoundedNumber
	return func(s string) error {
		if s == "" {
			if d.Required {
				return fmt.Errorf("%s is required", d.Name)
			}
			return nil
		}
		if !numeric {
			return nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		if d.Constraints.Min != nil && n < *d.Constraints.Min {
			return fmt.Errorf("must be at least %v", *d.Constraints.Min)
		}
		if d.Constraints.Max != nil && n > *d.Constraints.Max {
			return fmt.Errorf("must be at most %v", *d.Constraints.Max)
		}
		return nil
	}
}

func positiveIntValidator(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive whole number")
	}
	return nil
}

// defaultIndex resolves the preselected option: saved value first, then the
// schema default, then the first option.
func defaultIndex(options []string, saved string, schemaDefault any) int {
	if saved != "" {
		if i := indexOf(options, saved); i >= 0 {
			return i
		}
	}
	if schemaDefault != nil {
		if i := indexOf(options, fmt.Sprint(schemaDefault)); i >= 0 {
			return i
		}
	}
	return 0
}

func priorString(prior formstate.Tree, path string) string {
	if prior == nil {
		return ""
	}
	v, ok := prior.Get(path)
	if !ok || v == nil {
		return ""
	}
	switch typed := v.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return ""
	}
}
