package schema

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// Source identifies where a schema document originated so loaders can operate
// on files, fs.FS entries, or URLs without leaking implementation details.
type Source interface {
	Kind() SourceKind
	Location() string
}

// SourceKind enumerates the loader modalities.
type SourceKind string

const (
	SourceKindFile   SourceKind = "file"
	SourceKindFS     SourceKind = "fs"
	SourceKindURL    SourceKind = "url"
	SourceKindInline SourceKind = "inline"
)

// Document wraps a decoded schema document and its origin. The root tree is
// built once at construction and never mutated afterwards; resolution always
// returns copies.
type Document struct {
	source Source
	raw    []byte
	root   map[string]any
}

// NewDocument decodes the raw payload (JSON first, YAML as fallback) into an
// immutable root tree and wraps it together with its origin.
func NewDocument(src Source, raw []byte) (Document, error) {
	if src == nil {
		return Document{}, errors.New("schema: source is required")
	}
	if len(raw) == 0 {
		return Document{}, errors.New("schema: raw document is empty")
	}

	root, err := decodeRoot(raw)
	if err != nil {
		return Document{}, fmt.Errorf("schema: decode %s: %w", src.Location(), err)
	}

	clone := append([]byte(nil), raw...)
	return Document{source: src, raw: clone, root: root}, nil
}

// MustNewDocument panics if the document cannot be created. Useful for tests.
func MustNewDocument(src Source, raw []byte) Document {
	doc, err := NewDocument(src, raw)
	if err != nil {
		panic(err)
	}
	return doc
}

func decodeRoot(raw []byte) (map[string]any, error) {
	var root map[string]any
	if err := sonic.Unmarshal(raw, &root); err == nil {
		return root, nil
	}
	if err := yaml.Unmarshal(raw, &root); err == nil {
		return root, nil
	}
	return nil, errors.New("invalid JSON or YAML")
}

// Source returns the origin metadata for the document.
func (d Document) Source() Source {
	return d.source
}

// Raw returns a copy of the payload; callers may mutate it freely.
func (d Document) Raw() []byte {
	return append([]byte(nil), d.raw...)
}

// Location returns the string identifier for the origin.
func (d Document) Location() string {
	if d.source == nil {
		return ""
	}
	return d.source.Location()
}

// Empty reports whether the document carries no decoded content.
func (d Document) Empty() bool {
	return len(d.root) == 0
}
