package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/crim50n/falai-paw/pkg/schema"
)

// isSchemaDocument matches the discovery naming convention: each endpoint
// lives in its own directory as an openapi document.
func isSchemaDocument(name string) bool {
	switch name {
	case "openapi.json", "openapi.yaml", "openapi.yml":
		return true
	default:
		return false
	}
}

// Discover walks the tree under root for schema documents and registers each
// one. Per-file failures are collected and joined, never aborting the walk;
// the returned endpoints are the ones that registered during this pass.
func (r *Registry) Discover(ctx context.Context, fsys fs.FS, root string) ([]*Endpoint, error) {
	if fsys == nil {
		return nil, errors.New("endpoint: discover: fsys is required")
	}
	if root == "" {
		root = "."
	}

	var (
		found []*Endpoint
		errs  []error
	)
	walkErr := fs.WalkDir(fsys, root, func(name string, entry fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, fmt.Errorf("endpoint: walk %s: %w", name, err))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !isSchemaDocument(path.Base(name)) {
			return nil
		}

		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("endpoint: read %s: %w", name, err))
			return nil
		}
		doc, err := schema.NewDocument(schema.SourceFromFS(name), data)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		ep, err := r.register(ctx, doc, "", false)
		if err != nil {
			errs = append(errs, err)
			return nil
		}

		r.logger.Debug("endpoint: discovered document", "id", ep.ID, "path", name)
		found = append(found, ep)
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return found, errors.Join(errs...)
}
