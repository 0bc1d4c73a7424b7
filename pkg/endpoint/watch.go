package endpoint

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/crim50n/falai-paw/pkg/schema"
)

// Watch reloads schema documents as they change on disk. The whole tree
// under root is watched; create and write events on a schema document
// trigger a reload of that document, new directories join the watch.
// Failures are logged and never stop the watch. The watcher shuts down when
// ctx is cancelled.
func (r *Registry) Watch(ctx context.Context, root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("endpoint: start watcher: %w", err)
	}

	err = filepath.WalkDir(root, func(name string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return watcher.Add(name)
		}
		return nil
	})
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("endpoint: watch %s: %w", root, err)
	}

	go r.watchLoop(ctx, watcher)
	return nil
}

func (r *Registry) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() {
		_ = watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}

			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := watcher.Add(event.Name); err != nil {
					r.logger.Warn("endpoint: watch new directory", "path", event.Name, "error", err)
				}
				continue
			}
			if !isSchemaDocument(filepath.Base(event.Name)) {
				continue
			}
			r.reloadFile(ctx, event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("endpoint: watch error", "error", err)
		}
	}
}

func (r *Registry) reloadFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		r.logger.Warn("endpoint: reload document", "path", path, "error", err)
		return
	}
	doc, err := schema.NewDocument(schema.SourceFromFile(path), data)
	if err != nil {
		r.logger.Warn("endpoint: reload document", "path", path, "error", err)
		return
	}
	ep, err := r.register(ctx, doc, "", false)
	if err != nil {
		r.logger.Warn("endpoint: reload document", "path", path, "error", err)
		return
	}
	r.logger.Debug("endpoint: reloaded document", "id", ep.ID, "path", path)
}
