package settings

import (
	"context"
	"fmt"
	"sort"
)

// FieldBinder is the surface Restore replays a snapshot through. EnsureRows
// must run the same row-creation path as the consumer's add-row action so
// restored containers are indistinguishable from user-built ones. ApplyValue
// is the programmatic entry point: implementations must not persist from it;
// their user-edit entry point persists, which is what keeps a restore from
// echoing every value straight back into storage.
type FieldBinder interface {
	EnsureRows(name string, n int)
	ApplyValue(path string, value any)
}

// Restore replays the stored snapshot for endpointID into the binder:
// top-level keys in sorted order, arrays as EnsureRows followed by
// per-element ApplyValue calls index by index. A missing snapshot is a
// no-op.
func (s *Store) Restore(ctx context.Context, endpointID string, binder FieldBinder) error {
	if binder == nil {
		return fmt.Errorf("settings: restore %s: binder is required", endpointID)
	}

	snapshot, ok, err := s.LoadEndpoint(ctx, endpointID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := snapshot[key]
		list, isList := value.([]any)
		if !isList {
			binder.ApplyValue(key, value)
			continue
		}

		binder.EnsureRows(key, len(list))
		for index, element := range list {
			record, isRecord := element.(map[string]any)
			if !isRecord {
				binder.ApplyValue(fmt.Sprintf("%s[%d]", key, index), element)
				continue
			}
			props := make([]string, 0, len(record))
			for prop := range record {
				props = append(props, prop)
			}
			sort.Strings(props)
			for _, prop := range props {
				binder.ApplyValue(fmt.Sprintf("%s[%d].%s", key, index, prop), record[prop])
			}
		}
	}
	return nil
}
