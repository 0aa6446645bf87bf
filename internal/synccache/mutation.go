package synccache

import (
	"context"
	"slices"

	"minix/internal/model"
)

type mutationKind int

const (
	mutationInsert mutationKind = iota
	mutationUpdate
	mutationDelete
)

// Mutation is a locally initiated change. It is shown in the listing
// immediately and confirmed or rolled back once its commit returns.
type Mutation struct {
	kind  mutationKind
	entry model.DriveEntry
	keys  []string

	commitEntry  func(ctx context.Context) (model.DriveEntry, error)
	commitDelete func(ctx context.Context) error
}

// Insert shows provisional at the end of the listing until commit returns
// the stored row, which then replaces it.
func Insert(provisional model.DriveEntry, commit func(ctx context.Context) (model.DriveEntry, error)) Mutation {
	return Mutation{kind: mutationInsert, entry: provisional, keys: []string{keyOf(provisional)}, commitEntry: commit}
}

// Update shows changed in place of the row with the same id until commit
// returns the stored row.
func Update(changed model.DriveEntry, commit func(ctx context.Context) (model.DriveEntry, error)) Mutation {
	return Mutation{kind: mutationUpdate, entry: changed, keys: []string{keyOf(changed)}, commitEntry: commit}
}

// Delete hides entries while commit runs.
func Delete(entries []model.DriveEntry, commit func(ctx context.Context) error) Mutation {
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, keyOf(e))
	}
	return Mutation{kind: mutationDelete, keys: keys, commitDelete: commit}
}

// Apply patches the listing with m, runs its commit, and settles the
// outcome. On failure the listing is rolled back to its state before the
// patch, or refetched if other changes landed in the meantime, and the
// commit error is returned.
func (v *View) Apply(ctx context.Context, m Mutation) error {
	v.mu.Lock()
	if v.released {
		v.mu.Unlock()
		return ErrReleased
	}
	if v.state != Ready {
		v.mu.Unlock()
		return ErrNotReady
	}
	snapshot := slices.Clone(v.entries)
	v.patchLocked(m)
	v.version++
	patched := v.version
	v.notifyLocked()
	v.mu.Unlock()

	var (
		stored model.DriveEntry
		err    error
	)
	if m.kind == mutationDelete {
		err = m.commitDelete(ctx)
	} else {
		stored, err = m.commitEntry(ctx)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return err
	}
	if err != nil {
		v.err = err
		if v.version == patched && v.state == Ready {
			v.entries = snapshot
			v.version++
			v.notifyLocked()
		} else {
			v.fetchLocked()
		}
		return err
	}

	if m.kind != mutationDelete && v.state == Ready {
		v.settleLocked(m, stored)
		v.version++
		v.notifyLocked()
	}
	return nil
}

func (v *View) patchLocked(m Mutation) {
	switch m.kind {
	case mutationInsert:
		v.entries = append(v.entries, m.entry)
	case mutationUpdate:
		if idx := v.indexLocked(m.keys[0]); idx >= 0 {
			if v.scope.Contains(m.entry.ParentID()) {
				v.entries[idx] = m.entry
			} else {
				v.entries = slices.Delete(v.entries, idx, idx+1)
			}
		}
	case mutationDelete:
		v.entries = slices.DeleteFunc(v.entries, func(e model.DriveEntry) bool {
			return slices.Contains(m.keys, keyOf(e))
		})
	}
}

// settleLocked swaps the provisional entry for the stored row. A change
// event for the stored row may already have been applied, so the stored
// row replaces any existing copy rather than being appended twice.
func (v *View) settleLocked(m Mutation, stored model.DriveEntry) {
	provisional := v.indexLocked(m.keys[0])
	existing := v.indexLocked(keyOf(stored))
	inScope := v.scope.Contains(stored.ParentID())

	switch {
	case !inScope:
		v.entries = slices.DeleteFunc(v.entries, func(e model.DriveEntry) bool {
			k := keyOf(e)
			return k == m.keys[0] || k == keyOf(stored)
		})
	case existing >= 0 && provisional >= 0 && existing != provisional:
		v.entries[existing] = stored
		v.entries = slices.Delete(v.entries, provisional, provisional+1)
	case provisional >= 0:
		v.entries[provisional] = stored
	case existing >= 0:
		v.entries[existing] = stored
	default:
		// Removed by an event while the commit ran.
	}
}
