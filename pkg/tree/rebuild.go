package tree

import (
	"github.com/mhalle/vost/pkg/object"
)

// PendingWrite is one blob to place at a path during a rebuild.
type PendingWrite struct {
	Path string // normalized, relative to the tree being rebuilt
	Mode object.FileMode
	Blob object.Hash
}

// Rebuilder builds a new root tree id from a base tree plus a set of
// pending writes and removes, recursing depth-first per subtree and
// reusing any sibling subtree untouched by the change set by its
// existing id — so an unrelated directory costs one entry copy, never a
// re-read of its contents.
//
// A subtree that ends up with zero entries after a rebuild is pruned from
// its parent rather than kept as an empty tree object.
type Rebuilder struct {
	store *object.Store
}

func NewRebuilder(store *object.Store) *Rebuilder {
	return &Rebuilder{store: store}
}

// Rebuild applies writes and removes (both normalized, relative paths) on
// top of baseRoot and returns the resulting root tree id. baseRoot may be
// object.ZeroHash for a rebuild starting from an empty tree.
func (rb *Rebuilder) Rebuild(baseRoot object.Hash, writes []PendingWrite, removes []string) (object.Hash, error) {
	if len(writes) == 0 && len(removes) == 0 {
		if baseRoot.IsZero() {
			return rb.store.WriteTree(&object.Tree{})
		}
		return baseRoot, nil
	}
	newRoot, _, err := rb.rebuildSubtree(baseRoot, writes, removes)
	if err != nil {
		return "", err
	}
	if newRoot.IsZero() {
		return rb.store.WriteTree(&object.Tree{})
	}
	return newRoot, nil
}

// rebuildSubtree rebuilds one tree level. It returns the new subtree id
// (ZeroHash if the result is empty) and whether anything actually changed
// (so an unaffected branch of the recursion can reuse the base id instead
// of re-serializing an identical tree).
func (rb *Rebuilder) rebuildSubtree(baseID object.Hash, writes []PendingWrite, removes []string) (object.Hash, bool, error) {
	base := &object.Tree{}
	if !baseID.IsZero() {
		t, err := rb.store.ReadTree(baseID)
		if err != nil {
			return "", false, err
		}
		base = t
	}

	// Partition pending writes/removes by first path segment.
	type group struct {
		leafWrite   *PendingWrite
		leafRemove  bool
		childWrites []PendingWrite
		childRmv    []string
	}
	groups := make(map[string]*group)
	order := func(name string) *group {
		g, ok := groups[name]
		if !ok {
			g = &group{}
			groups[name] = g
		}
		return g
	}

	for _, w := range writes {
		seg, rest := firstSegment(w.Path)
		g := order(seg)
		if rest == "" {
			wCopy := w
			wCopy.Path = seg
			g.leafWrite = &wCopy
		} else {
			wCopy := w
			wCopy.Path = rest
			g.childWrites = append(g.childWrites, wCopy)
		}
	}
	for _, p := range removes {
		seg, rest := firstSegment(p)
		g := order(seg)
		if rest == "" {
			g.leafRemove = true
		} else {
			g.childRmv = append(g.childRmv, rest)
		}
	}

	result := make([]object.TreeEntry, 0, len(base.Entries)+len(groups))
	touched := make(map[string]bool, len(groups))
	for name := range groups {
		touched[name] = true
	}

	// Start from untouched base entries, preserved verbatim.
	for _, e := range base.Entries {
		if !touched[e.Name] {
			result = append(result, e)
		}
	}

	changed := false
	for name, g := range groups {
		existing, hadExisting := base.Find(name)

		switch {
		case g.leafWrite != nil:
			result = append(result, object.TreeEntry{Name: name, Mode: g.leafWrite.Mode, ID: g.leafWrite.Blob})
			changed = true

		case g.leafRemove && len(g.childWrites) == 0 && len(g.childRmv) == 0:
			changed = true
			// dropped: not added back to result

		default:
			var baseChildID object.Hash
			if hadExisting && existing.Mode == object.ModeTree {
				baseChildID = existing.ID
			}
			newChildID, childChanged, err := rb.rebuildSubtree(baseChildID, g.childWrites, g.childRmv)
			if err != nil {
				return "", false, err
			}
			if newChildID.IsZero() {
				changed = true
				continue // pruned: empty subtree, drop the entry
			}
			if !childChanged && hadExisting {
				result = append(result, existing)
				continue
			}
			result = append(result, object.TreeEntry{Name: name, Mode: object.ModeTree, ID: newChildID})
			changed = true
		}
	}

	if len(result) == 0 {
		return object.ZeroHash, true, nil
	}
	if !changed {
		return baseID, false, nil
	}

	newID, err := rb.store.WriteTree(&object.Tree{Entries: result})
	if err != nil {
		return "", false, err
	}
	return newID, true, nil
}
