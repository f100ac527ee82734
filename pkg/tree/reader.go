// Package tree implements path lookups and the tree-rebuild algorithm
// over the content-addressed object store: walking down from a root tree
// id to resolve a path, listing a directory's entries, and building a new
// root tree id from a base tree plus a set of pending writes and removes.
package tree

import (
	"sort"
	"strings"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/pathutil"
	"github.com/mhalle/vost/pkg/vosterr"
)

// Reader resolves paths against a fixed root tree, reading through an
// object.Store.
type Reader struct {
	store *object.Store
	root  object.Hash
}

func NewReader(store *object.Store, root object.Hash) *Reader {
	return &Reader{store: store, root: root}
}

// Lookup resolves a normalized path to its tree entry. The root path
// ("") resolves to a synthetic tree-typed entry pointing at the root.
func (r *Reader) Lookup(normalizedPath string) (object.TreeEntry, error) {
	if pathutil.IsRoot(normalizedPath) {
		return object.TreeEntry{Name: "", Mode: object.ModeTree, ID: r.root}, nil
	}
	segs := pathutil.Segments(normalizedPath)
	current := r.root

	for i, seg := range segs {
		t, err := r.store.ReadTree(current)
		if err != nil {
			return object.TreeEntry{}, err
		}
		entry, found := t.Find(seg)
		if !found {
			return object.TreeEntry{}, vosterr.WithPath(vosterr.NotFound, normalizedPath, nil)
		}
		last := i == len(segs)-1
		if last {
			return entry, nil
		}
		if entry.Mode != object.ModeTree {
			return object.TreeEntry{}, vosterr.WithPath(vosterr.NotADirectory, normalizedPath, nil)
		}
		current = entry.ID
	}
	return object.TreeEntry{}, vosterr.WithPath(vosterr.NotFound, normalizedPath, nil)
}

// List returns the immediate entries of a directory, sorted by name.
func (r *Reader) List(normalizedPath string) ([]object.TreeEntry, error) {
	treeID := r.root
	if !pathutil.IsRoot(normalizedPath) {
		entry, err := r.Lookup(normalizedPath)
		if err != nil {
			return nil, err
		}
		if entry.Mode != object.ModeTree {
			return nil, vosterr.WithPath(vosterr.NotADirectory, normalizedPath, nil)
		}
		treeID = entry.ID
	}
	t, err := r.store.ReadTree(treeID)
	if err != nil {
		return nil, err
	}
	entries := append([]object.TreeEntry(nil), t.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// ReadBlob resolves a path to a blob and returns its content.
func (r *Reader) ReadBlob(normalizedPath string) ([]byte, object.FileMode, error) {
	entry, err := r.Lookup(normalizedPath)
	if err != nil {
		return nil, 0, err
	}
	if entry.Mode == object.ModeTree {
		return nil, 0, vosterr.WithPath(vosterr.IsADirectory, normalizedPath, nil)
	}
	data, err := r.store.ReadBlob(entry.ID)
	if err != nil {
		return nil, 0, err
	}
	return data, entry.Mode, nil
}

// Walk visits every leaf (blob/executable/link) under normalizedPath,
// depth first, in sorted order, passing each leaf's full path and entry.
func (r *Reader) Walk(normalizedPath string, fn func(path string, entry object.TreeEntry) error) error {
	entries, err := r.List(normalizedPath)
	if err != nil {
		if vosterr.Of(err) == vosterr.NotADirectory {
			// normalizedPath itself is a leaf; nothing to walk under it.
			return nil
		}
		return err
	}
	for _, e := range entries {
		full := pathutil.Join(normalizedPath, e.Name)
		if e.Mode == object.ModeTree {
			if err := r.Walk(full, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(full, e); err != nil {
			return err
		}
	}
	return nil
}

// WalkDirs visits every directory under normalizedPath (not including it),
// depth first, in sorted order.
func (r *Reader) WalkDirs(normalizedPath string, fn func(path string) error) error {
	entries, err := r.List(normalizedPath)
	if err != nil {
		if vosterr.Of(err) == vosterr.NotADirectory {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.Mode != object.ModeTree {
			continue
		}
		full := pathutil.Join(normalizedPath, e.Name)
		if err := fn(full); err != nil {
			return err
		}
		if err := r.WalkDirs(full, fn); err != nil {
			return err
		}
	}
	return nil
}

// CountSubdirs counts the immediate subdirectory entries of normalizedPath
// (no recursion into nested directories).
func (r *Reader) CountSubdirs(normalizedPath string) (int, error) {
	entries, err := r.List(normalizedPath)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Mode == object.ModeTree {
			n++
		}
	}
	return n, nil
}

// Exists reports whether a path resolves to any entry.
func (r *Reader) Exists(normalizedPath string) bool {
	_, err := r.Lookup(normalizedPath)
	return err == nil
}

// IsDir reports whether a path resolves to a tree entry.
func (r *Reader) IsDir(normalizedPath string) bool {
	if pathutil.IsRoot(normalizedPath) {
		return true
	}
	entry, err := r.Lookup(normalizedPath)
	return err == nil && entry.Mode == object.ModeTree
}

// firstSegment splits a normalized path into its first segment and the
// remainder, used by the rebuilder to partition pending writes into
// per-child-subtree batches.
func firstSegment(normalized string) (string, string) {
	if i := strings.IndexByte(normalized, '/'); i >= 0 {
		return normalized[:i], normalized[i+1:]
	}
	return normalized, ""
}
