// Package notes implements the notes sub-store: a parallel ref line
// (refs/notes/<namespace>) whose tree maps 40-hex commit hashes to blobs
// holding arbitrary note text, tolerant of both a flat layout and a
// two-character fanout layout on read, always writing flat.
package notes

import (
	"sort"
	"strconv"
	"time"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/pathutil"
	"github.com/mhalle/vost/pkg/vosterr"
)

// Repository is the subset of *vost.Repository that notes needs, kept
// narrow so this package never imports vost (vost imports notes instead).
type Repository interface {
	ObjectStore() *object.Store
	RefStore() *object.Refs
	SignatureParts() (name, email string)
	WithLock(func() error) error
	ResolveRefOrHash(key string) (object.Hash, error)
}

// Namespace is one notes namespace, backed by refs/notes/<name>.
type Namespace struct {
	repo Repository
	name string
	ref  string
}

func New(repo Repository, name string) *Namespace {
	return &Namespace{repo: repo, name: name, ref: "refs/notes/" + name}
}

func (ns *Namespace) treeID() (object.Hash, error) {
	commitID, err := ns.repo.RefStore().ReadHash(ns.ref)
	if err != nil {
		return "", err
	}
	if commitID.IsZero() {
		return "", nil
	}
	commit, err := ns.repo.ObjectStore().ReadCommit(commitID)
	if err != nil {
		return "", err
	}
	return commit.Tree, nil
}

func (ns *Namespace) resolveKey(key string) (string, error) {
	if pathutil.ValidateHash(key) == nil {
		return key, nil
	}
	id, err := ns.repo.ResolveRefOrHash(key)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

// findNote returns the blob id for hash h in a tree, trying the flat
// layout first, then the 2/38 fanout layout.
func (ns *Namespace) findNote(treeID object.Hash, h string) (object.Hash, bool, error) {
	if treeID == "" {
		return "", false, nil
	}
	t, err := ns.repo.ObjectStore().ReadTree(treeID)
	if err != nil {
		return "", false, err
	}
	if e, ok := t.Find(h); ok && e.Mode != object.ModeTree {
		return e.ID, true, nil
	}
	prefix, suffix := h[:2], h[2:]
	if e, ok := t.Find(prefix); ok && e.Mode == object.ModeTree {
		sub, err := ns.repo.ObjectStore().ReadTree(e.ID)
		if err != nil {
			return "", false, err
		}
		if se, ok := sub.Find(suffix); ok {
			return se.ID, true, nil
		}
	}
	return "", false, nil
}

// Get reads a note's text, resolving key as a hash or a branch/tag name.
func (ns *Namespace) Get(key string) (string, error) {
	h, err := ns.resolveKey(key)
	if err != nil {
		return "", err
	}
	treeID, err := ns.treeID()
	if err != nil {
		return "", err
	}
	blobID, found, err := ns.findNote(treeID, h)
	if err != nil {
		return "", err
	}
	if !found {
		return "", vosterr.WithPath(vosterr.NotFound, h, nil)
	}
	data, err := ns.repo.ObjectStore().ReadBlob(blobID)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Has reports whether a note exists for key.
func (ns *Namespace) Has(key string) bool {
	h, err := ns.resolveKey(key)
	if err != nil {
		return false
	}
	treeID, err := ns.treeID()
	if err != nil {
		return false
	}
	_, found, err := ns.findNote(treeID, h)
	return err == nil && found
}

// List returns every hash with a note, sorted ascending, deduplicated
// across the flat and fanout layouts.
func (ns *Namespace) List() ([]string, error) {
	treeID, err := ns.treeID()
	if err != nil {
		return nil, err
	}
	if treeID == "" {
		return nil, nil
	}
	seen := map[string]bool{}
	if err := ns.iterNotes(treeID, func(h string) { seen[h] = true }); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out, nil
}

func (ns *Namespace) iterNotes(treeID object.Hash, fn func(string)) error {
	t, err := ns.repo.ObjectStore().ReadTree(treeID)
	if err != nil {
		return err
	}
	for _, e := range t.Entries {
		if e.Mode == object.ModeTree && len(e.Name) == 2 {
			sub, err := ns.repo.ObjectStore().ReadTree(e.ID)
			if err != nil {
				return err
			}
			for _, se := range sub.Entries {
				full := e.Name + se.Name
				if pathutil.ValidateHash(full) == nil {
					fn(full)
				}
			}
		} else if pathutil.ValidateHash(e.Name) == nil {
			fn(e.Name)
		}
	}
	return nil
}

// removeFromFanout, if h is stored under the 2/38 fanout, returns a copy
// of base without it (dropping the fanout subtree too if it becomes
// empty). Returns ok=false if h was not found there.
func (ns *Namespace) removeFromFanout(base *object.Tree, h string) (*object.Tree, bool, error) {
	prefix, suffix := h[:2], h[2:]
	e, ok := base.Find(prefix)
	if !ok || e.Mode != object.ModeTree {
		return base, false, nil
	}
	sub, err := ns.repo.ObjectStore().ReadTree(e.ID)
	if err != nil {
		return nil, false, err
	}
	if _, found := sub.Find(suffix); !found {
		return base, false, nil
	}

	newSub := &object.Tree{}
	for _, se := range sub.Entries {
		if se.Name != suffix {
			newSub.Entries = append(newSub.Entries, se)
		}
	}
	newBase := &object.Tree{}
	for _, be := range base.Entries {
		if be.Name == prefix {
			if len(newSub.Entries) == 0 {
				continue
			}
			newSubID, err := ns.repo.ObjectStore().WriteTree(newSub)
			if err != nil {
				return nil, false, err
			}
			newBase.Entries = append(newBase.Entries, object.TreeEntry{Name: prefix, Mode: object.ModeTree, ID: newSubID})
			continue
		}
		newBase.Entries = append(newBase.Entries, be)
	}
	return newBase, true, nil
}

func withoutName(t *object.Tree, name string) *object.Tree {
	out := &object.Tree{}
	for _, e := range t.Entries {
		if e.Name != name {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

func withEntry(t *object.Tree, name string, mode object.FileMode, id object.Hash) *object.Tree {
	out := &object.Tree{}
	replaced := false
	for _, e := range t.Entries {
		if e.Name == name {
			out.Entries = append(out.Entries, object.TreeEntry{Name: name, Mode: mode, ID: id})
			replaced = true
		} else {
			out.Entries = append(out.Entries, e)
		}
	}
	if !replaced {
		out.Entries = append(out.Entries, object.TreeEntry{Name: name, Mode: mode, ID: id})
	}
	return out
}

// Set writes a note's text flat, clearing any fanout entry for the same
// hash.
func (ns *Namespace) Set(key, text string) error {
	h, err := ns.resolveKey(key)
	if err != nil {
		return err
	}
	return ns.commitMutation(func(base *object.Tree) (*object.Tree, error) {
		blobID, err := ns.repo.ObjectStore().WriteBlob([]byte(text))
		if err != nil {
			return nil, err
		}
		t, _, err := ns.removeFromFanout(base, h)
		if err != nil {
			return nil, err
		}
		return withEntry(t, h, object.ModeBlob, blobID), nil
	}, "Notes updated")
}

// Del removes a note, trying the flat layout then the fanout layout.
func (ns *Namespace) Del(key string) error {
	h, err := ns.resolveKey(key)
	if err != nil {
		return err
	}
	removed := false
	err = ns.commitMutation(func(base *object.Tree) (*object.Tree, error) {
		if _, ok := base.Find(h); ok {
			removed = true
			return withoutName(base, h), nil
		}
		t, ok, err := ns.removeFromFanout(base, h)
		if err != nil {
			return nil, err
		}
		removed = ok
		return t, nil
	}, "Notes updated")
	if err != nil {
		return err
	}
	if !removed {
		return vosterr.WithPath(vosterr.NotFound, h, nil)
	}
	return nil
}

// commitMutation re-reads the notes ref tip inside the repository lock,
// applies mutate to the current tree, and CAS-updates the ref with a new
// commit whose parent is the previous tip.
func (ns *Namespace) commitMutation(mutate func(base *object.Tree) (*object.Tree, error), message string) error {
	return ns.repo.WithLock(func() error {
		currentCommitID, err := ns.repo.RefStore().ReadHash(ns.ref)
		if err != nil {
			return err
		}
		var base *object.Tree
		var parents []object.Hash
		if !currentCommitID.IsZero() {
			commit, err := ns.repo.ObjectStore().ReadCommit(currentCommitID)
			if err != nil {
				return err
			}
			base, err = ns.repo.ObjectStore().ReadTree(commit.Tree)
			if err != nil {
				return err
			}
			parents = []object.Hash{currentCommitID}
		} else {
			base = &object.Tree{}
		}

		newTree, err := mutate(base)
		if err != nil {
			return err
		}
		newTreeID, err := ns.repo.ObjectStore().WriteTree(newTree)
		if err != nil {
			return err
		}

		name, email := ns.repo.SignatureParts()
		now := time.Now()
		sig := object.Signature{Name: name, Email: email, Time: now.Unix(), TZOffset: now.Format("-0700")}
		commit := &object.Commit{Tree: newTreeID, Parents: parents, Author: sig, Committer: sig, Message: message}
		newCommitID, err := ns.repo.ObjectStore().WriteCommit(commit)
		if err != nil {
			return err
		}
		return ns.repo.RefStore().CASUpdate(ns.ref, currentCommitID, newCommitID, message)
	})
}

// Batch stages writes and deletes with last-write-wins semantics, applied
// as a single commit on Commit.
type Batch struct {
	ns      *Namespace
	writes  map[string]string
	deletes map[string]bool
}

func (ns *Namespace) NewBatch() *Batch {
	return &Batch{ns: ns, writes: map[string]string{}, deletes: map[string]bool{}}
}

func (b *Batch) Set(key, text string) error {
	h, err := b.ns.resolveKey(key)
	if err != nil {
		return err
	}
	delete(b.deletes, h)
	b.writes[h] = text
	return nil
}

func (b *Batch) Del(key string) error {
	h, err := b.ns.resolveKey(key)
	if err != nil {
		return err
	}
	delete(b.writes, h)
	b.deletes[h] = true
	return nil
}

// Commit applies every staged write and delete in one commit.
func (b *Batch) Commit() error {
	if len(b.writes) == 0 && len(b.deletes) == 0 {
		return nil
	}
	count := len(b.writes) + len(b.deletes)
	return b.ns.commitMutation(func(base *object.Tree) (*object.Tree, error) {
		cur := base
		for h := range b.deletes {
			if _, ok := cur.Find(h); ok {
				cur = withoutName(cur, h)
				continue
			}
			t, ok, err := b.ns.removeFromFanout(cur, h)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			cur = t
		}
		for h, text := range b.writes {
			blobID, err := b.ns.repo.ObjectStore().WriteBlob([]byte(text))
			if err != nil {
				return nil, err
			}
			t, _, err := b.ns.removeFromFanout(cur, h)
			if err != nil {
				return nil, err
			}
			cur = withEntry(t, h, object.ModeBlob, blobID)
		}
		return cur, nil
	}, "Notes batch update ("+strconv.Itoa(count)+" changes)")
}
