package vost

import (
	"sort"
	"strings"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/pathutil"
	"github.com/mhalle/vost/pkg/vosterr"
)

// RefDict is a typed, dict-like view over every ref sharing a prefix
// (branches or tags): list, get, set, delete, HEAD management, and
// reflog access.
type RefDict struct {
	repo     *Repository
	prefix   string // "refs/heads" or "refs/tags"
	writable bool
}

// Branches returns a RefDict over refs/heads.
func (r *Repository) Branches() *RefDict { return &RefDict{repo: r, prefix: "refs/heads", writable: true} }

// Tags returns a RefDict over refs/tags.
func (r *Repository) Tags() *RefDict { return &RefDict{repo: r, prefix: "refs/tags", writable: false} }

// List returns every short ref name under this dict's prefix.
func (d *RefDict) List() ([]string, error) {
	refs, err := d.repo.Refs.List(d.prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(refs))
	for full := range refs {
		names = append(names, strings.TrimPrefix(full, d.prefix+"/"))
	}
	sort.Strings(names)
	return names, nil
}

// Get returns the snapshot a named ref points to.
func (d *RefDict) Get(name string) (*Snapshot, error) {
	if err := pathutil.ValidateRefName(name); err != nil {
		return nil, err
	}
	refName := d.prefix + "/" + name
	commitID, err := d.repo.Refs.ReadHash(refName)
	if err != nil {
		return nil, err
	}
	if commitID.IsZero() && !d.writable {
		return nil, vosterr.WithPath(vosterr.KeyNotFound, name, nil)
	}
	return d.repo.snapshotFromCommit(commitID, refName, d.writable)
}

// Has reports whether a named ref exists.
func (d *RefDict) Has(name string) bool {
	if err := pathutil.ValidateRefName(name); err != nil {
		return false
	}
	return d.repo.Refs.Exists(d.prefix + "/" + name)
}

// Set force-creates or moves a named ref to point at the given snapshot.
func (d *RefDict) Set(name string, at *Snapshot) error {
	if err := pathutil.ValidateRefName(name); err != nil {
		return err
	}
	refName := d.prefix + "/" + name
	current, err := d.repo.Refs.ReadHash(refName)
	if err != nil {
		return err
	}
	return d.repo.Refs.CASUpdate(refName, current, at.commitID, "set: "+name)
}

// Delete removes a named ref outright.
func (d *RefDict) Delete(name string) error {
	if err := pathutil.ValidateRefName(name); err != nil {
		return err
	}
	return d.repo.Refs.Delete(d.prefix + "/" + name)
}

// Reflog returns the append-only history of a named ref.
func (d *RefDict) Reflog(name string) ([]object.ReflogEntry, error) {
	if err := pathutil.ValidateRefName(name); err != nil {
		return nil, err
	}
	return d.repo.Refs.ReadReflog(d.prefix + "/" + name)
}

// SetHEAD points HEAD at a branch by name (Branches-only operation).
func (r *Repository) SetHEAD(branchName string) error {
	if err := pathutil.ValidateRefName(branchName); err != nil {
		return err
	}
	return r.Refs.SetHEADSymbolic("refs/heads/" + branchName)
}
