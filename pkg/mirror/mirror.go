// Package mirror implements ref enumeration, diffing, and transfer
// between vost repositories, plus the self-contained bundle file format,
// over pluggable transports (local, bundle, smart-HTTP, SSH).
package mirror

import (
	"context"
	"sort"
	"strings"

	"github.com/mhalle/vost/internal/vlog"
	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/vost"
	"github.com/mhalle/vost/pkg/vosterr"
)

// RefChange is one line of a ref diff.
type RefChange struct {
	Name string
	Old  object.Hash // zero for an add
	New  object.Hash // zero for a delete
}

// Diff is the result of comparing two ref sets.
type Diff struct {
	Add    []RefChange
	Update []RefChange
	Delete []RefChange
}

// Transport is the minimal remote interface mirror needs: list every ref
// and its tip, fetch the objects reachable from a set of tips into a
// local repository, and push a local repository's objects/refs out.
type Transport interface {
	ListRefs() (map[string]object.Hash, error)
	Fetch(local *vost.Repository, wanted map[string]object.Hash) error
	Push(local *vost.Repository, refspecs []RefUpdate) error
	Close() error
}

// RefUpdate is one requested ref change sent to Push; a zero New selects
// deletion (":name"). Force records a forced ("+name:name") request; the
// transports in this package do not read it and apply every update
// regardless.
type RefUpdate struct {
	Name  string
	New   object.Hash
	Force bool
}

// LocalRefs reads every ref from repo the way mirror enumerates a local
// side: excludes HEAD, drops any peeled-annotation name (ends in "^{}"),
// resolves symbolic refs (vost stores none besides HEAD, so this is a
// pass-through kept for fidelity with the spec's description).
func LocalRefs(repo *vost.Repository) (map[string]object.Hash, error) {
	all, err := repo.RefStore().List("refs")
	if err != nil {
		return nil, err
	}
	out := make(map[string]object.Hash, len(all))
	for name, id := range all {
		if name == "HEAD" || strings.HasSuffix(name, "^{}") {
			continue
		}
		out[name] = id
	}
	return out, nil
}

// DiffRefs computes add/update/delete between a source and destination ref
// set.
func DiffRefs(source, dest map[string]object.Hash) Diff {
	var d Diff
	for name, id := range source {
		if old, ok := dest[name]; !ok {
			d.Add = append(d.Add, RefChange{Name: name, New: id})
		} else if old != id {
			d.Update = append(d.Update, RefChange{Name: name, Old: old, New: id})
		}
	}
	for name, id := range dest {
		if _, ok := source[name]; !ok {
			d.Delete = append(d.Delete, RefChange{Name: name, Old: id})
		}
	}
	sortChanges(d.Add)
	sortChanges(d.Update)
	sortChanges(d.Delete)
	return d
}

func sortChanges(cs []RefChange) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Name < cs[j].Name })
}

// Options configures Backup/Restore.
type Options struct {
	RefFilter []string // short names resolved per resolveShortName; empty means "all"
}

func resolveShortName(repo *vost.Repository, name string) (string, bool) {
	for _, prefix := range []string{"refs/heads/", "refs/tags/", "refs/notes/"} {
		if repo.RefStore().Exists(prefix + name) {
			return prefix + name, true
		}
	}
	return "refs/heads/" + name, false
}

func filterRefs(repo *vost.Repository, refs map[string]object.Hash, filter []string) map[string]object.Hash {
	if len(filter) == 0 {
		return refs
	}
	out := make(map[string]object.Hash)
	for _, short := range filter {
		full, found := resolveShortName(repo, short)
		if found {
			out[full] = refs[full]
		} else if id, ok := refs[full]; ok {
			out[full] = id
		}
	}
	return out
}

// Backup pushes repo's refs to t: a full force-mirror (including deletes)
// when opts.RefFilter is empty, or a filtered push-only update otherwise.
func Backup(ctx context.Context, repo *vost.Repository, t Transport, opts Options) (Diff, error) {
	log := vlog.From(ctx)
	local, err := LocalRefs(repo)
	if err != nil {
		return Diff{}, err
	}
	remote, err := t.ListRefs()
	if err != nil {
		return Diff{}, err
	}

	full := len(opts.RefFilter) == 0
	source := local
	if !full {
		source = filterRefs(repo, local, opts.RefFilter)
	}

	diff := DiffRefs(source, remote)
	if !full {
		diff.Delete = nil
	}

	var updates []RefUpdate
	for _, c := range diff.Add {
		updates = append(updates, RefUpdate{Name: c.Name, New: c.New, Force: full})
	}
	for _, c := range diff.Update {
		updates = append(updates, RefUpdate{Name: c.Name, New: c.New, Force: full})
	}
	for _, c := range diff.Delete {
		updates = append(updates, RefUpdate{Name: c.Name, New: object.ZeroHash})
	}
	if len(updates) == 0 {
		log.Debug("backup: nothing to push")
		return diff, nil
	}
	if err := t.Push(repo, updates); err != nil {
		return Diff{}, err
	}
	log.Info("backup complete", "added", len(diff.Add), "updated", len(diff.Update), "deleted", len(diff.Delete))
	return diff, nil
}

// Restore fetches refs from t into repo: always additive, never deletes a
// local ref, filtered to opts.RefFilter when non-empty.
func Restore(ctx context.Context, repo *vost.Repository, t Transport, opts Options) (Diff, error) {
	log := vlog.From(ctx)
	remote, err := t.ListRefs()
	if err != nil {
		return Diff{}, err
	}
	local, err := LocalRefs(repo)
	if err != nil {
		return Diff{}, err
	}

	source := remote
	if len(opts.RefFilter) > 0 {
		source = filterRefs(repo, remote, opts.RefFilter)
	}

	diff := DiffRefs(source, local)
	diff.Delete = nil

	if len(diff.Add) == 0 && len(diff.Update) == 0 {
		log.Debug("restore: nothing to fetch")
		return diff, nil
	}

	wanted := make(map[string]object.Hash)
	for _, c := range diff.Add {
		wanted[c.Name] = c.New
	}
	for _, c := range diff.Update {
		wanted[c.Name] = c.New
	}
	if err := t.Fetch(repo, wanted); err != nil {
		return Diff{}, err
	}

	for name, id := range wanted {
		current, err := repo.RefStore().ReadHash(name)
		if err != nil {
			return Diff{}, err
		}
		if err := repo.RefStore().CASUpdate(name, current, id, "restore: "+name); err != nil {
			return Diff{}, vosterr.Wrap(vosterr.IO, err)
		}
	}
	log.Info("restore complete", "added", len(diff.Add), "updated", len(diff.Update))
	return diff, nil
}
