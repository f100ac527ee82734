// Package copy implements the disk <-> repository copy/sync engine:
// walking a working directory the way a working-tree status scan does,
// filtered by include/exclude globs and skipped by content checksum
// rather than size or mtime.
package copy

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/mhalle/vost/internal/vlog"
	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/pathutil"
	"github.com/mhalle/vost/pkg/vost"
)

// Options configures every operation in this package.
type Options struct {
	Include  []string
	Exclude  []string
	Checksum bool // default true when unset via NewOptions
	DryRun   bool
	Message  string
}

// NewOptions returns the spec's defaults: Checksum enabled.
func NewOptions() Options { return Options{Checksum: true} }

func matchesAny(patterns []string, base, relPath string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
		if ok, _ := filepath.Match(p, relPath); ok {
			return true
		}
	}
	return false
}

func included(opts Options, base, relPath string) bool {
	if len(opts.Include) > 0 && !matchesAny(opts.Include, base, relPath) {
		return false
	}
	if len(opts.Exclude) > 0 && matchesAny(opts.Exclude, base, relPath) {
		return false
	}
	return true
}

type diskFile struct {
	relPath string // forward-slash, relative to the disk root
	target  string // symlink target, set only when mode is ModeLink
	data    []byte
	mode    object.FileMode
}

// walkDisk collects every filtered-in regular file or symlink under root,
// following directory symlinks and skipping permission-denied subtrees.
func walkDisk(root string, opts Options) ([]diskFile, []vost.ChangeError, error) {
	var files []diskFile
	var errs []vost.ChangeError

	var visit func(dir, relDir string) error
	visit = func(dir, relDir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsPermission(err) {
				return nil
			}
			return err
		}
		for _, e := range entries {
			abs := filepath.Join(dir, e.Name())
			rel := e.Name()
			if relDir != "" {
				rel = relDir + "/" + e.Name()
			}

			info, err := os.Lstat(abs)
			if err != nil {
				if os.IsPermission(err) {
					continue
				}
				errs = append(errs, vost.ChangeError{Path: rel, Error: err.Error()})
				continue
			}

			if info.Mode()&os.ModeSymlink != 0 {
				target, err := os.Readlink(abs)
				if err != nil {
					errs = append(errs, vost.ChangeError{Path: rel, Error: err.Error()})
					continue
				}
				followed, ferr := os.Stat(abs)
				if ferr == nil && followed.IsDir() {
					if err := visit(abs, rel); err != nil {
						return err
					}
					continue
				}
				base := filepath.Base(rel)
				if included(opts, base, rel) {
					files = append(files, diskFile{relPath: rel, target: target, mode: object.ModeLink})
				}
				continue
			}

			if info.IsDir() {
				if err := visit(abs, rel); err != nil {
					return err
				}
				continue
			}

			if !info.Mode().IsRegular() {
				continue
			}
			base := filepath.Base(rel)
			if !included(opts, base, rel) {
				continue
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				if os.IsPermission(err) {
					continue
				}
				errs = append(errs, vost.ChangeError{Path: rel, Error: err.Error()})
				continue
			}
			mode := object.ModeBlob
			if info.Mode()&0o111 != 0 {
				mode = object.ModeExecutable
			}
			files = append(files, diskFile{relPath: rel, data: data, mode: mode})
		}
		return nil
	}

	if err := visit(root, ""); err != nil {
		return nil, nil, err
	}
	return files, errs, nil
}

// unchanged reports whether the prospective blob id and mode at path
// already match the existing repository entry, per the checksum-skip
// invariant: size and mtime are never consulted.
func unchanged(snap *vost.Snapshot, path string, id object.Hash, mode object.FileMode) bool {
	if !snap.Exists(path) {
		return false
	}
	existingID, err := snap.ObjectHash(path)
	if err != nil {
		return false
	}
	existingType, err := snap.FileType(path)
	if err != nil {
		return false
	}
	return existingID == id && object.ModeFromFileType(existingType) == mode
}

// CopyIn stages every filtered-in disk file under diskSrc as a write at
// dest/relative, skipping unchanged files by checksum, and commits in a
// single batch. Existing repository entries absent on disk are untouched.
func CopyIn(ctx context.Context, snap *vost.Snapshot, diskSrc, dest string, opts Options) (*vost.ChangeReport, *vost.Snapshot, error) {
	log := vlog.From(ctx)
	log.Debug("copy_in starting", "disk_src", diskSrc, "dest", dest)
	files, walkErrs, err := walkDisk(diskSrc, opts)
	if err != nil {
		return nil, nil, err
	}
	report := vost.NewChangeReport()
	report.Errors = append(report.Errors, walkErrs...)

	writes := map[string][]byte{}
	modes := map[string]object.FileMode{}

	for _, f := range files {
		repoPath := pathutil.Join(dest, f.relPath)
		data := f.data
		if f.mode == object.ModeLink {
			data = []byte(f.target)
		}
		id := object.HashBlob(data)
		ft, _ := object.FileTypeFromMode(f.mode)

		if opts.Checksum && unchanged(snap, repoPath, id, f.mode) {
			continue
		}
		existed := snap.Exists(repoPath)
		writes[repoPath] = data
		modes[repoPath] = f.mode
		action := vost.ChangeAction{Path: repoPath, Type: ft, Source: filepath.ToSlash(filepath.Join(diskSrc, f.relPath))}
		if existed {
			report.Updated = append(report.Updated, action)
		} else {
			report.Added = append(report.Added, action)
		}
	}

	if opts.DryRun || (len(writes) == 0 && len(walkErrs) == 0) {
		return report, snap, nil
	}

	newSnap, err := snap.Apply(writes, modes, nil)
	if err != nil {
		return nil, nil, err
	}
	log.Info("copy_in complete", "added", len(report.Added), "updated", len(report.Updated))
	return report, newSnap, nil
}

// SyncIn extends CopyIn by also removing filtered-in repository entries
// under dest that are no longer present on disk.
func SyncIn(ctx context.Context, snap *vost.Snapshot, diskSrc, dest string, opts Options) (*vost.ChangeReport, *vost.Snapshot, error) {
	log := vlog.From(ctx)
	log.Debug("sync_in starting", "disk_src", diskSrc, "dest", dest)
	files, walkErrs, err := walkDisk(diskSrc, opts)
	if err != nil {
		return nil, nil, err
	}
	onDisk := map[string]bool{}
	for _, f := range files {
		onDisk[f.relPath] = true
	}

	report := vost.NewChangeReport()
	report.Errors = append(report.Errors, walkErrs...)

	writes := map[string][]byte{}
	modes := map[string]object.FileMode{}

	for _, f := range files {
		repoPath := pathutil.Join(dest, f.relPath)
		data := f.data
		if f.mode == object.ModeLink {
			data = []byte(f.target)
		}
		id := object.HashBlob(data)
		ft, _ := object.FileTypeFromMode(f.mode)

		if opts.Checksum && unchanged(snap, repoPath, id, f.mode) {
			continue
		}
		existed := snap.Exists(repoPath)
		writes[repoPath] = data
		modes[repoPath] = f.mode
		action := vost.ChangeAction{Path: repoPath, Type: ft, Source: filepath.ToSlash(filepath.Join(diskSrc, f.relPath))}
		if existed {
			report.Updated = append(report.Updated, action)
		} else {
			report.Added = append(report.Added, action)
		}
	}

	var removes []string
	var removedActions []vost.ChangeAction
	if snap.Exists(dest) {
		entries, err := snap.WalkDirs(dest)
		if err != nil {
			return nil, nil, err
		}
		for _, de := range entries {
			for _, leaf := range de.Leaves {
				rel := relativeTo(dest, leaf.Path)
				base := filepath.Base(rel)
				if !included(opts, base, rel) {
					continue
				}
				if onDisk[rel] {
					continue
				}
				removes = append(removes, leaf.Path)
				removedActions = append(removedActions, vost.ChangeAction{Path: leaf.Path, Type: leaf.Type})
			}
		}
	}
	report.Deleted = append(report.Deleted, removedActions...)

	if opts.DryRun || (len(writes) == 0 && len(removes) == 0 && len(walkErrs) == 0) {
		return report, snap, nil
	}

	newSnap, err := snap.Apply(writes, modes, removes)
	if err != nil {
		return nil, nil, err
	}
	log.Info("sync_in complete", "added", len(report.Added), "updated", len(report.Updated), "deleted", len(report.Deleted))
	return report, newSnap, nil
}

func relativeTo(base, path string) string {
	if base == "" {
		return path
	}
	if len(path) > len(base) && path[:len(base)+1] == base+"/" {
		return path[len(base)+1:]
	}
	return path
}

// CopyOut materializes every filtered-in leaf under the repository
// subtree src to disk under diskDest, creating intermediate directories
// as needed. It makes no repository changes.
func CopyOut(ctx context.Context, snap *vost.Snapshot, src, diskDest string, opts Options) (*vost.ChangeReport, error) {
	log := vlog.From(ctx)
	log.Debug("copy_out starting", "src", src, "disk_dest", diskDest)
	report := vost.NewChangeReport()
	if !snap.Exists(src) {
		return report, nil
	}
	err := snap.Walk(src, func(e vost.Entry) error {
		rel := relativeTo(src, e.Path)
		base := filepath.Base(rel)
		if !included(opts, base, rel) {
			return nil
		}
		diskPath := filepath.Join(diskDest, filepath.FromSlash(rel))
		if opts.DryRun {
			report.Added = append(report.Added, vost.ChangeAction{Path: e.Path, Type: e.Type})
			return nil
		}
		if err := materialize(snap, e, diskPath); err != nil {
			report.Errors = append(report.Errors, vost.ChangeError{Path: e.Path, Error: err.Error()})
			return nil
		}
		report.Added = append(report.Added, vost.ChangeAction{Path: e.Path, Type: e.Type})
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("copy_out complete", "written", len(report.Added))
	return report, nil
}

func materialize(snap *vost.Snapshot, e vost.Entry, diskPath string) error {
	if err := os.MkdirAll(filepath.Dir(diskPath), 0o755); err != nil {
		return err
	}
	switch e.Type {
	case object.TypeLink:
		target, err := snap.Readlink(e.Path)
		if err != nil {
			return err
		}
		os.Remove(diskPath)
		return os.Symlink(target, diskPath)
	case object.TypeExecutable:
		data, err := snap.Read(e.Path)
		if err != nil {
			return err
		}
		return os.WriteFile(diskPath, data, 0o755)
	default:
		data, err := snap.Read(e.Path)
		if err != nil {
			return err
		}
		return os.WriteFile(diskPath, data, 0o644)
	}
}

// SyncOut extends CopyOut by deleting filtered-in disk files not present
// in the repository subtree, then pruning empty directories bottom-up.
func SyncOut(ctx context.Context, snap *vost.Snapshot, src, diskDest string, opts Options) (*vost.ChangeReport, error) {
	log := vlog.From(ctx)
	report, err := CopyOut(ctx, snap, src, diskDest, opts)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		return report, nil
	}

	inRepo := map[string]bool{}
	if snap.Exists(src) {
		_ = snap.Walk(src, func(e vost.Entry) error {
			inRepo[relativeTo(src, e.Path)] = true
			return nil
		})
	}

	var toRemove []string
	_ = filepath.WalkDir(diskDest, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(diskDest, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		base := filepath.Base(rel)
		if !included(opts, base, rel) {
			return nil
		}
		if !inRepo[rel] {
			toRemove = append(toRemove, p)
		}
		return nil
	})
	sort.Strings(toRemove)
	for _, p := range toRemove {
		if err := os.Remove(p); err != nil {
			report.Errors = append(report.Errors, vost.ChangeError{Path: p, Error: err.Error()})
			continue
		}
		report.Deleted = append(report.Deleted, vost.ChangeAction{Path: p})
	}

	pruneEmptyDirs(diskDest)
	log.Info("sync_out complete", "deleted", len(report.Deleted))
	return report, nil
}

// pruneEmptyDirs removes every empty directory under root, deepest first,
// leaving root itself even if it ends up empty.
func pruneEmptyDirs(root string) {
	var dirs []string
	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && p != root {
			dirs = append(dirs, p)
		}
		return nil
	})
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err == nil && len(entries) == 0 {
			os.Remove(d)
		}
	}
}
