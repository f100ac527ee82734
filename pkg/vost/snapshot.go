package vost

import (
	"strconv"
	"strings"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/pathutil"
	"github.com/mhalle/vost/pkg/tree"
	"github.com/mhalle/vost/pkg/vosterr"
)

// Snapshot is the spec's "Fs": an immutable value identifying a commit
// and its root tree, optionally bound to a writable branch ref. Every
// mutation returns a new Snapshot; the receiver is never modified.
type Snapshot struct {
	repo     *Repository
	commitID object.Hash
	treeID   object.Hash
	refName  string
	writable bool
	report   *ChangeReport
}

func (s *Snapshot) CommitID() object.Hash { return s.commitID }
func (s *Snapshot) TreeID() object.Hash   { return s.treeID }
func (s *Snapshot) RefName() string       { return s.refName }
func (s *Snapshot) Writable() bool        { return s.writable }
func (s *Snapshot) Report() *ChangeReport { return s.report }
func (s *Snapshot) IsEmpty() bool         { return s.commitID == "" }

func (s *Snapshot) reader() *tree.Reader { return tree.NewReader(s.repo.Store, s.treeID) }

func normalize(p string) (string, error) { return pathutil.Normalize(p) }

// Read returns the raw bytes of the blob at path.
func (s *Snapshot) Read(path string) ([]byte, error) {
	np, err := normalize(path)
	if err != nil {
		return nil, err
	}
	data, _, err := s.reader().ReadBlob(np)
	return data, err
}

// ReadText returns the blob at path interpreted as UTF-8, with no BOM
// handling or normalization.
func (s *Snapshot) ReadText(path string) (string, error) {
	data, err := s.Read(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadRange returns the half-open byte range [offset, offset+size) of the
// blob at path, clamped to the blob's length.
func (s *Snapshot) ReadRange(path string, offset int, size *int) ([]byte, error) {
	data, err := s.Read(path)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(data) {
		offset = len(data)
	}
	end := len(data)
	if size != nil {
		if want := offset + *size; want < end {
			end = want
		}
	}
	return data[offset:end], nil
}

// ReadByHash reads a blob directly by content id, bypassing tree
// traversal, with the same optional range clamp as ReadRange.
func (s *Snapshot) ReadByHash(id string, offset int, size *int) ([]byte, error) {
	if err := pathutil.ValidateHash(id); err != nil {
		return nil, err
	}
	data, err := s.repo.Store.ReadBlob(object.Hash(id))
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(data) {
		offset = len(data)
	}
	end := len(data)
	if size != nil {
		if want := offset + *size; want < end {
			end = want
		}
	}
	return data[offset:end], nil
}

// Entry is a caller-facing projection of a tree entry.
type Entry struct {
	Name string
	Path string
	Type object.FileType
	ID   object.Hash
	Mode object.FileMode
}

func toEntry(dirPath string, te object.TreeEntry) Entry {
	ft, _ := object.FileTypeFromMode(te.Mode)
	return Entry{Name: te.Name, Path: pathutil.Join(dirPath, te.Name), Type: ft, ID: te.ID, Mode: te.Mode}
}

// Listdir returns the full entries of a directory.
func (s *Snapshot) Listdir(path string) ([]Entry, error) {
	np, err := normalize(path)
	if err != nil {
		return nil, err
	}
	raw, err := s.reader().List(np)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(raw))
	for i, e := range raw {
		out[i] = toEntry(np, e)
	}
	return out, nil
}

// Ls returns just the entry names of a directory.
func (s *Snapshot) Ls(path string) ([]string, error) {
	entries, err := s.Listdir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// Walk visits every leaf under path, depth-first pre-order.
func (s *Snapshot) Walk(path string, fn func(Entry) error) error {
	np, err := normalize(path)
	if err != nil {
		return err
	}
	return s.reader().Walk(np, func(p string, te object.TreeEntry) error {
		ft, _ := object.FileTypeFromMode(te.Mode)
		return fn(Entry{Name: te.Name, Path: p, Type: ft, ID: te.ID, Mode: te.Mode})
	})
}

// DirWalkEntry groups one directory's children for FUSE-style consumers.
type DirWalkEntry struct {
	Path    string
	SubDirs []string
	Leaves  []Entry
}

// WalkDirs returns one DirWalkEntry per directory under path (including
// path itself), depth-first.
func (s *Snapshot) WalkDirs(path string) ([]DirWalkEntry, error) {
	np, err := normalize(path)
	if err != nil {
		return nil, err
	}
	var out []DirWalkEntry
	var visit func(dir string) error
	visit = func(dir string) error {
		entries, err := s.reader().List(dir)
		if err != nil {
			return err
		}
		var subdirs []string
		var leaves []Entry
		for _, e := range entries {
			if e.Mode == object.ModeTree {
				subdirs = append(subdirs, e.Name)
			} else {
				leaves = append(leaves, toEntry(dir, e))
			}
		}
		out = append(out, DirWalkEntry{Path: dir, SubDirs: subdirs, Leaves: leaves})
		for _, name := range subdirs {
			if err := visit(pathutil.Join(dir, name)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(np); err != nil {
		return nil, err
	}
	return out, nil
}

// FileType returns the type of the entry at path.
func (s *Snapshot) FileType(path string) (object.FileType, error) {
	np, err := normalize(path)
	if err != nil {
		return 0, err
	}
	entry, err := s.reader().Lookup(np)
	if err != nil {
		return 0, err
	}
	ft, ok := object.FileTypeFromMode(entry.Mode)
	if !ok {
		return 0, vosterr.Newf(vosterr.Git, "unrecognized mode %o at %q", entry.Mode, np)
	}
	return ft, nil
}

// Size returns a blob's byte length, or 0 for a tree.
func (s *Snapshot) Size(path string) (int, error) {
	np, err := normalize(path)
	if err != nil {
		return 0, err
	}
	entry, err := s.reader().Lookup(np)
	if err != nil {
		return 0, err
	}
	if entry.Mode == object.ModeTree {
		return 0, nil
	}
	data, err := s.repo.Store.ReadBlob(entry.ID)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// ObjectHash returns the content id of the entry at path.
func (s *Snapshot) ObjectHash(path string) (object.Hash, error) {
	np, err := normalize(path)
	if err != nil {
		return "", err
	}
	entry, err := s.reader().Lookup(np)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Readlink returns a symlink's target string.
func (s *Snapshot) Readlink(path string) (string, error) {
	np, err := normalize(path)
	if err != nil {
		return "", err
	}
	entry, err := s.reader().Lookup(np)
	if err != nil {
		return "", err
	}
	if entry.Mode != object.ModeLink {
		return "", vosterr.WithPath(vosterr.NotADirectory, np, nil)
	}
	data, err := s.repo.Store.ReadBlob(entry.ID)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Stat is a packaged projection of an entry for filesystem front-ends.
type Stat struct {
	Mode  object.FileMode
	Type  object.FileType
	Size  int
	ID    object.Hash
	Nlink int
	Mtime int64
}

// Stat returns filesystem-style metadata for path.
func (s *Snapshot) Stat(path string) (Stat, error) {
	np, err := normalize(path)
	if err != nil {
		return Stat{}, err
	}
	entry, err := s.reader().Lookup(np)
	if err != nil {
		return Stat{}, err
	}
	ft, _ := object.FileTypeFromMode(entry.Mode)

	var mtime int64
	if s.commitID != "" {
		commit, err := s.repo.Store.ReadCommit(s.commitID)
		if err == nil {
			mtime = commit.Author.Time
		}
	}

	st := Stat{Mode: entry.Mode, Type: ft, ID: entry.ID, Mtime: mtime, Nlink: 1}
	if entry.Mode == object.ModeTree {
		n, err := s.reader().CountSubdirs(np)
		if err != nil {
			return Stat{}, err
		}
		st.Nlink = 2 + n
	} else {
		data, err := s.repo.Store.ReadBlob(entry.ID)
		if err != nil {
			return Stat{}, err
		}
		st.Size = len(data)
	}
	return st, nil
}

// Exists reports whether path resolves to any entry; never raises for a
// well-formed path.
func (s *Snapshot) Exists(path string) bool {
	np, err := normalize(path)
	if err != nil {
		return false
	}
	if pathutil.IsRoot(np) {
		return true
	}
	return s.reader().Exists(np)
}

// IsDir reports whether path resolves to a tree entry.
func (s *Snapshot) IsDir(path string) bool {
	np, err := normalize(path)
	if err != nil {
		return false
	}
	return s.reader().IsDir(np)
}

// --- mutations ---

func writeEntry(np string, data []byte, mode object.FileMode, store interface {
	WriteBlob([]byte) (object.Hash, error)
}) (tree.PendingWrite, error) {
	id, err := store.WriteBlob(data)
	if err != nil {
		return tree.PendingWrite{}, err
	}
	return tree.PendingWrite{Path: np, Mode: mode, Blob: id}, nil
}

// Write stages and commits a single blob write at path, default mode Blob.
func (s *Snapshot) Write(path string, data []byte) (*Snapshot, error) {
	return s.WriteMode(path, data, object.ModeBlob)
}

// WriteMode stages and commits a single write at path with an explicit
// mode (Blob or Executable).
func (s *Snapshot) WriteMode(path string, data []byte, mode object.FileMode) (*Snapshot, error) {
	np, err := normalize(path)
	if err != nil {
		return nil, err
	}
	if pathutil.IsRoot(np) {
		return nil, vosterr.WithPath(vosterr.IsADirectory, path, nil)
	}
	w, err := writeEntry(np, data, mode, s.repo.Store)
	if err != nil {
		return nil, err
	}
	return commitChanges(s, []tree.PendingWrite{w}, nil, "write: "+np, nil)
}

// WriteText stages and commits path with string content interpreted as
// UTF-8 bytes.
func (s *Snapshot) WriteText(path, text string) (*Snapshot, error) {
	return s.Write(path, []byte(text))
}

// WriteSymlink stages and commits a Link entry whose blob content is the
// target string.
func (s *Snapshot) WriteSymlink(path, target string) (*Snapshot, error) {
	return s.WriteMode(path, []byte(target), object.ModeLink)
}

// Apply is the atomic multi-path primitive: normalizes every path and
// commits the writes and removes as a single commit.
func (s *Snapshot) Apply(writes map[string][]byte, modes map[string]object.FileMode, removes []string) (*Snapshot, error) {
	var pending []tree.PendingWrite
	for p, data := range writes {
		np, err := normalize(p)
		if err != nil {
			return nil, err
		}
		mode := object.ModeBlob
		if modes != nil {
			if m, ok := modes[p]; ok {
				mode = m
			}
		}
		w, err := writeEntry(np, data, mode, s.repo.Store)
		if err != nil {
			return nil, err
		}
		pending = append(pending, w)
	}
	var normRemoves []string
	for _, p := range removes {
		np, err := normalize(p)
		if err != nil {
			return nil, err
		}
		normRemoves = append(normRemoves, np)
	}
	msg := "apply: " + strconv.Itoa(len(pending)) + " write(s), " + strconv.Itoa(len(normRemoves)) + " remove(s)"
	return commitChanges(s, pending, normRemoves, msg, nil)
}

// RemoveOptions configures Remove.
type RemoveOptions struct {
	Recursive bool
	DryRun    bool
}

// Remove removes the given paths in a single commit.
func (s *Snapshot) Remove(paths []string, opts RemoveOptions) (*Snapshot, error) {
	var normPaths []string
	for _, p := range paths {
		np, err := normalize(p)
		if err != nil {
			return nil, err
		}
		entry, err := s.reader().Lookup(np)
		if err != nil {
			return nil, vosterr.WithPath(vosterr.NotFound, np, nil)
		}
		if entry.Mode == object.ModeTree && !opts.Recursive {
			return nil, vosterr.WithPath(vosterr.IsADirectory, np, nil)
		}
		normPaths = append(normPaths, np)
	}
	if opts.DryRun {
		return s, nil
	}
	return commitChanges(s, nil, normPaths, "remove: "+strconv.Itoa(len(normPaths))+" path(s)", nil)
}

// Rename moves src to dest in a single commit. Neither endpoint may be
// the root. If src is a directory, every leaf underneath is restaged at
// the rewritten destination path.
func (s *Snapshot) Rename(src, dest string) (*Snapshot, error) {
	nsrc, err := normalize(src)
	if err != nil {
		return nil, err
	}
	ndest, err := normalize(dest)
	if err != nil {
		return nil, err
	}
	if pathutil.IsRoot(nsrc) || pathutil.IsRoot(ndest) {
		return nil, vosterr.New(vosterr.InvalidPath, "rename endpoints may not be the root")
	}

	entry, err := s.reader().Lookup(nsrc)
	if err != nil {
		return nil, err
	}

	var writes []tree.PendingWrite
	if entry.Mode == object.ModeTree {
		if err := s.reader().Walk(nsrc, func(leafPath string, leaf object.TreeEntry) error {
			rel := strings.TrimPrefix(leafPath, nsrc+"/")
			writes = append(writes, tree.PendingWrite{Path: pathutil.Join(ndest, rel), Mode: leaf.Mode, Blob: leaf.ID})
			return nil
		}); err != nil {
			return nil, err
		}
	} else {
		writes = append(writes, tree.PendingWrite{Path: ndest, Mode: entry.Mode, Blob: entry.ID})
	}

	return commitChanges(s, writes, []string{nsrc}, "rename: "+nsrc+" -> "+ndest, nil)
}
