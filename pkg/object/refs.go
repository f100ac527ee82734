package object

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mhalle/vost/pkg/vosterr"
)

// Refs manages the reference namespace (refs/heads/, refs/tags/,
// refs/notes/<ns>, refs/tx/<uuid>, and the symbolic HEAD file) rooted at
// a repository's top-level directory, with compare-and-swap updates and
// an append-only reflog per ref.
type Refs struct {
	root string
}

func NewRefs(root string) *Refs { return &Refs{root: root} }

func (r *Refs) refPath(name string) string {
	if name == "HEAD" {
		return filepath.Join(r.root, "HEAD")
	}
	return filepath.Join(r.root, filepath.FromSlash(name))
}

func (r *Refs) reflogPath(name string) string {
	if name == "HEAD" {
		return filepath.Join(r.root, "logs", "HEAD")
	}
	return filepath.Join(r.root, "logs", filepath.FromSlash(name))
}

// ReadHash reads the object id a ref currently points at. A missing ref
// returns ZeroHash, not an error: callers distinguish "never existed" from
// "points at the zero object" only through CAS semantics, never through a
// lookup failure.
func (r *Refs) ReadHash(name string) (Hash, error) {
	data, err := os.ReadFile(r.refPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ZeroHash, nil
		}
		return "", vosterr.Wrap(vosterr.IO, err)
	}
	return Hash(strings.TrimSpace(string(data))), nil
}

// ReadHEAD returns the branch ref name HEAD currently points at (e.g.
// "refs/heads/main"), or the detached commit id if HEAD holds one
// directly.
func (r *Refs) ReadHEAD() (symbolic string, detached Hash, err error) {
	data, readErr := os.ReadFile(r.refPath("HEAD"))
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return "", "", vosterr.WithPath(vosterr.NotFound, "HEAD", readErr)
		}
		return "", "", vosterr.Wrap(vosterr.IO, readErr)
	}
	content := strings.TrimRight(string(data), "\n")
	if strings.HasPrefix(content, "ref: ") {
		return strings.TrimPrefix(content, "ref: "), "", nil
	}
	return "", Hash(content), nil
}

// SetHEADSymbolic points HEAD at a branch ref without touching the ref
// itself.
func (r *Refs) SetHEADSymbolic(refName string) error {
	return os.WriteFile(r.refPath("HEAD"), []byte("ref: "+refName+"\n"), 0o644)
}

// Exists reports whether a ref file is present.
func (r *Refs) Exists(name string) bool {
	_, err := os.Stat(r.refPath(name))
	return err == nil
}

// CASUpdate atomically moves a ref from oldHash to newHash, failing with
// StaleSnapshot if the ref's current value does not match oldHash. A
// reflog entry is appended after the rename succeeds. Passing ZeroHash as
// oldHash requires the ref to not currently exist (or to already hold the
// zero hash); passing ZeroHash as newHash deletes the ref.
func (r *Refs) CASUpdate(name string, oldHash, newHash Hash, reason string) error {
	refPath := r.refPath(name)
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireLock(lockPath)
	if err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	cleanup := true
	defer func() {
		if lockFile != nil {
			lockFile.Close()
		}
		if cleanup {
			os.Remove(lockPath)
		}
	}()

	current, err := r.ReadHash(name)
	if err != nil {
		return err
	}
	if current != oldHash {
		return vosterr.Newf(vosterr.StaleSnapshot, "ref %q: expected %s, found %s", name, oldHash, current)
	}

	if newHash.IsZero() {
		lockFile.Close()
		lockFile = nil
		os.Remove(lockPath)
		cleanup = false
		if err := os.Remove(refPath); err != nil && !os.IsNotExist(err) {
			return vosterr.Wrap(vosterr.IO, err)
		}
		return r.appendReflog(name, current, ZeroHash, reason)
	}

	if _, err := lockFile.WriteString(string(newHash) + "\n"); err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	if err := lockFile.Sync(); err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return vosterr.Wrap(vosterr.IO, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	cleanup = false

	return r.appendReflog(name, current, newHash, reason)
}

func acquireLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(2 * time.Second)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return nil, err
	}
}

// ReflogEntry is one line of a ref's append-only history.
type ReflogEntry struct {
	Ref       string
	OldHash   Hash
	NewHash   Hash
	Timestamp int64
	Reason    string
}

func (r *Refs) appendReflog(name string, oldHash, newHash Hash, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "update"
	}
	logPath := r.reflogPath(name)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}

	old, newV := oldHash, newHash
	if old == "" {
		old = ZeroHash
	}
	if newV == "" {
		newV = ZeroHash
	}
	line := fmt.Sprintf("%s %s %d %s\n", old, newV, time.Now().Unix(), reason)

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	return nil
}

// ReadReflog returns a ref's history, newest entry first.
func (r *Refs) ReadReflog(name string) ([]ReflogEntry, error) {
	f, err := os.Open(r.reflogPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	defer f.Close()

	var entries []ReflogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 4)
		if len(parts) < 4 {
			continue
		}
		ts, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, ReflogEntry{
			Ref: name, OldHash: Hash(parts[0]), NewHash: Hash(parts[1]),
			Timestamp: ts, Reason: parts[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// List returns every ref name under the given prefix (e.g. "refs/heads"),
// mapped to its current hash. Ref names are returned in full
// ("refs/heads/main"), not relative to the prefix.
func (r *Refs) List(prefix string) (map[string]Hash, error) {
	dir := filepath.Join(r.root, filepath.FromSlash(prefix))
	refs := make(map[string]Hash)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}
		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		refs[name] = Hash(strings.TrimSpace(string(data)))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	return refs, nil
}

// Delete removes a ref file outright (used by transaction cleanup and tag
// deletion), without a CAS check or reflog entry.
func (r *Refs) Delete(name string) error {
	if err := os.Remove(r.refPath(name)); err != nil && !os.IsNotExist(err) {
		return vosterr.Wrap(vosterr.IO, err)
	}
	return nil
}
