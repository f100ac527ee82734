package object

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/mhalle/vost/pkg/vosterr"
)

// Store is a content-addressed loose-object store with a 2-character
// fan-out directory layout: objects/ab/cdef0123... Each object is
// deflate-compressed on disk, the way git itself stores loose objects.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory (the repository's
// top-level directory; objects live under <root>/objects).
func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) objectPath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store already contains an object with the given
// id.
func (s *Store) Has(h Hash) bool {
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Write stores an object's payload under its content-addressed id and
// returns that id. Writes are atomic: the compressed envelope is written
// to a temp file in the fan-out directory and renamed into place, so a
// crash mid-write never leaves a partial object visible under its hash.
func (s *Store) Write(typ ObjectType, content []byte) (Hash, error) {
	h := hashPayload(typ, content)
	if s.Has(h) {
		return h, nil
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", vosterr.Wrap(vosterr.IO, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", vosterr.Wrap(vosterr.IO, err)
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpName)
		}
	}()

	zw := zlib.NewWriter(tmp)
	header := fmt.Sprintf("%s %d\x00", typ, len(content))
	if _, err := zw.Write([]byte(header)); err != nil {
		tmp.Close()
		return "", vosterr.Wrap(vosterr.IO, err)
	}
	if _, err := zw.Write(content); err != nil {
		tmp.Close()
		return "", vosterr.Wrap(vosterr.IO, err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return "", vosterr.Wrap(vosterr.IO, err)
	}
	if err := tmp.Close(); err != nil {
		return "", vosterr.Wrap(vosterr.IO, err)
	}

	if err := os.Rename(tmpName, s.objectPath(h)); err != nil {
		return "", vosterr.Wrap(vosterr.IO, err)
	}
	ok = true
	return h, nil
}

// Read retrieves an object's type and raw content by id.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	f, err := os.Open(s.objectPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, vosterr.WithPath(vosterr.NotFound, string(h), err)
		}
		return "", nil, vosterr.Wrap(vosterr.IO, err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return "", nil, vosterr.Wrap(vosterr.Git, err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, vosterr.Wrap(vosterr.IO, err)
	}

	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return "", nil, vosterr.Wrap(vosterr.Git, fmt.Errorf("object %s: missing header terminator", h))
	}
	header := string(raw[:nul])
	content := raw[nul+1:]

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", nil, vosterr.Wrap(vosterr.Git, fmt.Errorf("object %s: malformed header %q", h, header))
	}
	length, err := strconv.Atoi(parts[1])
	if err != nil || length != len(content) {
		return "", nil, vosterr.Wrap(vosterr.Git, fmt.Errorf("object %s: length mismatch", h))
	}
	return ObjectType(parts[0]), content, nil
}

// WriteBlob stores raw bytes as a blob object.
func (s *Store) WriteBlob(data []byte) (Hash, error) { return s.Write(ObjBlob, data) }

func (s *Store) ReadBlob(h Hash) ([]byte, error) {
	typ, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if typ != ObjBlob {
		return nil, vosterr.Wrap(vosterr.Git, fmt.Errorf("object %s: expected blob, got %s", h, typ))
	}
	return data, nil
}

func (s *Store) WriteTree(t *Tree) (Hash, error) { return s.Write(ObjTree, EncodeTree(t)) }

func (s *Store) ReadTree(h Hash) (*Tree, error) {
	typ, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if typ != ObjTree {
		return nil, vosterr.Wrap(vosterr.Git, fmt.Errorf("object %s: expected tree, got %s", h, typ))
	}
	return DecodeTree(data)
}

func (s *Store) WriteCommit(c *Commit) (Hash, error) { return s.Write(ObjCommit, EncodeCommit(c)) }

func (s *Store) ReadCommit(h Hash) (*Commit, error) {
	typ, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if typ != ObjCommit {
		return nil, vosterr.Wrap(vosterr.Git, fmt.Errorf("object %s: expected commit, got %s", h, typ))
	}
	return DecodeCommit(data)
}

// Walk visits every loose object id in the store. Used by the pack writer
// to build a bundle and by tests asserting on object-count invariants.
func (s *Store) Walk(fn func(Hash) error) error {
	base := filepath.Join(s.root, "objects")
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return vosterr.Wrap(vosterr.IO, err)
	}
	for _, fanout := range entries {
		if !fanout.IsDir() || len(fanout.Name()) != 2 {
			continue
		}
		subEntries, err := os.ReadDir(filepath.Join(base, fanout.Name()))
		if err != nil {
			return vosterr.Wrap(vosterr.IO, err)
		}
		for _, e := range subEntries {
			if strings.HasPrefix(e.Name(), ".tmp-") {
				continue
			}
			h := Hash(fanout.Name() + e.Name())
			if !h.Valid() {
				continue
			}
			if err := fn(h); err != nil {
				return err
			}
		}
	}
	return nil
}
