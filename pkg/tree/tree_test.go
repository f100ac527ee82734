package tree

import (
	"os"
	"sort"
	"testing"

	"github.com/mhalle/vost/pkg/object"
)

func newTestStore(t *testing.T) *object.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "vost-tree-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return object.NewStore(dir)
}

func mustRebuild(t *testing.T, store *object.Store, base object.Hash, writes []PendingWrite, removes []string) object.Hash {
	t.Helper()
	root, err := NewRebuilder(store).Rebuild(base, writes, removes)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return root
}

func TestRebuildFromEmptyBase(t *testing.T) {
	store := newTestStore(t)
	blobID, err := store.WriteBlob([]byte("hello"))
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	root := mustRebuild(t, store, object.ZeroHash, []PendingWrite{
		{Path: "a.txt", Mode: object.ModeBlob, Blob: blobID},
		{Path: "dir/b.txt", Mode: object.ModeBlob, Blob: blobID},
	}, nil)

	r := NewReader(store, root)
	if !r.Exists("a.txt") || !r.Exists("dir/b.txt") {
		t.Fatalf("Rebuild did not create expected paths")
	}
	if !r.IsDir("dir") {
		t.Fatalf("dir/ was not created as a tree")
	}
	data, _, err := r.ReadBlob("dir/b.txt")
	if err != nil || string(data) != "hello" {
		t.Fatalf("ReadBlob(dir/b.txt) = %q, %v", data, err)
	}
}

func TestRebuildRemoveLeaf(t *testing.T) {
	store := newTestStore(t)
	blobID, _ := store.WriteBlob([]byte("x"))
	base := mustRebuild(t, store, object.ZeroHash, []PendingWrite{
		{Path: "a.txt", Mode: object.ModeBlob, Blob: blobID},
		{Path: "b.txt", Mode: object.ModeBlob, Blob: blobID},
	}, nil)

	next := mustRebuild(t, store, base, nil, []string{"a.txt"})
	r := NewReader(store, next)
	if r.Exists("a.txt") {
		t.Fatalf("a.txt still exists after removal")
	}
	if !r.Exists("b.txt") {
		t.Fatalf("b.txt was dropped unexpectedly")
	}
}

func TestRebuildPrunesEmptySubtree(t *testing.T) {
	store := newTestStore(t)
	blobID, _ := store.WriteBlob([]byte("x"))
	base := mustRebuild(t, store, object.ZeroHash, []PendingWrite{
		{Path: "dir/only.txt", Mode: object.ModeBlob, Blob: blobID},
	}, nil)

	next := mustRebuild(t, store, base, nil, []string{"dir/only.txt"})
	r := NewReader(store, next)
	if r.Exists("dir") {
		t.Fatalf("empty subtree was not pruned from its parent")
	}
}

func TestRebuildUnaffectedSiblingReused(t *testing.T) {
	store := newTestStore(t)
	blobID, _ := store.WriteBlob([]byte("x"))
	base := mustRebuild(t, store, object.ZeroHash, []PendingWrite{
		{Path: "keep/file.txt", Mode: object.ModeBlob, Blob: blobID},
		{Path: "touch/file.txt", Mode: object.ModeBlob, Blob: blobID},
	}, nil)
	baseTree, err := store.ReadTree(base)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	keepEntry, _ := baseTree.Find("keep")

	otherBlob, _ := store.WriteBlob([]byte("y"))
	next := mustRebuild(t, store, base, []PendingWrite{
		{Path: "touch/file.txt", Mode: object.ModeBlob, Blob: otherBlob},
	}, nil)
	nextTree, err := store.ReadTree(next)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	nextKeepEntry, ok := nextTree.Find("keep")
	if !ok {
		t.Fatalf("keep/ dropped from rebuilt tree")
	}
	if nextKeepEntry.ID != keepEntry.ID {
		t.Fatalf("untouched sibling subtree was re-serialized: %s != %s", nextKeepEntry.ID, keepEntry.ID)
	}
}

func TestReaderWalkVisitsLeavesSorted(t *testing.T) {
	store := newTestStore(t)
	blobID, _ := store.WriteBlob([]byte("x"))
	root := mustRebuild(t, store, object.ZeroHash, []PendingWrite{
		{Path: "z.txt", Mode: object.ModeBlob, Blob: blobID},
		{Path: "a/b.txt", Mode: object.ModeBlob, Blob: blobID},
		{Path: "a/a.txt", Mode: object.ModeBlob, Blob: blobID},
	}, nil)

	r := NewReader(store, root)
	var paths []string
	if err := r.Walk("", func(path string, entry object.TreeEntry) error {
		paths = append(paths, path)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if !sort.StringsAreSorted(paths) {
		t.Fatalf("Walk did not visit leaves in sorted order: %v", paths)
	}
	if len(paths) != 3 {
		t.Fatalf("Walk visited %d leaves, want 3: %v", len(paths), paths)
	}
}

func TestReaderLookupNotFound(t *testing.T) {
	store := newTestStore(t)
	root := mustRebuild(t, store, object.ZeroHash, nil, nil)
	r := NewReader(store, root)
	if r.Exists("missing.txt") {
		t.Fatalf("Exists(missing.txt) = true, want false")
	}
}

func TestCountSubdirsCountsOnlyDirectEntries(t *testing.T) {
	store := newTestStore(t)
	blobID, _ := store.WriteBlob([]byte("x"))
	root := mustRebuild(t, store, object.ZeroHash, []PendingWrite{
		{Path: "a/file.txt", Mode: object.ModeBlob, Blob: blobID},
		{Path: "a/nested/deep.txt", Mode: object.ModeBlob, Blob: blobID},
		{Path: "b/file.txt", Mode: object.ModeBlob, Blob: blobID},
		{Path: "top.txt", Mode: object.ModeBlob, Blob: blobID},
	}, nil)

	r := NewReader(store, root)
	n, err := r.CountSubdirs("")
	if err != nil {
		t.Fatalf("CountSubdirs: %v", err)
	}
	if n != 2 {
		t.Fatalf("CountSubdirs(\"\") = %d, want 2 (a and b; nested must not count)", n)
	}
	n, err = r.CountSubdirs("a")
	if err != nil {
		t.Fatalf("CountSubdirs(a): %v", err)
	}
	if n != 1 {
		t.Fatalf("CountSubdirs(a) = %d, want 1 (nested only)", n)
	}
}

func TestReaderLookupThroughNonDirectory(t *testing.T) {
	store := newTestStore(t)
	blobID, _ := store.WriteBlob([]byte("x"))
	root := mustRebuild(t, store, object.ZeroHash, []PendingWrite{
		{Path: "file.txt", Mode: object.ModeBlob, Blob: blobID},
	}, nil)
	r := NewReader(store, root)
	if _, err := r.Lookup("file.txt/nested"); err == nil {
		t.Fatalf("Lookup through a non-directory: want error, got nil")
	}
}
