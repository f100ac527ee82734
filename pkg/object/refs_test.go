package object

import (
	"os"
	"testing"
)

func newTestRefs(t *testing.T) *Refs {
	t.Helper()
	dir, err := os.MkdirTemp("", "vost-refs-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return NewRefs(dir)
}

func TestRefsReadMissingIsZeroNotError(t *testing.T) {
	r := newTestRefs(t)
	h, err := r.ReadHash("refs/heads/main")
	if err != nil {
		t.Fatalf("ReadHash on missing ref: %v", err)
	}
	if !h.IsZero() {
		t.Fatalf("ReadHash on missing ref = %q, want zero", h)
	}
}

func TestRefsCASUpdateCreateThenUpdate(t *testing.T) {
	r := newTestRefs(t)
	c1 := Hash("1111111111111111111111111111111111111111")
	c2 := Hash("2222222222222222222222222222222222222222")

	if err := r.CASUpdate("refs/heads/main", ZeroHash, c1, "create"); err != nil {
		t.Fatalf("CASUpdate create: %v", err)
	}
	got, err := r.ReadHash("refs/heads/main")
	if err != nil || got != c1 {
		t.Fatalf("ReadHash after create = %q, %v, want %q", got, err, c1)
	}

	if err := r.CASUpdate("refs/heads/main", c1, c2, "advance"); err != nil {
		t.Fatalf("CASUpdate advance: %v", err)
	}
	got, err = r.ReadHash("refs/heads/main")
	if err != nil || got != c2 {
		t.Fatalf("ReadHash after advance = %q, %v, want %q", got, err, c2)
	}
}

func TestRefsCASUpdateStaleRejected(t *testing.T) {
	r := newTestRefs(t)
	c1 := Hash("1111111111111111111111111111111111111111")
	c2 := Hash("2222222222222222222222222222222222222222")
	c3 := Hash("3333333333333333333333333333333333333333")

	if err := r.CASUpdate("refs/heads/main", ZeroHash, c1, "create"); err != nil {
		t.Fatalf("CASUpdate create: %v", err)
	}
	// stale: the ref already moved to c1, not ZeroHash
	if err := r.CASUpdate("refs/heads/main", ZeroHash, c2, "stale"); err == nil {
		t.Fatalf("CASUpdate with stale oldHash: want error, got nil")
	}
	if err := r.CASUpdate("refs/heads/main", c1, c3, "advance"); err != nil {
		t.Fatalf("CASUpdate with correct oldHash: %v", err)
	}
}

func TestRefsCASUpdateDeleteWithZeroNewHash(t *testing.T) {
	r := newTestRefs(t)
	c1 := Hash("1111111111111111111111111111111111111111")
	if err := r.CASUpdate("refs/heads/main", ZeroHash, c1, "create"); err != nil {
		t.Fatalf("CASUpdate create: %v", err)
	}
	if err := r.CASUpdate("refs/heads/main", c1, ZeroHash, "delete"); err != nil {
		t.Fatalf("CASUpdate delete: %v", err)
	}
	if r.Exists("refs/heads/main") {
		t.Fatalf("ref still exists after CASUpdate delete")
	}
}

func TestRefsAppendsReflogNewestFirst(t *testing.T) {
	r := newTestRefs(t)
	c1 := Hash("1111111111111111111111111111111111111111")
	c2 := Hash("2222222222222222222222222222222222222222")
	if err := r.CASUpdate("refs/heads/main", ZeroHash, c1, "create"); err != nil {
		t.Fatalf("CASUpdate: %v", err)
	}
	if err := r.CASUpdate("refs/heads/main", c1, c2, "advance"); err != nil {
		t.Fatalf("CASUpdate: %v", err)
	}
	entries, err := r.ReadReflog("refs/heads/main")
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ReadReflog: got %d entries, want 2", len(entries))
	}
	if entries[0].Reason != "advance" || entries[1].Reason != "create" {
		t.Fatalf("ReadReflog not newest-first: %+v", entries)
	}
	if entries[0].NewHash != c2 || entries[1].NewHash != c1 {
		t.Fatalf("ReadReflog hashes wrong: %+v", entries)
	}
}

func TestRefsList(t *testing.T) {
	r := newTestRefs(t)
	c1 := Hash("1111111111111111111111111111111111111111")
	if err := r.CASUpdate("refs/heads/main", ZeroHash, c1, "create"); err != nil {
		t.Fatalf("CASUpdate: %v", err)
	}
	if err := r.CASUpdate("refs/heads/dev", ZeroHash, c1, "create"); err != nil {
		t.Fatalf("CASUpdate: %v", err)
	}
	if err := r.CASUpdate("refs/tags/v1", ZeroHash, c1, "create"); err != nil {
		t.Fatalf("CASUpdate: %v", err)
	}
	heads, err := r.List("refs/heads")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(heads) != 2 {
		t.Fatalf("List(refs/heads) = %d entries, want 2: %+v", len(heads), heads)
	}
	if heads["refs/heads/main"] != c1 || heads["refs/heads/dev"] != c1 {
		t.Fatalf("List(refs/heads) contents wrong: %+v", heads)
	}
}

func TestRefsListSkipsLockFiles(t *testing.T) {
	r := newTestRefs(t)
	c1 := Hash("1111111111111111111111111111111111111111")
	if err := r.CASUpdate("refs/heads/main", ZeroHash, c1, "create"); err != nil {
		t.Fatalf("CASUpdate: %v", err)
	}
	stale := r.refPath("refs/heads/main") + ".lock"
	if err := os.WriteFile(stale, []byte("junk"), 0o644); err != nil {
		t.Fatalf("WriteFile stale lock: %v", err)
	}
	heads, err := r.List("refs/heads")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, ok := heads["refs/heads/main.lock"]; ok {
		t.Fatalf("List returned a .lock file as a ref: %+v", heads)
	}
}

func TestRefsDeleteIsIdempotent(t *testing.T) {
	r := newTestRefs(t)
	if err := r.Delete("refs/heads/never-existed"); err != nil {
		t.Fatalf("Delete on missing ref: %v", err)
	}
}

func TestRefsHEADSymbolic(t *testing.T) {
	r := newTestRefs(t)
	if err := r.SetHEADSymbolic("refs/heads/main"); err != nil {
		t.Fatalf("SetHEADSymbolic: %v", err)
	}
	sym, detached, err := r.ReadHEAD()
	if err != nil {
		t.Fatalf("ReadHEAD: %v", err)
	}
	if sym != "refs/heads/main" || detached != "" {
		t.Fatalf("ReadHEAD = (%q, %q), want (%q, \"\")", sym, detached, "refs/heads/main")
	}
}
