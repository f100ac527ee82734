package copy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/vost"
)

func newTestRepo(t *testing.T) *vost.Repository {
	t.Helper()
	repo, err := vost.Open(t.TempDir(), vost.OpenOptions{Create: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return repo
}

func writeDiskFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestCopyInStagesNewFiles(t *testing.T) {
	repo := newTestRepo(t)
	snap, _ := repo.Branch("main")
	disk := t.TempDir()
	writeDiskFile(t, disk, "a.txt", "hello")
	writeDiskFile(t, disk, "sub/b.txt", "world")

	report, newSnap, err := CopyIn(context.Background(), snap, disk, "", NewOptions())
	if err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if len(report.Added) != 2 {
		t.Errorf("report.Added = %v, want 2 entries", report.Added)
	}
	data, err := newSnap.Read("a.txt")
	if err != nil || string(data) != "hello" {
		t.Fatalf("Read(a.txt) = %q, %v", data, err)
	}
	data, err = newSnap.Read("sub/b.txt")
	if err != nil || string(data) != "world" {
		t.Fatalf("Read(sub/b.txt) = %q, %v", data, err)
	}
}

func TestCopyInSkipsUnchangedFilesByChecksum(t *testing.T) {
	repo := newTestRepo(t)
	snap, _ := repo.Branch("main")
	disk := t.TempDir()
	writeDiskFile(t, disk, "a.txt", "hello")

	_, snap, err := CopyIn(context.Background(), snap, disk, "", NewOptions())
	if err != nil {
		t.Fatalf("CopyIn (first): %v", err)
	}
	before := snap.CommitID()

	// touch the disk file's mtime without changing its content.
	future := time.Now().Add(time.Hour)
	_ = os.Chtimes(filepath.Join(disk, "a.txt"), future, future)

	report, snap, err := CopyIn(context.Background(), snap, disk, "", NewOptions())
	if err != nil {
		t.Fatalf("CopyIn (second): %v", err)
	}
	if len(report.Added) != 0 || len(report.Updated) != 0 {
		t.Errorf("CopyIn re-wrote an unchanged file: report = %+v", report)
	}
	if snap.CommitID() != before {
		t.Errorf("CopyIn created a new commit for an unchanged file")
	}
}

func TestCopyInDetectsChangedContent(t *testing.T) {
	repo := newTestRepo(t)
	snap, _ := repo.Branch("main")
	disk := t.TempDir()
	writeDiskFile(t, disk, "a.txt", "v1")

	_, snap, err := CopyIn(context.Background(), snap, disk, "", NewOptions())
	if err != nil {
		t.Fatalf("CopyIn (first): %v", err)
	}
	writeDiskFile(t, disk, "a.txt", "v2")

	report, snap, err := CopyIn(context.Background(), snap, disk, "", NewOptions())
	if err != nil {
		t.Fatalf("CopyIn (second): %v", err)
	}
	if len(report.Updated) != 1 {
		t.Fatalf("report.Updated = %v, want 1 entry", report.Updated)
	}
	data, err := snap.Read("a.txt")
	if err != nil || string(data) != "v2" {
		t.Fatalf("Read(a.txt) = %q, %v, want %q", data, err, "v2")
	}
}

func TestCopyInRespectsIncludeExclude(t *testing.T) {
	repo := newTestRepo(t)
	snap, _ := repo.Branch("main")
	disk := t.TempDir()
	writeDiskFile(t, disk, "a.txt", "1")
	writeDiskFile(t, disk, "a.log", "2")

	opts := NewOptions()
	opts.Include = []string{"*.txt"}
	_, snap, err := CopyIn(context.Background(), snap, disk, "", opts)
	if err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if !snap.Exists("a.txt") || snap.Exists("a.log") {
		t.Errorf("CopyIn with Include=*.txt staged the wrong set of files")
	}
}

func TestCopyInLeavesExistingRepoOnlyEntriesUntouched(t *testing.T) {
	repo := newTestRepo(t)
	snap, _ := repo.Branch("main")
	snap, _ = snap.Write("only-in-repo.txt", []byte("x"))
	disk := t.TempDir()
	writeDiskFile(t, disk, "a.txt", "1")

	_, snap, err := CopyIn(context.Background(), snap, disk, "", NewOptions())
	if err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if !snap.Exists("only-in-repo.txt") {
		t.Errorf("CopyIn removed a repository-only entry")
	}
}

func TestSyncInRemovesFilesAbsentFromDisk(t *testing.T) {
	repo := newTestRepo(t)
	snap, _ := repo.Branch("main")
	snap, _ = snap.Write("stale.txt", []byte("x"))
	disk := t.TempDir()
	writeDiskFile(t, disk, "a.txt", "1")

	report, snap, err := SyncIn(context.Background(), snap, disk, "", NewOptions())
	if err != nil {
		t.Fatalf("SyncIn: %v", err)
	}
	if snap.Exists("stale.txt") {
		t.Errorf("SyncIn did not remove a path absent from disk")
	}
	if !snap.Exists("a.txt") {
		t.Errorf("SyncIn did not stage the new disk file")
	}
	if len(report.Deleted) != 1 {
		t.Errorf("report.Deleted = %v, want 1 entry", report.Deleted)
	}
}

func TestCopyOutMaterializesFiles(t *testing.T) {
	repo := newTestRepo(t)
	snap, _ := repo.Branch("main")
	snap, _ = snap.Write("dir/a.txt", []byte("hello"))
	disk := t.TempDir()

	report, err := CopyOut(context.Background(), snap, "", disk, NewOptions())
	if err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if len(report.Added) != 1 {
		t.Errorf("report.Added = %v, want 1 entry", report.Added)
	}
	data, err := os.ReadFile(filepath.Join(disk, "dir", "a.txt"))
	if err != nil || string(data) != "hello" {
		t.Fatalf("materialized file = %q, %v", data, err)
	}
}

func TestCopyOutPreservesExecutableBit(t *testing.T) {
	repo := newTestRepo(t)
	snap, _ := repo.Branch("main")
	snap, _ = snap.WriteMode("run.sh", []byte("x"), object.ModeExecutable)
	disk := t.TempDir()

	if _, err := CopyOut(context.Background(), snap, "", disk, NewOptions()); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	info, err := os.Stat(filepath.Join(disk, "run.sh"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode()&0o111 == 0 {
		t.Errorf("CopyOut did not preserve the executable bit: mode = %v", info.Mode())
	}
}

func TestSyncOutDeletesFilesAbsentFromRepoAndPrunesEmptyDirs(t *testing.T) {
	repo := newTestRepo(t)
	snap, _ := repo.Branch("main")
	snap, _ = snap.Write("keep.txt", []byte("k"))
	disk := t.TempDir()
	writeDiskFile(t, disk, "keep.txt", "old-content")
	writeDiskFile(t, disk, "stale/only.txt", "stale")

	report, err := SyncOut(context.Background(), snap, "", disk, NewOptions())
	if err != nil {
		t.Fatalf("SyncOut: %v", err)
	}
	if len(report.Deleted) != 1 {
		t.Errorf("report.Deleted = %v, want 1 entry", report.Deleted)
	}
	if _, err := os.Stat(filepath.Join(disk, "stale", "only.txt")); !os.IsNotExist(err) {
		t.Errorf("stale disk file still present after SyncOut")
	}
	if _, err := os.Stat(filepath.Join(disk, "stale")); !os.IsNotExist(err) {
		t.Errorf("emptied directory was not pruned after SyncOut")
	}
	data, err := os.ReadFile(filepath.Join(disk, "keep.txt"))
	if err != nil || string(data) != "k" {
		t.Fatalf("keep.txt = %q, %v, want repo content", data, err)
	}
}

func TestCopyInDryRunMakesNoChanges(t *testing.T) {
	repo := newTestRepo(t)
	snap, _ := repo.Branch("main")
	before := snap.CommitID()
	disk := t.TempDir()
	writeDiskFile(t, disk, "a.txt", "1")

	opts := NewOptions()
	opts.DryRun = true
	report, after, err := CopyIn(context.Background(), snap, disk, "", opts)
	if err != nil {
		t.Fatalf("CopyIn (dry run): %v", err)
	}
	if len(report.Added) != 1 {
		t.Errorf("dry-run report.Added = %v, want 1 entry", report.Added)
	}
	if after.CommitID() != before {
		t.Errorf("CopyIn with DryRun produced a new commit")
	}
}
