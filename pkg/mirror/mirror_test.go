package mirror

import (
	"context"
	"testing"

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

func TestDiffRefsAddUpdateDelete(t *testing.T) {
	source := map[string]object.Hash{
		"refs/heads/main": "1111111111111111111111111111111111111111",
		"refs/heads/new":  "2222222222222222222222222222222222222222",
	}
	dest := map[string]object.Hash{
		"refs/heads/main": "0000000000000000000000000000000000000000",
		"refs/heads/gone": "3333333333333333333333333333333333333333",
	}
	d := DiffRefs(source, dest)
	if len(d.Add) != 1 || d.Add[0].Name != "refs/heads/new" {
		t.Errorf("Add = %+v, want [refs/heads/new]", d.Add)
	}
	if len(d.Update) != 1 || d.Update[0].Name != "refs/heads/main" {
		t.Errorf("Update = %+v, want [refs/heads/main]", d.Update)
	}
	if len(d.Delete) != 1 || d.Delete[0].Name != "refs/heads/gone" {
		t.Errorf("Delete = %+v, want [refs/heads/gone]", d.Delete)
	}
}

func TestLocalRefsExcludesHEAD(t *testing.T) {
	repo := newTestRepo(t)
	snap, _ := repo.Branch("main")
	if _, err := snap.Write("a.txt", []byte("1")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	refs, err := LocalRefs(repo)
	if err != nil {
		t.Fatalf("LocalRefs: %v", err)
	}
	if _, ok := refs["HEAD"]; ok {
		t.Errorf("LocalRefs included HEAD")
	}
	if _, ok := refs["refs/heads/main"]; !ok {
		t.Errorf("LocalRefs missing refs/heads/main: %v", refs)
	}
}

func TestBackupFullMirrorIncludesDeletes(t *testing.T) {
	repo := newTestRepo(t)
	remote := newTestRepo(t)

	snap, _ := repo.Branch("main")
	snap, _ = snap.Write("a.txt", []byte("1"))
	_ = repo.Branches().Set("stale", snap)

	remoteSnap, _ := remote.Branch("only-on-remote")
	if _, err := remoteSnap.Write("b.txt", []byte("2")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	transport := NewLocalTransport(remote)
	diff, err := Backup(context.Background(), repo, transport, Options{})
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if len(diff.Delete) == 0 {
		t.Errorf("full Backup did not report deleting a remote-only ref")
	}

	remoteRefs, err := transport.ListRefs()
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if _, ok := remoteRefs["refs/heads/only-on-remote"]; ok {
		t.Errorf("full Backup did not delete the remote-only branch")
	}
	if _, ok := remoteRefs["refs/heads/main"]; !ok {
		t.Errorf("Backup did not push refs/heads/main")
	}
}

func TestBackupFilteredPushDoesNotDelete(t *testing.T) {
	repo := newTestRepo(t)
	remote := newTestRepo(t)

	snap, _ := repo.Branch("main")
	snap, _ = snap.Write("a.txt", []byte("1"))

	remoteSnap, _ := remote.Branch("only-on-remote")
	remoteSnap, _ = remoteSnap.Write("b.txt", []byte("2"))

	transport := NewLocalTransport(remote)
	_, err := Backup(context.Background(), repo, transport, Options{RefFilter: []string{"main"}})
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	remoteRefs, err := transport.ListRefs()
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if _, ok := remoteRefs["refs/heads/only-on-remote"]; !ok {
		t.Errorf("filtered Backup deleted a ref outside its filter")
	}
	if _, ok := remoteRefs["refs/heads/main"]; !ok {
		t.Errorf("filtered Backup did not push the filtered-in branch")
	}
}

func TestRestoreIsAdditiveAndNeverDeletesLocalRefs(t *testing.T) {
	repo := newTestRepo(t)
	remote := newTestRepo(t)

	snap, _ := repo.Branch("main")
	snap, _ = snap.Write("a.txt", []byte("1"))
	_ = repo.Branches().Set("local-only", snap)

	remoteSnap, _ := remote.Branch("main")
	remoteSnap, _ = remoteSnap.Write("b.txt", []byte("2"))

	transport := NewLocalTransport(remote)
	diff, err := Restore(context.Background(), repo, transport, Options{})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(diff.Delete) != 0 {
		t.Errorf("Restore reported deletes: %+v", diff.Delete)
	}

	localRefs, err := LocalRefs(repo)
	if err != nil {
		t.Fatalf("LocalRefs: %v", err)
	}
	if _, ok := localRefs["refs/heads/local-only"]; !ok {
		t.Errorf("Restore deleted a local-only ref")
	}
	mainTip, err := repo.RefStore().ReadHash("refs/heads/main")
	if err != nil {
		t.Fatalf("ReadHash: %v", err)
	}
	if mainTip != remoteSnap.CommitID() {
		t.Errorf("Restore did not fast-forward refs/heads/main to the remote tip")
	}
}
