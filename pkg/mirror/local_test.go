package mirror

import (
	"testing"

	"github.com/mhalle/vost/pkg/object"
)

func TestLocalTransportFetchCopiesReachableObjects(t *testing.T) {
	remote := newTestRepo(t)
	snap, _ := remote.Branch("main")
	snap, err := snap.Write("a.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	blobID, err := snap.ObjectHash("a.txt")
	if err != nil {
		t.Fatalf("ObjectHash: %v", err)
	}

	local := newTestRepo(t)
	transport := NewLocalTransport(remote)
	wanted := map[string]object.Hash{"refs/heads/main": snap.CommitID()}
	if err := transport.Fetch(local, wanted); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	data, err := local.ObjectStore().ReadBlob(blobID)
	if err != nil || string(data) != "hello" {
		t.Fatalf("fetched blob = %q, %v, want %q", data, err, "hello")
	}
}

func TestLocalTransportPushForceSetsAndDeletesRefs(t *testing.T) {
	local := newTestRepo(t)
	snap, _ := local.Branch("main")
	snap, err := snap.Write("a.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	blobID, err := snap.ObjectHash("a.txt")
	if err != nil {
		t.Fatalf("ObjectHash: %v", err)
	}

	remote := newTestRepo(t)
	remoteSnap, _ := remote.Branch("to-delete")
	if _, err := remoteSnap.Write("x.txt", []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	transport := NewLocalTransport(remote)
	err = transport.Push(local, []RefUpdate{
		{Name: "refs/heads/main", New: snap.CommitID(), Force: true},
		{Name: "refs/heads/to-delete", New: object.ZeroHash},
	})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	got, err := remote.RefStore().ReadHash("refs/heads/main")
	if err != nil || got != snap.CommitID() {
		t.Fatalf("remote refs/heads/main = %v, %v, want %s", got, err, snap.CommitID())
	}
	if remote.RefStore().Exists("refs/heads/to-delete") {
		t.Errorf("Push did not delete refs/heads/to-delete")
	}
	data, err := remote.ObjectStore().ReadBlob(blobID)
	if err != nil || string(data) != "hello" {
		t.Fatalf("pushed blob = %q, %v, want %q", data, err, "hello")
	}
}
