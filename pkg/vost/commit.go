package vost

import (
	"time"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/tree"
	"github.com/mhalle/vost/pkg/vosterr"
)

// commitChanges is the commit/CAS engine: under the repository lock, it
// verifies the branch tip still matches the snapshot's commit id,
// rebuilds the tree, creates a commit, and CAS-updates the branch ref.
func commitChanges(snap *Snapshot, writes []tree.PendingWrite, removes []string, message string, report *ChangeReport) (*Snapshot, error) {
	if !snap.writable {
		return nil, vosterr.New(vosterr.PermissionDenied, "snapshot is not writable")
	}
	if snap.refName == "" {
		return nil, vosterr.New(vosterr.PermissionDenied, "snapshot is not bound to a ref")
	}

	repo := snap.repo
	var result *Snapshot
	err := repo.withLock(func() error {
		currentTip, err := repo.Refs.ReadHash(snap.refName)
		if err != nil {
			return err
		}
		expected := snap.commitID
		if expected == "" {
			expected = object.ZeroHash
		}
		if currentTip != expected {
			return vosterr.Newf(vosterr.StaleSnapshot, "branch %q: expected %s, found %s", snap.refName, snap.commitID, currentTip)
		}

		rebuilder := tree.NewRebuilder(repo.Store)
		newTreeID, err := rebuilder.Rebuild(snap.treeID, writes, removes)
		if err != nil {
			return err
		}

		sig := repo.signature
		now := time.Now()
		offset := now.Format("-0700")
		signature := object.Signature{Name: sig.Name, Email: sig.Email, Time: now.Unix(), TZOffset: offset}

		var parents []object.Hash
		if !snap.commitID.IsZero() && snap.commitID != "" {
			parents = []object.Hash{snap.commitID}
		}

		commit := &object.Commit{
			Tree:      newTreeID,
			Parents:   parents,
			Author:    signature,
			Committer: signature,
			Message:   message,
		}
		newCommitID, err := repo.Store.WriteCommit(commit)
		if err != nil {
			return err
		}

		if err := repo.Refs.CASUpdate(snap.refName, currentTip, newCommitID, message); err != nil {
			return err
		}

		result = &Snapshot{
			repo: repo, commitID: newCommitID, treeID: newTreeID,
			refName: snap.refName, writable: true, report: report,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
