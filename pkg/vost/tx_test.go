package vost

import (
	"reflect"
	"testing"
)

func TestTxBeginCreatesTempBranchAtSourceTip(t *testing.T) {
	repo := newTestRepo(t)
	main, _ := repo.Branch("main")
	main, _ = main.Write("a.txt", []byte("1"))

	txID, err := repo.TxBegin("main")
	if err != nil {
		t.Fatalf("TxBegin: %v", err)
	}

	txBranch, err := repo.Branch(txID)
	if err != nil {
		t.Fatalf("Branch(%s): %v", txID, err)
	}
	if txBranch.CommitID() != main.CommitID() {
		t.Errorf("temp branch tip = %s, want %s", txBranch.CommitID(), main.CommitID())
	}

	active, err := repo.TxList()
	if err != nil {
		t.Fatalf("TxList: %v", err)
	}
	if len(active) != 1 || active[0] != txID {
		t.Errorf("TxList() = %v, want [%s]", active, txID)
	}
}

func TestTxBeginOnMissingBranchFails(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.TxBegin("nope"); err == nil {
		t.Fatalf("TxBegin(nonexistent branch): want error, got nil")
	}
}

func TestTxCommitAppliesDiffToSourceTip(t *testing.T) {
	repo := newTestRepo(t)
	main, _ := repo.Branch("main")
	main, _ = main.Write("keep.txt", []byte("unchanged"))

	txID, err := repo.TxBegin("main")
	if err != nil {
		t.Fatalf("TxBegin: %v", err)
	}
	txBranch, _ := repo.Branch(txID)
	if _, err := txBranch.Write("a.txt", []byte("1")); err != nil {
		t.Fatalf("Write on temp branch: %v", err)
	}

	result, err := repo.TxCommit(txID, "apply a.txt")
	if err != nil {
		t.Fatalf("TxCommit: %v", err)
	}
	if !result.Exists("a.txt") || !result.Exists("keep.txt") {
		t.Errorf("TxCommit result missing expected paths")
	}

	tip, err := repo.Branch("main")
	if err != nil {
		t.Fatalf("Branch(main): %v", err)
	}
	if tip.CommitID() != result.CommitID() {
		t.Errorf("source branch tip not advanced by TxCommit")
	}

	active, _ := repo.TxList()
	if len(active) != 0 {
		t.Errorf("TxList() after TxCommit = %v, want empty", active)
	}
}

func TestTxCommitSquashesIntoOneCommitAgainstConcurrentSourceChange(t *testing.T) {
	repo := newTestRepo(t)
	main, _ := repo.Branch("main")
	main, _ = main.Write("base.txt", []byte("0"))

	txID, err := repo.TxBegin("main")
	if err != nil {
		t.Fatalf("TxBegin: %v", err)
	}
	txBranch, _ := repo.Branch(txID)
	txBranch, _ = txBranch.Write("a.txt", []byte("1"))
	txBranch, _ = txBranch.Write("b.txt", []byte("2"))

	// the source branch moves on before the transaction commits.
	main, err = main.Write("concurrent.txt", []byte("x"))
	if err != nil {
		t.Fatalf("Write on source while tx is open: %v", err)
	}

	result, err := repo.TxCommit(txID, "batch add")
	if err != nil {
		t.Fatalf("TxCommit: %v", err)
	}
	if !result.Exists("a.txt") || !result.Exists("b.txt") || !result.Exists("concurrent.txt") || !result.Exists("base.txt") {
		t.Errorf("TxCommit result missing a path from either branch")
	}
	if result.CommitID() == "" {
		t.Errorf("TxCommit produced no commit")
	}
	parent, err := result.Parent()
	if err != nil {
		t.Fatalf("Parent: %v", err)
	}
	if parent.CommitID() != main.CommitID() {
		t.Errorf("TxCommit was not applied on top of the concurrent source change")
	}
}

func TestTxCommitWithNoChangesIsANoop(t *testing.T) {
	repo := newTestRepo(t)
	main, _ := repo.Branch("main")
	main, _ = main.Write("a.txt", []byte("1"))

	txID, err := repo.TxBegin("main")
	if err != nil {
		t.Fatalf("TxBegin: %v", err)
	}
	result, err := repo.TxCommit(txID, "")
	if err != nil {
		t.Fatalf("TxCommit: %v", err)
	}
	if result.CommitID() != main.CommitID() {
		t.Errorf("TxCommit with no changes produced commit %s, want unchanged %s", result.CommitID(), main.CommitID())
	}
}

func TestTxAbortDiscardsChangesWithoutTouchingSource(t *testing.T) {
	repo := newTestRepo(t)
	main, _ := repo.Branch("main")
	main, _ = main.Write("a.txt", []byte("1"))

	txID, err := repo.TxBegin("main")
	if err != nil {
		t.Fatalf("TxBegin: %v", err)
	}
	txBranch, _ := repo.Branch(txID)
	if _, err := txBranch.Write("b.txt", []byte("2")); err != nil {
		t.Fatalf("Write on temp branch: %v", err)
	}

	if err := repo.TxAbort(txID); err != nil {
		t.Fatalf("TxAbort: %v", err)
	}

	tip, err := repo.Branch("main")
	if err != nil {
		t.Fatalf("Branch(main): %v", err)
	}
	if tip.CommitID() != main.CommitID() {
		t.Errorf("source branch changed after TxAbort")
	}
	if tip.Exists("b.txt") {
		t.Errorf("aborted transaction's write leaked onto the source branch")
	}

	active, _ := repo.TxList()
	if len(active) != 0 {
		t.Errorf("TxList() after TxAbort = %v, want empty", active)
	}
}

func TestTxStatusReportsAddedUpdatedRemoved(t *testing.T) {
	repo := newTestRepo(t)
	main, _ := repo.Branch("main")
	main, _ = main.Apply(map[string][]byte{"keep.txt": []byte("k"), "old.txt": []byte("o")}, nil, nil)

	txID, err := repo.TxBegin("main")
	if err != nil {
		t.Fatalf("TxBegin: %v", err)
	}
	txBranch, _ := repo.Branch(txID)
	txBranch, _ = txBranch.Write("keep.txt", []byte("updated"))
	txBranch, _ = txBranch.Write("new.txt", []byte("n"))
	txBranch, _ = txBranch.Remove([]string{"old.txt"}, RemoveOptions{})

	added, updated, removed, err := repo.TxStatus(txID)
	if err != nil {
		t.Fatalf("TxStatus: %v", err)
	}
	if !reflect.DeepEqual(added, []string{"new.txt"}) {
		t.Errorf("added = %v, want [new.txt]", added)
	}
	if !reflect.DeepEqual(updated, []string{"keep.txt"}) {
		t.Errorf("updated = %v, want [keep.txt]", updated)
	}
	if !reflect.DeepEqual(removed, []string{"old.txt"}) {
		t.Errorf("removed = %v, want [old.txt]", removed)
	}
}

func TestTxListReturnsMultipleActiveTransactions(t *testing.T) {
	repo := newTestRepo(t)
	main, _ := repo.Branch("main")
	main, _ = main.Write("a.txt", []byte("1"))

	tx1, err := repo.TxBegin("main")
	if err != nil {
		t.Fatalf("TxBegin: %v", err)
	}
	tx2, err := repo.TxBegin("main")
	if err != nil {
		t.Fatalf("TxBegin: %v", err)
	}

	active, err := repo.TxList()
	if err != nil {
		t.Fatalf("TxList: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("TxList() = %v, want 2 entries", active)
	}
	found := map[string]bool{active[0]: true, active[1]: true}
	if !found[tx1] || !found[tx2] {
		t.Errorf("TxList() = %v, want both %s and %s", active, tx1, tx2)
	}
}
