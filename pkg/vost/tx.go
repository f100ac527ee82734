package vost

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/tree"
	"github.com/mhalle/vost/pkg/vosterr"
)

const (
	txPrefix    = "_tx/"
	txRefPrefix = "refs/tx/"
)

func txUUID(txID string) (string, error) {
	if !strings.HasPrefix(txID, txPrefix) {
		return "", vosterr.WithPath(vosterr.InvalidRefName, txID, nil)
	}
	idx := strings.LastIndex(txID, "/")
	return txID[idx+1:], nil
}

func txSource(txID string) (string, error) {
	if !strings.HasPrefix(txID, txPrefix) {
		return "", vosterr.WithPath(vosterr.InvalidRefName, txID, nil)
	}
	rest := strings.TrimPrefix(txID, txPrefix)
	idx := strings.LastIndex(rest, "/")
	if idx < 0 {
		return "", vosterr.WithPath(vosterr.InvalidRefName, txID, nil)
	}
	return rest[:idx], nil
}

func txMetaRef(txID string) (string, error) {
	u, err := txUUID(txID)
	if err != nil {
		return "", err
	}
	return txRefPrefix + u, nil
}

func randomTxID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", vosterr.Wrap(vosterr.IO, err)
	}
	return hex.EncodeToString(buf), nil
}

// TxBegin forks a temporary branch "_tx/<branch>/<uuid>" from branch at
// its current tip, records the fork point under refs/tx/<uuid>, and
// returns the transaction id (which doubles as the temp branch's short
// name under refs/heads/).
func (r *Repository) TxBegin(branch string) (string, error) {
	src, err := r.Branch(branch)
	if err != nil {
		return "", err
	}
	if src.IsEmpty() {
		return "", vosterr.WithPath(vosterr.KeyNotFound, branch, nil)
	}

	u, err := randomTxID()
	if err != nil {
		return "", err
	}
	txID := txPrefix + branch + "/" + u
	txRefName := "refs/heads/" + txID

	if err := r.Refs.CASUpdate(txRefName, object.ZeroHash, src.commitID, "tx begin: "+txID); err != nil {
		return "", err
	}
	metaRef, err := txMetaRef(txID)
	if err != nil {
		return "", err
	}
	if err := r.Refs.CASUpdate(metaRef, object.ZeroHash, src.commitID, "tx fork point: "+txID); err != nil {
		return "", err
	}
	return txID, nil
}

// collectLeaves flattens a tree into path -> (id, mode) for every blob or
// link entry, the basis of a tree diff.
func collectLeaves(store *object.Store, treeID object.Hash, prefix string) (map[string]object.TreeEntry, error) {
	out := map[string]object.TreeEntry{}
	if treeID.IsZero() {
		return out, nil
	}
	t, err := store.ReadTree(treeID)
	if err != nil {
		return nil, err
	}
	for _, e := range t.Entries {
		full := e.Name
		if prefix != "" {
			full = prefix + "/" + e.Name
		}
		if e.Mode == object.ModeTree {
			sub, err := collectLeaves(store, e.ID, full)
			if err != nil {
				return nil, err
			}
			for p, se := range sub {
				out[p] = se
			}
		} else {
			out[full] = object.TreeEntry{Name: full, Mode: e.Mode, ID: e.ID}
		}
	}
	return out, nil
}

// diffTrees computes the delta from base to next: writes covers every
// path added or changed, removes every path present in base but absent
// from next.
func diffTrees(store *object.Store, base, next object.Hash) ([]tree.PendingWrite, []string, error) {
	baseLeaves, err := collectLeaves(store, base, "")
	if err != nil {
		return nil, nil, err
	}
	nextLeaves, err := collectLeaves(store, next, "")
	if err != nil {
		return nil, nil, err
	}

	var writes []tree.PendingWrite
	for path, e := range nextLeaves {
		if old, ok := baseLeaves[path]; !ok || old.ID != e.ID || old.Mode != e.Mode {
			writes = append(writes, tree.PendingWrite{Path: path, Mode: e.Mode, Blob: e.ID})
		}
	}
	var removes []string
	for path := range baseLeaves {
		if _, ok := nextLeaves[path]; !ok {
			removes = append(removes, path)
		}
	}
	return writes, removes, nil
}

// TxCommit computes the tree diff between the transaction's fork point
// and the temp branch's current tree, then applies that diff as a single
// apply against the current tip of the source branch, retrying on
// stale-snapshot. The temp branch and metadata ref are deleted whether or
// not any changes were applied.
func (r *Repository) TxCommit(txID, message string) (*Snapshot, error) {
	source, err := txSource(txID)
	if err != nil {
		return nil, err
	}
	metaRef, err := txMetaRef(txID)
	if err != nil {
		return nil, err
	}
	defer func() {
		r.Refs.Delete("refs/heads/" + txID)
		r.Refs.Delete(metaRef)
	}()

	baseCommitID, err := r.Refs.ReadHash(metaRef)
	if err != nil {
		return nil, err
	}
	if baseCommitID.IsZero() {
		return nil, vosterr.WithPath(vosterr.NotFound, txID, nil)
	}
	baseCommit, err := r.Store.ReadCommit(baseCommitID)
	if err != nil {
		return nil, err
	}

	txCommitID, err := r.Refs.ReadHash("refs/heads/" + txID)
	if err != nil {
		return nil, err
	}
	if txCommitID.IsZero() {
		return nil, vosterr.WithPath(vosterr.NotFound, txID, nil)
	}
	txCommit, err := r.Store.ReadCommit(txCommitID)
	if err != nil {
		return nil, err
	}

	writes, removes, err := diffTrees(r.Store, baseCommit.Tree, txCommit.Tree)
	if err != nil {
		return nil, err
	}

	if message == "" {
		message = "tx"
	}

	var result *Snapshot
	err = RetryOnStaleSnapshot(func() error {
		target, err := r.Branch(source)
		if err != nil {
			return err
		}
		if len(writes) == 0 && len(removes) == 0 {
			result = target
			return nil
		}
		committed, err := commitChanges(target, writes, removes, message, nil)
		if err != nil {
			return err
		}
		result = committed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TxAbort deletes the temp branch and metadata ref, discarding all
// accumulated changes without touching the source branch.
func (r *Repository) TxAbort(txID string) error {
	metaRef, err := txMetaRef(txID)
	if err != nil {
		return err
	}
	var errs []error
	if err := r.Refs.Delete("refs/heads/" + txID); err != nil {
		errs = append(errs, err)
	}
	if err := r.Refs.Delete(metaRef); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TxStatus reports the accumulated changes in a transaction, relative to
// its fork point: sorted added, updated, and removed paths.
func (r *Repository) TxStatus(txID string) (added, updated, removed []string, err error) {
	metaRef, err := txMetaRef(txID)
	if err != nil {
		return nil, nil, nil, err
	}
	baseCommitID, err := r.Refs.ReadHash(metaRef)
	if err != nil {
		return nil, nil, nil, err
	}
	if baseCommitID.IsZero() {
		return nil, nil, nil, vosterr.WithPath(vosterr.NotFound, txID, nil)
	}
	baseCommit, err := r.Store.ReadCommit(baseCommitID)
	if err != nil {
		return nil, nil, nil, err
	}
	txCommitID, err := r.Refs.ReadHash("refs/heads/" + txID)
	if err != nil {
		return nil, nil, nil, err
	}
	if txCommitID.IsZero() {
		return nil, nil, nil, vosterr.WithPath(vosterr.NotFound, txID, nil)
	}
	txCommit, err := r.Store.ReadCommit(txCommitID)
	if err != nil {
		return nil, nil, nil, err
	}

	writes, removes, err := diffTrees(r.Store, baseCommit.Tree, txCommit.Tree)
	if err != nil {
		return nil, nil, nil, err
	}
	baseLeaves, err := collectLeaves(r.Store, baseCommit.Tree, "")
	if err != nil {
		return nil, nil, nil, err
	}

	for _, w := range writes {
		if _, ok := baseLeaves[w.Path]; ok {
			updated = append(updated, w.Path)
		} else {
			added = append(added, w.Path)
		}
	}
	removed = append(removed, removes...)
	sort.Strings(added)
	sort.Strings(updated)
	sort.Strings(removed)
	return added, updated, removed, nil
}

// TxList returns every active transaction id (every refs/heads/_tx/...
// branch).
func (r *Repository) TxList() ([]string, error) {
	refs, err := r.Refs.List("refs/heads/" + txPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(refs))
	for name := range refs {
		out = append(out, strings.TrimPrefix(name, "refs/heads/"))
	}
	sort.Strings(out)
	return out, nil
}
