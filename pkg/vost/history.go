package vost

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/tree"
	"github.com/mhalle/vost/pkg/vosterr"
)

func newTreeReaderFor(repo *Repository, treeID object.Hash) *tree.Reader {
	return tree.NewReader(repo.Store, treeID)
}

// Parent returns the snapshot at the current commit's first parent,
// sharing the same ref and writability, or an empty snapshot if this is
// the initial commit.
func (s *Snapshot) Parent() (*Snapshot, error) {
	if s.commitID == "" {
		return nil, vosterr.New(vosterr.NotFound, "snapshot has no commit")
	}
	commit, err := s.repo.Store.ReadCommit(s.commitID)
	if err != nil {
		return nil, err
	}
	if len(commit.Parents) == 0 {
		return &Snapshot{repo: s.repo, refName: s.refName, writable: s.writable}, nil
	}
	parentID := commit.Parents[0]
	parentCommit, err := s.repo.Store.ReadCommit(parentID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{repo: s.repo, commitID: parentID, treeID: parentCommit.Tree, refName: s.refName, writable: s.writable}, nil
}

// Back walks Parent n times.
func (s *Snapshot) Back(n int) (*Snapshot, error) {
	cur := s
	for i := 0; i < n; i++ {
		p, err := cur.Parent()
		if err != nil {
			return nil, err
		}
		if p.commitID == "" {
			return nil, vosterr.New(vosterr.NotFound, "history shorter than requested")
		}
		cur = p
	}
	return cur, nil
}

// Undo walks n parent links to find the target commit, then sets the
// branch to that commit with a reflog message "undo: N commit(s)".
func (s *Snapshot) Undo(n int) (*Snapshot, error) {
	if !s.writable || s.refName == "" {
		return nil, vosterr.New(vosterr.PermissionDenied, "snapshot is not a writable branch")
	}
	target := s
	for i := 0; i < n; i++ {
		p, err := target.Parent()
		if err != nil {
			return nil, err
		}
		if p.commitID == "" && i < n-1 {
			return nil, vosterr.New(vosterr.NotFound, "history shorter than requested")
		}
		target = p
	}

	var result *Snapshot
	err := s.repo.withLock(func() error {
		currentTip, err := s.repo.Refs.ReadHash(s.refName)
		if err != nil {
			return err
		}
		if currentTip != s.commitID {
			return vosterr.Newf(vosterr.StaleSnapshot, "branch %q moved", s.refName)
		}
		msg := "undo: " + strconv.Itoa(n) + " commit(s)"
		if err := s.repo.Refs.CASUpdate(s.refName, currentTip, target.commitID, msg); err != nil {
			return err
		}
		result = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Redo scans the branch's reflog most-recent-first for n undo/redo steps
// that can be chained from the current commit, then sets the branch to
// the final target with a reflog message "redo: N commit(s)".
func (s *Snapshot) Redo(n int) (*Snapshot, error) {
	if !s.writable || s.refName == "" {
		return nil, vosterr.New(vosterr.PermissionDenied, "snapshot is not a writable branch")
	}

	entries, err := s.repo.Refs.ReadReflog(s.refName)
	if err != nil {
		return nil, err
	}

	cursor := s.commitID
	var target object.Hash
	steps := 0
	for _, e := range entries {
		if steps == n {
			break
		}
		if !strings.HasPrefix(e.Reason, "undo:") && !strings.HasPrefix(e.Reason, "redo:") {
			continue
		}
		if e.NewHash != cursor {
			continue
		}
		if e.OldHash.IsZero() {
			continue
		}
		target = e.OldHash
		cursor = e.OldHash
		steps++
	}
	if steps < n {
		return nil, vosterr.New(vosterr.NotFound, "fewer than requested redo steps available")
	}

	commit, err := s.repo.Store.ReadCommit(target)
	if err != nil {
		return nil, err
	}

	var result *Snapshot
	err = s.repo.withLock(func() error {
		currentTip, err := s.repo.Refs.ReadHash(s.refName)
		if err != nil {
			return err
		}
		if currentTip != s.commitID {
			return vosterr.Newf(vosterr.StaleSnapshot, "branch %q moved", s.refName)
		}
		msg := "redo: " + strconv.Itoa(n) + " commit(s)"
		if err := s.repo.Refs.CASUpdate(s.refName, currentTip, target, msg); err != nil {
			return err
		}
		result = &Snapshot{repo: s.repo, commitID: target, treeID: commit.Tree, refName: s.refName, writable: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CommitInfo is a projection of a commit for log output.
type CommitInfo struct {
	Hash        object.Hash
	Message     string
	Time        int64
	AuthorName  string
	AuthorEmail string
}

// LogOptions filters History.Log; all set fields are ANDed.
type LogOptions struct {
	Limit        int
	Skip         int
	MatchPattern string
	Before       *int64
	Path         string
}

// Log performs a linear parent walk from the current commit, yielding
// CommitInfo entries filtered by opts.
func (s *Snapshot) Log(opts LogOptions) ([]CommitInfo, error) {
	var out []CommitInfo
	cur := s.commitID
	skipped := 0

	for cur != "" {
		commit, err := s.repo.Store.ReadCommit(cur)
		if err != nil {
			return nil, err
		}

		include := true
		if opts.MatchPattern != "" {
			matched, err := filepath.Match(opts.MatchPattern, commit.Message)
			if err != nil {
				return nil, err
			}
			if !matched {
				include = false
			}
		}
		if include && opts.Before != nil && commit.Author.Time > *opts.Before {
			include = false
		}
		if include && opts.Path != "" {
			changed, err := pathChangedAt(s.repo, cur, commit, opts.Path)
			if err != nil {
				return nil, err
			}
			if !changed {
				include = false
			}
		}

		if include {
			if skipped < opts.Skip {
				skipped++
			} else {
				out = append(out, CommitInfo{
					Hash: cur, Message: commit.Message, Time: commit.Author.Time,
					AuthorName: commit.Author.Name, AuthorEmail: commit.Author.Email,
				})
				if opts.Limit > 0 && len(out) >= opts.Limit {
					break
				}
			}
		}

		if len(commit.Parents) == 0 {
			break
		}
		cur = commit.Parents[0]
	}
	return out, nil
}

// pathChangedAt reports whether the entry at path differs between commit
// and its first parent (or exists at all, for an initial commit).
func pathChangedAt(repo *Repository, commitID object.Hash, commit *object.Commit, path string) (bool, error) {
	np, err := normalize(path)
	if err != nil {
		return false, err
	}
	curReader := newTreeReaderFor(repo, commit.Tree)
	curEntry, curErr := curReader.Lookup(np)
	curExists := curErr == nil

	if len(commit.Parents) == 0 {
		return curExists, nil
	}
	parentCommit, err := repo.Store.ReadCommit(commit.Parents[0])
	if err != nil {
		return false, err
	}
	parentReader := newTreeReaderFor(repo, parentCommit.Tree)
	parentEntry, parentErr := parentReader.Lookup(np)
	parentExists := parentErr == nil

	if curExists != parentExists {
		return true, nil
	}
	if !curExists {
		return false, nil
	}
	return curEntry.ID != parentEntry.ID || curEntry.Mode != parentEntry.Mode, nil
}
