package vost

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/pathutil"
)

// Glob returns every path matched by pattern, sorted.
func (s *Snapshot) Glob(pattern string) ([]string, error) {
	var out []string
	if err := s.Iglob(pattern, func(p string) error { out = append(out, p); return nil }); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Iglob calls fn for every path matched by pattern, in traversal order.
// Each pattern segment is matched fnmatch-style (*, ?, [...]) against one
// tree level; a segment equal to "**" matches zero or more intervening
// directory levels, never descending into a dot-prefixed directory. The
// terminal segment matches leaves only, never a tree entry.
func (s *Snapshot) Iglob(pattern string, fn func(path string) error) error {
	np, err := normalize(pattern)
	if err != nil {
		return err
	}
	var segments []string
	if np != "" {
		segments = strings.Split(np, "/")
	}
	if len(segments) == 0 {
		return nil
	}
	return s.globWalk("", segments, fn)
}

func (s *Snapshot) globWalk(dir string, segments []string, fn func(string) error) error {
	seg := segments[0]
	rest := segments[1:]
	last := len(rest) == 0

	entries, err := s.reader().List(dir)
	if err != nil {
		return nil // not a directory at this level: no matches beneath it
	}

	if seg == "**" {
		if last {
			// "**" as the terminal segment matches every leaf at and
			// below dir, never a tree entry itself.
			return s.globAllLeaves(dir, entries, fn)
		}
		// Zero levels: try the rest of the pattern at the same directory.
		if err := s.globWalk(dir, rest, fn); err != nil {
			return err
		}
		// One or more levels: descend into every non-dot subdirectory,
		// keeping "**" active.
		for _, e := range entries {
			if e.Mode != object.ModeTree || strings.HasPrefix(e.Name, ".") {
				continue
			}
			if err := s.globWalk(pathutil.Join(dir, e.Name), segments, fn); err != nil {
				return err
			}
		}
		return nil
	}

	for _, e := range entries {
		if strings.HasPrefix(e.Name, ".") && !strings.HasPrefix(seg, ".") {
			continue
		}
		matched, err := filepath.Match(seg, e.Name)
		if err != nil {
			return err
		}
		if !matched {
			continue
		}
		full := pathutil.Join(dir, e.Name)
		if last {
			if e.Mode != object.ModeTree {
				if err := fn(full); err != nil {
					return err
				}
			}
			continue
		}
		if e.Mode == object.ModeTree {
			if err := s.globWalk(full, rest, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// globAllLeaves recursively yields every non-dot leaf at and below dir,
// for a pattern whose terminal segment is "**". entries is dir's
// already-listed contents.
func (s *Snapshot) globAllLeaves(dir string, entries []object.TreeEntry, fn func(string) error) error {
	for _, e := range entries {
		if strings.HasPrefix(e.Name, ".") {
			continue
		}
		full := pathutil.Join(dir, e.Name)
		if e.Mode == object.ModeTree {
			sub, err := s.reader().List(full)
			if err != nil {
				continue
			}
			if err := s.globAllLeaves(full, sub, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(full); err != nil {
			return err
		}
	}
	return nil
}
