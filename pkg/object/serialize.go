package object

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mhalle/vost/pkg/vosterr"
)

// EncodeTree renders a Tree into its canonical byte form, entries sorted
// by name, one line per entry: "<mode-octal> <name>\0<40-hex-id>\n". Git
// itself packs the id as 20 raw bytes; vost keeps it hex so the format
// stays readable and trivially diffable in loose storage, at the cost of
// wire compatibility with stock git tooling, which this module never
// promises.
func EncodeTree(t *Tree) []byte {
	entries := append([]TreeEntry(nil), t.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%o %s\x00%s\n", e.Mode, e.Name, e.ID)
	}
	return buf.Bytes()
}

// DecodeTree parses the byte form produced by EncodeTree.
func DecodeTree(data []byte) (*Tree, error) {
	t := &Tree{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return nil, vosterr.Wrap(vosterr.Git, fmt.Errorf("malformed tree line: %q", line))
		}
		modeStr, rest := line[:sp], line[sp+1:]
		nul := strings.IndexByte(rest, '\x00')
		if nul < 0 {
			return nil, vosterr.Wrap(vosterr.Git, fmt.Errorf("malformed tree line: %q", line))
		}
		name, idStr := rest[:nul], rest[nul+1:]
		modeVal, err := strconv.ParseUint(modeStr, 8, 32)
		if err != nil {
			return nil, vosterr.Wrap(vosterr.Git, err)
		}
		t.Entries = append(t.Entries, TreeEntry{Name: name, Mode: FileMode(modeVal), ID: Hash(idStr)})
	}
	if err := scanner.Err(); err != nil {
		return nil, vosterr.Wrap(vosterr.Git, err)
	}
	return t, nil
}

// EncodeCommit renders a Commit in a format modeled directly on git's own
// commit object text: a tree line, zero or more parent lines, author and
// committer lines, a blank line, then the message verbatim.
func EncodeCommit(c *Commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s <%s> %d %s\n", c.Author.Name, c.Author.Email, c.Author.Time, c.Author.TZOffset)
	fmt.Fprintf(&buf, "committer %s <%s> %d %s\n", c.Committer.Name, c.Committer.Email, c.Committer.Time, c.Committer.TZOffset)
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// DecodeCommit parses the byte form produced by EncodeCommit.
func DecodeCommit(data []byte) (*Commit, error) {
	c := &Commit{}
	rest := data
	for {
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			return nil, vosterr.Wrap(vosterr.Git, fmt.Errorf("truncated commit header"))
		}
		line := rest[:nl]
		rest = rest[nl+1:]
		if len(line) == 0 {
			break
		}
		switch {
		case bytes.HasPrefix(line, []byte("tree ")):
			c.Tree = Hash(line[len("tree "):])
		case bytes.HasPrefix(line, []byte("parent ")):
			c.Parents = append(c.Parents, Hash(line[len("parent "):]))
		case bytes.HasPrefix(line, []byte("author ")):
			sig, err := parseSignature(line[len("author "):])
			if err != nil {
				return nil, err
			}
			c.Author = sig
		case bytes.HasPrefix(line, []byte("committer ")):
			sig, err := parseSignature(line[len("committer "):])
			if err != nil {
				return nil, err
			}
			c.Committer = sig
		default:
			return nil, vosterr.Wrap(vosterr.Git, fmt.Errorf("unrecognized commit header: %q", line))
		}
	}
	c.Message = string(rest)
	return c, nil
}

func parseSignature(line []byte) (Signature, error) {
	s := string(line)
	lt := strings.IndexByte(s, '<')
	gt := strings.IndexByte(s, '>')
	if lt < 0 || gt < 0 || gt < lt {
		return Signature{}, vosterr.Wrap(vosterr.Git, fmt.Errorf("malformed signature: %q", s))
	}
	name := strings.TrimSpace(s[:lt])
	email := s[lt+1 : gt]
	fields := strings.Fields(s[gt+1:])
	if len(fields) != 2 {
		return Signature{}, vosterr.Wrap(vosterr.Git, fmt.Errorf("malformed signature timestamp: %q", s))
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{}, vosterr.Wrap(vosterr.Git, err)
	}
	return Signature{Name: name, Email: email, Time: ts, TZOffset: fields[1]}, nil
}
