// Package object implements the content-addressed object store, reference
// store, and packfile primitives that the rest of vost is built on: blobs,
// trees, commits, refs with an append-only reflog, and pack/idx encoding
// for the mirror and bundle transports.
//
// Spec §1 treats these as consumed, not specified, primitives; this
// package is vost's own implementation of that contract rather than a
// binding to an external git library.
package object

import (
	"encoding/hex"
)

// Hash is a 40-character lowercase hex object id (a SHA-1 digest of the
// object's canonical encoding, git-style).
type Hash string

// ZeroHash is the all-zero sentinel denoting "no object" — an empty base
// tree, a ref with no prior value, an absent commit parent.
const ZeroHash Hash = "0000000000000000000000000000000000000000"

// IsZero reports whether h is the zero sentinel or empty.
func (h Hash) IsZero() bool { return h == "" || h == ZeroHash }

// Valid reports whether h is exactly 40 lowercase hex characters.
func (h Hash) Valid() bool {
	if len(h) != 40 {
		return false
	}
	for _, c := range string(h) {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (h Hash) Bytes() ([]byte, error) { return hex.DecodeString(string(h)) }

func HashFromBytes(b []byte) Hash { return Hash(hex.EncodeToString(b)) }

// FileMode is one of the four modes a tree entry may carry.
type FileMode uint32

const (
	ModeBlob       FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeLink       FileMode = 0o120000
	ModeTree       FileMode = 0o040000
)

// FileType is the caller-facing classification of a FileMode, bijective
// with the four modes above.
type FileType int

const (
	TypeBlob FileType = iota
	TypeExecutable
	TypeLink
	TypeTree
)

func (t FileType) String() string {
	switch t {
	case TypeBlob:
		return "blob"
	case TypeExecutable:
		return "executable"
	case TypeLink:
		return "link"
	case TypeTree:
		return "tree"
	default:
		return "unknown"
	}
}

// FileTypeFromMode maps a FileMode to its FileType, or ok=false for any
// mode outside the fixed set (an internal/"git" error at the caller).
func FileTypeFromMode(m FileMode) (FileType, bool) {
	switch m {
	case ModeBlob:
		return TypeBlob, true
	case ModeExecutable:
		return TypeExecutable, true
	case ModeLink:
		return TypeLink, true
	case ModeTree:
		return TypeTree, true
	default:
		return 0, false
	}
}

func ModeFromFileType(t FileType) FileMode {
	switch t {
	case TypeExecutable:
		return ModeExecutable
	case TypeLink:
		return ModeLink
	case TypeTree:
		return ModeTree
	default:
		return ModeBlob
	}
}

// ObjectType tags the payload stored under an object's loose-object
// envelope.
type ObjectType string

const (
	ObjBlob   ObjectType = "blob"
	ObjTree   ObjectType = "tree"
	ObjCommit ObjectType = "commit"
)

// TreeEntry is one entry of a Tree, in the order the store keeps them:
// sorted by Name.
type TreeEntry struct {
	Name string
	Mode FileMode
	ID   Hash
}

// Tree is an ordered list of entries; entries are sorted by Name when
// written, matching the canonical encoding used for content addressing.
type Tree struct {
	Entries []TreeEntry
}

func (t *Tree) Find(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// Signature identifies a commit's author or committer.
type Signature struct {
	Name  string
	Email string
	// Unix seconds and a "+HHMM"/"-HHMM" style offset, matching git's
	// on-disk commit encoding.
	Time     int64
	TZOffset string
}

// Commit is a single commit object: a tree plus zero or more parents and
// a message.
type Commit struct {
	Tree      Hash
	Parents   []Hash
	Author    Signature
	Committer Signature
	Message   string
}

// Blob is an opaque byte vector.
type Blob struct {
	Data []byte
}
