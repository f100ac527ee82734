// Package vost implements the versioned filesystem library: a bare,
// content-addressed object store exposed as named branches/tags holding
// immutable directory-tree snapshots, with history navigation, batched
// multi-path mutation, notes, and mirror/bundle transfer.
package vost

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mhalle/vost/internal/lockfile"
	"github.com/mhalle/vost/internal/vlog"
	"github.com/mhalle/vost/pkg/notes"
	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/pathutil"
	"github.com/mhalle/vost/pkg/vosterr"
)

// Signature identifies the author/committer vost stamps onto every commit
// it creates.
type Signature struct {
	Name  string
	Email string
}

const (
	DefaultSignatureName  = "vost"
	DefaultSignatureEmail = "vost@localhost"
)

// Config is the repository-local settings persisted at <repo>/config.toml.
type Config struct {
	Signature *ConfigSignature  `toml:"signature,omitempty"`
	Remotes   map[string]string `toml:"remotes,omitempty"`
}

type ConfigSignature struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

// Repository is an opened vost repository: the object store, the ref
// namespace, a process-local mutex serializing object-store calls, and
// the signature new commits are stamped with.
type Repository struct {
	root string
	mu   sync.Mutex

	Store *object.Store
	Refs  *object.Refs

	signature Signature
	logger    *slog.Logger
}

// OpenOptions configures Open.
type OpenOptions struct {
	Create        bool
	DefaultBranch string // used only when Create is true; defaults to "main"
	AuthorName    string
	AuthorEmail   string
	Logger        *slog.Logger // attached to the repository; defaults to a no-op discard logger
}

func (r *Repository) lockPath() string { return filepath.Join(r.root, "vost.lock") }

// Open opens the repository rooted at path, optionally creating it.
func Open(path string, opts OpenOptions) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}

	exists := true
	if _, err := os.Stat(filepath.Join(abs, "HEAD")); err != nil {
		if !os.IsNotExist(err) {
			return nil, vosterr.Wrap(vosterr.IO, err)
		}
		exists = false
	}

	if !exists {
		if !opts.Create {
			return nil, vosterr.WithPath(vosterr.NotFound, abs, nil)
		}
		if err := initRepository(abs, opts); err != nil {
			return nil, err
		}
	}

	repo := &Repository{
		root:   abs,
		Store:  object.NewStore(abs),
		Refs:   object.NewRefs(abs),
		logger: opts.Logger,
	}

	sig, err := repo.loadSignature(opts)
	if err != nil {
		return nil, err
	}
	repo.signature = sig

	if !exists {
		if err := repo.createInitialCommit(defaultBranchName(opts)); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

func defaultBranchName(opts OpenOptions) string {
	if opts.DefaultBranch == "" {
		return "main"
	}
	return opts.DefaultBranch
}

// createInitialCommit bootstraps a freshly created repository's default
// branch with a single parentless commit over an empty tree, mirroring
// the original gitstore's open(create=<branch>) behavior: a branch that
// exists is never merely the sentinel of its first write.
func (r *Repository) createInitialCommit(branch string) error {
	emptyTree, err := r.Store.WriteTree(&object.Tree{})
	if err != nil {
		return err
	}
	now := time.Now()
	signature := object.Signature{
		Name: r.signature.Name, Email: r.signature.Email,
		Time: now.Unix(), TZOffset: now.Format("-0700"),
	}
	commit := &object.Commit{
		Tree:      emptyTree,
		Author:    signature,
		Committer: signature,
		Message:   "Initialize " + branch,
	}
	commitID, err := r.Store.WriteCommit(commit)
	if err != nil {
		return err
	}
	return r.Refs.CASUpdate("refs/heads/"+branch, object.ZeroHash, commitID, commit.Message)
}

// Context returns ctx with this repository's logger attached, the way
// callers thread a Repository into copy/sync/mirror operations that
// expect a context.Context carrying a logger.
func (r *Repository) Context(ctx context.Context) context.Context {
	if r.logger == nil {
		return ctx
	}
	return vlog.NewContext(ctx, r.logger)
}

func initRepository(root string, opts OpenOptions) error {
	branch := defaultBranchName(opts)
	if err := pathutil.ValidateRefName(branch); err != nil {
		return err
	}

	dirs := []string{
		filepath.Join(root, "objects"),
		filepath.Join(root, "refs", "heads"),
		filepath.Join(root, "refs", "tags"),
		filepath.Join(root, "refs", "notes"),
		filepath.Join(root, "logs", "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return vosterr.Wrap(vosterr.IO, err)
		}
	}
	headPath := filepath.Join(root, "HEAD")
	if err := os.WriteFile(headPath, []byte("ref: refs/heads/"+branch+"\n"), 0o644); err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	return nil
}

func (r *Repository) configPath() string { return filepath.Join(r.root, "config.toml") }

// ReadConfig reads config.toml; a missing file is an empty config.
func (r *Repository) ReadConfig() (*Config, error) {
	data, err := os.ReadFile(r.configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Remotes: map[string]string{}}, nil
		}
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, vosterr.Wrap(vosterr.IO, err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]string{}
	}
	return &cfg, nil
}

// WriteConfig atomically writes config.toml.
func (r *Repository) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	tmp, err := os.CreateTemp(r.root, ".config-tmp-*")
	if err != nil {
		return vosterr.Wrap(vosterr.IO, err)
	}
	tmpName := tmp.Name()
	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(cfg); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return vosterr.Wrap(vosterr.IO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return vosterr.Wrap(vosterr.IO, err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return vosterr.Wrap(vosterr.IO, err)
	}
	return nil
}

// SetRemote stores a named remote URL in repository config.
func (r *Repository) SetRemote(name, url string) error {
	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Remotes[name] = url
	return r.WriteConfig(cfg)
}

func (r *Repository) loadSignature(opts OpenOptions) (Signature, error) {
	sig := Signature{Name: DefaultSignatureName, Email: DefaultSignatureEmail}
	cfg, err := r.ReadConfig()
	if err == nil && cfg.Signature != nil {
		if cfg.Signature.Name != "" {
			sig.Name = cfg.Signature.Name
		}
		if cfg.Signature.Email != "" {
			sig.Email = cfg.Signature.Email
		}
	}
	if opts.AuthorName != "" {
		sig.Name = opts.AuthorName
	}
	if opts.AuthorEmail != "" {
		sig.Email = opts.AuthorEmail
	}
	return sig, nil
}

// Root returns the repository's root directory.
func (r *Repository) Root() string { return r.root }

// Signature returns the signature new commits are stamped with.
func (r *Repository) Signature() Signature { return r.signature }

// ObjectStore exposes the repository's object store for sub-stores (notes,
// mirror) that are built on top of it without importing this package.
func (r *Repository) ObjectStore() *object.Store { return r.Store }

// RefStore exposes the repository's ref namespace, see ObjectStore.
func (r *Repository) RefStore() *object.Refs { return r.Refs }

// SignatureParts returns the commit signature as a plain (name, email)
// pair, for sub-stores that cannot import this package's Signature type.
func (r *Repository) SignatureParts() (string, string) { return r.signature.Name, r.signature.Email }

// WithLock exposes the repository's lock for sub-stores that need their
// own CAS-under-lock commit sequence against a different ref line.
func (r *Repository) WithLock(fn func() error) error { return r.withLock(fn) }

// ResolveRefOrHash resolves key as a raw 40-hex hash, or failing that as a
// branch or tag short name, to the commit id it currently names.
func (r *Repository) ResolveRefOrHash(key string) (object.Hash, error) {
	if pathutil.ValidateHash(key) == nil {
		return object.Hash(key), nil
	}
	if err := pathutil.ValidateRefName(key); err != nil {
		return "", vosterr.WithPath(vosterr.NotFound, key, nil)
	}
	for _, prefix := range []string{"refs/heads/", "refs/tags/"} {
		id, err := r.Refs.ReadHash(prefix + key)
		if err != nil {
			return "", err
		}
		if !id.IsZero() {
			return id, nil
		}
	}
	return "", vosterr.WithPath(vosterr.NotFound, key, nil)
}

// Notes returns the notes namespace of the given name, e.g. "commits".
func (r *Repository) Notes(namespace string) *notes.Namespace { return notes.New(r, namespace) }

// withLock serializes a mutating operation against this process's own
// object-store mutex and acquires the cross-process advisory lock file,
// releasing both deterministically on every exit path.
func (r *Repository) withLock(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, err := lockfile.Acquire(r.lockPath())
	if err != nil {
		return vosterr.Wrap(vosterr.IO, fmt.Errorf("acquire repository lock: %w", err))
	}
	defer lock.Unlock()

	return fn()
}

// Branch returns a writable Snapshot at the current tip of the named
// branch, creating an empty one if the branch does not yet exist.
func (r *Repository) Branch(name string) (*Snapshot, error) {
	if err := pathutil.ValidateRefName(name); err != nil {
		return nil, err
	}
	refName := "refs/heads/" + name
	commitID, err := r.Refs.ReadHash(refName)
	if err != nil {
		return nil, err
	}
	return r.snapshotFromCommit(commitID, refName, true)
}

// Tag returns a read-only Snapshot at the commit a tag points to.
func (r *Repository) Tag(name string) (*Snapshot, error) {
	if err := pathutil.ValidateRefName(name); err != nil {
		return nil, err
	}
	refName := "refs/tags/" + name
	commitID, err := r.Refs.ReadHash(refName)
	if err != nil {
		return nil, err
	}
	if commitID.IsZero() {
		return nil, vosterr.WithPath(vosterr.KeyNotFound, name, nil)
	}
	return r.snapshotFromCommit(commitID, refName, false)
}

// CreateTag creates a non-force tag pointing at the given snapshot's
// commit. Fails with key-exists if the tag already exists.
func (r *Repository) CreateTag(name string, at *Snapshot) error {
	if err := pathutil.ValidateRefName(name); err != nil {
		return err
	}
	refName := "refs/tags/" + name
	if r.Refs.Exists(refName) {
		return vosterr.WithPath(vosterr.KeyExists, name, nil)
	}
	return r.Refs.CASUpdate(refName, object.ZeroHash, at.commitID, "tag: "+name)
}

// Head returns a Snapshot bound to the branch HEAD currently points at.
func (r *Repository) Head() (*Snapshot, error) {
	symbolic, detached, err := r.Refs.ReadHEAD()
	if err != nil {
		return nil, err
	}
	if symbolic != "" {
		commitID, err := r.Refs.ReadHash(symbolic)
		if err != nil {
			return nil, err
		}
		return r.snapshotFromCommit(commitID, symbolic, true)
	}
	return r.snapshotFromCommit(detached, "", false)
}

func (r *Repository) snapshotFromCommit(commitID object.Hash, refName string, writable bool) (*Snapshot, error) {
	if commitID.IsZero() {
		return &Snapshot{repo: r, commitID: "", treeID: "", refName: refName, writable: writable}, nil
	}
	commit, err := r.Store.ReadCommit(commitID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{repo: r, commitID: commitID, treeID: commit.Tree, refName: refName, writable: writable}, nil
}
