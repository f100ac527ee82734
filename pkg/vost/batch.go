package vost

import (
	"strconv"

	"github.com/mhalle/vost/pkg/object"
	"github.com/mhalle/vost/pkg/tree"
	"github.com/mhalle/vost/pkg/vosterr"
)

// Batch accumulates writes and removes for a single commit. Not safe for
// concurrent use by multiple goroutines: each batch owns one mutable
// staging buffer.
type Batch struct {
	snap    *Snapshot
	writes  map[string]tree.PendingWrite
	removes map[string]bool
	closed  bool
	message string
}

// NewBatch creates a batch rooted at snap. If message is empty, commit
// auto-generates one from the operation counts.
func NewBatch(snap *Snapshot, message string) *Batch {
	return &Batch{
		snap: snap, message: message,
		writes: make(map[string]tree.PendingWrite), removes: make(map[string]bool),
	}
}

// Write stages a write at path, overriding any earlier write or remove
// staged for the same path: last write wins.
func (b *Batch) Write(path string, data []byte, mode object.FileMode) error {
	if b.closed {
		return vosterr.New(vosterr.BatchClosed, "batch already committed")
	}
	np, err := normalize(path)
	if err != nil {
		return err
	}
	id, err := b.snap.repo.Store.WriteBlob(data)
	if err != nil {
		return err
	}
	delete(b.removes, np)
	b.writes[np] = tree.PendingWrite{Path: np, Mode: mode, Blob: id}
	return nil
}

// Remove stages a remove at path, dropping any pending write for the same
// path: a later remove supersedes an earlier write.
func (b *Batch) Remove(path string) error {
	if b.closed {
		return vosterr.New(vosterr.BatchClosed, "batch already committed")
	}
	np, err := normalize(path)
	if err != nil {
		return err
	}
	delete(b.writes, np)
	b.removes[np] = true
	return nil
}

// Commit applies the accumulated writes and removes as a single commit.
// Legal once; a second call fails with batch-closed. A batch with no
// staged operations still produces a commit (the same tree as its
// parent).
func (b *Batch) Commit() (*Snapshot, error) {
	if b.closed {
		return nil, vosterr.New(vosterr.BatchClosed, "batch already committed")
	}
	b.closed = true

	writes := make([]tree.PendingWrite, 0, len(b.writes))
	for _, w := range b.writes {
		writes = append(writes, w)
	}
	removes := make([]string, 0, len(b.removes))
	for p := range b.removes {
		removes = append(removes, p)
	}

	message := b.message
	if message == "" {
		message = "batch: " + strconv.Itoa(len(writes)) + " write(s), " + strconv.Itoa(len(removes)) + " remove(s)"
	}
	return commitChanges(b.snap, writes, removes, message, nil)
}

// StreamWriter accumulates bytes in memory and stages a single write on
// Close.
type StreamWriter struct {
	batch *Batch
	path  string
	mode  object.FileMode
	buf   []byte
}

// NewStreamWriter opens a streaming writer for path within batch.
func (b *Batch) NewStreamWriter(path string, mode object.FileMode) (*StreamWriter, error) {
	if _, err := normalize(path); err != nil {
		return nil, err
	}
	return &StreamWriter{batch: b, path: path, mode: mode}, nil
}

func (w *StreamWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close stages the accumulated bytes as a single write in the owning
// batch.
func (w *StreamWriter) Close() error {
	return w.batch.Write(w.path, w.buf, w.mode)
}
