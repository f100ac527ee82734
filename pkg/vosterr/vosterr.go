// Package vosterr defines the error taxonomy shared by every vost package.
//
// Callers are expected to use errors.Is against the exported Kind sentinels
// rather than matching on message text.
package vosterr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of failure, independent of the offending path
// or the wrapped cause.
type Kind int

const (
	// Unknown is the zero value; no *Error built by this module carries
	// it. Of reports it for errors that are not an *Error.
	Unknown Kind = iota
	NotFound
	IsADirectory
	NotADirectory
	PermissionDenied
	StaleSnapshot
	KeyNotFound
	KeyExists
	InvalidPath
	InvalidHash
	InvalidRefName
	BatchClosed
	IO
	Git
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case IsADirectory:
		return "is-a-directory"
	case NotADirectory:
		return "not-a-directory"
	case PermissionDenied:
		return "permission-denied"
	case StaleSnapshot:
		return "stale-snapshot"
	case KeyNotFound:
		return "key-not-found"
	case KeyExists:
		return "key-exists"
	case InvalidPath:
		return "invalid-path"
	case InvalidHash:
		return "invalid-hash"
	case InvalidRefName:
		return "invalid-ref-name"
	case BatchClosed:
		return "batch-closed"
	case IO:
		return "io"
	case Git:
		return "git"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by vost operations.
type Error struct {
	Kind Kind
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Msg)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, vosterr.ErrNotFound) (or any other Err* sentinel)
// match every *Error of that Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && e.Kind == k.kind
}

// kindSentinel is the error type behind the package-level Err* sentinels
// below. A Kind such as NotFound is not an error itself, so callers
// compare against ErrNotFound rather than NotFound.
type kindSentinel struct{ kind Kind }

func (s kindSentinel) Error() string { return s.kind.String() }

// Sentinels for errors.Is comparisons, e.g. errors.Is(err, vosterr.ErrNotFound).
var (
	ErrNotFound         error = kindSentinel{NotFound}
	ErrIsADirectory     error = kindSentinel{IsADirectory}
	ErrNotADirectory    error = kindSentinel{NotADirectory}
	ErrPermissionDenied error = kindSentinel{PermissionDenied}
	ErrStaleSnapshot    error = kindSentinel{StaleSnapshot}
	ErrKeyNotFound      error = kindSentinel{KeyNotFound}
	ErrKeyExists        error = kindSentinel{KeyExists}
	ErrInvalidPath      error = kindSentinel{InvalidPath}
	ErrInvalidHash      error = kindSentinel{InvalidHash}
	ErrInvalidRefName   error = kindSentinel{InvalidRefName}
	ErrBatchClosed      error = kindSentinel{BatchClosed}
	ErrIO               error = kindSentinel{IO}
	ErrGit              error = kindSentinel{Git}
	ErrUnsupported      error = kindSentinel{Unsupported}
)

// New builds an *Error with no path and no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WithPath annotates an *Error with the offending path, for the common
// not-found / is-a-directory / not-a-directory cases.
func WithPath(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// Wrap attaches a Kind to an arbitrary lower-level error (I/O, underlying
// object store failures).
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Of reports the Kind of err if it (or something it wraps) is a *Error,
// and Unknown otherwise.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
