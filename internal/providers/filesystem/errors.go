package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Kind classifies engine failures. The string values are stable and
// serialized as errorKind in API responses.
type Kind string

const (
	KindPathTraversal    Kind = "path_traversal"
	KindNotFound         Kind = "not_found"
	KindForbidden        Kind = "forbidden"
	KindAlreadyExists    Kind = "already_exists"
	KindInvalidOperation Kind = "invalid_operation"
	KindValidation       Kind = "validation_error"
	KindPartialFailure   Kind = "partial_failure"
	KindIOFailure        Kind = "io_failure"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrPathTraversal    = &Error{Kind: KindPathTraversal, Message: "path escapes storage root"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden        = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrAlreadyExists    = &Error{Kind: KindAlreadyExists, Message: "already exists"}
	ErrInvalidOperation = &Error{Kind: KindInvalidOperation, Message: "invalid operation"}
	ErrValidation       = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrPartialFailure   = &Error{Kind: KindPartialFailure, Message: "partial failure"}
	ErrIOFailure        = &Error{Kind: KindIOFailure, Message: "storage failure"}
)

// Error is the typed failure returned by every engine operation.
// Message and Path only ever carry virtual paths; the wrapped Err may hold
// OS detail and is logged, never serialized.
type Error struct {
	Kind    Kind
	Message string
	Path    VirtualPath
	// Details lists individual validation problems.
	Details []string
	// Entries lists virtual paths left behind by a partial delete.
	Entries []string
	// TooLarge marks an upload rejected for exceeding the size cap.
	TooLarge bool
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, path VirtualPath, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

func wrapIO(path VirtualPath, op string, err error) *Error {
	return &Error{
		Kind:    KindIOFailure,
		Path:    path,
		Message: fmt.Sprintf("%s failed for %q", op, displayPath(path)),
		Err:     err,
	}
}

// classifyIO maps an OS error observed at path onto the taxonomy.
func classifyIO(path VirtualPath, op string, err error) *Error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		e := notFound(path)
		e.Err = err
		return e
	case errors.Is(err, fs.ErrExist):
		e := newError(KindAlreadyExists, path, "%q already exists", displayPath(path))
		e.Err = err
		return e
	case errors.Is(err, fs.ErrPermission):
		e := newError(KindIOFailure, path, "storage refused access to %q", displayPath(path))
		e.Err = err
		return e
	}
	return wrapIO(path, op, err)
}

func notFound(path VirtualPath) *Error {
	return newError(KindNotFound, path, "%q not found, path may have changed, please retry", displayPath(path))
}

func forbidden(path VirtualPath, action string) *Error {
	return newError(KindForbidden, path, "not allowed to %s %q", action, displayPath(path))
}

// KindOf returns the kind of err, or KindIOFailure for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIOFailure
}

func displayPath(p VirtualPath) string {
	if p.IsRoot() {
		return "/"
	}
	return p.String()
}
