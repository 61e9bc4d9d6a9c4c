package entryfs

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure reported by the storage capability.
// Codes match the numeric codes of the File API error table.
type ErrorKind int

const (
	Unknown ErrorKind = iota
	NotFound
	Security
	Aborted
	NotReadable
	Encoding
	NoModificationAllowed
	InvalidState
	Syntax
	InvalidModification
	QuotaExceeded
	TypeMismatch
	PathExists
)

var errorKindNames = [...]string{
	Unknown:               "UNKNOWN_ERR",
	NotFound:              "NOT_FOUND_ERR",
	Security:              "SECURITY_ERR",
	Aborted:               "ABORT_ERR",
	NotReadable:           "NOT_READABLE_ERR",
	Encoding:              "ENCODING_ERR",
	NoModificationAllowed: "NO_MODIFICATION_ALLOWED_ERR",
	InvalidState:          "INVALID_STATE_ERR",
	Syntax:                "SYNTAX_ERR",
	InvalidModification:   "INVALID_MODIFICATION_ERR",
	QuotaExceeded:         "QUOTA_EXCEEDED_ERR",
	TypeMismatch:          "TYPE_MISMATCH_ERR",
	PathExists:            "PATH_EXISTS_ERR",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(errorKindNames) {
		return errorKindNames[Unknown]
	}
	return errorKindNames[k]
}

// Code returns the numeric File API code of the kind (0 for Unknown)
func (k ErrorKind) Code() int {
	if k < 0 || int(k) >= len(errorKindNames) {
		return 0
	}
	return int(k)
}

// KindFromCode maps a numeric File API error code to its kind.
// Out of range codes map to Unknown.
func KindFromCode(code int) ErrorKind {
	if code <= 0 || code >= len(errorKindNames) {
		return Unknown
	}
	return ErrorKind(code)
}

// Sentinels for errors.Is comparisons against any *OperationError of that kind
var (
	ErrNotFound              = &OperationError{Kind: NotFound}
	ErrSecurity              = &OperationError{Kind: Security}
	ErrAborted               = &OperationError{Kind: Aborted}
	ErrNotReadable           = &OperationError{Kind: NotReadable}
	ErrEncoding              = &OperationError{Kind: Encoding}
	ErrNoModificationAllowed = &OperationError{Kind: NoModificationAllowed}
	ErrInvalidState          = &OperationError{Kind: InvalidState}
	ErrSyntax                = &OperationError{Kind: Syntax}
	ErrInvalidModification   = &OperationError{Kind: InvalidModification}
	ErrQuotaExceeded         = &OperationError{Kind: QuotaExceeded}
	ErrTypeMismatch          = &OperationError{Kind: TypeMismatch}
	ErrPathExists            = &OperationError{Kind: PathExists}
)

// OperationError is the failure reported by a storage operation.
// Op and Path identify which step of a chain failed.
type OperationError struct {
	Kind ErrorKind
	Op   string // operation name, i.e. "getDirectory"
	Path string // offending path or URL
	Err  error  // underlying cause, if any
}

// NewError creates an OperationError of the given kind
func NewError(kind ErrorKind, op, path string) *OperationError {
	return &OperationError{Kind: kind, Op: op, Path: path}
}

// WrapError creates an OperationError of the given kind around cause
func WrapError(kind ErrorKind, op, path string, cause error) *OperationError {
	return &OperationError{Kind: kind, Op: op, Path: path, Err: cause}
}

func (e *OperationError) Error() string {
	msg := e.Kind.String()
	switch {
	case e.Op != "" && e.Path != "":
		msg = fmt.Sprintf("%s %q: %s", e.Op, e.Path, msg)
	case e.Op != "":
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Path != "":
		msg = fmt.Sprintf("%q: %s", e.Path, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *OperationError of the same kind.
// Op and Path are diagnostics only and are not compared.
func (e *OperationError) Is(target error) bool {
	t, ok := target.(*OperationError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the ErrorKind of the first *OperationError in err's chain.
// Returns Unknown for nil or foreign errors.
func KindOf(err error) ErrorKind {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return Unknown
}

// IsKind reports whether err carries an *OperationError of kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// AsOperationError returns err as an *OperationError. Foreign errors are
// wrapped with kind Unknown, and a missing Op/Path is filled in.
func AsOperationError(err error, op, path string) *OperationError {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		if opErr.Op == "" || opErr.Path == "" {
			cp := *opErr
			if cp.Op == "" {
				cp.Op = op
			}
			if cp.Path == "" {
				cp.Path = path
			}
			return &cp
		}
		return opErr
	}
	return WrapError(Unknown, op, path, err)
}
