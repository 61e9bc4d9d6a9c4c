package entryfs

import (
	"context"
	"errors"
	"fmt"
)

// TransferErrorKind classifies a failed download. It is separate
// from ErrorKind.
type TransferErrorKind int

const (
	TransferUnknown TransferErrorKind = iota
	FileNotFoundErr
	InvalidURLErr
	ConnectionErr
	AbortErr
	NotModifiedErr
)

var transferKindNames = [...]string{
	TransferUnknown: "UNKNOWN_ERR",
	FileNotFoundErr: "FILE_NOT_FOUND_ERR",
	InvalidURLErr:   "INVALID_URL_ERR",
	ConnectionErr:   "CONNECTION_ERR",
	AbortErr:        "ABORT_ERR",
	NotModifiedErr:  "NOT_MODIFIED_ERR",
}

func (k TransferErrorKind) String() string {
	if k < 0 || int(k) >= len(transferKindNames) {
		return transferKindNames[TransferUnknown]
	}
	return transferKindNames[k]
}

// Code returns the numeric FileTransfer error code
func (k TransferErrorKind) Code() int {
	if k < 0 || int(k) >= len(transferKindNames) {
		return 0
	}
	return int(k)
}

// TransferError is the failure reported by a Transfer
type TransferError struct {
	Kind       TransferErrorKind
	Source     string // remote URL
	Target     string // destination path
	HTTPStatus int    // 0 if no response was received
	Err        error
}

func (e *TransferError) Error() string {
	msg := fmt.Sprintf("download %q -> %q: %s", e.Source, e.Target, e.Kind)
	if e.HTTPStatus != 0 {
		msg += fmt.Sprintf(" (http %d)", e.HTTPStatus)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// TransferKindOf returns the kind of the first *TransferError in err's chain
func TransferKindOf(err error) TransferErrorKind {
	var tErr *TransferError
	if errors.As(err, &tErr) {
		return tErr.Kind
	}
	return TransferUnknown
}

// Transfer downloads remote content into a storage namespace. Download only
// starts the transfer; exactly one of success or fail is invoked later.
type Transfer interface {
	Download(ctx context.Context, source string, root StorageRoot, target string, success func(Entry), fail func(error))
}
