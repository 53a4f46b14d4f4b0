package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrPeerDisconnected  = errors.New("peer disconnected")
	ErrChannelNotOpen    = errors.New("channel not open")
	ErrTransferDeclined  = errors.New("receiver declined the transfer")
	ErrTransferActive    = errors.New("a transfer is already active")
	ErrInvalidFile       = errors.New("invalid file")
	ErrFileTooLarge      = errors.New("file exceeds the size limit")
	ErrUnknownControl    = errors.New("unknown control message")
	ErrUnexpectedControl = errors.New("unexpected control message")
	ErrNoHeader          = errors.New("chunk received without a file header")
	ErrOverflow          = errors.New("received more data than declared")
	ErrSizeMismatch      = errors.New("received size does not match header")
	ErrShortRead         = errors.New("file ended before its declared size")
)

// TransferError annotates a transfer failure with the operation and file.
type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}
