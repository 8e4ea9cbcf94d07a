// Package errors defines the error type shared by every layer of the S-7XX
// driver. Every fallible operation returns a [DriverError] (or nil for
// success) rather than a bare [error], so that the code carried by it can be
// handed back to the enclosing shell for display.
package errors

import "fmt"

// Code is a 16-bit error code of the form (library id << 8) | kind, per the
// driver's external error contract. Zero means success and is never carried
// by a non-nil DriverError.
type Code uint16

// LibraryS7XX is this driver's reserved library id, the high byte of every
// Code it returns. The VFS registry that mounts this driver reserves a
// different id for its own errors.
const LibraryS7XX Code = 0x53 << 8

func makeCode(kind uint8) Code {
	return LibraryS7XX | Code(kind)
}

// Error kinds, grouped the way spec section 7 groups them (path, format,
// operation, I/O, internal). The numeric kind values only need to be stable
// within a single running driver; they are not part of the on-disk format.
const (
	CodeInvalidPath Code = LibraryS7XX | (iota + 1)
	CodeNotFound
	CodeNotADirectory

	CodeWrongFs
	CodeMediaTypeNotHdd
	CodeFsSizeMismatch
	CodeDiskTooSmall
	CodeNotAFile
	CodeNonexistentDisk

	CodeUnsupportedOperation
	CodeAlreadyOpen
	CodeNoSpaceLeft
	CodeFileTooLarge
	CodeEmptyEntry
	CodeElementTypeMismatch
	CodeEndOfFile
	CodeFailedToOpenFile

	CodeIoError

	CodeChainSizeMismatch
	CodeWtf
)

var names = map[Code]string{
	CodeInvalidPath:          "invalid path",
	CodeNotFound:             "not found",
	CodeNotADirectory:        "not a directory",
	CodeWrongFs:              "wrong filesystem",
	CodeMediaTypeNotHdd:      "media type is not HDD",
	CodeFsSizeMismatch:       "filesystem size mismatch",
	CodeDiskTooSmall:         "disk too small",
	CodeNotAFile:             "not a file",
	CodeNonexistentDisk:      "disk does not exist",
	CodeUnsupportedOperation: "unsupported operation",
	CodeAlreadyOpen:          "already open",
	CodeNoSpaceLeft:          "no space left on device",
	CodeFileTooLarge:         "file too large",
	CodeEmptyEntry:           "empty entry",
	CodeElementTypeMismatch:  "element type mismatch",
	CodeEndOfFile:            "end of file",
	CodeFailedToOpenFile:     "failed to open file",
	CodeIoError:              "I/O error",
	CodeChainSizeMismatch:    "chain size mismatch",
	CodeWtf:                  "internal invariant violated",
}

// String returns a short human-readable description of the error kind,
// ignoring the library id, e.g. "not found".
func (c Code) String() string {
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown error code %#04x", uint16(c))
}

// DriverError is the error type returned by every exported operation in this
// module. It always carries a non-zero [Code] and an optional wrapped cause.
type DriverError struct {
	code    Code
	message string
	cause   error
}

// New creates a DriverError from a code, using the code's default message.
func New(code Code) *DriverError {
	return &DriverError{code: code, message: code.String()}
}

// NewWithMessage creates a DriverError from a code with a caller-supplied
// message describing the specific failure.
func NewWithMessage(code Code, message string) *DriverError {
	return &DriverError{code: code, message: fmt.Sprintf("%s: %s", code.String(), message)}
}

// Errorf is a convenience wrapper around NewWithMessage using fmt-style
// formatting.
func Errorf(code Code, format string, args ...any) *DriverError {
	return NewWithMessage(code, fmt.Sprintf(format, args...))
}

func (e *DriverError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.message, e.cause.Error())
	}
	return e.message
}

// Code returns the numeric (library-id<<8)|kind error code, for the
// enclosing shell to map to a dialog string.
func (e *DriverError) Code() Code {
	return e.code
}

// WithMessage returns a copy of e with an additional message appended,
// preserving the code and any wrapped cause. Mirrors the teacher's
// customDriverError.WithMessage chaining.
func (e *DriverError) WithMessage(message string) *DriverError {
	return &DriverError{
		code:    e.code,
		message: fmt.Sprintf("%s: %s", e.message, message),
		cause:   e.cause,
	}
}

// Wrap attaches an underlying cause (typically an I/O error from the block
// device) to a DriverError, preserving e's code and message.
func (e *DriverError) Wrap(cause error) *DriverError {
	return &DriverError{code: e.code, message: e.message, cause: cause}
}

// Unwrap lets errors.Is / errors.As see through to the wrapped cause.
func (e *DriverError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a DriverError with the same code, so callers
// can write errors.Is(err, errors.New(errors.CodeNotFound)) instead of type-
// asserting and comparing codes by hand.
func (e *DriverError) Is(target error) bool {
	other, ok := target.(*DriverError)
	if !ok {
		return false
	}
	return other.code == e.code
}

// IsCode reports whether err is a *DriverError carrying the given code.
func IsCode(err error, code Code) bool {
	de, ok := err.(*DriverError)
	return ok && de.code == code
}
