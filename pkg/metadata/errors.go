package metadata

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred.
type ErrorCode int

const (
	// ErrInvalidPath indicates a path failed validation.
	ErrInvalidPath ErrorCode = iota + 1

	// ErrInvalidHash indicates a content hash string failed format validation.
	ErrInvalidHash

	// ErrNotFound indicates the requested node does not exist.
	ErrNotFound

	// ErrAlreadyExists indicates a node already exists at the path.
	ErrAlreadyExists

	// ErrNotEmpty indicates a directory has children and cannot be removed.
	ErrNotEmpty

	// ErrIsDirectory indicates the path names a directory where a file was expected.
	ErrIsDirectory

	// ErrNotDirectory indicates the path names a file where a directory was expected.
	ErrNotDirectory

	// ErrCorrupted indicates metadata references a blob whose bytes are absent.
	ErrCorrupted

	// ErrUnavailable indicates a transient backend failure from either store.
	ErrUnavailable

	// ErrInvariant indicates an internal consistency check failed
	// (e.g. a refcount would go negative). Non-retryable; signals a bug.
	ErrInvariant
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrInvalidPath:
		return "InvalidPath"
	case ErrInvalidHash:
		return "InvalidHash"
	case ErrNotFound:
		return "NotFound"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrNotEmpty:
		return "NotEmpty"
	case ErrIsDirectory:
		return "IsDirectory"
	case ErrNotDirectory:
		return "NotDirectory"
	case ErrCorrupted:
		return "Corrupted"
	case ErrUnavailable:
		return "Unavailable"
	case ErrInvariant:
		return "Invariant"
	default:
		return fmt.Sprintf("Unknown(%d)", int(e))
	}
}

// StoreError represents an engine or store error with an error code.
type StoreError struct {
	Code    ErrorCode
	Message string
	Path    string
	Err     error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path: %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ============================================================================
// Factory Functions
// ============================================================================

// NewInvalidPathError creates an InvalidPath error.
func NewInvalidPathError(path, reason string) *StoreError {
	return &StoreError{
		Code:    ErrInvalidPath,
		Message: reason,
		Path:    path,
	}
}

// NewInvalidHashError creates an InvalidHash error.
func NewInvalidHashError(reason string) *StoreError {
	return &StoreError{
		Code:    ErrInvalidHash,
		Message: reason,
	}
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(path Path, resourceType string) *StoreError {
	return &StoreError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resourceType),
		Path:    string(path),
	}
}

// NewAlreadyExistsError creates an AlreadyExists error.
func NewAlreadyExistsError(path Path) *StoreError {
	return &StoreError{
		Code:    ErrAlreadyExists,
		Message: "already exists",
		Path:    string(path),
	}
}

// NewNotEmptyError creates a NotEmpty error.
func NewNotEmptyError(path Path) *StoreError {
	return &StoreError{
		Code:    ErrNotEmpty,
		Message: "directory not empty",
		Path:    string(path),
	}
}

// NewIsDirectoryError creates an IsDirectory error.
func NewIsDirectoryError(path Path) *StoreError {
	return &StoreError{
		Code:    ErrIsDirectory,
		Message: "is a directory",
		Path:    string(path),
	}
}

// NewNotDirectoryError creates a NotDirectory error.
func NewNotDirectoryError(path Path) *StoreError {
	return &StoreError{
		Code:    ErrNotDirectory,
		Message: "not a directory",
		Path:    string(path),
	}
}

// NewCorruptedError creates a Corrupted error for a node whose blob is missing.
func NewCorruptedError(path Path, hash string) *StoreError {
	return &StoreError{
		Code:    ErrCorrupted,
		Message: fmt.Sprintf("blob %s missing from blob store", hash),
		Path:    string(path),
	}
}

// NewUnavailableError wraps a transient backend failure.
func NewUnavailableError(op string, err error) *StoreError {
	return &StoreError{
		Code:    ErrUnavailable,
		Message: fmt.Sprintf("%s: backend unavailable", op),
		Err:     err,
	}
}

// NewInvariantError creates an Invariant error. These are bugs, not
// operational conditions; callers must not retry them.
func NewInvariantError(message string) *StoreError {
	return &StoreError{
		Code:    ErrInvariant,
		Message: message,
	}
}

// ============================================================================
// Error Type Checking Helpers
// ============================================================================

func codeOf(err error) (ErrorCode, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsNotFound returns true if the error is a NotFound error.
func IsNotFound(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrNotFound
}

// IsAlreadyExists returns true if the error is an AlreadyExists error.
func IsAlreadyExists(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrAlreadyExists
}

// IsConflict returns true for the conflict family: an occupied path,
// a type mismatch, or a non-empty directory.
func IsConflict(err error) bool {
	code, ok := codeOf(err)
	if !ok {
		return false
	}
	switch code {
	case ErrAlreadyExists, ErrNotEmpty, ErrIsDirectory, ErrNotDirectory:
		return true
	}
	return false
}

// IsInvalidPath returns true if the error is an InvalidPath error.
func IsInvalidPath(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrInvalidPath
}

// IsInvalidHash returns true if the error is an InvalidHash error.
func IsInvalidHash(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrInvalidHash
}

// IsCorrupted returns true if the error is a Corrupted error.
func IsCorrupted(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCorrupted
}

// IsUnavailable returns true if the error is a transient backend error.
func IsUnavailable(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrUnavailable
}

// IsInvariant returns true if the error signals a broken internal invariant.
func IsInvariant(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrInvariant
}
