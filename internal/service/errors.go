package service

import (
	"fmt"

	"github.com/S1riyS/hfs/internal/pkg/kerrors"
)

type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindDirectoryNotEmpty
	KindInternal
	KindPersistence
	KindNotDirectory
	KindIsDirectory
	KindExists
	KindInvalid
	KindFileTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindDirectoryNotEmpty:
		return "directory not empty"
	case KindInternal:
		return "internal error"
	case KindPersistence:
		return "persistence error"
	case KindNotDirectory:
		return "not a directory"
	case KindIsDirectory:
		return "is a directory"
	case KindExists:
		return "already exists"
	case KindInvalid:
		return "invalid argument"
	case KindFileTooLarge:
		return "file too large"
	default:
		return "unknown error"
	}
}

func (k ErrorKind) code() int64 {
	switch k {
	case KindNotFound:
		return kerrors.ENOENT
	case KindDirectoryNotEmpty:
		return kerrors.ENOTEMPTY
	case KindNotDirectory:
		return kerrors.ENOTDIR
	case KindIsDirectory:
		return kerrors.EISDIR
	case KindExists:
		return kerrors.EEXIST
	case KindInvalid:
		return kerrors.EINVAL
	case KindFileTooLarge:
		return kerrors.EFBIG
	default:
		return kerrors.EIO
	}
}

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrNotFound          = &ServiceError{Kind: KindNotFound}
	ErrDirectoryNotEmpty = &ServiceError{Kind: KindDirectoryNotEmpty}
	ErrInternal          = &ServiceError{Kind: KindInternal}
	ErrPersistence       = &ServiceError{Kind: KindPersistence}
	ErrNotDirectory      = &ServiceError{Kind: KindNotDirectory}
	ErrIsDirectory       = &ServiceError{Kind: KindIsDirectory}
	ErrExists            = &ServiceError{Kind: KindExists}
	ErrInvalid           = &ServiceError{Kind: KindInvalid}
	ErrFileTooLarge      = &ServiceError{Kind: KindFileTooLarge}
)

type ServiceError struct {
	Kind    ErrorKind
	Code    int64
	Message string
	Err     error
}

func newError(kind ErrorKind, format string, args ...any) *ServiceError {
	return &ServiceError{
		Kind:    kind,
		Code:    kind.code(),
		Message: fmt.Sprintf(format, args...),
	}
}

func wrapError(kind ErrorKind, err error, format string, args ...any) *ServiceError {
	e := newError(kind, format, args...)
	e.Err = err
	return e
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Kind == e.Kind
}

func (e *ServiceError) GetCode() int64 {
	if e.Code == 0 {
		return e.Kind.code()
	}
	return e.Code
}
