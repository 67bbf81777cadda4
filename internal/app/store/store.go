/*
Package store holds the sentinel errors every persistence backend reports, and their
translation into application errors.
*/
package store

import (
	"errors"

	"pingup/internal/pkg/errs"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("store: duplicate record")
)

// Translate maps a backend error to a CustomError.
// ErrNotFound becomes notFoundCode, ErrDuplicate becomes ErrInvalidParams, CustomErrors pass
// through, and everything else is a transient ErrStoreUnavailable.
func Translate(err error, notFoundCode int) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return errs.NewError(notFoundCode)
	case errors.Is(err, ErrDuplicate):
		return errs.NewError(errs.ErrInvalidParams)
	}

	if customErr, ok := errs.As(err); ok {
		return customErr
	}
	return errs.NewError(errs.ErrStoreUnavailable, err)
}
