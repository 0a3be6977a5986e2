package article

import (
	"errors"
	"fmt"
)

const errFmt = "%s: %s"

// Common errors for Article service implementations.
var (
	ErrInvalidArticle = errors.New("invalid article")
	ErrNotFound       = errors.New("article not found")
)

// Error wraps common Article errors.
type Error struct {
	err error
	msg string
}

func (e Error) Error() string {
	return e.msg
}

// IsInvalidArticle indicates if err is ErrInvalidArticle.
func IsInvalidArticle(err error) bool {
	return unwrapError(err) == ErrInvalidArticle
}

// IsNotFound indicates if err is ErrNotFound.
func IsNotFound(err error) bool {
	return unwrapError(err) == ErrNotFound
}

func unwrapError(err error) error {
	switch e := err.(type) {
	case *Error:
		return e.err
	}

	return err
}

func wrapError(err error, format string, args ...interface{}) error {
	return &Error{
		err: err,
		msg: fmt.Sprintf(
			errFmt,
			err,
			fmt.Sprintf(format, args...),
		),
	}
}
