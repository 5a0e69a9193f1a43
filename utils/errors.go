package utils

import (
	"fmt"

	errors "github.com/go-errors/errors"
)

var (
	NotFoundError      = errors.New("NotFoundError")
	InvalidArgError    = errors.New("InvalidArgError")
	IOError            = errors.New("IOError")
	InvalidConfigError = errors.New("InvalidConfigError")
)

// Wrap a sentinel error with a message while keeping it matchable
// with errors.Is()
func Wrap(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
}
