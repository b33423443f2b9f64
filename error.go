package seedling

import (
	"errors"
	"strings"
)

// frameErrors wraps errors that might occur in different phases of a
// single frame.
type frameErrors []error

func (e frameErrors) Error() string {
	s := []string{}
	for _, fe := range e {
		s = append(s, fe.Error())
	}
	return strings.Join(s, ",")
}

// Is checks if any of errors match provided sentinel error.
func (e frameErrors) Is(err error) bool {
	for _, fe := range e {
		if errors.Is(fe, err) {
			return true
		}
	}
	return false
}

// ret returns untyped nil if the list is empty.
func (e frameErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
