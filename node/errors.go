package node

import "strings"

// removalErrors wraps errors that might occur when multiple nodes fail to
// be removed.
type removalErrors []error

func (e removalErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap allows to check removal errors with errors.Is.
func (e removalErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error is list is empty.
func (e removalErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
