package helpers

import (
	"strings"
	"sync"

	"github.com/juju/errors"
)

// FoldErrors joins non-nil errors into one, nil if none.
func FoldErrors(errs []error) error {
	ss := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			ss = append(ss, e.Error())
		}
	}
	switch len(ss) {
	case 0:
		return nil
	case 1:
		for _, e := range errs {
			if e != nil {
				return e
			}
		}
	}
	return errors.New(strings.Join(ss, "\n"))
}

// WrapErrChan runs f and sends its error (if any) to errch.
func WrapErrChan(wg *sync.WaitGroup, errch chan<- error, f func() error) {
	defer wg.Done()
	if err := f(); err != nil {
		errch <- err
	}
}

// FoldErrChan drains closed errch into one error.
func FoldErrChan(errch <-chan error) error {
	errs := make([]error, 0, 8)
	for e := range errch {
		errs = append(errs, e)
	}
	return FoldErrors(errs)
}
