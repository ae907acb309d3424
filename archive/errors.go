package archive

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrFetch         = errors.New("fetch failed")
	ErrCollision     = errors.New("entry name collision")
	ErrSerialization = errors.New("archive serialization failed")
)

// FetchError records one request whose bytes could not be retrieved.
type FetchError struct {
	Index int
	URL   string
	Name  string
	Err   error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("fetch %q (request %d, name %q): %v", e.URL, e.Index, e.Name, e.Err)
}

func (e *FetchError) Unwrap() []error { return []error{ErrFetch, e.Err} }

// CollisionError is returned under CollisionReject when two or more
// requests sanitize to the same entry name.
type CollisionError struct {
	Name    string
	Indexes []int
}

func (e *CollisionError) Error() string {
	if e == nil {
		return ""
	}
	idx := make([]string, 0, len(e.Indexes))
	for _, i := range e.Indexes {
		idx = append(idx, fmt.Sprintf("%d", i))
	}
	return fmt.Sprintf("%s: %q from requests %s", ErrCollision.Error(), e.Name, strings.Join(idx, ","))
}

func (e *CollisionError) Unwrap() error { return ErrCollision }

type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", ErrSerialization.Error(), e.Err)
}

func (e *SerializationError) Unwrap() []error { return []error{ErrSerialization, e.Err} }

// Err folds every recorded fetch failure into one error, or nil when the
// build had none.
func (r Result) Err() error {
	var merr *multierror.Error
	for _, f := range r.Failures {
		merr = multierror.Append(merr, f)
	}
	return merr.ErrorOrNil()
}
