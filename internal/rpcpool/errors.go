package rpcpool

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AggregateError is returned when no endpoint produced a result.
type AggregateError struct {
	Op       string
	Errors   map[string][]error // attempt errors keyed by endpoint name
	TimedOut bool
}

// Error lists each endpoint with its last error.
func (e *AggregateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rpcpool: %s failed on %d endpoint(s)", e.Op, len(e.Errors))
	if e.TimedOut {
		b.WriteString(" (timed out)")
	}
	for _, name := range e.Endpoints() {
		errs := e.Errors[name]
		if len(errs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "; %s: %v", name, errs[len(errs)-1])
	}
	return b.String()
}

// Unwrap exposes every attempt error to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	var all []error
	for _, name := range e.Endpoints() {
		all = append(all, e.Errors[name]...)
	}
	return all
}

// Endpoints returns the attempted endpoint names, sorted.
func (e *AggregateError) Endpoints() []string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllEmpty reports whether err is an AggregateError whose every attempt came
// back empty, i.e. the nodes agree the object does not exist yet.
func AllEmpty(err error) bool {
	var agg *AggregateError
	if !errors.As(err, &agg) {
		return false
	}
	errs := agg.Unwrap()
	if len(errs) == 0 {
		return false
	}
	for _, e := range errs {
		if !errors.Is(e, ErrEmptyResult) {
			return false
		}
	}
	return true
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying on the same endpoint.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
