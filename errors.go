package cdns

import (
	"errors"
	"fmt"
)

var (
	// ErrNotHandled is a store's signal that it has no data for a query. It
	// is not a failure; the chain responds by consulting the next store.
	ErrNotHandled = errors.New("not handled")

	// ErrUnsupportedCapability is returned for operations a store can never
	// perform, such as NSEC lookups against a blocklist.
	ErrUnsupportedCapability = errors.New("unsupported capability")

	// ErrNotImplemented is returned when a store rejects dynamic updates.
	ErrNotImplemented = errors.New("not implemented")
)

// QueryTimeoutError is returned when an upstream query times out.
type QueryTimeoutError struct {
	name string
}

func (e QueryTimeoutError) Error() string {
	return fmt.Sprintf("query for '%s' timed out", e.name)
}
