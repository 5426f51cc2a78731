// Package lock hands out exclusive leases keyed by string, used to serialize
// read-compare-write sequences on a single match.
package lock

import (
	"context"
)

type Locker interface {
	// Lock blocks until the lease for key is held or ctx is done. The returned
	// function releases the lease and is safe to call more than once.
	Lock(ctx context.Context, key string) (func(), error)
}

func MatchKey(matchID string) string {
	return "bierpong:match:" + matchID
}
