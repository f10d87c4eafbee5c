// Package runguard provides single-flight guards for background tasks.
//
// A guard answers one question: may this process start the named task now?
// Three backends exist. LocalGuard covers one process, FileGuard covers one
// host, RedisGuard covers a fleet sharing a Redis instance.
package runguard

import "context"

// Guard admits at most one holder per name.
type Guard interface {
	// TryAcquire never blocks waiting for the current holder. ok is false
	// when another holder exists. release must be called exactly once when
	// ok is true.
	TryAcquire(ctx context.Context, name string) (release func(), ok bool, err error)
}
