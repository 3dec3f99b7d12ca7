package store

import "sync/atomic"

var casCounter uint64

// nextCAS hands out a process-wide monotonically increasing CAS token.
// A single counter (rather than one per shard) keeps tokens comparable
// across shards, which matters for clients that cache a CAS value and
// replay it against a key that has since moved shard (it never does in
// this implementation, since shard ownership is a pure function of the
// key, but a single counter costs nothing and removes the question).
func nextCAS() uint64 {
	return atomic.AddUint64(&casCounter, 1)
}
