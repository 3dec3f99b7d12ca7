// Package handler implements spec.md's hardest subsystem: the
// per-connection protocol state machine that turns bytes in a receive
// buffer into dispatched storage operations and, eventually, reply
// bytes in a send buffer.
package handler

import (
	"github.com/shardcached/shardcached/internal/store"
	"github.com/shardcached/shardcached/internal/wire"
)

// pending correlates an outstanding store.Request with the parsed
// Command that spawned it, so the response builder knows how to render
// the eventual completions (spec.md §3 HandlerState: "a pointer to the
// current Request while a command is outstanding").
type pending struct {
	req *store.Request
	cmd *wire.Command
}

// State is the per-connection parsing state described in spec.md §3.
// At most one Handler exists per connection and nothing but that
// connection's own goroutine ever touches its State.
type State struct {
	loadingData bool
	dataCmd     *wire.Command // command descriptor while loadingData is true
	dataReject  []byte        // non-nil: still swallow the data block, but reply with this instead of dispatching

	cur *pending // non-nil while a Request is outstanding (Complex)
}

// Busy reports whether a Request is outstanding on this connection,
// i.e. parsing must stay suspended per spec.md §3's invariant: "at most
// one in-flight Request per connection."
func (s *State) Busy() bool {
	return s.cur != nil
}
