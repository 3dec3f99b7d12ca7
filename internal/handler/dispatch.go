package handler

import (
	"context"
	"time"

	"github.com/shardcached/shardcached/internal/store"
	"github.com/shardcached/shardcached/internal/wire"
)

// setKindOf maps a storage Kind to the store.SetKind the engine
// understands.
func setKindOf(k wire.Kind) store.SetKind {
	switch k {
	case wire.KindAdd:
		return store.SetAdd
	case wire.KindReplace:
		return store.SetReplace
	case wire.KindAppend:
		return store.SetAppend
	case wire.KindPrepend:
		return store.SetPrepend
	case wire.KindCas:
		return store.SetCas
	default:
		return store.SetPlain
	}
}

// copyBytes returns an owned copy of b. Command and payload slices
// returned by wire.ParseCommand/ReadDataPhase alias the connection's
// receive buffer, which the connection goroutine reuses and overwrites
// on the very next read; anything handed to a shard (which may still
// be holding it long after this read returns) must be copied first.
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// dispatchStorage builds the single WorkItem a set/add/replace/append/
// prepend/cas command produces (spec.md §4.4).
func (h *Handler) dispatchStorage(cmd *wire.Command, payload []byte, now time.Time) *store.Request {
	req := store.NewRequest(store.WorkSet, 1)
	item := &store.WorkItem{
		Work:      store.WorkSet,
		SetOp:     setKindOf(cmd.Kind),
		Key:       copyBytes(cmd.Key),
		Value:     copyBytes(payload),
		Flags:     cmd.Flags,
		Expiry:    store.NormalizeExptime(cmd.Exptime, now),
		HasCas:    cmd.HasCas,
		CasUnique: cmd.CasUnique,
	}
	req.Attach(item)
	h.submit(req, item)
	return req
}

// dispatchArith builds the single WorkItem an incr/decr command
// produces. Unlike the source this is distilled from, no synthetic
// data phase is involved: the delta is already a parsed token, and the
// shard performs the read-modify-write itself (SPEC_FULL.md §4).
func (h *Handler) dispatchArith(cmd *wire.Command) *store.Request {
	req := store.NewRequest(store.WorkArith, 1)
	item := &store.WorkItem{
		Work:  store.WorkArith,
		Key:   copyBytes(cmd.Key),
		Delta: cmd.Delta,
		Incr:  cmd.Kind == wire.KindIncr,
	}
	req.Attach(item)
	h.submit(req, item)
	return req
}

// dispatchDelete builds the single WorkItem a delete command produces.
func (h *Handler) dispatchDelete(cmd *wire.Command) *store.Request {
	req := store.NewRequest(store.WorkDelete, 1)
	item := &store.WorkItem{Work: store.WorkDelete, Key: copyBytes(cmd.Key)}
	req.Attach(item)
	h.submit(req, item)
	return req
}

// dispatchGet builds one WorkItem per requested key, all attached to a
// single Request, in wire order (spec.md §4.4, §4.5 "get family"
// ordering rule).
func (h *Handler) dispatchGet(cmd *wire.Command) *store.Request {
	kind := store.WorkGet
	req := store.NewRequest(kind, len(cmd.Keys))
	for _, k := range cmd.Keys {
		item := &store.WorkItem{Work: store.WorkGet, Key: copyBytes(k)}
		req.Attach(item)
		h.submit(req, item)
	}
	return req
}

// submit hands item to the engine, blocking for back-pressure per
// spec.md §4.4 step 3 / §5. It passes context.Background(), so
// submission blocks for as long as the shard's queue is saturated and
// is not cancelled by connection teardown. Engine.Close closes the
// shard inboxes, and a send on a closed inbox panics; cmd/shardcached
// closes the engine only after Server.Run has waited for every
// connection.
func (h *Handler) submit(req *store.Request, item *store.WorkItem) {
	if err := h.engine.Submit(context.Background(), item); err != nil {
		// Submit failed because its context is done: synthesize a
		// completion so callers (including drain goroutines) never
		// block forever.
		item.Found = false
		req.Completions <- item
	}
}
