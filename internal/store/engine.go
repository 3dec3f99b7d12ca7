// Package store is the sharded, in-memory key/value engine that
// spec.md treats as an external collaborator ("the B-tree storage
// engine"). It owns one goroutine per shard, each exclusively mutating
// its own partition of the key space, and exposes the WorkItem/Request
// fan-out/fan-in contract the handler package dispatches against.
package store

import (
	"context"
	"time"

	"github.com/shardcached/shardcached/internal/hashing"
)

// Engine is the sharded storage engine: N shard goroutines, each with
// its own inbound work queue.
type Engine struct {
	shards  []*shard
	hashFn  hashing.Func
	metrics Metrics
}

// Config bounds the engine's resource usage.
type Config struct {
	NumShards  int
	QueueDepth int           // per-shard inbound channel capacity
	SweepEvery time.Duration // 0 disables the background expiry sweep
	HashFn     hashing.Func
}

// New starts the engine's shard goroutines and returns once they are
// running. Call Close to stop them.
func New(cfg Config, metrics Metrics) *Engine {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	if cfg.HashFn == nil {
		cfg.HashFn = hashing.CRC32{}
	}

	e := &Engine{
		shards:  make([]*shard, cfg.NumShards),
		hashFn:  cfg.HashFn,
		metrics: metrics,
	}

	for i := range e.shards {
		e.shards[i] = newShard(i, cfg.QueueDepth, cfg.SweepEvery, metrics)
		go e.shards[i].run()
	}

	return e
}

// NumShards reports the shard count the engine was configured with.
func (e *Engine) NumShards() int {
	return len(e.shards)
}

// ShardFor returns the shard index that owns key, using the engine's
// configured hash function (spec.md §4.4 step 1).
func (e *Engine) ShardFor(key []byte) int {
	return hashing.Shard(e.hashFn, key, len(e.shards))
}

// Submit hands item to the shard that owns its key. It blocks if that
// shard's inbound queue is full — the back-pressure spec.md §4.4 step 3
// and §5 describe — and returns ctx.Err() if ctx is cancelled first.
func (e *Engine) Submit(ctx context.Context, item *WorkItem) error {
	idx := e.ShardFor(item.Key)

	select {
	case e.shards[idx].inbox <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueDepth reports the current backlog of shard i, for metrics and
// diagnostics.
func (e *Engine) QueueDepth(i int) int {
	return len(e.shards[i].inbox)
}

// Close stops every shard goroutine, waiting for each to drain and
// exit.
func (e *Engine) Close() {
	for _, s := range e.shards {
		s.stop()
	}
}
