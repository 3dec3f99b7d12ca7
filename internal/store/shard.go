package store

import (
	"strconv"
	"time"
)

// Metrics is the subset of internal/stats that the storage engine needs
// to report against; kept as a narrow interface here so internal/store
// does not import internal/stats (avoids a cycle and keeps the shard
// loop is a self-contained, stand-in engine described in spec.md §4.4
// as an external collaborator of the handler).
type Metrics interface {
	ObserveHit()
	ObserveMiss()
	ObserveExpired()
	ObserveEviction()
	ItemCountDelta(delta int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveHit()          {}
func (noopMetrics) ObserveMiss()         {}
func (noopMetrics) ObserveExpired()      {}
func (noopMetrics) ObserveEviction()     {}
func (noopMetrics) ItemCountDelta(int64) {}

// shard is the single-goroutine-owned partition of the key space that
// spec.md §5 calls "one cooperative single-threaded event loop per
// CPU." Nothing outside shard.run ever touches items; work arrives
// exclusively over inbox.
type shard struct {
	id      int
	items   map[string]*Item
	inbox   chan *WorkItem
	metrics Metrics

	sweepEvery time.Duration
	done       chan struct{}
}

func newShard(id int, queueDepth int, sweepEvery time.Duration, metrics Metrics) *shard {
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &shard{
		id:         id,
		items:      make(map[string]*Item),
		inbox:      make(chan *WorkItem, queueDepth),
		metrics:    metrics,
		sweepEvery: sweepEvery,
		done:       make(chan struct{}),
	}
}

// run is the shard's event loop. It exits when inbox is closed.
func (s *shard) run() {
	var ticker *time.Ticker
	var tickC <-chan time.Time
	if s.sweepEvery > 0 {
		ticker = time.NewTicker(s.sweepEvery)
		tickC = ticker.C
		defer ticker.Stop()
	}

	for {
		select {
		case item, ok := <-s.inbox:
			if !ok {
				close(s.done)
				return
			}
			s.execute(item)
			item.req.Completions <- item
		case <-tickC:
			s.sweepExpired()
		}
	}
}

func (s *shard) execute(item *WorkItem) {
	now := time.Now()

	switch item.Work {
	case WorkGet:
		s.executeGet(item, now)
	case WorkSet:
		s.executeSet(item, now)
	case WorkDelete:
		s.executeDelete(item, now)
	case WorkArith:
		s.executeArith(item, now)
	}
}

func (s *shard) lookup(key string, now time.Time) *Item {
	it, found := s.items[key]
	if !found {
		return nil
	}
	if it.expired(now) {
		delete(s.items, key)
		s.metrics.ItemCountDelta(-1)
		s.metrics.ObserveExpired()
		return nil
	}
	return it
}

func (s *shard) executeGet(item *WorkItem, now time.Time) {
	it := s.lookup(string(item.Key), now)
	if it == nil {
		item.Found = false
		s.metrics.ObserveMiss()
		return
	}

	item.Found = true
	item.Result = Item{Value: it.Value, Flags: it.Flags, CAS: it.CAS}
	s.metrics.ObserveHit()
}

func (s *shard) executeDelete(item *WorkItem, now time.Time) {
	it := s.lookup(string(item.Key), now)
	if it == nil {
		item.Found = false
		return
	}

	delete(s.items, string(item.Key))
	s.metrics.ItemCountDelta(-1)
	item.Found = true
}

func (s *shard) executeSet(item *WorkItem, now time.Time) {
	key := string(item.Key)
	existing := s.lookup(key, now)

	switch item.SetOp {
	case SetAdd:
		if existing != nil {
			item.StoredOK = false
			return
		}
	case SetReplace:
		if existing == nil {
			item.StoredOK = false
			return
		}
	case SetAppend, SetPrepend:
		if existing == nil {
			item.StoredOK = false
			return
		}
	case SetCas:
		if existing == nil {
			item.Found = false
			item.StoredOK = false
			return
		}
		if existing.CAS != item.CasUnique {
			item.Found = true
			item.CASExists = true
			item.StoredOK = false
			return
		}
	}

	var value []byte
	flags := item.Flags
	switch item.SetOp {
	case SetAppend:
		value = append(append([]byte{}, existing.Value...), item.Value...)
		flags = existing.Flags
	case SetPrepend:
		value = append(append([]byte{}, item.Value...), existing.Value...)
		flags = existing.Flags
	default:
		value = item.Value
	}

	if existing == nil {
		s.metrics.ItemCountDelta(1)
	}

	s.items[key] = &Item{
		Value:  value,
		Flags:  flags,
		Expiry: item.Expiry,
		CAS:    nextCAS(),
	}
	item.StoredOK = true
}

func (s *shard) executeArith(item *WorkItem, now time.Time) {
	key := string(item.Key)
	existing := s.lookup(key, now)
	if existing == nil {
		item.Found = false
		return
	}

	cur, err := strconv.ParseUint(string(existing.Value), 10, 64)
	if err != nil {
		// Non-numeric stored value: real memcached replies
		// CLIENT_ERROR here; the response builder maps this back.
		item.Found = true
		item.NonNumeric = true
		return
	}

	var next uint64
	if item.Incr {
		next = cur + item.Delta
	} else {
		if item.Delta > cur {
			next = 0
		} else {
			next = cur - item.Delta
		}
	}

	newValue := []byte(strconv.FormatUint(next, 10))
	s.items[key] = &Item{
		Value:  newValue,
		Flags:  existing.Flags,
		Expiry: existing.Expiry,
		CAS:    nextCAS(),
	}

	item.Found = true
	item.NewValue = newValue
}

func (s *shard) sweepExpired() {
	now := time.Now()
	for k, it := range s.items {
		if it.expired(now) {
			delete(s.items, k)
			s.metrics.ItemCountDelta(-1)
			s.metrics.ObserveEviction()
		}
	}
}

func (s *shard) stop() {
	close(s.inbox)
	<-s.done
}
