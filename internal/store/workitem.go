package store

import "time"

// WorkKind tags the four shapes of work a shard can execute, mirroring
// the WorkItem tagged variant in spec.md §3 (BtreeGet | BtreeSet{kind}
// | BtreeDelete), with incr/decr split out as WorkArith.
type WorkKind uint8

const (
	WorkGet WorkKind = iota
	WorkSet
	WorkDelete
	WorkArith
)

// SetKind distinguishes the storage sub-operations that share the
// WorkSet shape: set/add/replace/append/prepend/cas.
type SetKind uint8

const (
	SetPlain SetKind = iota
	SetAdd
	SetReplace
	SetAppend
	SetPrepend
	SetCas
)

// WorkItem is a single storage operation dispatched to the shard that
// owns Key. It is created by the dispatcher, handed to exactly one
// shard, mutated only by that shard (the result fields below), and
// consumed by the response builder after completion. It carries a
// non-owning back-reference to the Request it belongs to so the shard
// can report completion without owning the Request's lifetime (design
// note in spec.md §9).
type WorkItem struct {
	Work   WorkKind
	SetOp  SetKind
	Key    []byte
	Value  []byte
	Flags  uint32
	Expiry time.Time

	HasCas    bool
	CasUnique uint64

	// Delta and Incr are meaningful only for WorkArith: Incr selects
	// increment (true) vs decrement (false).
	Delta uint64
	Incr  bool

	req *Request

	// Result fields, written exactly once by the owning shard:
	Found      bool
	StoredOK   bool
	CASExists  bool // cas_unique didn't match a present item -> EXISTS
	NonNumeric bool // WorkArith only: stored value wasn't a decimal counter
	Result     Item // for Get: the found item; for arithmetic the new ASCII counter is in NewValue instead
	NewValue   []byte
}

// Request fan-in-correlates 1..N WorkItems spawned from one client
// command (spec.md §3). It is created by the dispatcher, logically
// co-owned while WorkItems reference it, and destroyed by the response
// builder once ncompleted == nstarted.
type Request struct {
	Kind        WorkKind // all items in a Request share this
	Items       []*WorkItem
	NStarted    int
	NCompleted  int
	Completions chan *WorkItem
}

// NewRequest allocates a Request sized for up to cap WorkItems. Only
// one goroutine at a time ever reads Completions or mutates
// NStarted/NCompleted: the connection goroutine that owns this Request,
// or the drain goroutine it hands a noreply or abandoned Request to —
// the single-writer discipline spec.md §5 requires.
func NewRequest(kind WorkKind, cap int) *Request {
	return &Request{
		Kind:        kind,
		Items:       make([]*WorkItem, 0, cap),
		Completions: make(chan *WorkItem, cap),
	}
}

// Attach binds item to req and increments NStarted. Call this before
// submitting item to a shard.
func (req *Request) Attach(item *WorkItem) {
	item.req = req
	req.Items = append(req.Items, item)
	req.NStarted++
}

// Ready reports whether every WorkItem started on this Request has
// completed.
func (req *Request) Ready() bool {
	return req.NCompleted >= req.NStarted
}
