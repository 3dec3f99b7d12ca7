package handler

import (
	"time"

	"github.com/shardcached/shardcached/internal/store"
	"github.com/shardcached/shardcached/internal/wire"
)

// Metrics is the narrow slice of internal/stats the handler reports
// command throughput against, kept local for the same reason
// internal/store declares its own Metrics: no import cycle, no
// dependency on stats' concrete shape.
type Metrics interface {
	CommandServed(kind string)
	ObserveDeleteOutcome(hit bool)
	ObserveArithOutcome(incr, hit bool)
	ObserveCasOutcome(stored, existsConflict bool)
}

type noopMetrics struct{}

func (noopMetrics) CommandServed(string)           {}
func (noopMetrics) ObserveDeleteOutcome(bool)      {}
func (noopMetrics) ObserveArithOutcome(bool, bool) {}
func (noopMetrics) ObserveCasOutcome(bool, bool)   {}

// Version is the string the "version" command reports; assigned by
// cmd/shardcached at startup (spec.md §6's control-command surface).
var Version = "0.0.0-dev"

// StatsRenderer produces the body of a "stats" reply. internal/stats
// implements this; handler depends only on the method, not the type,
// to keep the same no-cycle shape as Metrics.
type StatsRenderer interface {
	RenderStats() []byte
}

type noopStatsRenderer struct{}

func (noopStatsRenderer) RenderStats() []byte { return []byte("END\r\n") }

// Handler is the per-connection protocol state machine. Exactly one
// exists per accepted connection and only that connection's goroutine
// ever calls into it — the single-owner discipline spec.md §5
// requires of HandlerState.
type Handler struct {
	engine  *store.Engine
	maxOps  int
	maxResp int
	maxVal  int
	metrics Metrics
	stats   StatsRenderer

	state State
}

// Config bundles the knobs a Handler needs beyond the storage engine.
type Config struct {
	MaxOpsPerRequest int // get/gets key cap; 0 disables the cap
	MaxResponseBytes int // 0 or less selects DefaultMaxResponseBytes
	MaxValueBytes    int // 0 or less selects DefaultMaxValueBytes
	Metrics          Metrics
	Stats            StatsRenderer
}

// DefaultMaxValueBytes mirrors memcached's default item_size_max.
const DefaultMaxValueBytes = 1 << 20

// New builds a Handler bound to engine.
func New(engine *store.Engine, cfg Config) *Handler {
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if cfg.MaxValueBytes <= 0 {
		cfg.MaxValueBytes = DefaultMaxValueBytes
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Stats == nil {
		cfg.Stats = noopStatsRenderer{}
	}
	return &Handler{
		engine:  engine,
		maxOps:  cfg.MaxOpsPerRequest,
		maxResp: cfg.MaxResponseBytes,
		maxVal:  cfg.MaxValueBytes,
		metrics: cfg.Metrics,
		stats:   cfg.Stats,
	}
}

// Busy reports whether a Request is outstanding on this connection.
func (h *Handler) Busy() bool {
	return h.state.Busy()
}

// Completions exposes the outstanding Request's channel so a
// connection's select loop can multiplex waiting on it against socket
// I/O and shutdown signals. Callers drive NCompleted/Ready via Advance.
func (h *Handler) Completions() <-chan *store.WorkItem {
	if h.state.cur == nil {
		return nil
	}
	return h.state.cur.req.Completions
}

// Advance records one arrived completion and, once the Request is
// fully satisfied, renders its response and clears the suspended
// state. It returns (reply, true) when the Request is now finished.
func (h *Handler) Advance(item *store.WorkItem) ([]byte, bool) {
	p := h.state.cur
	p.req.NCompleted++
	if !p.req.Ready() {
		return nil, false
	}
	h.recordOutcome(p)
	out := buildResponse(p, h.maxResp)
	h.state.cur = nil
	return out, true
}

// recordOutcome reports the per-command hit/miss/conflict outcome of a
// just-completed Request, once its single WorkItem's result fields are
// safe to read.
func (h *Handler) recordOutcome(p *pending) {
	switch p.cmd.Kind {
	case wire.KindDelete:
		h.metrics.ObserveDeleteOutcome(p.req.Items[0].Found)
	case wire.KindIncr, wire.KindDecr:
		h.metrics.ObserveArithOutcome(p.cmd.Kind == wire.KindIncr, p.req.Items[0].Found)
	case wire.KindCas:
		it := p.req.Items[0]
		h.metrics.ObserveCasOutcome(it.StoredOK, it.CASExists)
	}
}

// Abandon detaches the outstanding Request from this connection and
// drains its completions in the background, so a torn-down connection
// never leaks the WorkItems a shard is still working on (spec.md §5's
// abandonment-safety invariant).
func (h *Handler) Abandon() {
	p := h.state.cur
	if p == nil {
		return
	}
	h.state.cur = nil
	req := p.req
	go func() {
		for !req.Ready() {
			<-req.Completions
			req.NCompleted++
		}
	}()
}

// Feed is the incremental parse loop described in spec.md §9's design
// note: it re-enters parsing against the same receive buffer until it
// either runs out of bytes, must suspend on an outstanding Request, or
// sees quit/shutdown. It appends every synchronous reply it produces
// to sbuf and returns the number of leading bytes of buf it consumed.
//
// Feed never waits on a completion: a Complex verdict means the caller
// must stop feeding this connection's buffer and instead wait on
// Completions/Advance before resuming. The only place it can block is
// submit, while the owning shard's queue is full (back-pressure).
func (h *Handler) Feed(buf []byte, sbuf *[]byte) (consumed int, verdict wire.Verdict) {
	total := 0
	for {
		n, v := h.step(buf[total:], sbuf)
		total += n

		switch v {
		case wire.VerdictPartial:
			if n == 0 {
				return total, wire.VerdictPartial
			}
			continue
		case wire.VerdictMalformed, wire.VerdictParallelizable:
			continue
		default: // Complex, Quit, Shutdown
			return total, v
		}
	}
}

func (h *Handler) step(buf []byte, sbuf *[]byte) (int, wire.Verdict) {
	if h.state.loadingData {
		return h.stepData(buf, sbuf)
	}
	return h.stepCommand(buf, sbuf)
}

func (h *Handler) stepCommand(buf []byte, sbuf *[]byte) (int, wire.Verdict) {
	line, malformed, ok := wire.FindLine(buf)
	if !ok {
		return 0, wire.VerdictPartial
	}
	if malformed {
		stage(sbuf, wire.ErrLine.Reply)
		return len(line), wire.VerdictMalformed
	}

	cmd, perr := wire.ParseCommand(line, h.maxOps)
	if perr != nil {
		stage(sbuf, perr.Reply)
		return len(line), wire.VerdictMalformed
	}

	if cmd.Kind.IsStorage() {
		// cmd.Key aliases buf (it is a subslice of the still-buffered
		// line). stepData runs on a later Feed call, by which point
		// connio.Conn.slide/append may have overwritten this same
		// backing array with the data block. Take ownership now, while
		// the header line is still intact.
		cmd.Key = copyBytes(cmd.Key)
		h.state.loadingData = true
		h.state.dataCmd = cmd
		if h.maxVal > 0 && cmd.Bytes > h.maxVal {
			h.state.dataReject = []byte("SERVER_ERROR object too large for cache\r\n")
		} else {
			h.state.dataReject = nil
		}
		return len(line), wire.VerdictPartial
	}

	h.metrics.CommandServed(cmd.Kind.String())

	switch cmd.Kind {
	case wire.KindQuit:
		return len(buf), wire.VerdictQuit
	case wire.KindShutdown:
		return len(buf), wire.VerdictShutdown
	case wire.KindStats:
		stage(sbuf, h.stats.RenderStats())
		return len(line), wire.VerdictMalformed
	case wire.KindVersion:
		stage(sbuf, []byte("VERSION "+Version+"\r\n"))
		return len(line), wire.VerdictMalformed
	case wire.KindGet, wire.KindGets:
		req := h.dispatchGet(cmd)
		h.state.cur = &pending{req: req, cmd: cmd}
		return len(line), wire.VerdictComplex
	case wire.KindDelete:
		req := h.dispatchDelete(cmd)
		return h.finishDispatch(cmd, req, len(line))
	case wire.KindIncr, wire.KindDecr:
		req := h.dispatchArith(cmd)
		return h.finishDispatch(cmd, req, len(line))
	default:
		stage(sbuf, wire.ErrLine.Reply)
		return len(line), wire.VerdictMalformed
	}
}

func (h *Handler) stepData(buf []byte, sbuf *[]byte) (int, wire.Verdict) {
	cmd := h.state.dataCmd
	payload, ok, perr := wire.ReadDataPhase(buf, cmd.Bytes)
	if !ok {
		return 0, wire.VerdictPartial
	}

	reject := h.state.dataReject
	h.state.loadingData = false
	h.state.dataCmd = nil
	h.state.dataReject = nil
	consumed := cmd.Bytes + 2

	if perr != nil {
		stage(sbuf, perr.Reply)
		return consumed, wire.VerdictMalformed
	}
	if reject != nil {
		if !cmd.NoReply {
			stage(sbuf, reject)
		}
		return consumed, wire.VerdictMalformed
	}

	h.metrics.CommandServed(cmd.Kind.String())
	req := h.dispatchStorage(cmd, payload, time.Now())
	return h.finishDispatch(cmd, req, consumed)
}

// finishDispatch applies the noreply/Complex split common to delete,
// incr/decr and storage commands: noreply requests are detached and
// drained in the background so parsing never waits on them; everything
// else suspends the connection until the response builder runs.
func (h *Handler) finishDispatch(cmd *wire.Command, req *store.Request, n int) (int, wire.Verdict) {
	if cmd.NoReply {
		p := &pending{req: req, cmd: cmd}
		go func() {
			for !req.Ready() {
				<-req.Completions
				req.NCompleted++
			}
			h.recordOutcome(p)
		}()
		return n, wire.VerdictParallelizable
	}
	h.state.cur = &pending{req: req, cmd: cmd}
	return n, wire.VerdictComplex
}

// stage appends reply bytes to *sbuf.
func stage(sbuf *[]byte, reply []byte) {
	*sbuf = append(*sbuf, reply...)
}
