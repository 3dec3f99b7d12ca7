// Package stats collects and renders the server's runtime counters: the
// classic memcached "stats" command reply, a JSON snapshot for the
// admin HTTP surface, and Prometheus metrics for scraping. The field
// set mirrors (a relevant subset of) the Statistic struct this repo's
// ancestor client decodes stat lines into.
package stats

import (
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is the process-wide counter set. All fields are accessed only
// through atomic operations or the Prometheus collectors below; there
// is no lock.
type Stats struct {
	pid     int64
	started time.Time
	version string

	currConnections  atomic.Int64
	totalConnections atomic.Int64

	cmdGet    atomic.Int64
	cmdSet    atomic.Int64
	cmdDelete atomic.Int64

	getHits    atomic.Int64
	getMisses  atomic.Int64
	getExpired atomic.Int64

	deleteHits   atomic.Int64
	deleteMisses atomic.Int64

	incrHits   atomic.Int64
	incrMisses atomic.Int64
	decrHits   atomic.Int64
	decrMisses atomic.Int64

	casHits   atomic.Int64
	casMisses atomic.Int64
	casBadval atomic.Int64
	evictions atomic.Int64
	currItems atomic.Int64

	prom *promCollectors
}

// New builds a Stats bound to the given server version string. Pass a
// non-nil prometheus.Registerer to also expose these counters as
// Prometheus metrics (spec.md §6's /metrics surface); pass nil to skip
// Prometheus registration entirely (e.g. in tests).
func New(version string, reg prometheus.Registerer) *Stats {
	s := &Stats{
		pid:     int64(os.Getpid()),
		started: time.Now(),
		version: version,
	}
	if reg != nil {
		s.prom = newPromCollectors(reg, s)
	}
	return s
}

// --- internal/store.Metrics ---

func (s *Stats) ObserveHit()            { s.getHits.Add(1) }
func (s *Stats) ObserveMiss()           { s.getMisses.Add(1) }
func (s *Stats) ObserveExpired()        { s.getExpired.Add(1) }
func (s *Stats) ObserveEviction()       { s.evictions.Add(1) }
func (s *Stats) ItemCountDelta(d int64) { s.currItems.Add(d) }

// --- internal/handler.Metrics ---

// CommandServed records one successfully dispatched command by kind,
// matching the cmd_get/cmd_set/cmd_delete family the "stats" command
// reports.
func (s *Stats) CommandServed(kind string) {
	switch kind {
	case "get", "gets":
		s.cmdGet.Add(1)
	case "set", "add", "replace", "append", "prepend", "cas":
		s.cmdSet.Add(1)
	case "delete":
		s.cmdDelete.Add(1)
	}
}

// ObserveDeleteOutcome records a delete's hit/miss outcome; call alongside
// CommandServed("delete").
func (s *Stats) ObserveDeleteOutcome(hit bool) {
	if hit {
		s.deleteHits.Add(1)
	} else {
		s.deleteMisses.Add(1)
	}
}

// ObserveArithOutcome records an incr/decr outcome.
func (s *Stats) ObserveArithOutcome(incr, hit bool) {
	switch {
	case incr && hit:
		s.incrHits.Add(1)
	case incr && !hit:
		s.incrMisses.Add(1)
	case !incr && hit:
		s.decrHits.Add(1)
	default:
		s.decrMisses.Add(1)
	}
}

// ObserveCasOutcome records a cas outcome: STORED counts as a hit,
// EXISTS counts as badval, and a missing key counts as a miss.
func (s *Stats) ObserveCasOutcome(stored, existsConflict bool) {
	switch {
	case stored:
		s.casHits.Add(1)
	case existsConflict:
		s.casBadval.Add(1)
	default:
		s.casMisses.Add(1)
	}
}

// ConnectionOpened/ConnectionClosed track curr_connections/total_connections
// for the server's accept loop.
func (s *Stats) ConnectionOpened() {
	s.currConnections.Add(1)
	s.totalConnections.Add(1)
}

func (s *Stats) ConnectionClosed() {
	s.currConnections.Add(-1)
}

// --- rendering ---

// RenderStats implements internal/handler.StatsRenderer: the classic
// "STAT <name> <value>\r\n" ... "END\r\n" reply.
func (s *Stats) RenderStats() []byte {
	lines := s.lines()
	out := make([]byte, 0, 32*len(lines))
	for _, l := range lines {
		out = append(out, "STAT "...)
		out = append(out, l[0]...)
		out = append(out, ' ')
		out = append(out, l[1]...)
		out = append(out, '\r', '\n')
	}
	out = append(out, "END\r\n"...)
	return out
}

// Snapshot is the JSON-friendly view served at /debug/stats.
type Snapshot struct {
	PID              int64  `json:"pid"`
	Uptime           int64  `json:"uptime"`
	Version          string `json:"version"`
	CurrConnections  int64  `json:"curr_connections"`
	TotalConnections int64  `json:"total_connections"`
	CurrItems        int64  `json:"curr_items"`
	CmdGet           int64  `json:"cmd_get"`
	CmdSet           int64  `json:"cmd_set"`
	CmdDelete        int64  `json:"cmd_delete"`
	GetHits          int64  `json:"get_hits"`
	GetMisses        int64  `json:"get_misses"`
	GetExpired       int64  `json:"get_expired"`
	DeleteHits       int64  `json:"delete_hits"`
	DeleteMisses     int64  `json:"delete_misses"`
	IncrHits         int64  `json:"incr_hits"`
	IncrMisses       int64  `json:"incr_misses"`
	DecrHits         int64  `json:"decr_hits"`
	DecrMisses       int64  `json:"decr_misses"`
	CasHits          int64  `json:"cas_hits"`
	CasMisses        int64  `json:"cas_misses"`
	CasBadval        int64  `json:"cas_badval"`
	Evictions        int64  `json:"evictions"`
}

// Snapshot returns the current counters for JSON serialization.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		PID:              s.pid,
		Uptime:           int64(time.Since(s.started).Seconds()),
		Version:          s.version,
		CurrConnections:  s.currConnections.Load(),
		TotalConnections: s.totalConnections.Load(),
		CurrItems:        s.currItems.Load(),
		CmdGet:           s.cmdGet.Load(),
		CmdSet:           s.cmdSet.Load(),
		CmdDelete:        s.cmdDelete.Load(),
		GetHits:          s.getHits.Load(),
		GetMisses:        s.getMisses.Load(),
		GetExpired:       s.getExpired.Load(),
		DeleteHits:       s.deleteHits.Load(),
		DeleteMisses:     s.deleteMisses.Load(),
		IncrHits:         s.incrHits.Load(),
		IncrMisses:       s.incrMisses.Load(),
		DecrHits:         s.decrHits.Load(),
		DecrMisses:       s.decrMisses.Load(),
		CasHits:          s.casHits.Load(),
		CasMisses:        s.casMisses.Load(),
		CasBadval:        s.casBadval.Load(),
		Evictions:        s.evictions.Load(),
	}
}

func (s *Stats) lines() [][2]string {
	snap := s.Snapshot()
	i64 := strconv.FormatInt
	return [][2]string{
		{"pid", i64(snap.PID, 10)},
		{"uptime", i64(snap.Uptime, 10)},
		{"time", i64(time.Now().Unix(), 10)},
		{"version", snap.Version},
		{"curr_connections", i64(snap.CurrConnections, 10)},
		{"total_connections", i64(snap.TotalConnections, 10)},
		{"curr_items", i64(snap.CurrItems, 10)},
		{"cmd_get", i64(snap.CmdGet, 10)},
		{"cmd_set", i64(snap.CmdSet, 10)},
		{"cmd_delete", i64(snap.CmdDelete, 10)},
		{"get_hits", i64(snap.GetHits, 10)},
		{"get_misses", i64(snap.GetMisses, 10)},
		{"get_expired", i64(snap.GetExpired, 10)},
		{"delete_hits", i64(snap.DeleteHits, 10)},
		{"delete_misses", i64(snap.DeleteMisses, 10)},
		{"incr_hits", i64(snap.IncrHits, 10)},
		{"incr_misses", i64(snap.IncrMisses, 10)},
		{"decr_hits", i64(snap.DecrHits, 10)},
		{"decr_misses", i64(snap.DecrMisses, 10)},
		{"cas_hits", i64(snap.CasHits, 10)},
		{"cas_misses", i64(snap.CasMisses, 10)},
		{"cas_badval", i64(snap.CasBadval, 10)},
		{"evictions", i64(snap.Evictions, 10)},
	}
}
