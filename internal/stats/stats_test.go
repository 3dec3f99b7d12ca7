package stats

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_RenderStats(t *testing.T) {
	s := New("test", nil)
	s.CommandServed("get")
	s.ObserveHit()
	s.ObserveMiss()

	out := string(s.RenderStats())
	assert.True(t, strings.HasPrefix(out, "STAT pid "))
	assert.Contains(t, out, "STAT cmd_get 1\r\n")
	assert.Contains(t, out, "STAT get_hits 1\r\n")
	assert.Contains(t, out, "STAT get_misses 1\r\n")
	assert.True(t, strings.HasSuffix(out, "END\r\n"))
}

func TestStats_Snapshot(t *testing.T) {
	s := New("v1", nil)
	s.ItemCountDelta(3)
	s.ObserveCasOutcome(true, false)
	s.ObserveCasOutcome(false, true)
	s.ObserveDeleteOutcome(true)
	s.ObserveArithOutcome(true, false)

	snap := s.Snapshot()
	assert.Equal(t, int64(3), snap.CurrItems)
	assert.Equal(t, int64(1), snap.CasHits)
	assert.Equal(t, int64(1), snap.CasBadval)
	assert.Equal(t, int64(1), snap.DeleteHits)
	assert.Equal(t, int64(1), snap.IncrMisses)
	assert.Equal(t, "v1", snap.Version)
}
