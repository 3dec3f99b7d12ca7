package stats

import "github.com/prometheus/client_golang/prometheus"

// promCollectors mirrors Stats' counters as Prometheus GaugeFuncs,
// scraped at /metrics (spec.md §6). Kept as a distinct type so New can
// skip registration entirely when reg is nil (e.g. unit tests).
type promCollectors struct {
	collectors []prometheus.Collector
}

func newPromCollectors(reg prometheus.Registerer, s *Stats) *promCollectors {
	gauge := func(name, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "shardcached",
			Name:      name,
			Help:      help,
		}, fn)
	}

	pc := &promCollectors{
		collectors: []prometheus.Collector{
			gauge("curr_connections", "Open client connections.", func() float64 { return float64(s.currConnections.Load()) }),
			gauge("total_connections", "Connections accepted since start.", func() float64 { return float64(s.totalConnections.Load()) }),
			gauge("curr_items", "Items currently stored.", func() float64 { return float64(s.currItems.Load()) }),
			gauge("cmd_get_total", "get/gets commands served.", func() float64 { return float64(s.cmdGet.Load()) }),
			gauge("cmd_set_total", "Storage commands served.", func() float64 { return float64(s.cmdSet.Load()) }),
			gauge("cmd_delete_total", "delete commands served.", func() float64 { return float64(s.cmdDelete.Load()) }),
			gauge("get_hits_total", "get/gets key hits.", func() float64 { return float64(s.getHits.Load()) }),
			gauge("get_misses_total", "get/gets key misses.", func() float64 { return float64(s.getMisses.Load()) }),
			gauge("get_expired_total", "get/gets keys found but expired.", func() float64 { return float64(s.getExpired.Load()) }),
			gauge("evictions_total", "Items evicted by the background sweep.", func() float64 { return float64(s.evictions.Load()) }),
			gauge("cas_badval_total", "cas attempts rejected for a stale token.", func() float64 { return float64(s.casBadval.Load()) }),
		},
	}

	for _, c := range pc.collectors {
		reg.MustRegister(c)
	}
	return pc
}
