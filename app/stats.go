package app

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v2"
)

// Stats counts the work of the engine. Counters are written by the worker
// and read from anywhere; all but Restarts start over when the worker is
// reinitialized.
type Stats struct {
	FramesReceived    *xsync.Counter
	EventsForwarded   *xsync.Counter
	EventsCached      *xsync.Counter
	DuplicatesDropped *xsync.Counter
	EventsRejected    *xsync.Counter
	ReqsSent          *xsync.Counter
	ClosesSent        *xsync.Counter
	Published         *xsync.Counter
	Restarts          *xsync.Counter

	subscriptions     atomic.Int64
	relays            atomic.Int64
	reconcileSessions atomic.Int64
}

func NewStats() *Stats {
	return &Stats{
		FramesReceived:    xsync.NewCounter(),
		EventsForwarded:   xsync.NewCounter(),
		EventsCached:      xsync.NewCounter(),
		DuplicatesDropped: xsync.NewCounter(),
		EventsRejected:    xsync.NewCounter(),
		ReqsSent:          xsync.NewCounter(),
		ClosesSent:        xsync.NewCounter(),
		Published:         xsync.NewCounter(),
		Restarts:          xsync.NewCounter(),
	}
}

// reset clears everything but the restart count.
func (s *Stats) reset() {
	for _, c := range []*xsync.Counter{s.FramesReceived, s.EventsForwarded,
		s.EventsCached, s.DuplicatesDropped, s.EventsRejected, s.ReqsSent,
		s.ClosesSent, s.Published} {
		c.Reset()
	}
	s.setGauges(0, 0, 0)
}

func (s *Stats) setGauges(subscriptions, relays, sessions int) {
	s.subscriptions.Store(int64(subscriptions))
	s.relays.Store(int64(relays))
	s.reconcileSessions.Store(int64(sessions))
}

// StatsSnapshot is the form of Stats sent to the front end.
type StatsSnapshot struct {
	FramesReceived    int64 `json:"framesReceived"`
	EventsForwarded   int64 `json:"eventsForwarded"`
	EventsCached      int64 `json:"eventsCached"`
	DuplicatesDropped int64 `json:"duplicatesDropped"`
	EventsRejected    int64 `json:"eventsRejected"`
	ReqsSent          int64 `json:"reqsSent"`
	ClosesSent        int64 `json:"closesSent"`
	Published         int64 `json:"published"`
	Restarts          int64 `json:"restarts"`
	Subscriptions     int64 `json:"subscriptions"`
	Relays            int64 `json:"relays"`
	ReconcileSessions int64 `json:"reconcileSessions"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesReceived:    s.FramesReceived.Value(),
		EventsForwarded:   s.EventsForwarded.Value(),
		EventsCached:      s.EventsCached.Value(),
		DuplicatesDropped: s.DuplicatesDropped.Value(),
		EventsRejected:    s.EventsRejected.Value(),
		ReqsSent:          s.ReqsSent.Value(),
		ClosesSent:        s.ClosesSent.Value(),
		Published:         s.Published.Value(),
		Restarts:          s.Restarts.Value(),
		Subscriptions:     s.subscriptions.Load(),
		Relays:            s.relays.Load(),
		ReconcileSessions: s.reconcileSessions.Load(),
	}
}

const namespace = "bridgr"

func counterFunc(name, help string, c *xsync.Counter) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(c.Value()) })
}

func gaugeFunc(name, help string, g *atomic.Int64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(g.Load()) })
}

// Collectors exposes the stats to prometheus.
func (s *Stats) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		counterFunc("frames_received_total", "Frames received from relays", s.FramesReceived),
		counterFunc("events_forwarded_total", "Relay events forwarded to the front end", s.EventsForwarded),
		counterFunc("events_cached_total", "Events answered from the local store", s.EventsCached),
		counterFunc("duplicates_dropped_total", "Relay events dropped as already stored", s.DuplicatesDropped),
		counterFunc("events_rejected_total", "Relay events the store refused", s.EventsRejected),
		counterFunc("reqs_sent_total", "REQ frames sent to relays", s.ReqsSent),
		counterFunc("closes_sent_total", "CLOSE frames sent to relays", s.ClosesSent),
		counterFunc("published_total", "Events published", s.Published),
		counterFunc("restarts_total", "Worker restarts after a fault", s.Restarts),
		gaugeFunc("subscriptions", "Open subscriptions", &s.subscriptions),
		gaugeFunc("relays", "Relays in the pool", &s.relays),
		gaugeFunc("reconcile_sessions", "Negentropy sessions in progress", &s.reconcileSessions),
	}
}
