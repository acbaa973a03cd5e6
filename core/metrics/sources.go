package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/mailbox/core/event"
	"github.com/dmitrymomot/mailbox/core/housekeeping"
	"github.com/dmitrymomot/mailbox/core/server"
	"github.com/dmitrymomot/mailbox/core/stream"
	"github.com/dmitrymomot/mailbox/pkg/broadcast"
	"github.com/dmitrymomot/mailbox/pkg/ratelimiter"
	"github.com/dmitrymomot/mailbox/pkg/respool"
)

// PoolSource is satisfied by *respool.Pool of any resource kind.
type PoolSource interface {
	Name() string
	Stats() respool.Stats
}

// Pool exposes resource pool state, labelled with the pool name.
func Pool(p PoolSource) prometheus.Collector {
	l := prometheus.Labels{"pool": p.Name()}
	size := desc("pool", "size", "Configured number of resources.", l)
	idle := desc("pool", "idle", "Resources ready to hand out.", l)
	inUse := desc("pool", "in_use", "Resources checked out.", l)
	validating := desc("pool", "validating", "Resources being revalidated.", l)
	waiting := desc("pool", "waiting", "Callers waiting for a resource.", l)
	created := desc("pool", "created_total", "Resources built by the factory.", l)
	replaced := desc("pool", "replaced_total", "Resources replaced after failed validation.", l)
	waits := desc("pool", "waits_total", "Acquire calls that had to wait.", l)
	waitSeconds := desc("pool", "wait_seconds_total", "Time spent waiting in Acquire.", l)

	return &statsCollector{
		descs: []*prometheus.Desc{size, idle, inUse, validating, waiting, created, replaced, waits, waitSeconds},
		collect: func(ch chan<- prometheus.Metric) {
			s := p.Stats()
			gauge(ch, size, float64(s.Size))
			gauge(ch, idle, float64(s.Idle))
			gauge(ch, inUse, float64(s.InUse))
			gauge(ch, validating, float64(s.Validating))
			gauge(ch, waiting, float64(s.Waiting))
			counter(ch, created, float64(s.Created))
			counter(ch, replaced, float64(s.Replaced))
			counter(ch, waits, float64(s.WaitCount))
			counter(ch, waitSeconds, s.WaitDuration.Seconds())
		},
	}
}

type HubSource interface {
	Stats() broadcast.HubStats
}

// Hub exposes broadcast hub state.
func Hub(h HubSource) prometheus.Collector {
	topics := desc("hub", "topics", "Registered topics.", nil)
	subs := desc("hub", "subscribers", "Live subscriptions.", nil)
	published := desc("hub", "published_total", "Events that reached at least one subscriber.", nil)
	lagged := desc("hub", "lagged_total", "Lag signals returned to subscribers.", nil)
	created := desc("hub", "topics_created_total", "Topic channels created.", nil)
	pruned := desc("hub", "topics_pruned_total", "Idle topic channels removed.", nil)

	return &statsCollector{
		descs: []*prometheus.Desc{topics, subs, published, lagged, created, pruned},
		collect: func(ch chan<- prometheus.Metric) {
			s := h.Stats()
			gauge(ch, topics, float64(s.Topics))
			gauge(ch, subs, float64(s.Subscribers))
			counter(ch, published, float64(s.Published))
			counter(ch, lagged, float64(s.Lagged))
			counter(ch, created, float64(s.Created))
			counter(ch, pruned, float64(s.Pruned))
		},
	}
}

type PublisherSource interface {
	Stats() event.PublisherStats
}

// Publisher exposes event publisher counters.
func Publisher(p PublisherSource) prometheus.Collector {
	published := desc("events", "published_total", "Events accepted for publishing.", nil)
	persisted := desc("events", "persisted_total", "Events stored in the durable log.", nil)
	failures := desc("events", "persist_failures_total", "Events delivered live only because the log append failed.", nil)
	ephemeral := desc("events", "ephemeral_total", "Events that skip the durable log.", nil)
	delivered := desc("events", "deliveries_total", "Live deliveries to subscribers.", nil)
	encode := desc("events", "encode_failures_total", "Events dropped before publishing.", nil)
	dropped := desc("events", "dropped_total", "Events refused because the publisher was closed.", nil)
	inFlight := desc("events", "in_flight", "Fire-and-forget publishes still running.", nil)

	return &statsCollector{
		descs: []*prometheus.Desc{published, persisted, failures, ephemeral, delivered, encode, dropped, inFlight},
		collect: func(ch chan<- prometheus.Metric) {
			s := p.Stats()
			counter(ch, published, float64(s.Published))
			counter(ch, persisted, float64(s.Persisted))
			counter(ch, failures, float64(s.PersistFailures))
			counter(ch, ephemeral, float64(s.Ephemeral))
			counter(ch, delivered, float64(s.Delivered))
			counter(ch, encode, float64(s.EncodeFailures))
			counter(ch, dropped, float64(s.Dropped))
			gauge(ch, inFlight, float64(s.InFlight))
		},
	}
}

type StreamSource interface {
	Stats() stream.Stats
}

// Stream exposes stream session counters.
func Stream(h StreamSource) prometheus.Collector {
	active := desc("stream", "sessions_active", "Open stream sessions.", nil)
	total := desc("stream", "sessions_total", "Stream sessions accepted.", nil)
	rejected := desc("stream", "rejected_total", "Stream requests refused before upgrading.", nil)
	resyncs := desc("stream", "lag_resyncs_total", "Lag resyncs from the durable log.", nil)
	replayed := desc("stream", "replayed_total", "Events sent from the durable log.", nil)
	forwarded := desc("stream", "forwarded_total", "Events sent from the live feed.", nil)
	dups := desc("stream", "duplicates_total", "Events dropped as already sent.", nil)

	return &statsCollector{
		descs: []*prometheus.Desc{active, total, rejected, resyncs, replayed, forwarded, dups},
		collect: func(ch chan<- prometheus.Metric) {
			s := h.Stats()
			gauge(ch, active, float64(s.Active))
			counter(ch, total, float64(s.Total))
			counter(ch, rejected, float64(s.Rejected))
			counter(ch, resyncs, float64(s.LagResyncs))
			counter(ch, replayed, float64(s.Replayed))
			counter(ch, forwarded, float64(s.Forwarded))
			counter(ch, dups, float64(s.Duplicates))
		},
	}
}

type HousekeepingSource interface {
	Stats() housekeeping.Stats
}

// Housekeeping exposes cleanup loop counters.
func Housekeeping(h HousekeepingSource) prometheus.Collector {
	sweeps := desc("housekeeping", "topic_sweeps_total", "Idle topic sweeps run.", nil)
	removed := desc("housekeeping", "topics_removed_total", "Idle topics removed.", nil)
	prunes := desc("housekeeping", "log_prunes_total", "Log prune passes run.", nil)
	entries := desc("housekeeping", "log_entries_removed_total", "Log entries pruned.", nil)
	errs := desc("housekeeping", "log_prune_errors_total", "Per-topic prune failures.", nil)

	return &statsCollector{
		descs: []*prometheus.Desc{sweeps, removed, prunes, entries, errs},
		collect: func(ch chan<- prometheus.Metric) {
			s := h.Stats()
			counter(ch, sweeps, float64(s.Sweeps))
			counter(ch, removed, float64(s.TopicsRemoved))
			counter(ch, prunes, float64(s.Prunes))
			counter(ch, entries, float64(s.EntriesRemoved))
			counter(ch, errs, float64(s.PruneErrors))
		},
	}
}

type ConnectLimiterSource interface {
	Stats() ratelimiter.Stats
}

// ConnectLimiter exposes stream connect limiter counters.
func ConnectLimiter(l ConnectLimiterSource) prometheus.Collector {
	buckets := desc("connect_limit", "buckets", "Users with a tracked allowance.", nil)
	allowed := desc("connect_limit", "allowed_total", "Stream requests within the allowance.", nil)
	denied := desc("connect_limit", "denied_total", "Stream requests refused for exceeding the allowance.", nil)

	return &statsCollector{
		descs: []*prometheus.Desc{buckets, allowed, denied},
		collect: func(ch chan<- prometheus.Metric) {
			s := l.Stats()
			gauge(ch, buckets, float64(s.Buckets))
			counter(ch, allowed, float64(s.Allowed))
			counter(ch, denied, float64(s.Denied))
		},
	}
}

type ServerSource interface {
	Stats() server.Stats
}

// Server exposes HTTP connection counters. Hijacked connections are the
// upgraded stream sockets.
func Server(s ServerSource) prometheus.Collector {
	open := desc("server", "open_connections", "Connections currently served by net/http.", nil)
	accepted := desc("server", "accepted_connections_total", "Accepted connections.", nil)
	hijacked := desc("server", "hijacked_connections_total", "Connections upgraded to streams.", nil)

	return &statsCollector{
		descs: []*prometheus.Desc{open, accepted, hijacked},
		collect: func(ch chan<- prometheus.Metric) {
			st := s.Stats()
			gauge(ch, open, float64(st.Open))
			counter(ch, accepted, float64(st.Accepted))
			counter(ch, hijacked, float64(st.Hijacked))
		},
	}
}
