// Package metrics exposes course state to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/runcourse/trackgen/internal/track"
)

const namespace = "trackgen"

// Collector owns a private registry so tests and multiple courses never
// collide on the default one.
type Collector struct {
	reg *prometheus.Registry

	created     prometheus.Gauge
	reclaimed   prometheus.Gauge
	live        prometheus.Gauge
	planned     prometheus.Gauge
	target      prometheus.Gauge
	tier        prometheus.Gauge
	placements  prometheus.Gauge
	pendingRuns prometheus.Gauge
	pool        *prometheus.GaugeVec
	failures    *prometheus.GaugeVec

	partitionsReclaimed prometheus.Counter
	blocksReclaimed     prometheus.Counter
	escalations         prometheus.Counter
	runsCompleted       prometheus.Counter
	tickDuration        prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		created: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "units_created",
			Help: "Units generated since the course started.",
		}),
		reclaimed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "units_reclaimed",
			Help: "Units returned to the pools since the course started.",
		}),
		live: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "units_live",
			Help: "Units currently standing on the course.",
		}),
		planned: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "units_planned",
			Help: "Boundary of the last planned partition.",
		}),
		target: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "units_live_target",
			Help: "Units the course will hold once every planned partition is generated.",
		}),
		tier: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "grade_tier",
			Help: "Current difficulty tier.",
		}),
		placements: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "placements_outstanding",
			Help: "Reserved special blocks not yet consumed.",
		}),
		pendingRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "runs_pending",
			Help: "Generation runs waiting to complete.",
		}),
		pool: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pool_entries",
			Help: "Pool entries by pool and state.",
		}, []string{"pool", "state"}),
		failures: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "retryable_failures",
			Help: "Retryable failures seen by the course, by kind.",
		}, []string{"kind"}),
		partitionsReclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "partitions_reclaimed_total",
			Help: "Partitions reclaimed and re-planned.",
		}),
		blocksReclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "blocks_reclaimed_total",
			Help: "Blocks returned to the pool by reclamation.",
		}),
		escalations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "grade_escalations_total",
			Help: "Difficulty tier changes.",
		}),
		runsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_completed_total",
			Help: "Generation runs completed.",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time of one game loop tick.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us to ~80ms
		}),
	}
}

// Observe copies a course snapshot into the gauges.
func (c *Collector) Observe(s track.Snapshot) {
	c.created.Set(float64(s.Created))
	c.reclaimed.Set(float64(s.Reclaimed))
	c.live.Set(float64(s.Live))
	c.planned.Set(float64(s.Planned))
	c.target.Set(float64(s.LiveTarget))
	c.tier.Set(float64(s.Tier))
	c.placements.Set(float64(s.Placements))
	c.pendingRuns.Set(float64(s.PendingRuns))

	p := s.Pools
	c.pool.WithLabelValues("background", "total").Set(float64(p.Backgrounds))
	c.pool.WithLabelValues("background", "in_use").Set(float64(p.BackgroundsInUse))
	c.pool.WithLabelValues("background", "queued").Set(float64(p.BackgroundsQueued))
	c.pool.WithLabelValues("block", "total").Set(float64(p.Blocks))
	c.pool.WithLabelValues("block", "in_use").Set(float64(p.BlocksInUse))

	c.failures.WithLabelValues("instancing").Set(float64(s.InstancingFailures))
	c.failures.WithLabelValues("exhausted").Set(float64(s.Exhaustions))
}

func (c *Collector) PartitionReclaimed(blocks int) {
	c.partitionsReclaimed.Inc()
	c.blocksReclaimed.Add(float64(blocks))
}

func (c *Collector) GradeEscalated() { c.escalations.Inc() }

func (c *Collector) RunCompleted() { c.runsCompleted.Inc() }

func (c *Collector) ObserveTick(d time.Duration) { c.tickDuration.Observe(d.Seconds()) }

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}
