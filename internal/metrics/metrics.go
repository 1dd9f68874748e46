package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set holds the pipeline's Prometheus instruments on a private registry so
// tests can build independent sets without collisions.
type Set struct {
	reg *prometheus.Registry

	ImuSamples     prometheus.Counter
	ImuTimeouts    prometheus.Counter
	ImuBusFaults   prometheus.Counter
	ImuMissedEdges prometheus.Counter
	ImuDegraded    prometheus.Gauge

	ParseErrors prometheus.Counter
	FixUpdates  prometheus.Counter

	Pulses      prometheus.Counter
	SyncLosses  prometheus.Counter
	ClockSynced prometheus.Gauge

	Published       prometheus.Counter
	DroppedMessages prometheus.Counter
	EvictedSubs     prometheus.Counter
	Subscribers     prometheus.Gauge
}

func New() *Set {
	s := &Set{reg: prometheus.NewRegistry()}

	s.ImuSamples = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navfuse_imu_samples_total",
		Help: "IMU samples read, one per accepted data-ready edge.",
	})
	s.ImuTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navfuse_imu_read_timeouts_total",
		Help: "IMU burst reads dropped for exceeding the read deadline.",
	})
	s.ImuBusFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navfuse_imu_bus_faults_total",
		Help: "SPI bus errors during IMU reads.",
	})
	s.ImuMissedEdges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navfuse_imu_missed_edges_total",
		Help: "Data-ready edges missed, detected via event sequence gaps.",
	})
	s.ImuDegraded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "navfuse_imu_degraded",
		Help: "1 while the sampler is in the degraded state.",
	})

	s.ParseErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navfuse_nmea_parse_errors_total",
		Help: "GNSS lines discarded as malformed.",
	})
	s.FixUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navfuse_gnss_fix_updates_total",
		Help: "Presented fix changes (new interval or staleness transition).",
	})

	s.Pulses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navfuse_pps_pulses_total",
		Help: "PPS edges observed.",
	})
	s.SyncLosses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navfuse_pps_sync_losses_total",
		Help: "Transitions of the time correlator into the unsynchronized state.",
	})
	s.ClockSynced = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "navfuse_pps_synced",
		Help: "1 while the time correlator is pulse-disciplined.",
	})

	s.Published = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navfuse_messages_published_total",
		Help: "Outbound messages handed to the broadcast hub.",
	})
	s.DroppedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navfuse_subscriber_dropped_messages_total",
		Help: "Messages dropped from full subscriber queues.",
	})
	s.EvictedSubs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "navfuse_subscribers_evicted_total",
		Help: "Subscribers removed for sustained overflow or write failure.",
	})
	s.Subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "navfuse_subscribers",
		Help: "Currently connected feed subscribers.",
	})

	s.reg.MustRegister(
		s.ImuSamples, s.ImuTimeouts, s.ImuBusFaults, s.ImuMissedEdges, s.ImuDegraded,
		s.ParseErrors, s.FixUpdates,
		s.Pulses, s.SyncLosses, s.ClockSynced,
		s.Published, s.DroppedMessages, s.EvictedSubs, s.Subscribers,
	)
	return s
}

// Handler serves the set's registry in Prometheus exposition format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}
