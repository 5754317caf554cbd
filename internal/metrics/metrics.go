package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/icu-core/internal/lifecycle"
	"github.com/nerrad567/icu-core/internal/protocol"
)

// Recorder owns a private Prometheus registry with the controller's
// series. It implements controller.Metrics.
type Recorder struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	messages        *prometheus.CounterVec
	startupFailures *prometheus.CounterVec
	passSeconds     prometheus.Histogram
	sinkErrors      *prometheus.CounterVec
}

// New returns a Recorder with Go runtime and process collectors
// registered alongside the icu_* series.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	r := &Recorder{
		registry: reg,
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "icu_lifecycle_transitions_total",
			Help: "Lifecycle state entries by state",
		}, []string{"state"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "icu_perception_messages_total",
			Help: "Decoded perception messages by kind",
		}, []string{"kind"}),
		startupFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "icu_startup_failures_total",
			Help: "Peripheral initialisation failures during startup",
		}, []string{"peripheral"}),
		passSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "icu_loop_pass_seconds",
			Help:    "Wall time of one control-loop pass",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		sinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "icu_event_sink_errors_total",
			Help: "Outbound event deliveries that failed, by sink",
		}, []string{"sink"}),
	}

	// Pre-create label values so every series is exported from the start.
	for _, s := range lifecycle.States() {
		r.transitions.WithLabelValues(s.String())
	}
	for _, k := range protocol.Kinds() {
		if k != protocol.None {
			r.messages.WithLabelValues(k.String())
		}
	}
	return r
}

// ObserveTransition counts a lifecycle state entry.
func (r *Recorder) ObserveTransition(state lifecycle.State) {
	r.transitions.WithLabelValues(state.String()).Inc()
}

// ObserveMessage counts a decoded perception message.
func (r *Recorder) ObserveMessage(kind protocol.EventKind) {
	r.messages.WithLabelValues(kind.String()).Inc()
}

// ObserveStartupFailure counts a peripheral that failed Begin.
func (r *Recorder) ObserveStartupFailure(peripheral string) {
	r.startupFailures.WithLabelValues(peripheral).Inc()
}

// ObservePass records one control-loop pass duration.
func (r *Recorder) ObservePass(d time.Duration) {
	r.passSeconds.Observe(d.Seconds())
}

// SinkError counts a failed delivery to the named sink.
func (r *Recorder) SinkError(sink string) {
	r.sinkErrors.WithLabelValues(sink).Inc()
}

// TrackDroppedLines exports a cumulative counter read from fn, normally
// the serial reader's Dropped method.
func (r *Recorder) TrackDroppedLines(fn func() uint64) {
	r.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "icu_serial_lines_dropped_total",
		Help: "Complete serial lines overwritten before the control loop read them",
	}, func() float64 { return float64(fn()) }))
}

// TrackSerialLink exports the serial port's cut-line and reopen counters.
func (r *Recorder) TrackSerialLink(oversized, reopens func() uint64) {
	r.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "icu_serial_lines_oversized_total",
			Help: "Serial lines cut at the maximum line length",
		}, func() float64 { return float64(oversized()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "icu_serial_reopens_total",
			Help: "Times the serial port was reopened after its reader stopped",
		}, func() float64 { return float64(reopens()) }),
	)
}

// TrackDroppedEvents exports the dispatcher's drop counter.
func (r *Recorder) TrackDroppedEvents(fn func() uint64) {
	r.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "icu_events_dropped_total",
		Help: "Outbound events discarded because the dispatch queue was full",
	}, func() float64 { return float64(fn()) }))
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
