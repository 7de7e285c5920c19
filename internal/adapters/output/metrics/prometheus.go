package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hydrocore/internal/domain/model"
)

// Recorder implements ports.Metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	readingsStored   *prometheus.CounterVec
	commands         *prometheus.CounterVec
	ingestRejected   *prometheus.CounterVec
	manualContention prometheus.Counter
	requestDuration  *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		readingsStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hydrocore_readings_stored_total", Help: "Reading persistence attempts by outcome."},
			[]string{"outcome"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hydrocore_commands_dispatched_total", Help: "Commands returned to agents."},
			[]string{"command", "source"},
		),
		ingestRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "hydrocore_ingest_rejected_total", Help: "Reports that did not reach arbitration."},
			[]string{"reason"},
		),
		manualContention: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "hydrocore_manual_slot_contended_total", Help: "Polls that lost the race to clear a manual command."},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "hydrocore_http_request_duration_seconds", Buckets: prometheus.DefBuckets},
			[]string{"handler", "code", "method"},
		),
	}
	r.registry.MustRegister(
		r.readingsStored,
		r.commands,
		r.ingestRejected,
		r.manualContention,
		r.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) ReadingStored(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	r.readingsStored.WithLabelValues(outcome).Inc()
}

func (r *Recorder) CommandDispatched(cmd model.Command, source model.CommandSource) {
	r.commands.WithLabelValues(string(cmd), string(source)).Inc()
}

func (r *Recorder) IngestRejected(reason string) {
	r.ingestRejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) ManualSlotContended() {
	r.manualContention.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Instrument records request latency for next under the given handler label.
func (r *Recorder) Instrument(name string, next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(
		r.requestDuration.MustCurryWith(prometheus.Labels{"handler": name}),
		next,
	)
}
