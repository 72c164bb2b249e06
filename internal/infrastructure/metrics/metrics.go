// Package metrics exposes device and bridge counters to Prometheus.
//
// Frame counters are read from the device and the multicast endpoint at
// scrape time, so they never drift from the values the API reports.
// Event counters (MQTT publishes, saves, triggers) are incremented by the
// components that perform them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/knxip-device/internal/knxip"
	"github.com/nerrad567/knxip-device/internal/transport"
)

const namespace = "knxip"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// Sources supplies the counters read on every scrape. Nil fields are
// skipped.
type Sources struct {
	Device    func() knxip.Stats
	Transport func() transport.Stats
}

// Metrics owns a private registry with the daemon's collectors.
type Metrics struct {
	registry *prometheus.Registry

	publishes *prometheus.CounterVec
	saves     *prometheus.CounterVec
	triggers  *prometheus.CounterVec
	lastSave  prometheus.Gauge
}

// New registers the scrape-time collectors for src and the event counters.
// device is the physical address, attached to every series as a constant
// label.
func New(device string, src Sources) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	labels := prometheus.Labels{"device": device}
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		publishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "mqtt_publishes_total",
			Help:        "MQTT publishes by message kind and result.",
			ConstLabels: labels,
		}, []string{"kind", "result"}),
		saves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "storage_saves_total",
			Help:        "Device image saves to non-volatile storage by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		triggers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "feedback_triggers_total",
			Help:        "Feedback action triggers by origin and result.",
			ConstLabels: labels,
		}, []string{"origin", "result"}),
		lastSave: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "storage_last_save_timestamp_seconds",
			Help:        "Unix time of the last successful save.",
			ConstLabels: labels,
		}),
	}

	if src.Device != nil {
		deviceCounter(factory, labels, "frames_received_total", "KNXnet/IP datagrams handed to the device.", src.Device,
			func(s knxip.Stats) uint64 { return s.FramesRx })
		deviceCounter(factory, labels, "frames_sent_total", "Frames sent by the device.", src.Device,
			func(s knxip.Stats) uint64 { return s.FramesTx })
		deviceCounter(factory, labels, "frames_dropped_total", "Malformed or unsupported datagrams.", src.Device,
			func(s knxip.Stats) uint64 { return s.FramesDropped })
		deviceCounter(factory, labels, "callbacks_dispatched_total", "Callback handler invocations.", src.Device,
			func(s knxip.Stats) uint64 { return s.Dispatched })
		deviceCounter(factory, labels, "send_errors_total", "Failed sends.", src.Device,
			func(s knxip.Stats) uint64 { return s.SendErrors })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_activity_timestamp_seconds",
			Help:        "Unix time of the last frame received or sent.",
			ConstLabels: labels,
		}, func() float64 {
			last := src.Device().LastActivity
			if last.IsZero() {
				return 0
			}
			return float64(last.UnixNano()) / 1e9
		})
	}

	if src.Transport != nil {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "multicast",
			Name:        "read_errors_total",
			Help:        "Socket read errors on the routing multicast group.",
			ConstLabels: labels,
		}, func() float64 { return float64(src.Transport().ReadErrors) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "multicast",
			Name:        "datagrams_received_total",
			Help:        "Datagrams read from the routing multicast group.",
			ConstLabels: labels,
		}, func() float64 { return float64(src.Transport().Received) })
	}

	return m
}

func deviceCounter(factory promauto.Factory, labels prometheus.Labels, name, help string, stats func() knxip.Stats, field func(knxip.Stats) uint64) {
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}, func() float64 { return float64(field(stats())) })
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePublish counts one MQTT publish of the given kind.
func (m *Metrics) ObservePublish(kind string, err error) {
	m.publishes.WithLabelValues(kind, result(err)).Inc()
}

// ObserveSave counts one save and records the time of successful ones.
func (m *Metrics) ObserveSave(err error) {
	m.saves.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.lastSave.SetToCurrentTime()
	}
}

// ObserveTrigger counts one feedback trigger from origin ("mqtt", "api").
func (m *Metrics) ObserveTrigger(origin string, err error) {
	m.triggers.WithLabelValues(origin, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultFailed
	}
	return ResultSuccess
}
