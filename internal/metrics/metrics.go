// Package metrics exposes BEARS-TP's counters and gauges over Prometheus,
// in the style conniver and sockstats register collectors for TCP/socket
// statistics: plain CounterVec/GaugeVec instances on a private registry,
// served by promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ComedyRotten/bears-tp/pkg/wire"
)

// Registry bundles BEARS-TP's metrics behind one Prometheus registry so
// sender and receiver processes don't collide on the default global one.
type Registry struct {
	reg *prometheus.Registry

	FramesSent       *prometheus.CounterVec
	FramesDropped    *prometheus.CounterVec
	Retransmissions  prometheus.Counter
	ConnectionsTotal prometheus.Counter
	ActiveConns      prometheus.Gauge
	WindowSize       prometheus.Gauge
	ReorderBufSize   *prometheus.GaugeVec
}

// New builds a Registry with namespace "bearstp".
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bearstp",
			Name:      "frames_sent_total",
			Help:      "Frames transmitted, by msg_type.",
		}, []string{"msg_type"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bearstp",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped on receipt, by reason.",
		}, []string{"reason"}),
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bearstp",
			Name:      "retransmissions_total",
			Help:      "Go-back-N window retransmissions performed by the sender.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bearstp",
			Name:      "connections_total",
			Help:      "Connections ever created by the receiver.",
		}),
		ActiveConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bearstp",
			Name:      "active_connections",
			Help:      "Connections currently tracked by the receiver.",
		}),
		WindowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bearstp",
			Name:      "sender_window_size",
			Help:      "Current number of slots held in the sender's window.",
		}),
		ReorderBufSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bearstp",
			Name:      "reorder_buffer_size",
			Help:      "Out-of-order entries currently buffered, per peer.",
		}, []string{"peer"}),
	}

	reg.MustRegister(r.FramesSent, r.FramesDropped, r.Retransmissions,
		r.ConnectionsTotal, r.ActiveConns, r.WindowSize, r.ReorderBufSize)

	return r
}

// ObserveSent, ObserveRetransmit and ObserveWindowSize satisfy
// pkg/sender.Metrics, letting a Registry be wired straight into a
// sender.Session via sender.WithMetrics.
func (r *Registry) ObserveSent(msgType wire.MsgType) {
	r.FramesSent.WithLabelValues(string(msgType)).Inc()
}

func (r *Registry) ObserveRetransmit() {
	r.Retransmissions.Inc()
}

func (r *Registry) ObserveWindowSize(n int) {
	r.WindowSize.Set(float64(n))
}

// ObserveDrop records a frame dropped by the receiver, labeled by reason
// (checksum, which also covers malformed frames; unknown_type;
// unknown_peer; out_of_order, which also covers a full reorder buffer).
func (r *Registry) ObserveDrop(reason string) {
	r.FramesDropped.WithLabelValues(reason).Inc()
}

// ObserveConnectionOpened records a newly created receiver Connection.
func (r *Registry) ObserveConnectionOpened() {
	r.ConnectionsTotal.Inc()
}

// SetActiveConnections reports the receiver's current connection count.
func (r *Registry) SetActiveConnections(n int) {
	r.ActiveConns.Set(float64(n))
}

// SetReorderBufferSize reports one peer's current out-of-order buffer size.
func (r *Registry) SetReorderBufferSize(peer string, n int) {
	r.ReorderBufSize.WithLabelValues(peer).Set(float64(n))
}

// DropReorderBufferSize removes a peer's reorder-buffer gauge on eviction.
func (r *Registry) DropReorderBufferSize(peer string) {
	r.ReorderBufSize.DeleteLabelValues(peer)
}

// Handler returns the HTTP handler serving this registry's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server on addr exposing /metrics. It runs until the
// listener fails and reports that failure on the returned channel.
func (r *Registry) Serve(addr string) <-chan error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	errCh := make(chan error, 1)
	go func() {
		errCh <- http.ListenAndServe(addr, mux)
	}()
	return errCh
}
