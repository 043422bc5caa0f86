/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics holds the process-wide counters fed by the connection
// engine and exposed, read-only, to the management plane's STATS
// command. Field names mirror original_source/include/metrics.h
// (total_connections, current_connections, bytes_transferred,
// successful_connections, failed_connections, bytes_sent,
// bytes_received); the backing storage is Prometheus instruments rather
// than raw atomics, registered against a private registry never exposed
// over HTTP (the /metrics endpoint itself is out of scope).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry wraps a private prometheus.Registry and the instruments the
// engine updates. No multi-counter atomicity is provided or required:
// a Snapshot's fields may be read at slightly different instants, each
// individually consistent (§5).
type Registry struct {
	reg *prometheus.Registry

	totalConnections      prometheus.Counter
	currentConnections    prometheus.Gauge
	successfulConnections prometheus.Counter
	failedConnections     prometheus.Counter
	bytesSent             prometheus.Counter
	bytesReceived         prometheus.Counter
}

// New builds a Registry with all instruments registered.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.totalConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socks5_connections_total",
		Help: "Connections accepted since start.",
	})
	r.currentConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "socks5_connections_current",
		Help: "Connections currently open.",
	})
	r.successfulConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socks5_connections_successful_total",
		Help: "Connections that reached the DONE state.",
	})
	r.failedConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socks5_connections_failed_total",
		Help: "Connections that reached the ERROR state.",
	})
	r.bytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socks5_bytes_sent_total",
		Help: "Bytes sent to clients (origin to client direction).",
	})
	r.bytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socks5_bytes_received_total",
		Help: "Bytes received from clients (client to origin direction).",
	})

	r.reg.MustRegister(
		r.totalConnections,
		r.currentConnections,
		r.successfulConnections,
		r.failedConnections,
		r.bytesSent,
		r.bytesReceived,
	)
	return r
}

// Registerer exposes the private registry so an out-of-scope HTTP
// exporter could, in principle, wire it up without this package knowing
// about HTTP at all.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// ConnectionOpened increments total and current connection counts.
func (r *Registry) ConnectionOpened() {
	r.totalConnections.Inc()
	r.currentConnections.Inc()
}

// ConnectionClosed decrements the current connection count.
func (r *Registry) ConnectionClosed() {
	r.currentConnections.Dec()
}

// ConnectionSucceeded marks a connection that reached DONE.
func (r *Registry) ConnectionSucceeded() {
	r.successfulConnections.Inc()
}

// ConnectionFailed marks a connection that reached ERROR.
func (r *Registry) ConnectionFailed() {
	r.failedConnections.Inc()
}

// AddBytesSent adds to the origin-to-client byte counter.
func (r *Registry) AddBytesSent(n uint64) {
	r.bytesSent.Add(float64(n))
}

// AddBytesReceived adds to the client-to-origin byte counter.
func (r *Registry) AddBytesReceived(n uint64) {
	r.bytesReceived.Add(float64(n))
}

// Snapshot is a read-only copy of every counter (each read on its own,
// see Registry), exactly what the management plane's STATS command renders.
type Snapshot struct {
	TotalConnections      uint64
	CurrentConnections    uint64
	SuccessfulConnections uint64
	FailedConnections     uint64
	BytesSent             uint64
	BytesReceived         uint64
	BytesTransferred      uint64
}

// Snapshot gathers every instrument's current value.
func (r *Registry) Snapshot() Snapshot {
	sent := counterValue(r.bytesSent)
	recv := counterValue(r.bytesReceived)
	return Snapshot{
		TotalConnections:      uint64(counterValue(r.totalConnections)),
		CurrentConnections:    uint64(gaugeValue(r.currentConnections)),
		SuccessfulConnections: uint64(counterValue(r.successfulConnections)),
		FailedConnections:     uint64(counterValue(r.failedConnections)),
		BytesSent:             uint64(sent),
		BytesReceived:         uint64(recv),
		BytesTransferred:      uint64(sent + recv),
	}
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	_ = c.Write(&m)
	return m.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	_ = g.Write(&m)
	return m.GetGauge().GetValue()
}
