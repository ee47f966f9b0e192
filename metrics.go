// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "captp"

// Metrics counts session traffic. A nil *Metrics records nothing.
// One Metrics may be shared by any number of sessions.
type Metrics struct {
	messages    *prometheus.CounterVec
	violations  *prometheus.CounterVec
	questions   prometheus.Gauge
	sessions    prometheus.Gauge
	disconnects prometheus.Counter
}

// NewMetrics creates the session metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "messages_total",
				Help:      "Wire messages by direction and type.",
			},
			[]string{"direction", "type"},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "protocol_violations_total",
				Help:      "Peer protocol violations by kind.",
			},
			[]string{"kind"},
		),
		questions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "questions_outstanding",
				Help:      "Remote calls awaiting RETURN.",
			},
		),
		sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sessions_active",
				Help:      "Sessions that have started and not closed.",
			},
		),
		disconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "disconnects_total",
				Help:      "Sessions torn down.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.violations, m.questions, m.sessions, m.disconnects)
	}
	return m
}

func (m *Metrics) sent(t Tag) {
	if m != nil {
		m.messages.WithLabelValues("out", string(t)).Inc()
	}
}

// received counts an inbound message. Types outside the protocol share
// the "unknown" label so a peer cannot grow the series set.
func (m *Metrics) received(t Tag) {
	if m != nil {
		label := "unknown"
		if _, ok := handlers[t]; ok {
			label = string(t)
		}
		m.messages.WithLabelValues("in", label).Inc()
	}
}

func (m *Metrics) violation(v Violation) {
	if m != nil {
		m.violations.WithLabelValues(string(v)).Inc()
	}
}

func (m *Metrics) questionAdded() {
	if m != nil {
		m.questions.Inc()
	}
}

func (m *Metrics) questionsDone(n int) {
	if m != nil {
		m.questions.Sub(float64(n))
	}
}

func (m *Metrics) started() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) closed(wasActive bool) {
	if m == nil {
		return
	}
	if wasActive {
		m.sessions.Dec()
	}
	m.disconnects.Inc()
}
