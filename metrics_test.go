// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package captp_test

import (
	"strings"
	"testing"

	"code.hybscloud.com/captp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := captp.NewMetrics(reg)
	a, b := captp.Pipe()
	client := captp.NewSession(a, captp.WithMetrics(m))
	server := captp.NewSession(b, captp.WithMetrics(m), captp.WithBootstrap(newCounter()))

	boot := client.Bootstrap()
	mustSettle(t, captp.E(boot, "incr"), client, server)

	const running = `
# HELP captp_messages_total Wire messages by direction and type.
# TYPE captp_messages_total counter
captp_messages_total{direction="in",type="BOOTSTRAP"} 1
captp_messages_total{direction="in",type="CALL"} 1
captp_messages_total{direction="in",type="RETURN"} 2
captp_messages_total{direction="out",type="BOOTSTRAP"} 1
captp_messages_total{direction="out",type="CALL"} 1
captp_messages_total{direction="out",type="RETURN"} 2
# HELP captp_questions_outstanding Remote calls awaiting RETURN.
# TYPE captp_questions_outstanding gauge
captp_questions_outstanding 0
# HELP captp_sessions_active Sessions that have started and not closed.
# TYPE captp_sessions_active gauge
captp_sessions_active 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(running),
		"captp_messages_total", "captp_questions_outstanding", "captp_sessions_active"); err != nil {
		t.Fatal(err)
	}

	captp.E(boot, "get")
	captp.E(boot, "get")
	const outstanding = `
# HELP captp_questions_outstanding Remote calls awaiting RETURN.
# TYPE captp_questions_outstanding gauge
captp_questions_outstanding 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(outstanding), "captp_questions_outstanding"); err != nil {
		t.Fatal(err)
	}

	_ = client.Close(nil)
	captp.Drain(server)

	const closed = `
# HELP captp_disconnects_total Sessions torn down.
# TYPE captp_disconnects_total counter
captp_disconnects_total 2
# HELP captp_questions_outstanding Remote calls awaiting RETURN.
# TYPE captp_questions_outstanding gauge
captp_questions_outstanding 0
# HELP captp_sessions_active Sessions that have started and not closed.
# TYPE captp_sessions_active gauge
captp_sessions_active 0
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(closed),
		"captp_disconnects_total", "captp_questions_outstanding", "captp_sessions_active"); err != nil {
		t.Fatal(err)
	}
}

func TestMetricsViolations(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, raw := withRaw(t, captp.WithMetrics(captp.NewMetrics(reg)))
	raw.send(&captp.Message{Type: captp.TagReturn, AnswerID: 7, Result: data("1")})
	raw.send(&captp.Message{Type: captp.TagResolve, PromiseID: slotPtr(t, "p+1"), Result: data("1")})
	raw.send(&captp.Message{Type: captp.TagReturn, AnswerID: 8, Result: data("1")})
	captp.Drain(s)

	const want = `
# HELP captp_protocol_violations_total Peer protocol violations by kind.
# TYPE captp_protocol_violations_total counter
captp_protocol_violations_total{kind="unknown-answer"} 2
captp_protocol_violations_total{kind="unknown-promise"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "captp_protocol_violations_total"); err != nil {
		t.Fatal(err)
	}
	if s.Stats().Violations != 3 {
		t.Fatalf("stats: %+v", s.Stats())
	}
}

func TestMetricsUnknownTypeLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, raw := withRaw(t, captp.WithMetrics(captp.NewMetrics(reg)))
	for _, typ := range []captp.Tag{"GC", "GC", "X-1"} {
		raw.send(&captp.Message{Type: typ})
	}
	captp.Drain(s)

	const want = `
# HELP captp_messages_total Wire messages by direction and type.
# TYPE captp_messages_total counter
captp_messages_total{direction="in",type="unknown"} 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "captp_messages_total"); err != nil {
		t.Fatal(err)
	}
}

func TestMetricsNil(t *testing.T) {
	// Sessions without metrics and metrics without a registry both work.
	client, server := pair(captp.WithMetrics(captp.NewMetrics(nil)), captp.WithBootstrap(newCounter()))
	mustSettle(t, captp.E(client.Bootstrap(), "incr"), client, server)
}
