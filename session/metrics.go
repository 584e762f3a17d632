/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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
 */

package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the default metrics sink named in spec.md §6's domain-stack
// wiring: retries, speculative_aborted, in-flight gauge, request latency
// histogram. A Session registers these itself rather than against the
// global registry, so multiple sessions in one process don't collide.
type Metrics struct {
	Registry *prometheus.Registry

	Retries            prometheus.Counter
	SpeculativeAborted prometheus.Counter
	InFlight           prometheus.Gauge
	RequestLatency     prometheus.Histogram
	PrepareAllFailures prometheus.Counter
}

// NewMetrics builds and registers a fresh metric set under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of RETRY decisions consumed across all requests.",
		}),
		SpeculativeAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speculative_aborted_total",
			Help:      "Total number of completions discarded because a Future already resolved.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Number of requests currently awaiting a response.",
		}),
		RequestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "End-to-end request latency as observed by the session.",
			Buckets:   prometheus.DefBuckets,
		}),
		PrepareAllFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prepare_all_failures_total",
			Help:      "Total number of per-host failures during prepare-all fan-out.",
		}),
	}

	reg.MustRegister(m.Retries, m.SpeculativeAborted, m.InFlight, m.RequestLatency, m.PrepareAllFailures)
	return m
}
