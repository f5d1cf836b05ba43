// Copyright 2018-2019 The logrange Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sink

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "lrhdfs"
	metricsSubsystem = "sink"

	resultOk      = "ok"
	resultFailed  = "failed"
	resultSkipped = "skipped"

	opAppend = "append"
	opCreate = "create"
)

var (
	recordsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "records_total",
		Help:      "Records submitted to the webhdfs sinks",
	})

	flushCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "flushes_total",
		Help:      "Flush cycles by result, skipped means a flush was already running",
	}, []string{"result"})

	flushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "flush_duration_seconds",
		Help:      "Duration of non-empty flush cycles",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	writeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "writes_total",
		Help:      "WebHDFS writes by operation and result",
	}, []string{"op", "result"})

	bytesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "written_bytes_total",
		Help:      "Bytes successfully written, after compression",
	})

	droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "dropped_batches_total",
		Help:      "Path batches given up after all attempts",
	})

	deadLetterCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "dead_letters_total",
		Help:      "Dead letter operations: stored, replayed or failed",
	}, []string{"result"})

	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "pending_records",
		Help:      "Records waiting for the next flush",
	})
)

// RegisterMetrics registers the sink collectors, registering twice is not an error
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{recordsCounter, flushCounter, flushDuration, writeCounter,
		bytesCounter, droppedCounter, deadLetterCounter, pendingGauge} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
