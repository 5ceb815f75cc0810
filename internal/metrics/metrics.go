package metrics

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Outcome of a single prediction as counted by Metrics.
type Outcome int

const (
	OutcomeConfident Outcome = iota
	OutcomeUnsure
	OutcomeLoadError
	OutcomeInferenceError
)

type Metrics struct {
	requestsTotal   atomic.Int64
	confidentTotal  atomic.Int64
	unsureTotal     atomic.Int64
	loadErrors      atomic.Int64
	inferenceErrors atomic.Int64
	inflight        atomic.Int64
	latencyNanos    atomic.Int64
	latencyNanosMax atomic.Int64
}

type Snapshot struct {
	RequestsTotal    int64
	ConfidentTotal   int64
	UnsureTotal      int64
	LoadErrors       int64
	InferenceErrors  int64
	InFlight         int64
	AvgLatencyMillis float64
	MaxLatencyMillis float64
}

func (m *Metrics) RecordStart() {
	m.requestsTotal.Add(1)
	m.inflight.Add(1)
}

func (m *Metrics) RecordDone(outcome Outcome, latency time.Duration) {
	m.inflight.Add(-1)

	nanos := latency.Nanoseconds()
	if nanos < 0 {
		nanos = 0
	}
	m.latencyNanos.Add(nanos)
	updateAtomicMax(&m.latencyNanosMax, nanos)

	switch outcome {
	case OutcomeConfident:
		m.confidentTotal.Add(1)
	case OutcomeUnsure:
		m.unsureTotal.Add(1)
	case OutcomeLoadError:
		m.loadErrors.Add(1)
	case OutcomeInferenceError:
		m.inferenceErrors.Add(1)
	}
}

func (m *Metrics) Snapshot() Snapshot {
	requests := m.requestsTotal.Load()
	avg := 0.0
	if requests > 0 {
		avg = float64(m.latencyNanos.Load()) / float64(requests) / float64(time.Millisecond)
	}
	return Snapshot{
		RequestsTotal:    requests,
		ConfidentTotal:   m.confidentTotal.Load(),
		UnsureTotal:      m.unsureTotal.Load(),
		LoadErrors:       m.loadErrors.Load(),
		InferenceErrors:  m.inferenceErrors.Load(),
		InFlight:         m.inflight.Load(),
		AvgLatencyMillis: avg,
		MaxLatencyMillis: float64(m.latencyNanosMax.Load()) / float64(time.Millisecond),
	}
}

func (s Snapshot) PrometheusText() string {
	return fmt.Sprintf(
		"treeapi_predictions_total %d\n"+
			"treeapi_predictions_confident_total %d\n"+
			"treeapi_predictions_unsure_total %d\n"+
			"treeapi_load_errors_total %d\n"+
			"treeapi_inference_errors_total %d\n"+
			"treeapi_inflight %d\n"+
			"treeapi_prediction_latency_ms_avg %.6f\n"+
			"treeapi_prediction_latency_ms_max %.6f\n",
		s.RequestsTotal,
		s.ConfidentTotal,
		s.UnsureTotal,
		s.LoadErrors,
		s.InferenceErrors,
		s.InFlight,
		s.AvgLatencyMillis,
		s.MaxLatencyMillis,
	)
}

func updateAtomicMax(target *atomic.Int64, value int64) {
	for {
		current := target.Load()
		if value <= current {
			return
		}
		if target.CompareAndSwap(current, value) {
			return
		}
	}
}
