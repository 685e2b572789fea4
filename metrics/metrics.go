// Package metrics exposes Prometheus counters for the billing engine and
// the background sweep.
//
// All Recorder methods are safe on a nil receiver so callers can run
// without metrics (tests, tools).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "academy"

// Recorder owns a private registry and the counters registered in it.
type Recorder struct {
	registry *prometheus.Registry

	paymentsRegistered prometheus.Counter
	paymentsFailed     prometheus.Counter
	allocationRows     prometheus.Counter
	amountAllocated    prometheus.Counter
	amountUnallocated  prometheus.Counter
	sweeps             *prometheus.CounterVec
	alertsRaised       *prometheus.GaugeVec
}

// New creates a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		paymentsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "payments_registered_total",
			Help:      "Payments committed by the allocation engine.",
		}),
		paymentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "payments_failed_total",
			Help:      "Payment registrations rolled back after a storage failure.",
		}),
		allocationRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "allocation_rows_total",
			Help:      "Allocation rows written.",
		}),
		amountAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "amount_allocated_total",
			Help:      "Sum of amounts applied to monthly fees.",
		}),
		amountUnallocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "amount_unallocated_total",
			Help:      "Payment residue left over after the allocation horizon.",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Alert sweep runs by result.",
		}, []string{"result"}),
		alertsRaised: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "alerts",
			Help:      "Alerts produced by the last sweep, by kind.",
		}, []string{"kind"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.paymentsRegistered,
		r.paymentsFailed,
		r.allocationRows,
		r.amountAllocated,
		r.amountUnallocated,
		r.sweeps,
		r.alertsRaised,
	)
	return r
}

// Registry exposes the underlying registry (used by tests).
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// PaymentRegistered records one committed payment.
func (r *Recorder) PaymentRegistered(rows int, allocated, unallocated int64) {
	if r == nil {
		return
	}
	r.paymentsRegistered.Inc()
	r.allocationRows.Add(float64(rows))
	r.amountAllocated.Add(float64(allocated))
	r.amountUnallocated.Add(float64(unallocated))
}

// Reallocated records rows written by a re-run on an existing payment.
func (r *Recorder) Reallocated(rows int, allocated int64) {
	if r == nil {
		return
	}
	r.allocationRows.Add(float64(rows))
	r.amountAllocated.Add(float64(allocated))
}

// PaymentFailed records one rolled back registration.
func (r *Recorder) PaymentFailed() {
	if r == nil {
		return
	}
	r.paymentsFailed.Inc()
}

// Sweep records a sweep run; counts maps alert kind to alerts produced.
func (r *Recorder) Sweep(err error, counts map[string]int) {
	if r == nil {
		return
	}
	if err != nil {
		r.sweeps.WithLabelValues("error").Inc()
		return
	}
	r.sweeps.WithLabelValues("ok").Inc()
	for kind, n := range counts {
		r.alertsRaised.WithLabelValues(kind).Set(float64(n))
	}
}
