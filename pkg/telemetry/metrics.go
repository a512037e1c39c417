package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics exposes Prometheus observability primitives for the bot.
type Metrics struct {
	events          *prometheus.CounterVec
	readings        *prometheus.CounterVec
	charges         prometheus.Counter
	payments        prometheus.Counter
	rejectedInputs  *prometheus.CounterVec
	storageFailures prometheus.Counter
}

// NewMetrics registers and returns Prometheus metrics.
func NewMetrics() *Metrics {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "utilibot_events_total",
		Help: "Counts inbound chat events by kind.",
	}, []string{"kind"})

	readings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "utilibot_readings_total",
		Help: "Counts accepted meter readings by outcome.",
	}, []string{"outcome"})

	charges := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "utilibot_charges_total",
		Help: "Counts charges created by the billing engine.",
	})

	payments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "utilibot_payments_total",
		Help: "Counts recorded payments.",
	})

	rejectedInputs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "utilibot_rejected_inputs_total",
		Help: "Counts inputs rejected by validation, by dialogue step.",
	}, []string{"step"})

	storageFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "utilibot_storage_failures_total",
		Help: "Counts storage errors surfaced to users.",
	})

	prometheus.MustRegister(events, readings, charges, payments, rejectedInputs, storageFailures)

	return &Metrics{
		events:          events,
		readings:        readings,
		charges:         charges,
		payments:        payments,
		rejectedInputs:  rejectedInputs,
		storageFailures: storageFailures,
	}
}

func (m *Metrics) IncEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncReading(outcome string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCharge() {
	if m == nil {
		return
	}
	m.charges.Inc()
}

func (m *Metrics) IncPayment() {
	if m == nil {
		return
	}
	m.payments.Inc()
}

func (m *Metrics) IncRejectedInput(step string) {
	if m == nil {
		return
	}
	m.rejectedInputs.WithLabelValues(step).Inc()
}

func (m *Metrics) IncStorageFailure() {
	if m == nil {
		return
	}
	m.storageFailures.Inc()
}

var Module = fx.Module("telemetry",
	fx.Provide(NewMetrics),
)
