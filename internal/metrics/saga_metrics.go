package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics содержит метрики оркестратора саг.
type SagaMetrics struct {
	// Счётчики результатов саг
	sagaStarted     prometheus.Counter
	sagaCompleted   prometheus.Counter
	sagaCompensated prometheus.Counter
	sagaFailed      prometheus.Counter
	sagaCancelled   prometheus.Counter

	// Счётчики шагов по результату
	stepCompleted   *prometheus.CounterVec
	stepFailed      *prometheus.CounterVec
	stepCompensated *prometheus.CounterVec

	// Гистограммы времени выполнения
	sagaDuration prometheus.Histogram
	stepDuration *prometheus.HistogramVec

	// Счётчики событий журнала и outbox
	orderEvents  prometheus.Counter
	outboxEvents prometheus.Counter

	// Gauge активных саг
	activeSagas prometheus.Gauge
}

// NewSagaMetrics создаёт метрики с регистрацией в default registerer.
func NewSagaMetrics() *SagaMetrics {
	return newSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		sagaStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "foodorder_saga_started_total",
			Help: "Total number of order sagas started",
		}),
		sagaCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "foodorder_saga_completed_total",
			Help: "Total number of order sagas completed successfully",
		}),
		sagaCompensated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "foodorder_saga_compensated_total",
			Help: "Total number of order sagas that finished compensation cleanly",
		}),
		sagaFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "foodorder_saga_failed_total",
			Help: "Total number of order sagas needing manual reconciliation",
		}),
		sagaCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "foodorder_saga_cancelled_total",
			Help: "Total number of customer-initiated saga cancellations",
		}),
		stepCompleted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "foodorder_saga_step_completed_total",
			Help: "Total number of completed saga steps",
		}, []string{"step"}),
		stepFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "foodorder_saga_step_failed_total",
			Help: "Total number of failed saga steps",
		}, []string{"step"}),
		stepCompensated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "foodorder_saga_step_compensated_total",
			Help: "Total number of compensated saga steps",
		}, []string{"step"}),
		sagaDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "foodorder_saga_duration_seconds",
			Help:    "Duration of order sagas in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "foodorder_saga_step_duration_seconds",
			Help:    "Duration of individual saga steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		orderEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "foodorder_order_events_total",
			Help: "Total number of order journal events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "foodorder_outbox_events_total",
			Help: "Total number of events enqueued to transactional outbox",
		}),
		activeSagas: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "foodorder_active_sagas",
			Help: "Number of currently running order sagas",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSagaStarted увеличивает счётчик запущенных саг и gauge активных.
func (m *SagaMetrics) RecordSagaStarted() {
	m.sagaStarted.Inc()
	m.activeSagas.Inc()
}

// RecordSagaFinished уменьшает gauge активных саг.
func (m *SagaMetrics) RecordSagaFinished() {
	m.activeSagas.Dec()
}

// RecordSagaCompleted увеличивает счётчик успешных саг.
func (m *SagaMetrics) RecordSagaCompleted() {
	m.sagaCompleted.Inc()
}

// RecordSagaCompensated увеличивает счётчик чисто откатанных саг.
func (m *SagaMetrics) RecordSagaCompensated() {
	m.sagaCompensated.Inc()
}

// RecordSagaFailed увеличивает счётчик саг, требующих оператора.
func (m *SagaMetrics) RecordSagaFailed() {
	m.sagaFailed.Inc()
}

// RecordSagaCancelled увеличивает счётчик клиентских отмен.
func (m *SagaMetrics) RecordSagaCancelled() {
	m.sagaCancelled.Inc()
}

// RecordStepCompleted учитывает успешный шаг и его длительность.
func (m *SagaMetrics) RecordStepCompleted(step string, duration time.Duration) {
	m.stepCompleted.WithLabelValues(step).Inc()
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordStepFailed учитывает провалившийся шаг.
func (m *SagaMetrics) RecordStepFailed(step string) {
	m.stepFailed.WithLabelValues(step).Inc()
}

// RecordStepCompensated учитывает компенсированный шаг.
func (m *SagaMetrics) RecordStepCompensated(step string) {
	m.stepCompensated.WithLabelValues(step).Inc()
}

// RecordSagaDuration записывает полную длительность саги.
func (m *SagaMetrics) RecordSagaDuration(duration time.Duration) {
	m.sagaDuration.Observe(duration.Seconds())
}

// RecordOrderEvent увеличивает счётчик событий журнала.
func (m *SagaMetrics) RecordOrderEvent() {
	m.orderEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик записей в outbox.
func (m *SagaMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
