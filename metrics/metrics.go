package metrics

import (
	"time"

	"github.com/Layr-Labs/eigensdk-go/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is what the transfer pipeline reports to.
type Recorder interface {
	IncStep(step, status string)
	IncUserOp(status string)
	ObserveConfirmation(elapsed time.Duration)
	SetAccountBalance(balance float64)
}

// TransferMetrics exposes the pipeline counters next to the eigensdk node metrics,
// served by the embedded EigenMetrics.Start.
type TransferMetrics struct {
	metrics.Metrics

	numStep          *prometheus.CounterVec
	numUserOp        *prometheus.CounterVec
	confirmationTime prometheus.Histogram
	accountBalance   prometheus.Gauge
}

const bridgeNamespace = "aa_bridge"

func NewTransferMetrics(eigenMetrics *metrics.EigenMetrics, reg prometheus.Registerer) *TransferMetrics {
	return &TransferMetrics{
		Metrics: eigenMetrics,

		numStep: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: bridgeNamespace,
				Name:      "pipeline_steps_total",
				Help:      "The number of transfer pipeline steps run, by step and outcome",
			}, []string{"step", "status"}),

		numUserOp: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: bridgeNamespace,
				Name:      "user_operations_total",
				Help:      "The number of user operations by final status: confirmed, reverted, timeout, failed",
			}, []string{"status"}),

		confirmationTime: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: bridgeNamespace,
				Name:      "user_operation_confirmation_seconds",
				Help:      "Time from bundler acceptance to the UserOperationEvent",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
			}),

		accountBalance: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: bridgeNamespace,
				Name:      "smart_account_token_balance",
				Help:      "Token balance of the smart account after funding, in whole tokens",
			}),
	}
}

func (m *TransferMetrics) IncStep(step, status string) {
	m.numStep.WithLabelValues(step, status).Inc()
}

func (m *TransferMetrics) IncUserOp(status string) {
	m.numUserOp.WithLabelValues(status).Inc()
}

func (m *TransferMetrics) ObserveConfirmation(elapsed time.Duration) {
	m.confirmationTime.Observe(elapsed.Seconds())
}

func (m *TransferMetrics) SetAccountBalance(balance float64) {
	m.accountBalance.Set(balance)
}

// NoopRecorder is used when no metrics address is configured.
type NoopRecorder struct{}

func (NoopRecorder) IncStep(step, status string)               {}
func (NoopRecorder) IncUserOp(status string)                   {}
func (NoopRecorder) ObserveConfirmation(elapsed time.Duration) {}
func (NoopRecorder) SetAccountBalance(balance float64)         {}

func EnsureRecorder(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
