package metrics

import (
	"fmt"

	"github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsOnlyLogger tags errors raised while collecting, so they are not mistaken for transfer failures.
type MetricsOnlyLogger struct {
	logging.Logger
}

func (l *MetricsOnlyLogger) Error(msg string, keysAndValues ...interface{}) {
	l.Logger.Error(fmt.Sprintf("[METRICS ONLY] %s", msg), keysAndValues...)
}

func (l *MetricsOnlyLogger) Errorf(format string, args ...interface{}) {
	l.Logger.Errorf("[METRICS ONLY] "+format, args...)
}

// StatusCounter returns how many journal records ended in status.
type StatusCounter func(status string) (uint64, error)

// JournalCollector reports the transfer journal totals at scrape time.
type JournalCollector struct {
	count    StatusCounter
	statuses []string
	logger   logging.Logger

	transfers *prometheus.GaugeVec
}

func NewJournalCollector(count StatusCounter, statuses []string, logger logging.Logger) *JournalCollector {
	return &JournalCollector{
		count:    count,
		statuses: statuses,
		logger:   &MetricsOnlyLogger{Logger: logger},

		transfers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: bridgeNamespace,
				Subsystem: "journal",
				Name:      "transfers",
				Help:      "Transfers recorded in the local journal, by status",
			},
			[]string{"status"},
		),
	}
}

func (c *JournalCollector) Describe(ch chan<- *prometheus.Desc) {
	c.transfers.Describe(ch)
}

func (c *JournalCollector) Collect(ch chan<- prometheus.Metric) {
	for _, status := range c.statuses {
		total, err := c.count(status)
		if err != nil {
			c.logger.Error("cannot read journal counter", "status", status, "error", err)
			continue
		}
		c.transfers.WithLabelValues(status).Set(float64(total))
	}

	c.transfers.Collect(ch)
}
