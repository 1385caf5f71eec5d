package sam

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Session. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Operations   *prometheus.CounterVec
	RowsWritten  prometheus.Counter
	BytesRead    prometheus.Counter
	PollDuration *prometheus.HistogramVec
	Hangs        prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "samdap_operations_total",
				Help: "Number of NVM sequencer operations by name and result",
			},
			[]string{"operation", "result"},
		),
		RowsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "samdap_rows_written_total",
				Help: "Number of 256-byte flash rows erased and written",
			},
		),
		BytesRead: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "samdap_bytes_read_total",
				Help: "Number of flash bytes read back from the target",
			},
		),
		PollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "samdap_poll_duration_seconds",
				Help:    "Time spent waiting for NVM and DSU completion flags",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"register"},
		),
		Hangs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "samdap_poll_timeouts_total",
				Help: "Number of completion polls that hit the timeout",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Operations, m.RowsWritten, m.BytesRead, m.PollDuration, m.Hangs)
	}
	return m
}

func (m *Metrics) observeOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) observePoll(register string, d time.Duration, hung bool) {
	if m == nil {
		return
	}
	m.PollDuration.WithLabelValues(register).Observe(d.Seconds())
	if hung {
		m.Hangs.Inc()
	}
}

func (m *Metrics) rowWritten() {
	if m != nil {
		m.RowsWritten.Inc()
	}
}

func (m *Metrics) bytesRead(n int) {
	if m != nil {
		m.BytesRead.Add(float64(n))
	}
}
