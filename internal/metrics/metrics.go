package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zsphere"

// Metrics never carries a label derived from a secret value, so round
// outcomes are not observable here.
type Metrics struct {
	gamesStarted     prometheus.Counter
	roundsPlayed     prometheus.Counter
	txRejected       *prometheus.CounterVec
	roundEvalSeconds prometheus.Histogram
	decryptRequests  *prometheus.CounterVec
	decryptHandles   prometheus.Counter
}

func New(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		gamesStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "games_started_total",
				Help:      "Number of games started",
			},
		),
		roundsPlayed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_played_total",
				Help:      "Number of rounds applied",
			},
		),
		txRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tx_rejected_total",
				Help:      "Number of transactions rejected, by reason",
			},
			[]string{"reason"},
		),
		roundEvalSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "round_eval_seconds",
				Help:      "Time spent verifying and evaluating one round",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		decryptRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decrypt_requests_total",
				Help:      "Number of user decryption requests, by result",
			},
			[]string{"result"},
		),
		decryptHandles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decrypt_handles_total",
				Help:      "Number of handles re-encrypted for users",
			},
		),
	}

	registerer.MustRegister(m.gamesStarted)
	registerer.MustRegister(m.roundsPlayed)
	registerer.MustRegister(m.txRejected)
	registerer.MustRegister(m.roundEvalSeconds)
	registerer.MustRegister(m.decryptRequests)
	registerer.MustRegister(m.decryptHandles)

	return &m
}

// All recorders accept a nil receiver so callers can run without metrics.

func (m *Metrics) GameStarted() {
	if m == nil {
		return
	}
	m.gamesStarted.Inc()
}

func (m *Metrics) RoundPlayed(eval time.Duration) {
	if m == nil {
		return
	}
	m.roundsPlayed.Inc()
	m.roundEvalSeconds.Observe(eval.Seconds())
}

func (m *Metrics) TxRejected(reason string) {
	if m == nil {
		return
	}
	m.txRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) DecryptRequest(result string, handles int) {
	if m == nil {
		return
	}
	m.decryptRequests.WithLabelValues(result).Inc()
	if handles > 0 {
		m.decryptHandles.Add(float64(handles))
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
