package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.GameStarted()
	m.RoundPlayed(3 * time.Millisecond)
	m.RoundPlayed(5 * time.Millisecond)
	m.TxRejected("invalid_proof")
	m.DecryptRequest("ok", 4)

	require.Equal(t, 1.0, testutil.ToFloat64(m.gamesStarted))
	require.Equal(t, 2.0, testutil.ToFloat64(m.roundsPlayed))
	require.Equal(t, 1.0, testutil.ToFloat64(m.txRejected.WithLabelValues("invalid_proof")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.decryptHandles))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.GameStarted()
	m.RoundPlayed(time.Second)
	m.TxRejected("x")
	m.DecryptRequest("ok", 1)
}
