package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordProxy("markets", 200, time.Millisecond)
		m.RecordCacheRead("hit")
		m.RecordFetch(10, "ok")
		m.RecordQuote("ready")
		m.SetWebsocketClients(3)
	})
}

func TestRecordFetch(t *testing.T) {
	m := New()

	m.RecordFetch(10, "ok")
	m.RecordFetch(10, "ok")
	m.RecordFetch(10, "error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoaderFetches.WithLabelValues("10", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoaderFetches.WithLabelValues("10", "error")))
}

func TestUpdateSnapshot(t *testing.T) {
	m := New()

	m.UpdateSnapshot(10, 42, 3)
	m.UpdateSnapshot(10, 40, 0)

	assert.Equal(t, 40.0, testutil.ToFloat64(m.SnapshotMarkets.WithLabelValues("10")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RejectedRecords.WithLabelValues("10")))
}
