package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("media:sweep").End(nil))
	err := errors.New("boom")
	assert.Same(t, err, m.Track("media:sweep").End(err))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("media:sweep", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("media:sweep", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("media:sweep")))
}

func TestAddSwept(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddSwept("removed", 3)
	m.AddSwept("removed", 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.swept.WithLabelValues("removed")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddSwept("removed", 1)
	assert.NoError(t, m.Track("mail:send").End(nil))
}
