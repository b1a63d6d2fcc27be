package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("approve", time.Now(), "ok")
	m.ObserveOperation("approve", time.Now(), "already_reviewed")
	m.ObserveOperation("approve", time.Now(), "ok")

	assert.InDelta(t, 2, testutil.ToFloat64(m.Transitions.WithLabelValues("approve", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Transitions.WithLabelValues("approve", "already_reviewed")), 0)
}

func TestRepairsAndProvisionItems(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementRepairs(3)
	m.IncrementProvisionItem("created")

	assert.InDelta(t, 3, testutil.ToFloat64(m.Repairs), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ProvisionItems.WithLabelValues("created")), 0)
}
