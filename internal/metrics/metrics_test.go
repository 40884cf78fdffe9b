package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersAll(t *testing.T) {
	m := NewMetrics()

	m.ChatRequestsTotal.WithLabelValues("success").Inc()
	m.StreamRequestsTotal.WithLabelValues("exhausted").Inc()
	m.StreamEventsTotal.Add(3)
	m.RotationsTotal.Inc()
	m.LoginsTotal.WithLabelValues("failure").Inc()
	m.AccountsTotal.Set(4)
	m.AccountsActive.Set(2)
	m.BudgetRemaining.Set(17)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.StreamEventsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.AccountsActive))
	assert.Equal(t, float64(17), testutil.ToFloat64(m.BudgetRemaining))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ChatRequestsTotal.WithLabelValues("success").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat_requests_total")
	assert.Contains(t, rec.Body.String(), "pool_accounts_total")
}

func TestIsolatedRegistries(t *testing.T) {
	// Two instances must not collide on registration
	a := NewMetrics()
	b := NewMetrics()
	a.RotationsTotal.Inc()
	assert.Equal(t, float64(0), testutil.ToFloat64(b.RotationsTotal))
}
