package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Delivery("delivered")
	m.CampaignStarted()
	m.CampaignFinished("completed")
	m.Alert("sent")
	m.RegisterSubscriberGauges(func() float64 { return 1 }, func() float64 { return 1 })
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Delivery("delivered")
	m.Delivery("delivered")
	m.Delivery("unreachable")
	m.RegisterSubscriberGauges(func() float64 { return 5 }, func() float64 { return 3 })

	require.Equal(t, 2.0, testutil.ToFloat64(m.deliveries.WithLabelValues("delivered")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `pricebot_broadcast_deliveries_total{outcome="unreachable"} 1`), body)
	require.True(t, strings.Contains(body, "pricebot_subscribers_active 3"), body)
}
