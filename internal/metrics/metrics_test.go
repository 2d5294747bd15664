package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPushDispatchedCounter(t *testing.T) {
	before := testutil.ToFloat64(pushDispatches.WithLabelValues("fcm", PushSent))
	PushDispatched("fcm", PushSent)
	after := testutil.ToFloat64(pushDispatches.WithLabelValues("fcm", PushSent))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestSubscriberGauge(t *testing.T) {
	before := testutil.ToFloat64(realtimeSubscribers)
	SubscriberAdded()
	SubscriberAdded()
	SubscriberRemoved()
	if got := testutil.ToFloat64(realtimeSubscribers) - before; got != 1 {
		t.Errorf("gauge delta = %v, want 1", got)
	}
	SubscriberRemoved()
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveRequest("GET", "GET /health", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "closeshop_http_requests_total") {
		t.Error("expected request counter in exposition")
	}
}
