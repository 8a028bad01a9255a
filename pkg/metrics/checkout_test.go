package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCheckoutMetricsCountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.IncCheckoutSession("created")
	m.IncCheckoutSession("created")
	m.IncCheckoutSession("empty_cart")
	m.IncLineItemMapping("any_variant")
	m.IncReconciled("")
	m.IncWebhookEvent("checkout.session.completed", "processed")
	m.ObserveProviderCall("create_session", 120*time.Millisecond)
	m.IncOutboxPublish("order_paid", "published")
	m.SetOutboxBacklog(7)

	if got := testutil.ToFloat64(m.sessions.WithLabelValues("created")); got != 2 {
		t.Fatalf("expected created=2, got %f", got)
	}
	if got := testutil.ToFloat64(m.sessions.WithLabelValues("empty_cart")); got != 1 {
		t.Fatalf("expected empty_cart=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.mappings.WithLabelValues("any_variant")); got != 1 {
		t.Fatalf("expected any_variant=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.reconciled.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected empty label normalized to unknown, got %f", got)
	}
	if got := testutil.ToFloat64(m.backlog); got != 7 {
		t.Fatalf("expected backlog 7, got %f", got)
	}
	if got := testutil.CollectAndCount(m.providerTime); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *CheckoutMetrics
	m.IncCheckoutSession("created")
	m.IncReconciled("created")
	m.IncLineItemMapping("cart")
	m.IncWebhookEvent("x", "y")
	m.ObserveProviderCall("op", time.Second)
	m.IncOutboxPublish("order_paid", "failed")
	m.SetOutboxBacklog(3)

	unregistered := NewCheckoutMetrics(nil)
	unregistered.IncCheckoutSession("created")
}

func TestHandlerServesExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)
	m.IncCheckoutSession("created")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `checkout_sessions_total{outcome="created"} 1`) {
		t.Fatalf("expected counter in exposition, got %s", rec.Body.String())
	}
}
