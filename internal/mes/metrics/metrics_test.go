package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserverCounters(t *testing.T) {
	m := New()
	m.Hit("inventory")
	m.Hit("inventory")
	m.Miss("inventory")
	m.Loaded("inventory", 150*time.Millisecond)
	m.ObserveMutation("stock_out", "insufficient_stock")

	if got := testutil.ToFloat64(m.cacheHits.WithLabelValues("inventory")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cacheMisses.WithLabelValues("inventory")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.mutations.WithLabelValues("stock_out", "insufficient_stock")); got != 1 {
		t.Errorf("mutations = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.GaugeFunc("mes_sse_clients", "Connected SSE clients", func() float64 { return 3 })
	m.ObserveMutation("update_field", "ok")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	for _, want := range []string{
		`mes_mutations_total{op="update_field",outcome="ok"} 1`,
		"mes_sse_clients 3",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
