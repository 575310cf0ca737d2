package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/trades/{tradeID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/trades/{tradeID}", "404"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/trades/abc123", nil))

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/trades/{tradeID}", "404"))
	if after-before != 1 {
		t.Fatalf("expected one request recorded against the pattern, got %f", after-before)
	}
}

func TestFillsTotal(t *testing.T) {
	before := testutil.ToFloat64(FillsTotal.WithLabelValues("TRIM"))
	FillsTotal.WithLabelValues("TRIM").Inc()
	if testutil.ToFloat64(FillsTotal.WithLabelValues("TRIM"))-before != 1 {
		t.Fatalf("expected counter to increase by 1")
	}
}

func TestRealizedPnLIsNamedAsAGauge(t *testing.T) {
	if n := testutil.CollectAndCount(RealizedPnL, "tradebook_realized_pnl"); n != 1 {
		t.Fatalf("expected tradebook_realized_pnl to be collected once, got %d", n)
	}
}
