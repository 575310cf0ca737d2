package marketdata

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cli := NewClient("test-key")
	cli.BaseURL = srv.URL
	return cli
}

func TestLastTrade(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/last/trade/O:NVDA250117C00118000" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		w.Write([]byte(`{"status":"OK","request_id":"x","results":{"T":"O:NVDA250117C00118000","p":4.35,"s":3,"t":1725374400000000000}}`))
	})

	lt, err := cli.LastTrade(context.Background(), "O:NVDA250117C00118000")
	if err != nil {
		t.Fatalf("failed to get last trade, %v", err)
	}
	if !lt.Price.Equal(d("4.35")) {
		t.Fatalf("expected 4.35, got %s", lt.Price)
	}
	if lt.Time().Year() != 2024 {
		t.Fatalf("unexpected time %s", lt.Time())
	}
}

func TestLastTrade_APIError(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"ERROR","request_id":"x","error":"Unknown API Key"}`))
	})

	_, err := cli.LastTrade(context.Background(), "SPY")
	if err == nil || !strings.Contains(err.Error(), "Unknown API Key") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestLastTrade_NoResults(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","request_id":"x"}`))
	})

	if _, err := cli.LastTrade(context.Background(), "ZZZZ"); err == nil {
		t.Fatalf("expected ErrNoData")
	}
}

func TestAggregates(t *testing.T) {
	cli := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/aggs/ticker/SPY/range/1/day/2024-09-03/2024-09-05" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("sort") != "asc" {
			t.Errorf("expected ascending sort")
		}
		w.Write([]byte(`{"ticker":"SPY","status":"OK","resultsCount":3,"results":[
			{"o":550,"h":552,"l":549,"c":550,"v":1000,"vw":550.5,"t":1725336000000},
			{"o":550,"h":556,"l":550,"c":555,"v":2000,"vw":553,"t":1725422400000},
			{"o":555,"h":561,"l":554,"c":560,"v":3000,"vw":558,"t":1725508800000}
		]}`))
	})

	from := time.Date(2024, 9, 3, 0, 0, 0, 0, time.UTC)
	bars, err := cli.Aggregates(context.Background(), "SPY", from, from.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("failed to get aggregates, %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}

	s := Summarize(bars)
	if !s.Mean.Equal(d("555")) || !s.Min.Equal(d("550")) || !s.Max.Equal(d("560")) {
		t.Fatalf("unexpected summary %+v", s)
	}
	if !s.TotalVolume.Equal(d("6000")) {
		t.Fatalf("expected volume 6000, got %s", s.TotalVolume)
	}
	if math.Abs(s.StdDev-5) > 1e-9 {
		t.Fatalf("expected stddev 5, got %f", s.StdDev)
	}
	if !s.PercentChange.Valid || s.PercentChange.Decimal.StringFixed(4) != "1.8182" {
		t.Fatalf("unexpected percent change %s", s.PercentChange.Decimal)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Count != 0 || s.PercentChange.Valid {
		t.Fatalf("expected empty summary, got %+v", s)
	}
}

func TestOptionTicker(t *testing.T) {
	exp := time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		underlying, optType, strike string
		want                        string
	}{
		{"NVDA", "CALL", "118", "O:NVDA250117C00118000"},
		{"spy", "p", "432.5", "O:SPY250117P00432500"},
		{"F", "C", "12.125", "O:F250117C00012125"},
	}

	for _, tt := range tests {
		got, err := OptionTicker(tt.underlying, exp, tt.optType, d(tt.strike))
		if err != nil {
			t.Fatalf("%v: %v", tt, err)
		}
		if got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}

	if _, err := OptionTicker("NVDA", exp, "STRADDLE", d("1")); err == nil {
		t.Errorf("expected error for bad option type")
	}
	if _, err := OptionTicker("NVDA", exp, "CALL", d("1.0005")); err == nil {
		t.Errorf("expected error for sub-mill strike")
	}
}
