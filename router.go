package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lightspeed-trading/tradebook/metrics"
)

func CreateServer(
	tb *tradeBook,
	adminApiKey string,
	v *verifier,
	fnameChan chan<- string,
) *http.Server {
	server := &http.Server{
		Addr:         ":" + LOCAL_PORT,
		Handler:      newRouter(tb, adminApiKey, v, fnameChan),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     log.New(&errorLogWriter{}, "", 0), // custom error logger
	}

	return server
}

func newRouter(
	tb *tradeBook,
	adminApiKey string,
	v *verifier,
	fnameChan chan<- string,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// no auth
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		sendStructToUser(HealthResp{Status: "ok"}, w, http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler())

	// needs auth
	r.Group(func(r chi.Router) {
		r.Use(v.authoriseJWT)

		r.Get("/trades", func(w http.ResponseWriter, r *http.Request) {
			onListTrades(w, r, tb)
		})
		r.Get("/trades/{tradeID}", func(w http.ResponseWriter, r *http.Request) {
			onGetTrade(w, r, tb)
		})
		r.Get("/trades/{tradeID}/mark", func(w http.ResponseWriter, r *http.Request) {
			onMarkTrade(w, r, tb)
		})
		r.Get("/quotes/{ticker}/summary", func(w http.ResponseWriter, r *http.Request) {
			onQuoteSummary(w, r, tb)
		})
	})

	// admin specific endpoints
	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdminKey(adminApiKey))

		r.Post("/export", func(w http.ResponseWriter, r *http.Request) {
			onAdminExport(w, r, tb, fnameChan)
		})
		r.Get("/activity", func(w http.ResponseWriter, r *http.Request) {
			onAdminActivity(w, r, tb)
		})
	})

	return r
}

type errorLogWriter struct{}

func (elw *errorLogWriter) Write(p []byte) (n int, err error) {
	msg := string(p)
	if strings.HasSuffix(msg, "tls: first record does not look like a TLS handshake") {
		return len(p), nil // Suppress this specific log message
	}
	return os.Stdout.Write(p) // Log other messages
}
