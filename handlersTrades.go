package main

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lightspeed-trading/tradebook/db"
	"github.com/lightspeed-trading/tradebook/ledger"
	"github.com/shopspring/decimal"
)

type HealthResp struct {
	Status string `json:"status"`
}

type ListTradesResp struct {
	Err    string     `json:"error"`
	Trades []db.Trade `json:"trades,omitempty"`
}

type GetTradeResp struct {
	Err   string       `json:"error"`
	Trade *TradeDetail `json:"trade,omitempty"`
}

type MarkTradeResp struct {
	Err  string     `json:"error"`
	Mark *TradeMark `json:"mark,omitempty"`
}

type QuoteSummaryResp struct {
	Err     string        `json:"error"`
	Summary *QuoteSummary `json:"summary,omitempty"`
}

type ExportResp struct {
	Err      string `json:"error"`
	Filename string `json:"filename,omitempty"`
	Queued   bool   `json:"queued"`
}

type ActivityResp struct {
	Err  string `json:"error"`
	Logs string `json:"logs,omitempty"`
}

// GET /trades?status=open|closed, all trades without a status
func onListTrades(w http.ResponseWriter, r *http.Request, tb *tradeBook) {
	resp := ListTradesResp{Trades: []db.Trade{}}

	userID, err := extractUserID(r)
	if err != nil {
		resp.Err = "Authorization error"
		sendStructToUser(resp, w, 401)
		return
	}

	var status db.TradeStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err = db.ParseTradeStatus(raw)
		if err != nil {
			resp.Err = "status must be open or closed"
			sendStructToUser(resp, w, 400)
			return
		}
	}
	log.Printf("%s : received onListTrades request (status %q)", userID, status)

	trades, err := tb.ListTrades(r.Context(), status)
	if err != nil {
		log.Printf("%s : failed to list trades, %v", userID, err)
		resp.Err = "Internal server error"
		sendStructToUser(resp, w, 500)
		return
	}

	resp.Trades = trades
	sendStructToUser(resp, w, 200)
}

// GET /trades/{tradeID}
func onGetTrade(w http.ResponseWriter, r *http.Request, tb *tradeBook) {
	resp := GetTradeResp{}
	tradeID := chi.URLParam(r, "tradeID")

	detail, err := tb.GetTrade(r.Context(), tradeID)
	if err != nil {
		resp.Err, err = tradeErrStatus(err)
		sendStructToUser(resp, w, httpCodeFor(err))
		return
	}

	resp.Trade = &detail
	sendStructToUser(resp, w, 200)
}

// GET /trades/{tradeID}/mark?price=, quotes the last trade if no price is given
func onMarkTrade(w http.ResponseWriter, r *http.Request, tb *tradeBook) {
	resp := MarkTradeResp{}
	tradeID := chi.URLParam(r, "tradeID")

	var mark decimal.NullDecimal
	if raw := r.URL.Query().Get("price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			resp.Err = "price must be a number"
			sendStructToUser(resp, w, 400)
			return
		}
		mark = decimal.NewNullDecimal(price)
	}

	tm, err := tb.MarkTrade(r.Context(), tradeID, mark)
	if err != nil {
		resp.Err, err = tradeErrStatus(err)
		sendStructToUser(resp, w, httpCodeFor(err))
		return
	}

	resp.Mark = &tm
	sendStructToUser(resp, w, 200)
}

// GET /quotes/{ticker}/summary?from=&to=, dates as 2006-01-02. defaults to
// the 30 days up to today
func onQuoteSummary(w http.ResponseWriter, r *http.Request, tb *tradeBook) {
	resp := QuoteSummaryResp{}
	ticker := chi.URLParam(r, "ticker")

	to := tb.now().UTC().Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			resp.Err = "to must be a date like 2006-01-02"
			sendStructToUser(resp, w, 400)
			return
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			resp.Err = "from must be a date like 2006-01-02"
			sendStructToUser(resp, w, 400)
			return
		}
		from = parsed
	}
	if from.After(to) {
		resp.Err = "from must not be after to"
		sendStructToUser(resp, w, 400)
		return
	}

	summary, err := tb.SummarizeQuotes(r.Context(), ticker, from, to)
	if err != nil {
		resp.Err, err = tradeErrStatus(err)
		sendStructToUser(resp, w, httpCodeFor(err))
		return
	}

	resp.Summary = &summary
	sendStructToUser(resp, w, 200)
}

// POST /admin/export?days=, writes the xlsx and queues it for the discord bot
func onAdminExport(w http.ResponseWriter, r *http.Request, tb *tradeBook, fnameChan chan<- string) {
	resp := ExportResp{}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		d, err := parsePositiveInt(raw)
		if err != nil {
			resp.Err = "days must be a positive integer"
			sendStructToUser(resp, w, 400)
			return
		}
		days = d
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	filename, err := prepForExport(r.Context(), tb.store, since)
	if err != nil {
		log.Printf("tradesExporter : failed admin export, %v", err)
		resp.Err = "Internal server error"
		sendStructToUser(resp, w, 500)
		return
	}
	resp.Filename = filename

	select {
	case fnameChan <- filename:
		resp.Queued = true
	default:
		log.Printf("tradesExporter : bot not ready, %s not queued", filename)
	}
	sendStructToUser(resp, w, 200)
}

// GET /admin/activity
func onAdminActivity(w http.ResponseWriter, r *http.Request, tb *tradeBook) {
	resp := ActivityResp{}

	logs, err := tb.activity.Get()
	if err != nil {
		log.Printf("failed to read activity log, %v", err)
		resp.Err = "Internal server error"
		sendStructToUser(resp, w, 500)
		return
	}

	resp.Logs = logs
	sendStructToUser(resp, w, 200)
}

// user facing message for a trade book error. the returned error is the
// one to pick the status code from.
func tradeErrStatus(err error) (string, error) {
	switch {
	case errors.Is(err, db.ErrNoTrade),
		errors.Is(err, ledger.ErrClosedPosition),
		errors.Is(err, ledger.ErrInvalidFill),
		errors.Is(err, ErrNoQuote):
		return err.Error(), err
	}
	log.Printf("trade request failed, %v", err)
	return "Internal server error", err
}

func httpCodeFor(err error) int {
	switch {
	case errors.Is(err, db.ErrNoTrade):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrClosedPosition):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidFill):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoQuote):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
