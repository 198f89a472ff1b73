package server

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/dr-ratings/internal/accuracy"
	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/aristath/dr-ratings/internal/ratingerr"
	"github.com/aristath/dr-ratings/internal/store"
	"github.com/aristath/dr-ratings/pkg/stats"
)

type timeframeView struct {
	RecommendAll *float64             `json:"recommend_all"`
	Rating       domain.Label         `json:"rating"`
	Prev         domain.Label         `json:"prev"`
	ChangedAt    string               `json:"changed_at"`
	History      []historyPointView   `json:"history"`
}

type historyPointView struct {
	Rating    domain.Label `json:"rating"`
	Timestamp string       `json:"timestamp"`
}

type tickerRowView struct {
	Ticker       string        `json:"ticker"`
	Currency     string        `json:"currency"`
	Price        *float64      `json:"price"`
	ChangePct    *float64      `json:"changePercent"`
	Change       *float64      `json:"change"`
	High         *float64      `json:"high"`
	Low          *float64      `json:"low"`
	Daily        timeframeView `json:"daily"`
	Weekly       timeframeView `json:"weekly"`
}

// handleFromDRAPI implements GET /ratings/from-dr-api: merged per-ticker
// current state plus full filtered change histories (spec.md §6), grounded
// on ratings_from_dr_api.
func (s *Server) handleFromDRAPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tickers, err := s.query.FromDRAPI(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("from-dr-api query failed")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"updated_at": s.dbUpdatedAt(),
			"count":      0,
			"rows":       []tickerRowView{},
			"error":      queryErrorMessage(err),
		})
		return
	}

	rows := make([]tickerRowView, 0, len(tickers))
	for _, t := range tickers {
		rows = append(rows, tickerRowView{
			Ticker:    t.Ticker,
			Currency:  t.Currency,
			Price:     t.Price,
			ChangePct: t.ChangePct,
			Change:    t.ChangeAbs,
			High:      t.High,
			Low:       t.Low,
			Daily: timeframeView{
				RecommendAll: t.DailyVal,
				Rating:       orUnknown(t.DailyRating),
				Prev:         orUnknown(t.DailyPrev),
				ChangedAt:    t.DailyChangedAt,
				History:      toHistoryView(t.DailyHistory),
			},
			Weekly: timeframeView{
				RecommendAll: t.WeeklyVal,
				Rating:       orUnknown(t.WeeklyRating),
				Prev:         orUnknown(t.WeeklyPrev),
				ChangedAt:    t.WeeklyChangedAt,
				History:      toHistoryView(t.WeeklyHistory),
			},
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"updated_at": s.dbUpdatedAt(),
		"count":      len(rows),
		"rows":       rows,
	})
}

// dbUpdatedAt reports the database file's mtime, matching
// ratings_from_dr_api's "updated_at" field literally.
func (s *Server) dbUpdatedAt() string {
	if s.cfg == nil {
		return "-"
	}
	info, err := os.Stat(s.cfg.DBFile)
	if err != nil {
		return "-"
	}
	return info.ModTime().Format("2006-01-02 15:04:05")
}

// queryErrorMessage renders err for the §7 read-endpoint error-field
// contract: transient lock contention gets a retryable-sounding message, any
// other failure a generic one, so callers can tell the two apart without
// parsing Go error text.
func queryErrorMessage(err error) string {
	if errors.Is(err, ratingerr.ErrStoreBusy) {
		return "database temporarily busy, please retry"
	}
	return "failed to load ratings data"
}

func orUnknown(l domain.Label) domain.Label {
	if l == "" {
		return domain.LabelUnknown
	}
	return l
}

func toHistoryView(points []store.HistoryPoint) []historyPointView {
	out := make([]historyPointView, 0, len(points))
	for _, p := range points {
		out = append(out, historyPointView{Rating: p.Rating, Timestamp: p.Timestamp})
	}
	return out
}

type historyAccuracyRowView struct {
	Rating    domain.Label `json:"rating"`
	Prev      domain.Label `json:"prev"`
	Timestamp string       `json:"timestamp"`
	Date      string       `json:"date"`
	PrevClose *float64     `json:"prev_close"`
	Price     *float64     `json:"result_price"`
	ChangePct *float64     `json:"change_pct"`
	ChangeAbs *float64     `json:"change_abs"`
}

// handleHistoryWithAccuracy implements
// GET /ratings/history-with-accuracy/{ticker}?timeframe=1D|1W&filter_rating=…,
// grounded on get_history_with_accuracy.
func (s *Server) handleHistoryWithAccuracy(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}
	timeframe := strings.ToUpper(r.URL.Query().Get("timeframe"))
	if timeframe != "1W" {
		timeframe = "1D"
	}
	filterRating := domain.Label(r.URL.Query().Get("filter_rating"))

	ctx := r.Context()
	rows, currentRating, prevRating, acc, err := s.query.HistoryWithAccuracy(ctx, ticker, timeframe)
	if err != nil {
		s.log.Error().Err(err).Str("ticker", ticker).Msg("history-with-accuracy query failed")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ticker": ticker,
			"error":  queryErrorMessage(err),
			"history": []historyAccuracyRowView{},
			"accuracy": map[string]interface{}{
				"accuracy":  0,
				"correct":   0,
				"incorrect": 0,
				"total":     0,
			},
		})
		return
	}

	points := make([]accuracy.HistoryPoint, 0, len(rows))
	changePcts := make([]float64, 0, len(rows))
	historyView := make([]historyAccuracyRowView, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if filterRating != "" && !strings.EqualFold(string(row.Rating), string(filterRating)) {
			continue
		}
		historyView = append(historyView, historyAccuracyRowView{
			Rating:    row.Rating,
			Prev:      row.Prev,
			Timestamp: row.Timestamp,
			Date:      row.Date,
			PrevClose: row.PrevClose,
			Price:     row.Price,
			ChangePct: row.ChangePct,
			ChangeAbs: row.ChangeAbs,
		})
		points = append(points, accuracy.HistoryPoint{Rating: row.Rating, Prev: row.Prev, ChangePct: row.ChangePct})
		if row.ChangePct != nil {
			changePcts = append(changePcts, *row.ChangePct)
		}
	}

	frontendAcc := accuracy.FrontendAccuracy(points, filterRating)

	resp := map[string]interface{}{
		"ticker":         ticker,
		"current_rating": currentRating,
		"prev_rating":    prevRating,
		"history":        historyView,
		"accuracy": map[string]interface{}{
			"accuracy":  frontendAcc.Accuracy,
			"correct":   frontendAcc.Correct,
			"incorrect": frontendAcc.Incorrect,
			"total":     frontendAcc.Total,
		},
	}
	if len(changePcts) > 1 {
		resp["volatility"] = stats.StdDev(changePcts)
	}
	if acc != nil {
		resp["currency"] = acc.Currency
		resp["price"] = acc.Price
		resp["changePercent"] = acc.ChangePct
		resp["change"] = nil
		resp["high"] = acc.High
		resp["low"] = acc.Low
		resp["persisted_accuracy"] = map[string]interface{}{
			"daily":  acc.Daily,
			"weekly": acc.Weekly,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRecalculateAccuracy implements
// POST /ratings/recalculate-accuracy/{ticker}?timeframe&window_days, a
// forced recompute against the most recent rating_history row, grounded on
// recalculate_accuracy_endpoint. timeframe and window_days are only echoed
// in the response: the recompute always covers both timeframes over the
// Calculator's configured window.
func (s *Server) handleRecalculateAccuracy(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}
	timeframe := r.URL.Query().Get("timeframe")
	windowDays := accuracy.DefaultWindowDays
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			windowDays = n
		}
	}

	ctx := r.Context()
	rows, _, _, _, err := s.query.HistoryWithAccuracy(ctx, ticker, "1D")
	if err != nil {
		s.log.Error().Err(err).Str("ticker", ticker).Msg("recalculate-accuracy lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, "no history for ticker")
		return
	}
	latest := rows[len(rows)-1]

	snapshot := domain.RatingHistory{
		Ticker:    ticker,
		Timestamp: latest.Timestamp,
		Price:     latest.Price,
		ChangePct: latest.ChangePct,
	}
	if err := s.acc.Recalculate(ctx, ticker, latest.Timestamp, snapshot); err != nil {
		s.log.Error().Err(err).Str("ticker", ticker).Msg("recalculate-accuracy failed")
		writeError(w, http.StatusInternalServerError, "recalculation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"message":     "accuracy recalculated",
		"ticker":      ticker,
		"timeframe":   timeframe,
		"window_days": windowDays,
	})
}
