package handlers

import (
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/XavierBriggs/Tyche/internal/loader"
	"github.com/XavierBriggs/Tyche/internal/quote"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/golang/glog"
)

// QuoteBody is the POST body of the quote route
type QuoteBody struct {
	GameID      string `json:"gameId"`
	TypeID      int    `json:"typeId"`
	Position    int    `json:"position"`
	BuyInAmount int    `json:"buyInAmount"`
}

// QuoteResult is the priced ticket as returned to clients
type QuoteResult struct {
	Status        quote.Status          `json:"status"`
	GameID        string                `json:"gameId"`
	HomeTeam      string                `json:"homeTeam"`
	AwayTeam      string                `json:"awayTeam"`
	Position      int                   `json:"position"`
	PositionLabel string                `json:"positionLabel"`
	BuyInAmount   int                   `json:"buyInAmount"`
	DisplayOdds   string                `json:"displayOdds,omitempty"`
	Error         string                `json:"error,omitempty"`
	Quote         *models.QuoteResponse `json:"quote,omitempty"`
}

// RequestQuote prices one position of a loaded market
func (h *Handler) RequestQuote(w http.ResponseWriter, r *http.Request) {
	networkID, ok := networkParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid network id")
		return
	}
	networkID = h.networks.ResolveID(networkID)

	var body QuoteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.BuyInAmount < models.MinBuyInAmount {
		respondError(w, http.StatusBadRequest, "buyInAmount must be at least "+strconv.Itoa(models.MinBuyInAmount))
		return
	}

	v, ok := h.marketsForQuote(w, r, networkID)
	if !ok {
		return
	}
	market, found := v.Snapshot.Find(body.GameID, body.TypeID)
	if !found {
		respondError(w, http.StatusNotFound, "market not found")
		return
	}
	if body.Position < 0 || body.Position >= len(market.Odds) {
		respondError(w, http.StatusBadRequest, "invalid position")
		return
	}

	resp, err := h.vendor.RequestQuote(r.Context(), networkID, quote.BuildRequest(market, body.Position, body.BuyInAmount))
	if err != nil {
		glog.Warningf("[Quote] %s position %d: %v", market.GameID, body.Position, err)
	}

	result := quote.Evaluate(resp, err)
	result.Position = body.Position
	result.BuyInAmount = body.BuyInAmount
	h.metrics.RecordQuote(string(result.Status))

	out := newQuoteResult(market, result)
	respondJSON(w, quoteStatus(result), out)
}

// FeelingLucky quotes a random market ending within the hour
func (h *Handler) FeelingLucky(w http.ResponseWriter, r *http.Request) {
	networkID, ok := networkParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid network id")
		return
	}
	networkID = h.networks.ResolveID(networkID)

	amount := quote.LuckyAmounts[0]
	if s := r.URL.Query().Get("amount"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || !isLuckyAmount(n) {
			respondError(w, http.StatusBadRequest, "amount must be one of 3, 5, 10")
			return
		}
		amount = n
	}

	v, ok := h.marketsForQuote(w, r, networkID)
	if !ok {
		return
	}
	pick, err := quote.PickAndQuote(r.Context(), h.vendor, networkID, v.Snapshot, amount, h.now(), rand.Intn)
	if errors.Is(err, models.ErrNoMarkets) {
		respondError(w, http.StatusNotFound, "No markets ending in the next hour")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, msgAPIError)
		return
	}
	h.metrics.RecordQuote(string(pick.Result.Status))

	respondJSON(w, quoteStatus(pick.Result), newQuoteResult(pick.Market, pick.Result))
}

// marketsForQuote returns a view with markets to quote against, or writes the
// load failure: 502 with the loader message, 503 while the first fetch runs
func (h *Handler) marketsForQuote(w http.ResponseWriter, r *http.Request, networkID int64) (loader.View, bool) {
	v, err := h.ensureLoaded(r.Context(), networkID)
	if v.HasData() {
		return v, true
	}

	switch {
	case err != nil && !errors.Is(err, loader.ErrSuperseded), v.State == loader.StateError:
		msg := v.Err
		if msg == "" && err != nil {
			msg = err.Error()
		}
		respondError(w, http.StatusBadGateway, msg)
		return v, false
	case v.Loading() || errors.Is(err, loader.ErrSuperseded):
		respondError(w, http.StatusServiceUnavailable, msgMarketsLoading)
		return v, false
	}
	return v, true
}

func newQuoteResult(m models.MarketRecord, r quote.Result) QuoteResult {
	return QuoteResult{
		Status:        r.Status,
		GameID:        m.GameID,
		HomeTeam:      m.HomeTeam,
		AwayTeam:      m.AwayTeam,
		Position:      r.Position,
		PositionLabel: m.PositionLabel(r.Position),
		BuyInAmount:   r.BuyInAmount,
		DisplayOdds:   r.DisplayOdds,
		Error:         r.Err,
		Quote:         r.Quote,
	}
}

// quoteStatus maps a settled quote to an HTTP status: transport failures
// are 502, vendor refusals 422
func quoteStatus(r quote.Result) int {
	switch {
	case r.Status == quote.StatusReady:
		return http.StatusOK
	case r.Err == quote.FetchFailedMessage:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func isLuckyAmount(n int) bool {
	for _, a := range quote.LuckyAmounts {
		if a == n {
			return true
		}
	}
	return false
}
