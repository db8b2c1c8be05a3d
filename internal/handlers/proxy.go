package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/XavierBriggs/Tyche/adapters/overtime"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"
)

const (
	// DefaultProxyNetwork is the network served by GET /api/markets
	DefaultProxyNetwork int64 = 10

	msgMarketsFailed  = "Failed to fetch markets"
	msgProfileFailed  = "Failed to fetch user profile"
	msgAPIError       = "API error"
	msgMarketsLoading = "markets loading"
)

// GetDefaultMarkets proxies the markets of the default network
func (h *Handler) GetDefaultMarkets(w http.ResponseWriter, r *http.Request) {
	h.proxyMarkets(w, r, DefaultProxyNetwork)
}

// GetMarkets proxies the markets of the network in the path
func (h *Handler) GetMarkets(w http.ResponseWriter, r *http.Request) {
	networkID, ok := networkParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid network id")
		return
	}
	h.proxyMarkets(w, r, networkID)
}

// GetProfile proxies a wallet's ticket history
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	networkID, ok := networkParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid network id")
		return
	}
	address := chi.URLParam(r, "address")

	body, err := h.vendor.FetchUserHistory(r.Context(), networkID, address)
	h.forward(w, body, err, msgProfileFailed)
}

// GetHistory returns a wallet's tickets with every group present
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	networkID, ok := networkParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid network id")
		return
	}
	address := chi.URLParam(r, "address")

	body, err := h.vendor.FetchUserHistory(r.Context(), networkID, address)
	if err != nil {
		h.forward(w, nil, err, msgProfileFailed)
		return
	}

	history, err := models.ParseUserHistory(body)
	if err != nil {
		var vendorErr *models.VendorError
		if errors.As(err, &vendorErr) {
			respondError(w, http.StatusBadGateway, vendorErr.Message)
			return
		}
		glog.Warningf("[Proxy] decode history of %s on network %d: %v", address, networkID, err)
		respondError(w, http.StatusInternalServerError, msgAPIError)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

func (h *Handler) proxyMarkets(w http.ResponseWriter, r *http.Request, networkID int64) {
	body, err := h.vendor.FetchMarkets(r.Context(), networkID)
	if err == nil {
		glog.V(1).Infof("[Proxy] network %d: %d bytes of markets", networkID, len(body))
	}
	h.forward(w, body, err, msgMarketsFailed)
}

// forward writes a vendor result: the body verbatim on success, failMsg
// with the vendor status on a non-2xx, API error on anything else
func (h *Handler) forward(w http.ResponseWriter, body []byte, err error, failMsg string) {
	if err != nil {
		var httpErr *overtime.HTTPError
		if errors.As(err, &httpErr) {
			glog.Warningf("[Proxy] vendor returned %d: %s", httpErr.StatusCode, string(httpErr.Body))
			respondError(w, httpErr.StatusCode, failMsg)
			return
		}
		glog.Errorf("[Proxy] vendor request failed: %v", err)
		respondError(w, http.StatusInternalServerError, msgAPIError)
		return
	}

	if !json.Valid(body) {
		glog.Errorf("[Proxy] vendor returned a non-JSON body (%d bytes)", len(body))
		respondError(w, http.StatusInternalServerError, msgAPIError)
		return
	}

	respondRaw(w, http.StatusOK, body)
}
