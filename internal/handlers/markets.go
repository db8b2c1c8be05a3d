package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/XavierBriggs/Tyche/internal/loader"
)

// GetMarketView returns the loader view of a network, loading it on first use
func (h *Handler) GetMarketView(w http.ResponseWriter, r *http.Request) {
	networkID, ok := networkParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid network id")
		return
	}

	v, err := h.ensureLoaded(r.Context(), h.networks.ResolveID(networkID))
	if err != nil && !errors.Is(err, loader.ErrSuperseded) && !v.HasData() {
		respondJSON(w, http.StatusBadGateway, v.Summarize(h.now()))
		return
	}

	respondJSON(w, http.StatusOK, v.Summarize(h.now()))
}

// RefreshMarkets fetches a network from the vendor now. It is the manual retry.
func (h *Handler) RefreshMarkets(w http.ResponseWriter, r *http.Request) {
	networkID, ok := networkParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid network id")
		return
	}
	networkID = h.networks.ResolveID(networkID)

	l := h.loaders.Get(networkID)
	v, err := l.Refresh(r.Context())
	if errors.Is(err, loader.ErrNotLoaded) {
		v, err = l.Load(r.Context(), networkID)
	}

	switch {
	case errors.Is(err, loader.ErrSuperseded):
		respondJSON(w, http.StatusConflict, l.View().Summarize(h.now()))
	case err != nil:
		respondJSON(w, http.StatusBadGateway, v.Summarize(h.now()))
	default:
		respondJSON(w, http.StatusOK, v.Summarize(h.now()))
	}
}

// ensureLoaded returns the current view of a network, loading it when the
// loader has nothing to show yet
func (h *Handler) ensureLoaded(ctx context.Context, networkID int64) (loader.View, error) {
	l := h.loaders.Get(networkID)
	if v := l.View(); v.NetworkID == networkID && (v.HasData() || v.Loading()) {
		return v, nil
	}
	return l.Load(ctx, networkID)
}
