package contracts

import (
	"context"

	"github.com/XavierBriggs/Tyche/pkg/models"
)

// MarketsSource fetches the raw markets snapshot of one network.
// The payload is returned as-is so proxies can forward it verbatim.
type MarketsSource interface {
	FetchMarkets(ctx context.Context, networkID int64) ([]byte, error)
}

// HistorySource fetches a bettor's ticket history
type HistorySource interface {
	FetchUserHistory(ctx context.Context, networkID int64, address string) ([]byte, error)
}

// QuoteSource prices a ticket against the vendor pricing endpoint
type QuoteSource interface {
	RequestQuote(ctx context.Context, networkID int64, req *models.QuoteRequest) (*models.QuoteResponse, error)
}

// VendorAdapter is the full surface of the betting API used by Tyche
type VendorAdapter interface {
	MarketsSource
	HistorySource
	QuoteSource
}
