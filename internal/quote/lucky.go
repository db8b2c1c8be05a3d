package quote

import (
	"context"
	"time"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/golang/glog"
)

// LuckyAmounts are the stakes offered by the feeling lucky flow
var LuckyAmounts = []int{3, 5, 10}

// LuckyWindow bounds how soon a lucky pick must mature
const LuckyWindow = time.Hour

// LuckyPick is a random market ending soon, quoted on its best-priced position
type LuckyPick struct {
	Market   models.MarketRecord
	Position int
	Result   Result
}

// PickAndQuote picks a random market maturing within LuckyWindow and quotes
// its best-priced position once. intn must return a value in [0, n).
func PickAndQuote(ctx context.Context, vendor contracts.QuoteSource, networkID int64, snapshot models.MarketSnapshot, amount int, now time.Time, intn func(n int) int) (LuckyPick, error) {
	market, position, err := models.PickLucky(snapshot.EndingWithin(now, LuckyWindow), intn)
	if err != nil {
		return LuckyPick{}, err
	}

	resp, err := vendor.RequestQuote(ctx, networkID, BuildRequest(market, position, amount))
	if err != nil {
		glog.Warningf("[Quote] lucky quote for %s failed: %v", market.GameID, err)
	}

	result := Evaluate(resp, err)
	result.Position = position
	result.BuyInAmount = amount

	return LuckyPick{Market: market, Position: position, Result: result}, nil
}
