// Package quote sequences price quote requests against changing bettor input.
package quote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/XavierBriggs/Tyche/internal/metrics"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/golang/glog"
	"github.com/shopspring/decimal"
)

// FetchFailedMessage is shown when the quote endpoint could not be reached
const FetchFailedMessage = "Failed to fetch quote"

// UnavailableMessage is shown when the vendor answered without a price
const UnavailableMessage = "Quote unavailable"

var (
	// ErrNoMarket is returned by Update before a market is selected
	ErrNoMarket = errors.New("no market selected")

	// ErrInvalidPosition is returned for a position the market does not offer
	ErrInvalidPosition = errors.New("invalid position")
)

// Status is the display state of the quote panel
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Result is what the quote panel shows
type Result struct {
	Status      Status
	Position    int
	BuyInAmount int
	Quote       *models.QuoteResponse
	Err         string
	DisplayOdds string // total decimal odds, two places
	Seq         uint64
}

// Debouncer keeps one quote session: a selected market, a position and a
// stake. Only the response to the latest input is ever shown.
type Debouncer struct {
	vendor    contracts.QuoteSource
	networkID int64
	metrics   *metrics.Metrics

	mu        sync.Mutex
	market    *models.MarketRecord
	position  int
	amount    int
	key       string
	seq       uint64
	cancel    context.CancelFunc
	result    Result
	observers []func(Result)

	wg sync.WaitGroup
}

// NewDebouncer creates a debouncer for one network. m may be nil.
func NewDebouncer(vendor contracts.QuoteSource, networkID int64, m *metrics.Metrics) *Debouncer {
	return &Debouncer{
		vendor:    vendor,
		networkID: networkID,
		metrics:   m,
		result:    Result{Status: StatusIdle},
	}
}

// Subscribe registers an observer for every result change. Observers run
// with the debouncer locked and must not call back into it.
func (d *Debouncer) Subscribe(fn func(Result)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

// Select starts a new session on market: stake cleared, position 0, quote
// cleared and responses still in flight invalidated
func (d *Debouncer) Select(market models.MarketRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.invalidateLocked()
	d.market = &market
	d.position = 0
	d.amount = 0
	d.key = ""
	d.setLocked(Result{Status: StatusIdle})
}

// Market returns the selected market
func (d *Debouncer) Market() (models.MarketRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.market == nil {
		return models.MarketRecord{}, false
	}
	return *d.market, true
}

// Update applies new input. An unchanged input is a no-op. Any change clears
// the shown quote; a stake of at least MinBuyInAmount issues a new request.
func (d *Debouncer) Update(ctx context.Context, position, amount int) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.market == nil {
		return d.result, ErrNoMarket
	}
	if position < 0 || position >= len(d.market.Odds) {
		return d.result, fmt.Errorf("%w: %d", ErrInvalidPosition, position)
	}

	key := inputKey(d.market, position, amount)
	if key == d.key {
		return d.result, nil
	}

	d.invalidateLocked()
	d.key = key
	d.position = position
	d.amount = amount

	if amount < models.MinBuyInAmount {
		d.setLocked(Result{Status: StatusIdle, Position: position, BuyInAmount: amount})
		return d.result, nil
	}

	seq := d.seq
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.setLocked(Result{Status: StatusLoading, Position: position, BuyInAmount: amount, Seq: seq})

	req := BuildRequest(*d.market, position, amount)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		resp, err := d.vendor.RequestQuote(reqCtx, d.networkID, req)
		d.settle(seq, position, amount, resp, err)
	}()

	return d.result, nil
}

// Result returns what the quote panel currently shows
func (d *Debouncer) Result() Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result
}

// Wait blocks until requests in flight finish
func (d *Debouncer) Wait() {
	d.wg.Wait()
}

// Close invalidates the session and waits for requests in flight
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.invalidateLocked()
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Debouncer) settle(seq uint64, position, amount int, resp *models.QuoteResponse, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if seq != d.seq {
		d.metrics.RecordQuoteSuperseded()
		glog.V(1).Infof("[Quote] discarded response %d (latest %d)", seq, d.seq)
		return
	}
	d.cancel = nil

	result := Evaluate(resp, err)
	result.Position = position
	result.BuyInAmount = amount
	result.Seq = seq

	d.metrics.RecordQuote(string(result.Status))
	if err != nil {
		glog.Warningf("[Quote] request for %d USDC failed: %v", amount, err)
	}

	d.setLocked(result)
}

// invalidateLocked bumps the sequence so every response in flight is
// discarded. Caller holds d.mu.
func (d *Debouncer) invalidateLocked() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.seq++
}

func (d *Debouncer) setLocked(r Result) {
	d.result = r
	for _, fn := range d.observers {
		fn(r)
	}
}

// Evaluate turns a quote response into a display result
func Evaluate(resp *models.QuoteResponse, err error) Result {
	if err != nil {
		return Result{Status: StatusFailed, Err: FetchFailedMessage}
	}
	if msg := resp.ErrorMessage(); msg != "" {
		return Result{Status: StatusFailed, Quote: resp, Err: msg}
	}
	if resp == nil || resp.QuoteData == nil || resp.QuoteData.TotalQuote == nil {
		return Result{Status: StatusFailed, Quote: resp, Err: UnavailableMessage}
	}

	return Result{
		Status:      StatusReady,
		Quote:       resp,
		DisplayOdds: FormatOdds(resp.QuoteData.TotalQuote.Decimal),
	}
}

// FormatOdds renders decimal odds with two places, e.g. 1.85
func FormatOdds(odds float64) string {
	return decimal.NewFromFloat(odds).StringFixed(2)
}

func inputKey(m *models.MarketRecord, position, amount int) string {
	return m.GameID + ":" + strconv.Itoa(m.TypeID) + ":" + strconv.Itoa(position) + ":" + strconv.Itoa(amount)
}
