// Package binance is the USD-M futures venue: one symbol, one-way position
// mode, market orders only.
package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/gridbot/broker"
	"github.com/rustyeddy/gridbot/indicators"
	"github.com/rustyeddy/gridbot/market"
)

const (
	codeReduceOnlyRejected = -2022
	codeNoNeedToChangeMode = -4059

	rsiKlines = 100
)

// Rules are the symbol's lot-size filter.
type Rules struct {
	StepSize decimal.Decimal
	MinQty   decimal.Decimal
}

// Floor rounds qty down to a whole number of steps.
func (r Rules) Floor(qty decimal.Decimal) decimal.Decimal {
	if !r.StepSize.IsPositive() {
		return qty
	}
	return qty.Div(r.StepSize).Floor().Mul(r.StepSize)
}

// Client implements broker.Gateway against Binance futures.
type Client struct {
	cfg Config
	api *futures.Client
	log *zap.Logger

	mu    sync.Mutex
	rules *Rules
}

var _ broker.Gateway = (*Client)(nil)

func New(cfg Config, log *zap.Logger) (*Client, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	api := futures.NewClient(cfg.APIKey, cfg.APISecret)
	api.BaseURL = cfg.BaseURL
	api.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}

	return &Client{
		cfg: cfg,
		api: api,
		log: log.With(zap.String("venue", "binance"), zap.String("symbol", cfg.Symbol)),
	}, nil
}

// BaseURL is the REST endpoint the client talks to.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// Prepare puts the account in one-way mode, sets leverage and loads the
// lot-size rules.
func (c *Client) Prepare(ctx context.Context) error {
	err := c.api.NewChangePositionModeService().DualSide(false).Do(ctx)
	if err != nil && apiCode(err) != codeNoNeedToChangeMode {
		return fmt.Errorf("position mode: %w", err)
	}

	lev, err := c.api.NewChangeLeverageService().Symbol(c.cfg.Symbol).Leverage(c.cfg.Leverage).Do(ctx)
	if err != nil {
		return fmt.Errorf("leverage: %w", err)
	}

	rules, err := c.loadRules(ctx)
	if err != nil {
		return err
	}
	c.log.Info("venue prepared",
		zap.Int("leverage", lev.Leverage),
		zap.Stringer("step_size", rules.StepSize),
		zap.Stringer("min_qty", rules.MinQty))
	return nil
}

func (c *Client) loadRules(ctx context.Context) (Rules, error) {
	c.mu.Lock()
	if c.rules != nil {
		r := *c.rules
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()

	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return Rules{}, fmt.Errorf("exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != c.cfg.Symbol {
			continue
		}
		lot := s.LotSizeFilter()
		if lot == nil {
			return Rules{}, fmt.Errorf("exchange info: %s has no LOT_SIZE filter", c.cfg.Symbol)
		}
		step, err := decimal.NewFromString(lot.StepSize)
		if err != nil {
			return Rules{}, fmt.Errorf("exchange info: step size %q: %w", lot.StepSize, err)
		}
		minQty, err := decimal.NewFromString(lot.MinQuantity)
		if err != nil {
			return Rules{}, fmt.Errorf("exchange info: min qty %q: %w", lot.MinQuantity, err)
		}
		r := Rules{StepSize: step, MinQty: minQty}
		c.mu.Lock()
		c.rules = &r
		c.mu.Unlock()
		return r, nil
	}
	return Rules{}, fmt.Errorf("exchange info: unknown symbol %s", c.cfg.Symbol)
}

func (c *Client) Price(ctx context.Context) (market.Sample, error) {
	prices, err := c.api.NewListPricesService().Symbol(c.cfg.Symbol).Do(ctx)
	if err != nil {
		return market.Sample{}, fmt.Errorf("ticker: %w", err)
	}
	for _, p := range prices {
		if p == nil || p.Symbol != c.cfg.Symbol {
			continue
		}
		v, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return market.Sample{}, fmt.Errorf("ticker price %q: %w", p.Price, err)
		}
		return market.Sample{Time: time.Now().UTC(), Price: v}, nil
	}
	return market.Sample{}, fmt.Errorf("ticker: no price for %s", c.cfg.Symbol)
}

func (c *Client) GetPosition(ctx context.Context) (broker.PositionSnapshot, error) {
	risks, err := c.api.NewGetPositionRiskService().Symbol(c.cfg.Symbol).Do(ctx)
	if err != nil {
		return broker.PositionSnapshot{}, fmt.Errorf("position risk: %w", err)
	}
	for _, r := range risks {
		if r == nil || r.Symbol != c.cfg.Symbol {
			continue
		}
		if r.PositionSide != "" && r.PositionSide != string(futures.PositionSideTypeBoth) {
			continue
		}
		qty, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil {
			return broker.PositionSnapshot{}, fmt.Errorf("position amount %q: %w", r.PositionAmt, err)
		}
		avg, err := strconv.ParseFloat(r.EntryPrice, 64)
		if err != nil {
			return broker.PositionSnapshot{}, fmt.Errorf("entry price %q: %w", r.EntryPrice, err)
		}
		return broker.PositionSnapshot{Qty: qty, AvgPrice: avg}, nil
	}
	return broker.PositionSnapshot{}, nil
}

func (c *Client) Open(ctx context.Context, side market.Side, notional float64) (broker.Fill, error) {
	return c.buy(ctx, side, notional)
}

func (c *Client) Add(ctx context.Context, side market.Side, notional float64) (broker.Fill, error) {
	return c.buy(ctx, side, notional)
}

// buy sends a market order for notional at the last price, floored to the
// lot step. Below the minimum quantity nothing is sent and the fill is empty.
func (c *Client) buy(ctx context.Context, side market.Side, notional float64) (broker.Fill, error) {
	rules, err := c.loadRules(ctx)
	if err != nil {
		return broker.Fill{}, err
	}
	px, err := c.Price(ctx)
	if err != nil {
		return broker.Fill{}, err
	}
	if !px.Valid() {
		return broker.Fill{}, fmt.Errorf("order: bad price %v", px.Price)
	}

	qty := rules.Floor(decimal.NewFromFloat(notional / px.Price))
	if !qty.IsPositive() || qty.LessThan(rules.MinQty) {
		c.log.Warn("order below minimum quantity, skipped",
			zap.Stringer("side", side),
			zap.Float64("notional", notional),
			zap.Stringer("qty", qty),
			zap.Stringer("min_qty", rules.MinQty))
		return broker.Fill{Price: px.Price}, nil
	}
	return c.order(ctx, orderSide(side), qty, false)
}

// Close reduces the whole venue position on side. A flat or opposite venue
// position is a guard rejection, as is a reduce-only refusal.
func (c *Client) Close(ctx context.Context, side market.Side) (broker.Fill, error) {
	snap, err := c.GetPosition(ctx)
	if err != nil {
		return broker.Fill{}, err
	}
	if snap.Flat() || snap.Side() != side {
		return broker.Fill{}, fmt.Errorf("close %s: venue holds %v: %w", side, snap.Qty, broker.ErrGuardRejected)
	}
	qty := decimal.NewFromFloat(snap.Size())
	return c.order(ctx, orderSide(side.Opposite()), qty, true)
}

func (c *Client) order(ctx context.Context, side futures.SideType, qty decimal.Decimal, reduceOnly bool) (broker.Fill, error) {
	cid := broker.ClientOrderID(ctx)
	svc := c.api.NewCreateOrderService().
		Symbol(c.cfg.Symbol).
		Side(side).
		PositionSide(futures.PositionSideTypeBoth).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String()).
		NewClientOrderID(cid).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		if apiCode(err) == codeReduceOnlyRejected {
			return broker.Fill{}, fmt.Errorf("order %s: %w: %v", cid, broker.ErrGuardRejected, err)
		}
		return broker.Fill{}, fmt.Errorf("order %s: %w", cid, err)
	}
	return c.fill(res, cid)
}

func (c *Client) fill(res *futures.CreateOrderResponse, cid string) (broker.Fill, error) {
	qty, err := parseDecimal(res.ExecutedQuantity)
	if err != nil {
		return broker.Fill{}, fmt.Errorf("executed qty %q: %w", res.ExecutedQuantity, err)
	}
	quote, err := parseDecimal(res.CumQuote)
	if err != nil {
		return broker.Fill{}, fmt.Errorf("cum quote %q: %w", res.CumQuote, err)
	}
	avg, err := parseDecimal(res.AvgPrice)
	if err != nil {
		return broker.Fill{}, fmt.Errorf("avg price %q: %w", res.AvgPrice, err)
	}
	if avg == 0 && qty > 0 {
		avg = quote / qty
	}
	if quote == 0 {
		quote = qty * avg
	}

	id := cid
	if res.OrderID != 0 {
		id = strconv.FormatInt(res.OrderID, 10)
	}
	return broker.Fill{
		Qty:     qty,
		Price:   avg,
		Fee:     quote * c.cfg.TakerFee,
		OrderID: id,
	}, nil
}

// FundingRate is the last funding rate from the premium index.
func (c *Client) FundingRate(ctx context.Context) (float64, error) {
	idx, err := c.api.NewPremiumIndexService().Symbol(c.cfg.Symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("premium index: %w", err)
	}
	for _, p := range idx {
		if p == nil || p.Symbol != c.cfg.Symbol {
			continue
		}
		if p.LastFundingRate == "" {
			return 0, broker.ErrUnavailable
		}
		return strconv.ParseFloat(p.LastFundingRate, 64)
	}
	return 0, broker.ErrUnavailable
}

// DailyRSI computes RSI over daily closes; the current day counts with its
// latest price.
func (c *Client) DailyRSI(ctx context.Context) (float64, error) {
	period := c.cfg.RSIPeriod
	if period < 2 {
		period = indicators.DefaultRSIPeriod
	}
	klines, err := c.api.NewKlinesService().Symbol(c.cfg.Symbol).Interval("1d").Limit(rsiKlines).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("klines: %w", err)
	}
	closes := make([]float64, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		v, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return 0, fmt.Errorf("kline close %q: %w", k.Close, err)
		}
		closes = append(closes, v)
	}
	if len(closes) <= period {
		return 0, fmt.Errorf("%d daily closes for RSI(%d): %w", len(closes), period, broker.ErrUnavailable)
	}
	v := indicators.RSI(closes, period)
	if math.IsNaN(v) {
		return 0, broker.ErrUnavailable
	}
	return v, nil
}

func orderSide(s market.Side) futures.SideType {
	if s == market.Short {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func apiCode(err error) int64 {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func parseDecimal(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
