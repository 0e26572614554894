package broker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/rustyeddy/gridbot/market"
)

const (
	DefaultMaxAttempts = 5
	DefaultInitial     = 1200 * time.Millisecond
	DefaultMultiplier  = 2.0
	DefaultMaxInterval = 30 * time.Second
)

// RetryPolicy bounds a retried call: MaxAttempts includes the first try.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	Initial     time.Duration `json:"initial" yaml:"initial"`
	Multiplier  float64       `json:"multiplier" yaml:"multiplier"`
	Max         time.Duration `json:"max" yaml:"max"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Initial:     DefaultInitial,
		Multiplier:  DefaultMultiplier,
		Max:         DefaultMaxInterval,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.Multiplier = p.Multiplier
	eb.MaxInterval = p.Max
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0

	if eb.InitialInterval <= 0 {
		eb.InitialInterval = DefaultInitial
	}
	if eb.Multiplier < 1 {
		eb.Multiplier = DefaultMultiplier
	}
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Retry runs fn until it succeeds, returns a permanent error, or the policy
// runs out of attempts. Guard rejections, unavailable signals and context
// errors are never retried. notify may be nil.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error), notify func(attempt int, err error, wait time.Duration)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && permanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	var n backoff.Notify
	if notify != nil {
		n = func(err error, wait time.Duration) { notify(attempt, err, wait) }
	}
	return backoff.RetryNotifyWithData(op, p.backOff(ctx), n)
}

func permanent(err error) bool {
	return errors.Is(err, ErrGuardRejected) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// RetryGateway wraps every call of the inner gateway with the same policy.
type RetryGateway struct {
	inner  Gateway
	policy RetryPolicy
	log    *zap.Logger
}

func NewRetryGateway(inner Gateway, p RetryPolicy, log *zap.Logger) *RetryGateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryGateway{inner: inner, policy: p, log: log}
}

func call[T any](ctx context.Context, g *RetryGateway, op string, fn func(context.Context) (T, error)) (T, error) {
	v, err := Retry(ctx, g.policy, fn, func(attempt int, err error, wait time.Duration) {
		g.log.Warn("gateway call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", g.policy.MaxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil && !errors.Is(err, ErrUnavailable) && !errors.Is(err, ErrGuardRejected) {
		g.log.Error("gateway call exhausted", zap.String("op", op), zap.Error(err))
	}
	return v, err
}

// Open, Add and Close pin one client order id before retrying, so a retry
// after a lost response cannot place a second order.
func (g *RetryGateway) Open(ctx context.Context, side market.Side, notional float64) (Fill, error) {
	ctx = ensureClientOrderID(ctx)
	return call(ctx, g, "open", func(ctx context.Context) (Fill, error) {
		return g.inner.Open(ctx, side, notional)
	})
}

func (g *RetryGateway) Add(ctx context.Context, side market.Side, notional float64) (Fill, error) {
	ctx = ensureClientOrderID(ctx)
	return call(ctx, g, "add", func(ctx context.Context) (Fill, error) {
		return g.inner.Add(ctx, side, notional)
	})
}

func (g *RetryGateway) Close(ctx context.Context, side market.Side) (Fill, error) {
	ctx = ensureClientOrderID(ctx)
	return call(ctx, g, "close", func(ctx context.Context) (Fill, error) {
		return g.inner.Close(ctx, side)
	})
}

func (g *RetryGateway) GetPosition(ctx context.Context) (PositionSnapshot, error) {
	return call(ctx, g, "get_position", g.inner.GetPosition)
}

func (g *RetryGateway) Price(ctx context.Context) (market.Sample, error) {
	return call(ctx, g, "price", g.inner.Price)
}

func (g *RetryGateway) FundingRate(ctx context.Context) (float64, error) {
	return call(ctx, g, "funding_rate", g.inner.FundingRate)
}

func (g *RetryGateway) DailyRSI(ctx context.Context) (float64, error) {
	return call(ctx, g, "daily_rsi", g.inner.DailyRSI)
}
