package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/pairtrader/logging"
	"github.com/rustyeddy/pairtrader/market"
)

// Fallback tries each endpoint in order and returns the first success.
// Insufficient funds and post-only rejections are answers, not outages, and
// are returned without trying the next endpoint.
type Fallback struct {
	endpoints []Exchange
	log       logging.LoggerInterface
}

func NewFallback(log logging.LoggerInterface, endpoints ...Exchange) *Fallback {
	if log == nil {
		log = logging.Nop()
	}
	return &Fallback{endpoints: endpoints, log: log}
}

func (f *Fallback) Name() string {
	if len(f.endpoints) == 0 {
		return "fallback()"
	}
	return "fallback(" + f.endpoints[0].Name() + ")"
}

func (f *Fallback) Endpoints() []Exchange { return f.endpoints }

func final(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrWouldCross) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func try[T any](ctx context.Context, f *Fallback, op string, call func(Exchange) (T, error)) (T, error) {
	var zero T
	var errs []error
	for _, ex := range f.endpoints {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := call(ex)
		if err == nil {
			return v, nil
		}
		if final(err) {
			return zero, err
		}
		f.log.Warning("%s via %s failed: %v", op, ex.Name(), err)
		errs = append(errs, fmt.Errorf("%s: %w", ex.Name(), err))
	}
	if len(errs) == 0 {
		return zero, fmt.Errorf("%s: %w", op, ErrAllEndpointsFailed)
	}
	return zero, fmt.Errorf("%s: %w: %w", op, ErrAllEndpointsFailed, errors.Join(errs...))
}

func (f *Fallback) GetBalances(ctx context.Context) (Balances, error) {
	return try(ctx, f, "balances", func(ex Exchange) (Balances, error) {
		return ex.GetBalances(ctx)
	})
}

func (f *Fallback) GetCandles(ctx context.Context, pair string, granularity time.Duration, start, end time.Time) ([]market.Candle, error) {
	return try(ctx, f, "candles", func(ex Exchange) ([]market.Candle, error) {
		return ex.GetCandles(ctx, pair, granularity, start, end)
	})
}

func (f *Fallback) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if err := req.Validate(); err != nil {
		return Order{}, err
	}
	return try(ctx, f, "submit order", func(ex Exchange) (Order, error) {
		return ex.SubmitOrder(ctx, req)
	})
}

func (f *Fallback) CancelOrder(ctx context.Context, id string) error {
	_, err := try(ctx, f, "cancel order", func(ex Exchange) (struct{}, error) {
		return struct{}{}, ex.CancelOrder(ctx, id)
	})
	return err
}

func (f *Fallback) GetOpenOrders(ctx context.Context, pair string) ([]Order, error) {
	return try(ctx, f, "open orders", func(ex Exchange) ([]Order, error) {
		return ex.GetOpenOrders(ctx, pair)
	})
}
