package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"straddle-trader/internal/errors"
	"straddle-trader/internal/logging"
	"straddle-trader/internal/metrics"
	"straddle-trader/internal/models"
	"straddle-trader/pkg/utils"
)

// RetryingGateway retries order placement a bounded number of times with a
// fixed delay. Exhausted retries surface as an OrderPlacementError.
type RetryingGateway struct {
	next     Gateway
	attempts int
	delay    time.Duration
	mode     string
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// RetryOptions configures a RetryingGateway.
type RetryOptions struct {
	MaxAttempts int
	Delay       time.Duration
	// Mode labels order metrics, "live" or "paper".
	Mode    string
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// NewRetryingGateway wraps next.
func NewRetryingGateway(next Gateway, opts RetryOptions) *RetryingGateway {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	return &RetryingGateway{
		next:     next,
		attempts: opts.MaxAttempts,
		delay:    opts.Delay,
		mode:     opts.Mode,
		logger:   logging.WithComponent(opts.Logger, "orders"),
		metrics:  opts.Metrics,
	}
}

// PlaceOrder places req, retrying failures.
func (g *RetryingGateway) PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	tries := 0
	cfg := utils.FixedRetryConfig(g.attempts, g.delay)
	cfg.OnRetry = func(attempt int, err error) {
		g.metrics.OrderRetried()
		g.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("symbol", req.Symbol).
			Str("side", string(req.Side)).
			Int("qty", req.Quantity).
			Msg("Order failed, retrying")
	}

	orderID, err := utils.RetryWithResult(ctx, cfg, func() (string, error) {
		tries++
		return g.next.PlaceOrder(ctx, req)
	})
	if err != nil {
		return "", errors.NewOrderPlacementError(req.Symbol, string(req.Side), req.Quantity, tries, err)
	}

	g.metrics.OrderPlaced(g.mode, string(req.Side))
	return orderID, nil
}

// FundsAndMargin fetches funds with the same retry policy.
func (g *RetryingGateway) FundsAndMargin(ctx context.Context) (models.Funds, error) {
	cfg := utils.FixedRetryConfig(g.attempts, g.delay)
	cfg.OnRetry = func(attempt int, err error) {
		g.logger.Warn().Err(err).Int("attempt", attempt).Msg("Funds request failed, retrying")
	}
	return utils.RetryWithResult(ctx, cfg, func() (models.Funds, error) {
		return g.next.FundsAndMargin(ctx)
	})
}

var _ Gateway = (*RetryingGateway)(nil)
