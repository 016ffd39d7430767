package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"straddle-trader/internal/logging"
	"straddle-trader/internal/models"
)

// PriceSource resolves a cache symbol to its latest price.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// PaperGateway fills every order at the latest cached price.
type PaperGateway struct {
	prices  PriceSource
	capital float64
	logger  zerolog.Logger
	now     func() time.Time

	mu    sync.RWMutex
	fills []models.Fill
}

// PaperConfig holds configuration for the paper gateway.
type PaperConfig struct {
	Prices         PriceSource
	InitialCapital float64
	Logger         zerolog.Logger
	Now            func() time.Time
}

// NewPaperGateway creates a paper trading gateway.
func NewPaperGateway(cfg PaperConfig) *PaperGateway {
	capital := cfg.InitialCapital
	if capital == 0 {
		capital = 1000000 // 10 lakhs default
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &PaperGateway{
		prices:  cfg.Prices,
		capital: capital,
		logger:  logging.WithComponent(cfg.Logger, "paper"),
		now:     now,
	}
}

// PlaceOrder records a simulated fill.
func (p *PaperGateway) PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	if req.Quantity <= 0 {
		return "", fmt.Errorf("invalid quantity %d for %s", req.Quantity, req.Symbol)
	}

	price, err := p.prices.Price(ctx, req.Symbol)
	if err != nil {
		return "", fmt.Errorf("paper fill for %s: %w", req.Symbol, err)
	}

	fill := models.Fill{
		OrderID:  "paper-" + uuid.NewString(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    price,
		PlacedAt: p.now(),
	}

	p.mu.Lock()
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	logging.LogOrder(p.logger, fill.OrderID, fill.Symbol, string(fill.Side), fill.Quantity, fill.Price)
	return fill.OrderID, nil
}

// FundsAndMargin reports the configured capital as free cash.
func (p *PaperGateway) FundsAndMargin(ctx context.Context) (models.Funds, error) {
	return models.Funds{AvailableCash: p.capital}, nil
}

// Fills returns the simulated fills in placement order.
func (p *PaperGateway) Fills() []models.Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Fill, len(p.fills))
	copy(out, p.fills)
	return out
}

var _ Gateway = (*PaperGateway)(nil)
