// Package broker provides the order gateway and market feed integrations.
package broker

import (
	"context"

	"straddle-trader/internal/models"
)

// Gateway places orders and reports account funds.
type Gateway interface {
	// PlaceOrder submits a market order and returns the broker order ID.
	PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error)
	// FundsAndMargin returns free cash and margin in use.
	FundsAndMargin(ctx context.Context) (models.Funds, error)
}

// ContractSource lists the broker's instrument master.
type ContractSource interface {
	Contracts(ctx context.Context) ([]models.Contract, error)
}

// Ticker defines the interface for real-time market data streaming.
type Ticker interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(symbols []string, mode TickMode) error
	Unsubscribe(symbols []string) error
	RegisterSymbols(symbolTokens map[string]uint32)
	OnTick(handler func(models.Tick))
	OnError(handler func(error))
	OnConnect(handler func())
	OnDisconnect(handler func())
}

// TickMode represents the subscription mode for ticks.
type TickMode string

const (
	TickModeLTP   TickMode = "ltp"
	TickModeQuote TickMode = "quote"
	TickModeFull  TickMode = "full"
)
