// Package models provides domain models for the straddle trader.
package models

import (
	"time"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	NFO Exchange = "NFO" // F&O
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the side that closes a position opened with s.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Sign is -1 for SELL and +1 for BUY.
func (s OrderSide) Sign() float64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductNRML ProductType = "NRML" // F&O Normal
)

// Tick represents a real-time last-traded-price update.
type Tick struct {
	Token     uint32
	Symbol    string
	LTP       float64
	Timestamp time.Time
}

// Contract is an entry in the broker's instrument master.
type Contract struct {
	Token         uint32
	Tradingsymbol string
	Name          string
	Exchange      Exchange
	Segment       string
	LotSize       int
	Expiry        time.Time
	Strike        float64
	InstrType     string // CE, PE, FUT, EQ
}
