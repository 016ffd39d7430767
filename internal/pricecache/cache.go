// Package pricecache is the shared last-traded-price store written by the
// market feed and read by the strategy.
package pricecache

import (
	"context"
	"time"
)

// Quote is the latest price for one symbol.
type Quote struct {
	Token     uint32    `json:"token"`
	LTP       float64   `json:"ltp"`
	Timestamp time.Time `json:"-"`
}

// Cache reads and writes quotes and control flags.
type Cache interface {
	// Get returns the quote for symbol. ok is false when the symbol is absent.
	Get(ctx context.Context, symbol string) (q Quote, ok bool, err error)
	Set(ctx context.Context, symbol string, q Quote) error
	// Flag reads a boolean control key such as the manual-exit signal.
	Flag(ctx context.Context, key string) (bool, error)
	SetFlag(ctx context.Context, key string, value bool) error
	// DeletePrefix removes every key starting with prefix and returns the count.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}
