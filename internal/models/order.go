package models

import "time"

// OrderRequest is an order intent sent to the gateway.
type OrderRequest struct {
	// Symbol is the cache symbol of the leg, e.g. NIFTY24OCT2424500CE.
	Symbol   string
	Token    uint32
	Exchange Exchange
	Side     OrderSide
	Type     OrderType
	Product  ProductType
	Quantity int
	Tag      string
}

// Fill records a placed order.
type Fill struct {
	OrderID  string
	Symbol   string
	Side     OrderSide
	Quantity int
	Price    float64
	PlacedAt time.Time
}

// Funds is the account's cash and margin usage.
type Funds struct {
	AvailableCash  float64
	UtilisedDebits float64
}

// Capital returns total account capital: free cash plus margin in use.
func (f Funds) Capital() float64 {
	return f.AvailableCash + f.UtilisedDebits
}
