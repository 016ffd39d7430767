package models

import (
	"fmt"
	"strings"
	"time"
)

// OptionType is CE (call) or PE (put).
type OptionType string

const (
	CE OptionType = "CE"
	PE OptionType = "PE"
)

// ExpiryCode formats an expiry date as DDMONYY, e.g. 24OCT24.
func ExpiryCode(expiry time.Time) string {
	return strings.ToUpper(expiry.Format("02Jan06"))
}

// OptionSymbol builds the price cache key for an option contract.
func OptionSymbol(index string, expiry time.Time, strike int, typ OptionType) string {
	return fmt.Sprintf("%s%s%d%s", index, ExpiryCode(expiry), strike, typ)
}

// Instrument is one option leg held by the strategy.
type Instrument struct {
	Action     OrderSide
	LotSize    int // contracts, already multiplied by the exchange lot
	Expiry     time.Time
	OptionType OptionType
	Strike     int
	Index      string

	EntryTimestamp time.Time
	EntryPrice     float64
	BrokerOrderID  string
}

// Symbol is the leg's price cache key.
func (i *Instrument) Symbol() string {
	return OptionSymbol(i.Index, i.Expiry, i.Strike, i.OptionType)
}

// ClosingSide is the order side that flattens this leg.
func (i *Instrument) ClosingSide() OrderSide {
	return i.Action.Opposite()
}

func (i *Instrument) String() string {
	return fmt.Sprintf("%s %d %s @ %.2f", i.Action, i.LotSize, i.Symbol(), i.EntryPrice)
}

// PairInstrument is a CE and PE leg opened together: the straddle or the hedge.
type PairInstrument struct {
	CE *Instrument
	PE *Instrument
}

// Legs returns the open legs, CE first.
func (p *PairInstrument) Legs() []*Instrument {
	if p == nil {
		return nil
	}
	legs := make([]*Instrument, 0, 2)
	if p.CE != nil {
		legs = append(legs, p.CE)
	}
	if p.PE != nil {
		legs = append(legs, p.PE)
	}
	return legs
}

// Leg returns the leg of the given option type.
func (p *PairInstrument) Leg(typ OptionType) *Instrument {
	if p == nil {
		return nil
	}
	if typ == CE {
		return p.CE
	}
	return p.PE
}

// SetLeg replaces the leg of the given option type.
func (p *PairInstrument) SetLeg(typ OptionType, leg *Instrument) {
	if typ == CE {
		p.CE = leg
	} else {
		p.PE = leg
	}
}

// Open reports whether both legs are held.
func (p *PairInstrument) Open() bool {
	return p != nil && p.CE != nil && p.PE != nil
}

// EntryPremium is the summed entry price of both legs.
func (p *PairInstrument) EntryPremium() float64 {
	var total float64
	for _, leg := range p.Legs() {
		total += leg.EntryPrice
	}
	return total
}
