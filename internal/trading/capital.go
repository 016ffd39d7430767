package trading

import "math"

// InitialLots is half the naive lot count affordable at the estimated
// margin. The other half waits until real margin usage is known.
func InitialLots(capital, marginPerLot float64) int {
	if capital <= 0 || marginPerLot <= 0 {
		return 0
	}
	naive := math.Floor(capital / marginPerLot)
	return int(math.Floor(naive / 2))
}

// ActualMarginPerLot is the broker-reported margin in use spread over the
// lots deployed.
func ActualMarginPerLot(usedMargin float64, initialLots int) float64 {
	if initialLots <= 0 {
		return 0
	}
	return usedMargin / float64(initialLots)
}

// CapitalToTrade is the configured share of capital the session may deploy.
func CapitalToTrade(capital, percent float64) float64 {
	return capital * percent / 100
}

// RemainingLots is how many more lots fit in capitalToTrade after the
// initial deployment. Never negative.
func RemainingLots(capitalToTrade, actualMarginPerLot float64, initialLots int) int {
	if actualMarginPerLot <= 0 {
		return 0
	}
	n := math.Floor((capitalToTrade - actualMarginPerLot*float64(initialLots)) / actualMarginPerLot)
	if n < 0 {
		return 0
	}
	return int(n)
}
