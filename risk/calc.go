package risk

import "github.com/rustyeddy/gridbot/market"

// GrossPnL is the raw move of qty units from avg to exit, signed by side.
func GrossPnL(side market.Side, avg, exit, qty float64) float64 {
	return side.Sign() * (exit - avg) * qty
}

// NetPnL subtracts the entry fees already paid and the fee charged on the
// exit notional.
func NetPnL(side market.Side, avg, exit, qty, entryFees, exitFeeRate float64) float64 {
	return GrossPnL(side, avg, exit, qty) - entryFees - exit*qty*exitFeeRate
}

// WeightedAverage folds a new fill into an existing average entry.
func WeightedAverage(avg, qty, fillPrice, fillQty float64) float64 {
	total := qty + fillQty
	if total <= 0 {
		return 0
	}
	return (avg*qty + fillPrice*fillQty) / total
}
