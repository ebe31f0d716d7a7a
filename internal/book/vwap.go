// Package book provides order-book depth calculations used for hedge sizing
// and pricing. All functions are pure over a snapshot.
package book

import "github.com/avyukov/hedgebot/internal/domain"

// PriceForVolume walks the relevant book side best-price-first and returns
// the volume-weighted average price of filling the requested base volume.
// Buys consume asks, sells consume bids. When available depth is smaller than
// the requested volume the weighted price covers only the available depth.
// An empty side (or volume <= 0) yields 0, meaning "no price".
func PriceForVolume(snap domain.OrderbookSnapshot, side domain.OrderSide, volume float64) float64 {
	levels := snap.Asks
	if side == domain.OrderSideSell {
		levels = snap.Bids
	}
	if volume <= 0 {
		return 0
	}

	var totalVolume, weightedPrice float64
	for _, lvl := range levels {
		available := lvl.Size
		if required := volume - totalVolume; available > required {
			available = required
		}
		weightedPrice += lvl.Price * available
		totalVolume += available
		if totalVolume >= volume {
			break
		}
	}
	if totalVolume == 0 {
		return 0
	}
	return weightedPrice / totalVolume
}

// PricesForVolumes computes PriceForVolume for each requested volume,
// preserving order. Results are positionally aligned with volumes.
func PricesForVolumes(snap domain.OrderbookSnapshot, side domain.OrderSide, volumes []float64) []float64 {
	prices := make([]float64, len(volumes))
	for i, v := range volumes {
		prices[i] = PriceForVolume(snap, side, v)
	}
	return prices
}
