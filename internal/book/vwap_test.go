package book_test

import (
	"math"
	"testing"

	"github.com/avyukov/hedgebot/internal/book"
	"github.com/avyukov/hedgebot/internal/domain"
)

func snap() domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		TradingPair: "XMR-USDT",
		Bids: []domain.PriceLevel{
			{Price: 99.0, Size: 2},
			{Price: 98.5, Size: 5},
			{Price: 97.0, Size: 10},
		},
		Asks: []domain.PriceLevel{
			{Price: 101.0, Size: 1},
			{Price: 101.5, Size: 4},
			{Price: 103.0, Size: 20},
		},
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPriceForVolumeBuyWalksAsks(t *testing.T) {
	// 3 units: 1 @ 101.0 + 2 @ 101.5 = 304 / 3
	got := book.PriceForVolume(snap(), domain.OrderSideBuy, 3)
	want := (101.0*1 + 101.5*2) / 3
	if !almostEqual(got, want) {
		t.Fatalf("buy vwap = %v, want %v", got, want)
	}
}

func TestPriceForVolumeSellWalksBids(t *testing.T) {
	// 4 units: 2 @ 99.0 + 2 @ 98.5
	got := book.PriceForVolume(snap(), domain.OrderSideSell, 4)
	want := (99.0*2 + 98.5*2) / 4
	if !almostEqual(got, want) {
		t.Fatalf("sell vwap = %v, want %v", got, want)
	}
}

func TestPriceForVolumeBoundedByConsumedLevels(t *testing.T) {
	s := snap()
	for _, vol := range []float64{0.5, 1, 2.5, 5, 24.9} {
		p := book.PriceForVolume(s, domain.OrderSideBuy, vol)
		if p < s.Asks[0].Price || p > s.Asks[len(s.Asks)-1].Price {
			t.Errorf("vol %v: vwap %v outside [best, worst] ask range", vol, p)
		}
	}
}

func TestPriceForVolumeShallowDepth(t *testing.T) {
	// Requested 100 but only 25 available; price must cover available depth
	// only, not extrapolate.
	s := snap()
	got := book.PriceForVolume(s, domain.OrderSideBuy, 100)
	want := (101.0*1 + 101.5*4 + 103.0*20) / 25
	if !almostEqual(got, want) {
		t.Fatalf("shallow vwap = %v, want %v", got, want)
	}
}

func TestPriceForVolumeEmptySide(t *testing.T) {
	s := domain.OrderbookSnapshot{TradingPair: "XMR-USDT"}
	if p := book.PriceForVolume(s, domain.OrderSideBuy, 1); p != 0 {
		t.Fatalf("empty asks: got %v, want 0 sentinel", p)
	}
	if p := book.PriceForVolume(s, domain.OrderSideSell, 1); p != 0 {
		t.Fatalf("empty bids: got %v, want 0 sentinel", p)
	}
}

func TestPriceForVolumeZeroVolume(t *testing.T) {
	if p := book.PriceForVolume(snap(), domain.OrderSideBuy, 0); p != 0 {
		t.Fatalf("zero volume: got %v, want 0", p)
	}
}

func TestPricesForVolumesDeterministic(t *testing.T) {
	s := snap()
	vols := []float64{1, 3, 7}
	a := book.PricesForVolumes(s, domain.OrderSideSell, vols)
	b := book.PricesForVolumes(s, domain.OrderSideSell, vols)
	if len(a) != len(vols) {
		t.Fatalf("got %d prices, want %d", len(a), len(vols))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("index %d: repeated call differs: %v vs %v", i, a[i], b[i])
		}
	}
}
