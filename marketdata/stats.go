package marketdata

import (
	"math"

	"github.com/shopspring/decimal"
)

// statistics over the closes of a series of bars
type Summary struct {
	Count         int                 `json:"count"`
	First         decimal.Decimal     `json:"first"`
	Last          decimal.Decimal     `json:"last"`
	Min           decimal.Decimal     `json:"min"`
	Max           decimal.Decimal     `json:"max"`
	Mean          decimal.Decimal     `json:"mean"`
	StdDev        float64             `json:"stdDev"` // sample standard deviation
	PercentChange decimal.NullDecimal `json:"percentChange"`
	TotalVolume   decimal.Decimal     `json:"totalVolume"`
}

func Summarize(bars []Bar) Summary {
	var s Summary
	if len(bars) == 0 {
		return s
	}

	s.Count = len(bars)
	s.First = bars[0].Close
	s.Last = bars[len(bars)-1].Close
	s.Min = bars[0].Close
	s.Max = bars[0].Close

	sum := decimal.Zero
	for _, b := range bars {
		sum = sum.Add(b.Close)
		s.TotalVolume = s.TotalVolume.Add(b.Volume)
		if b.Close.LessThan(s.Min) {
			s.Min = b.Close
		}
		if b.Close.GreaterThan(s.Max) {
			s.Max = b.Close
		}
	}
	s.Mean = sum.Div(decimal.NewFromInt(int64(s.Count)))

	if !s.First.IsZero() {
		s.PercentChange = decimal.NewNullDecimal(
			s.Last.Sub(s.First).Div(s.First).Mul(decimal.NewFromInt(100)),
		)
	}

	if s.Count >= 2 {
		mean := s.Mean.InexactFloat64()
		sq := 0.0
		for _, b := range bars {
			diff := b.Close.InexactFloat64() - mean
			sq += diff * diff
		}
		s.StdDev = math.Sqrt(sq / float64(s.Count-1))
	}

	return s
}
