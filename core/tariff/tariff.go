// Package tariff prices a charge interval against a two-rate tariff with one
// cheap window per day.
package tariff

import (
	"fmt"
	"math"

	"github.com/kilianp07/smartcharge/core/clock"
)

const epsilon = 1e-9

// Tariff holds the energy prices in currency per kWh.
type Tariff struct {
	CheapRate    float64 `json:"cheap_rate" yaml:"cheap_rate"`
	StandardRate float64 `json:"standard_rate" yaml:"standard_rate"`
}

// Validate rejects negative prices.
func (t Tariff) Validate() error {
	if t.CheapRate < 0 || math.IsNaN(t.CheapRate) {
		return fmt.Errorf("cheap rate must be >= 0")
	}
	if t.StandardRate < 0 || math.IsNaN(t.StandardRate) {
		return fmt.Errorf("standard rate must be >= 0")
	}
	return nil
}

// CostBreakdown splits the energy of a charge interval into the part drawn
// before the cheap window, inside it, and after it.
type CostBreakdown struct {
	PreWindowKWh    float64 `json:"pre_window_kwh" yaml:"pre_window_kwh"`
	CheapWindowKWh  float64 `json:"cheap_window_kwh" yaml:"cheap_window_kwh"`
	PostWindowKWh   float64 `json:"post_window_kwh" yaml:"post_window_kwh"`
	PreWindowCost   float64 `json:"pre_window_cost" yaml:"pre_window_cost"`
	CheapWindowCost float64 `json:"cheap_window_cost" yaml:"cheap_window_cost"`
	PostWindowCost  float64 `json:"post_window_cost" yaml:"post_window_cost"`
	TotalCost       float64 `json:"total_cost" yaml:"total_cost"`
	// Savings compared to buying everything at the standard rate. Only a
	// real saving when HasOverflow is false; otherwise it may be negative.
	Savings     float64 `json:"savings" yaml:"savings"`
	HasOverflow bool    `json:"has_overflow" yaml:"has_overflow"`
}

// TotalKWh is the sum of the three segments.
func (c CostBreakdown) TotalKWh() float64 {
	return c.PreWindowKWh + c.CheapWindowKWh + c.PostWindowKWh
}

// Attribute prices kWh drawn uniformly over [startMinute, endMinute].
// Minutes are minute-of-day offsets; an end before the start is taken to be on
// the following day.
func Attribute(startMinute, endMinute, kWh float64, w clock.Window, t Tariff) CostBreakdown {
	if kWh < 0 || math.IsNaN(kWh) {
		kWh = 0
	}
	start := startMinute
	end := endMinute
	if end < start {
		end += clock.MinutesPerDay
	}
	total := end - start

	var pre, cheap, post float64
	switch {
	case total <= epsilon:
		// Zero-length interval: classify the instant so energy still sums up.
		switch {
		case kWh == 0:
		case w.Contains(int(math.Floor(clock.NormalizeFloat(start)))):
			cheap = kWh
		case clock.NormalizeFloat(start) < float64(w.Start.Minutes()):
			pre = kWh
		default:
			post = kWh
		}
		return price(pre, cheap, post, kWh, t)
	default:
		preMin, cheapMin := split(start, end, w)
		postMin := total - preMin - cheapMin
		if postMin < 0 {
			postMin = 0
		}
		perMinute := kWh / total
		pre = perMinute * preMin
		cheap = perMinute * cheapMin
		post = perMinute * postMin
	}
	return price(pre, cheap, post, kWh, t)
}

// split returns the minutes of [start, end] falling before the first window
// occurrence it touches, and the minutes falling inside any occurrence.
func split(start, end float64, w clock.Window) (pre, cheap float64) {
	winStart := float64(w.Start.Minutes())
	winEnd := winStart + float64(w.DurationMinutes())

	// Align the window line with the day the interval starts on.
	day := math.Floor(start/clock.MinutesPerDay) * clock.MinutesPerDay
	first := math.Inf(1)
	for k := -1; k <= 2; k++ {
		shift := day + float64(k)*clock.MinutesPerDay
		lo := math.Max(start, winStart+shift)
		hi := math.Min(end, winEnd+shift)
		if hi-lo > epsilon {
			cheap += hi - lo
			if lo < first {
				first = lo
			}
		}
	}
	if math.IsInf(first, 1) {
		// No overlap at all: decide by comparison against the window start.
		if clock.NormalizeFloat(start) < winStart {
			return end - start, 0
		}
		return 0, 0
	}
	return first - start, cheap
}

func price(pre, cheap, post, kWh float64, t Tariff) CostBreakdown {
	c := CostBreakdown{
		PreWindowKWh:    pre,
		CheapWindowKWh:  cheap,
		PostWindowKWh:   post,
		PreWindowCost:   pre * t.StandardRate,
		CheapWindowCost: cheap * t.CheapRate,
		PostWindowCost:  post * t.StandardRate,
	}
	c.TotalCost = c.PreWindowCost + c.CheapWindowCost + c.PostWindowCost
	c.Savings = kWh*t.StandardRate - c.TotalCost
	c.HasOverflow = pre > epsilon || post > epsilon
	return c
}
