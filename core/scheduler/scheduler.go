package scheduler

import (
	"fmt"
	"math"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/tariff"
)

// DefaultRateKW is used when no usable charging rate is known.
const DefaultRateKW = 2.0

// noon splits ready-by deadlines: earlier ones refer to the next morning.
const noon = 12 * 60

// Reason explains how the start time was chosen.
type Reason int

const (
	// WindowStart means charging begins when the cheap window opens.
	WindowStart Reason = iota
	// EarlyStartRequired means the deadline forces a start before the
	// window opens.
	EarlyStartRequired
)

func (r Reason) String() string {
	switch r {
	case WindowStart:
		return "window_start"
	case EarlyStartRequired:
		return "early_start_required"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// MarshalText encodes the reason name.
func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Request holds the inputs of one evaluation.
type Request struct {
	SOC         float64
	TargetSOC   float64
	CapacityKWh float64
	RateKW      float64
	Window      clock.Window
	// ReadyBy 00:00 disables the deadline.
	ReadyBy clock.TimeOfDay
}

// Decision is derived fresh on every evaluation and never persisted.
// Minutes are on a continuous line starting at the midnight before the window
// opens, so values above 1440 fall on the next day.
type Decision struct {
	StartMinute          float64  `json:"start_minute" yaml:"start_minute"`
	FinishMinute         *float64 `json:"finish_minute" yaml:"finish_minute"`
	ReadyByMinute        *float64 `json:"ready_by_minute" yaml:"ready_by_minute"`
	Reason               Reason   `json:"reason" yaml:"reason"`
	HasPreWindowOverflow bool     `json:"has_pre_window_overflow" yaml:"has_pre_window_overflow"`
	ChargeDurationHours  float64  `json:"charge_duration_hours" yaml:"charge_duration_hours"`
	KWhNeeded            float64  `json:"kwh_needed" yaml:"kwh_needed"`
	RateKW               float64  `json:"rate_kw" yaml:"rate_kw"`
}

// Solve picks the charge start time for req.
func Solve(req Request) Decision {
	rate := req.RateKW
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		rate = DefaultRateKW
	}
	kWh := req.CapacityKWh * (req.TargetSOC - req.SOC) / 100
	if kWh < 0 || math.IsNaN(kWh) {
		kWh = 0
	}
	chargeMinutes := kWh / rate * 60
	start := float64(req.Window.Start.Minutes())

	d := Decision{
		StartMinute:         start,
		Reason:              WindowStart,
		ChargeDurationHours: chargeMinutes / 60,
		KWhNeeded:           kWh,
		RateKW:              rate,
	}
	if req.ReadyBy.IsMidnight() {
		return d
	}

	readyBy := float64(req.ReadyBy.Minutes())
	if readyBy < noon {
		readyBy += clock.MinutesPerDay
	}
	d.ReadyByMinute = &readyBy

	finish := start + chargeMinutes
	if finish <= readyBy {
		d.FinishMinute = &finish
		return d
	}
	required := readyBy - chargeMinutes
	d.StartMinute = required
	d.FinishMinute = &readyBy
	d.Reason = EarlyStartRequired
	d.HasPreWindowOverflow = required < start
	return d
}

// ChargeMinutes is the predicted charging time in minutes.
func (d Decision) ChargeMinutes() float64 { return d.ChargeDurationHours * 60 }

// EndMinute returns the predicted finish, or start plus charge time when no
// finish was computed.
func (d Decision) EndMinute() float64 {
	if d.FinishMinute != nil {
		return *d.FinishMinute
	}
	return d.StartMinute + d.ChargeMinutes()
}

// Cost prices the planned charge interval.
func (d Decision) Cost(w clock.Window, t tariff.Tariff) tariff.CostBreakdown {
	return tariff.Attribute(d.StartMinute, d.EndMinute(), d.KWhNeeded, w, t)
}

// SpanMinutes returns how long after StartMinute a charge may still be
// started: until the window closes or, when a deadline is set and the
// predicted finish is later, until that finish.
func (d Decision) SpanMinutes(w clock.Window) float64 {
	end := float64(w.Start.Minutes() + w.DurationMinutes())
	if d.ReadyByMinute != nil {
		end = math.Max(end, d.EndMinute())
	}
	span := end - d.StartMinute
	if span < 0 {
		return 0
	}
	if span > clock.MinutesPerDay {
		return clock.MinutesPerDay
	}
	return span
}

// Eligible reports whether a charge should be running at minute of day now.
// Ticks after midnight belong to the span that began the previous evening.
func (d Decision) Eligible(now int, w clock.Window) bool {
	elapsed := clock.NormalizeFloat(float64(now) - d.StartMinute)
	return elapsed < d.SpanMinutes(w)
}

// MinutesUntilStart returns the wait from now until the next start.
func (d Decision) MinutesUntilStart(now int) float64 {
	return clock.NormalizeFloat(d.StartMinute - float64(now))
}
