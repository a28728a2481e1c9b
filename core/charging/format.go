package charging

import (
	"fmt"
	"math"
	"strings"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/rate"
	"github.com/kilianp07/smartcharge/core/scheduler"
	"github.com/kilianp07/smartcharge/core/tariff"
)

// FormatDuration renders minutes as "4h 30m", "4h" or "30m".
func FormatDuration(minutes float64) string {
	if minutes < 0 || math.IsNaN(minutes) {
		minutes = 0
	}
	total := int(math.Round(minutes))
	h, m := total/60, total%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}

// FormatTimeRange renders "23:30 -> 04:00 (4h 30m)". Ranges crossing
// midnight are measured forward.
func FormatTimeRange(startMinute, endMinute float64) string {
	d := endMinute - startMinute
	if d < 0 {
		d += clock.MinutesPerDay
	}
	return fmt.Sprintf("%s -> %s (%s)", clock.FormatMinute(startMinute), clock.FormatMinute(endMinute), FormatDuration(d))
}

// FormatCostBreakdown renders a cost estimate or an actual cost. The
// per-segment breakdown is only listed when part of the energy falls outside
// the cheap window.
func FormatCostBreakdown(c tariff.CostBreakdown, w clock.Window, currency string, estimate bool) string {
	label := "Actual cost"
	if estimate {
		label = "Est. cost"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s%.2f", label, currency, c.TotalCost)
	if !c.HasOverflow {
		b.WriteString(" (all cheap rate)")
		if estimate && c.Savings > 0 {
			fmt.Fprintf(&b, "\nSaving: %s%.2f vs standard rate", currency, c.Savings)
		}
		return b.String()
	}
	if c.PreWindowKWh > 0 {
		fmt.Fprintf(&b, "\n  Pre-window (before %s): %s%.2f (%.1f kWh)", w.Start, currency, c.PreWindowCost, c.PreWindowKWh)
	}
	fmt.Fprintf(&b, "\n  Cheap (%s): %s%.2f (%.1f kWh)", w, currency, c.CheapWindowCost, c.CheapWindowKWh)
	if c.PostWindowKWh > 0 {
		fmt.Fprintf(&b, "\n  Standard (after %s): %s%.2f (%.1f kWh)", w.End, currency, c.PostWindowCost, c.PostWindowKWh)
	}
	return b.String()
}

// PlanMessage is the notification sent when charging is deferred on plug-in.
func PlanMessage(soc float64, target int, w clock.Window, d scheduler.Decision, cost tariff.CostBreakdown, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plugged in at %.0f%%. Will charge to %d%%", soc, target)
	if d.FinishMinute != nil {
		fmt.Fprintf(&b, ", %s.", FormatTimeRange(d.StartMinute, *d.FinishMinute))
	} else {
		fmt.Fprintf(&b, " from %s (cheap %s).", clock.FormatMinute(d.StartMinute), w)
	}
	if d.Reason == scheduler.EarlyStartRequired {
		fmt.Fprintf(&b, "\nEarly start needed to be ready by %s.", clock.FormatMinute(*d.ReadyByMinute))
	}
	fmt.Fprintf(&b, "\nNeed %.1f kWh (~%.1fh at %.1f kW).\n", d.KWhNeeded, d.ChargeDurationHours, d.RateKW)
	b.WriteString(FormatCostBreakdown(cost, w, currency, true))
	return b.String()
}

// SessionSummary is the notification sent after a measured session.
func SessionSummary(m rate.Measurement, cost tariff.CostBreakdown, w clock.Window, currency string) string {
	start := float64(clock.MinuteOfDay(m.Start))
	var b strings.Builder
	fmt.Fprintf(&b, "Charge complete: %s\n", FormatTimeRange(start, start+m.Duration.Minutes()))
	fmt.Fprintf(&b, "SOC %.0f%% -> %.0f%% (+%.1f%%), %.1f kWh at %.2f kW\n", m.StartSOC, m.EndSOC, m.SOCGained, m.KWhDelivered, m.RateKW)
	b.WriteString(FormatCostBreakdown(cost, w, currency, false))
	return b.String()
}
