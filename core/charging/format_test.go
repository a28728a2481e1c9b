package charging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/rate"
	"github.com/kilianp07/smartcharge/core/scheduler"
	"github.com/kilianp07/smartcharge/core/tariff"
)

var night = clock.Window{Start: clock.TimeOfDay{Hour: 23, Minute: 30}, End: clock.TimeOfDay{Hour: 5, Minute: 30}}

func TestFormatDuration(t *testing.T) {
	cases := map[float64]string{0: "0m", 30: "30m", 240: "4h", 270: "4h 30m", 119.6: "2h", -5: "0m"}
	for in, want := range cases {
		assert.Equal(t, want, FormatDuration(in), "%v minutes", in)
	}
}

func TestFormatTimeRange(t *testing.T) {
	assert.Equal(t, "23:30 -> 04:00 (4h 30m)", FormatTimeRange(1410, 240))
	assert.Equal(t, "23:30 -> 05:30 (6h)", FormatTimeRange(1410, 1770))
	assert.Equal(t, "01:00 -> 01:45 (45m)", FormatTimeRange(60, 105))
}

func TestFormatCostBreakdown(t *testing.T) {
	tf := tariff.Tariff{CheapRate: 0.07, StandardRate: 0.292}

	inside := tariff.Attribute(1410, 1770, 12, night, tf)
	assert.Equal(t, "Est. cost: £0.84 (all cheap rate)\nSaving: £2.66 vs standard rate", FormatCostBreakdown(inside, night, "£", true))
	assert.Equal(t, "Actual cost: £0.84 (all cheap rate)", FormatCostBreakdown(inside, night, "£", false))

	// 22:30 -> 06:30, 8h at 1 kWh per hour.
	both := tariff.Attribute(1350, 1830, 8, night, tf)
	want := "Est. cost: £1.00" +
		"\n  Pre-window (before 23:30): £0.29 (1.0 kWh)" +
		"\n  Cheap (23:30-05:30): £0.42 (6.0 kWh)" +
		"\n  Standard (after 05:30): £0.29 (1.0 kWh)"
	assert.Equal(t, want, FormatCostBreakdown(both, night, "£", true))
}

func TestPlanMessage(t *testing.T) {
	w := clock.Window{Start: clock.TimeOfDay{Hour: 23}, End: night.End}
	d := scheduler.Solve(scheduler.Request{SOC: 55, TargetSOC: 80, CapacityKWh: 40, RateKW: 2, Window: w, ReadyBy: clock.TimeOfDay{Hour: 3}})
	msg := PlanMessage(55, 80, w, d, d.Cost(w, tariff.Tariff{CheapRate: 0.07, StandardRate: 0.292}), "€")
	assert.Contains(t, msg, "Plugged in at 55%. Will charge to 80%, 22:00 -> 03:00 (5h).")
	assert.Contains(t, msg, "Early start needed to be ready by 03:00.")
	assert.Contains(t, msg, "Need 10.0 kWh (~5.0h at 2.0 kW).")
	assert.Contains(t, msg, "Pre-window (before 23:00): €0.58 (2.0 kWh)")
}

func TestSessionSummary(t *testing.T) {
	start := time.Date(2025, 1, 10, 23, 30, 0, 0, time.UTC)
	m := rate.Measurement{Start: start, Duration: 4*time.Hour + 30*time.Minute, StartSOC: 40, EndSOC: 62.4, SOCGained: 22.4, KWhDelivered: 9, RateKW: 2}
	c := tariff.Attribute(1410, 1410+270, 9, night, tariff.Tariff{CheapRate: 0.07, StandardRate: 0.292})
	msg := SessionSummary(m, c, night, "£")
	assert.Equal(t, "Charge complete: 23:30 -> 04:00 (4h 30m)\nSOC 40% -> 62% (+22.4%), 9.0 kWh at 2.00 kW\nActual cost: £0.63 (all cheap rate)", msg)
}
