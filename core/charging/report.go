package charging

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/rate"
	"github.com/kilianp07/smartcharge/core/scheduler"
	"github.com/kilianp07/smartcharge/core/tariff"
)

// Report is a point-in-time view of the vehicle and the controller.
type Report struct {
	Time     time.Time     `json:"time" yaml:"time"`
	Version  string        `json:"version" yaml:"version"`
	Currency string        `json:"currency" yaml:"currency"`
	State    State         `json:"state" yaml:"state"`
	Mode     Mode          `json:"mode,omitempty" yaml:"mode,omitempty"`
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Paused   bool          `json:"paused" yaml:"paused"`
	Vehicle  VehicleReport `json:"vehicle" yaml:"vehicle"`

	TargetSOC int           `json:"target_soc" yaml:"target_soc"`
	Window    clock.Window  `json:"window" yaml:"window"`
	InWindow  bool          `json:"in_window" yaml:"in_window"`
	ReadyBy   string        `json:"ready_by" yaml:"ready_by"`
	Tariff    tariff.Tariff `json:"tariff" yaml:"tariff"`
	Rates     RateReport    `json:"rates" yaml:"rates"`

	Plan        *PlanReport       `json:"plan,omitempty" yaml:"plan,omitempty"`
	Session     *SessionReport    `json:"session,omitempty" yaml:"session,omitempty"`
	LastSession *rate.Measurement `json:"last_session,omitempty" yaml:"last_session,omitempty"`
}

// VehicleReport holds the live readings and the derived capacity.
type VehicleReport struct {
	SOC                 float64 `json:"soc" yaml:"soc"`
	Plugged             bool    `json:"plugged" yaml:"plugged"`
	Charging            bool    `json:"charging" yaml:"charging"`
	NominalCapacityKWh  float64 `json:"nominal_capacity_kwh" yaml:"nominal_capacity_kwh"`
	StateOfHealth       float64 `json:"soh" yaml:"soh"`
	CapacityKWh         float64 `json:"capacity_kwh" yaml:"capacity_kwh"`
	CapacityOverrideKWh float64 `json:"capacity_override_kwh,omitempty" yaml:"capacity_override_kwh,omitempty"`
	SOHOverride         float64 `json:"soh_override,omitempty" yaml:"soh_override,omitempty"`
}

// RateReport holds the charging power figures.
type RateReport struct {
	rate.Profile `yaml:",inline"`
	EffectiveKW  float64 `json:"effective_kw" yaml:"effective_kw"`
}

// PlanReport is the current schedule decision with its estimated cost.
type PlanReport struct {
	scheduler.Decision `yaml:",inline"`
	Start              string               `json:"start" yaml:"start"`
	Finish             string               `json:"finish,omitempty" yaml:"finish,omitempty"`
	Cost               tariff.CostBreakdown `json:"cost" yaml:"cost"`
}

// SessionReport summarizes the active charge session.
type SessionReport struct {
	ID             string    `json:"id" yaml:"id"`
	Start          time.Time `json:"start" yaml:"start"`
	ElapsedMinutes float64   `json:"elapsed_minutes" yaml:"elapsed_minutes"`
	StartSOC       float64   `json:"start_soc" yaml:"start_soc"`
	SOCGained      float64   `json:"soc_gained" yaml:"soc_gained"`
	Checkpoints    int       `json:"checkpoints" yaml:"checkpoints"`
	TrendKW        float64   `json:"trend_kw,omitempty" yaml:"trend_kw,omitempty"`
}

// Report evaluates nothing; it reads telemetry and settings and describes
// what the controller would do.
func (c *Controller) Report() Report {
	return c.report(c.snapshot())
}

func (c *Controller) report(s snapshot) Report {
	b := s.vehicle.Battery
	r := Report{
		Time:     s.now,
		Version:  c.opts.Version,
		Currency: c.opts.Currency,
		State:    c.state,
		Mode:     c.mode,
		Enabled:  s.enabled,
		Paused:   c.paused,
		Vehicle: VehicleReport{
			SOC:                 s.vehicle.SOC,
			Plugged:             s.vehicle.Plugged,
			Charging:            s.vehicle.Charging,
			NominalCapacityKWh:  b.NominalCapacityKWh,
			StateOfHealth:       b.EffectiveSOH(),
			CapacityKWh:         b.EffectiveCapacityKWh(),
			CapacityOverrideKWh: b.CapacityOverrideKWh,
			SOHOverride:         b.SOHOverride,
		},
		TargetSOC: s.target,
		Window:    s.window,
		InWindow:  s.window.Contains(s.minute),
		ReadyBy:   "off",
		Tariff:    s.tariff,
		Rates:     RateReport{Profile: s.profile, EffectiveKW: s.profile.EffectiveKW()},
	}
	if !s.readyBy.IsMidnight() {
		r.ReadyBy = s.readyBy.String()
	}
	if s.vehicle.Plugged && !s.atTarget() {
		p := &PlanReport{
			Decision: s.decision,
			Start:    clock.FormatMinute(s.decision.StartMinute),
			Cost:     s.decision.Cost(s.window, s.tariff),
		}
		if s.decision.FinishMinute != nil {
			p.Finish = clock.FormatMinute(*s.decision.FinishMinute)
		}
		r.Plan = p
	}
	if c.est.Active() {
		sess := c.est.Session()
		sr := &SessionReport{
			ID:             sess.ID,
			Start:          sess.Start,
			ElapsedMinutes: s.now.Sub(sess.Start).Minutes(),
			StartSOC:       sess.StartSOC,
			SOCGained:      s.vehicle.SOC - sess.StartSOC,
			Checkpoints:    len(sess.Checkpoints),
		}
		if kw, ok := rate.Trend(sess.Checkpoints, s.capacity()); ok {
			sr.TrendKW = kw
		}
		r.Session = sr
	}
	if c.lastMeasurement != nil {
		m := *c.lastMeasurement
		r.LastSession = &m
	}
	return r
}

// Text renders the report for a command reply.
func (r Report) Text() string {
	var b strings.Builder
	v := r.Vehicle
	fmt.Fprintf(&b, "State: %s", r.State)
	if r.Mode != ModeNone {
		fmt.Fprintf(&b, " (%s)", r.Mode)
	}
	if !r.Enabled {
		b.WriteString(", scheduling disabled")
	}
	if r.Paused {
		b.WriteString(", paused until unplug")
	}
	fmt.Fprintf(&b, "\nSOC: %.0f%% -> target %d%%", v.SOC, r.TargetSOC)
	fmt.Fprintf(&b, "\nPlugged: %s, charging: %s", yesNo(v.Plugged), yesNo(v.Charging))
	fmt.Fprintf(&b, "\nBattery: %.1f kWh usable (SOH %.0f%%)", v.CapacityKWh, v.StateOfHealth)
	inWindow := ""
	if r.InWindow {
		inWindow = " (now)"
	}
	fmt.Fprintf(&b, "\nCheap window: %s%s, ready by: %s", r.Window, inWindow, r.ReadyBy)
	fmt.Fprintf(&b, "\nRates: cheap %s%.3f, standard %s%.3f per kWh", r.Currency, r.Tariff.CheapRate, r.Currency, r.Tariff.StandardRate)
	fmt.Fprintf(&b, "\nCharger: %.2f kW nameplate", r.Rates.NameplateKW)
	if r.Rates.MeasuredKW > 0 {
		fmt.Fprintf(&b, ", %.2f kW measured", r.Rates.MeasuredKW)
		if !r.Rates.UseMeasured {
			b.WriteString(" (unused)")
		}
	}
	fmt.Fprintf(&b, ", %.2f kW effective", r.Rates.EffectiveKW)
	if p := r.Plan; p != nil {
		fmt.Fprintf(&b, "\nPlan: start %s (%s)", p.Start, p.Reason)
		if p.Finish != "" {
			fmt.Fprintf(&b, ", finish %s", p.Finish)
		}
		fmt.Fprintf(&b, ", %.1f kWh, %s", p.KWhNeeded, FormatDuration(p.ChargeMinutes()))
		fmt.Fprintf(&b, "\n%s", FormatCostBreakdown(p.Cost, r.Window, r.Currency, true))
	}
	if s := r.Session; s != nil {
		fmt.Fprintf(&b, "\nSession: %s elapsed, +%.1f%%, %d checkpoints", FormatDuration(s.ElapsedMinutes), s.SOCGained, s.Checkpoints)
		if s.TrendKW != 0 {
			fmt.Fprintf(&b, ", trend %.2f kW", s.TrendKW)
		}
	}
	return b.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
