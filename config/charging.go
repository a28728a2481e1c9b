package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/smartcharge/core/charging"
	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/tariff"
)

const (
	minTickSeconds     = 60
	maxTickSeconds     = 300
	defaultTickSeconds = 300
)

// ChargingConfig holds the fallback values for settings the user has not
// changed through commands, plus the fixed behaviour switches.
type ChargingConfig struct {
	TargetSOC    int     `json:"target_soc"`
	CheapStart   string  `json:"cheap_start"`
	CheapEnd     string  `json:"cheap_end"`
	CheapRate    float64 `json:"cheap_rate"`
	StandardRate float64 `json:"standard_rate"`
	ChargerKW    float64 `json:"charger_rate"`
	// ReadyBy is HH:MM, or empty / "off" for no deadline.
	ReadyBy     string `json:"ready_by"`
	Enabled     *bool  `json:"enabled"`
	UseMeasured *bool  `json:"use_measured_rate"`

	StopAtWindowEnd       bool   `json:"stop_at_window_end"`
	AutoStartGraceSeconds int    `json:"auto_start_grace_seconds"`
	TickIntervalSeconds   int    `json:"tick_interval_seconds"`
	Currency              string `json:"currency"`
}

func (c *ChargingConfig) SetDefaults() {
	d := charging.DefaultDefaults()
	if c.TargetSOC == 0 {
		c.TargetSOC = d.TargetSOC
	}
	if c.CheapStart == "" {
		c.CheapStart = d.Window.Start.String()
	}
	if c.CheapEnd == "" {
		c.CheapEnd = d.Window.End.String()
	}
	if c.CheapRate == 0 && c.StandardRate == 0 {
		c.CheapRate, c.StandardRate = d.Tariff.CheapRate, d.Tariff.StandardRate
	}
	if c.ChargerKW == 0 {
		c.ChargerKW = d.ChargerKW
	}
	if c.Enabled == nil {
		c.Enabled = &d.Enabled
	}
	if c.UseMeasured == nil {
		c.UseMeasured = &d.UseMeasured
	}
	if c.AutoStartGraceSeconds <= 0 {
		c.AutoStartGraceSeconds = 120
	}
	switch {
	case c.TickIntervalSeconds == 0:
		c.TickIntervalSeconds = defaultTickSeconds
	case c.TickIntervalSeconds < minTickSeconds:
		c.TickIntervalSeconds = minTickSeconds
	case c.TickIntervalSeconds > maxTickSeconds:
		c.TickIntervalSeconds = maxTickSeconds
	}
	if c.Currency == "" {
		c.Currency = "£"
	}
}

func (c ChargingConfig) Validate() error {
	_, err := c.Defaults()
	return err
}

// Defaults converts the section into controller defaults, applying the same
// bounds as the user commands.
func (c ChargingConfig) Defaults() (charging.Defaults, error) {
	var d charging.Defaults
	if c.TargetSOC < charging.MinTargetSOC || c.TargetSOC > charging.MaxTargetSOC {
		return d, fmt.Errorf("target_soc %d outside %d..%d", c.TargetSOC, charging.MinTargetSOC, charging.MaxTargetSOC)
	}
	w, err := clock.ParseWindow(c.CheapStart, c.CheapEnd)
	if err != nil {
		return d, fmt.Errorf("cheap window: %w", err)
	}
	t := tariff.Tariff{CheapRate: c.CheapRate, StandardRate: c.StandardRate}
	if err := t.Validate(); err != nil {
		return d, err
	}
	if !(c.ChargerKW > 0) || c.ChargerKW > charging.MaxChargerKW {
		return d, fmt.Errorf("charger_rate %.2f outside (0, %.0f]", c.ChargerKW, charging.MaxChargerKW)
	}
	var readyBy clock.TimeOfDay
	if r := strings.TrimSpace(c.ReadyBy); r != "" && !strings.EqualFold(r, "off") {
		if readyBy, err = clock.ParseTimeOfDay(r); err != nil {
			return d, fmt.Errorf("ready_by: %w", err)
		}
	}
	d = charging.Defaults{
		TargetSOC: c.TargetSOC,
		Window:    w,
		Tariff:    t,
		ChargerKW: c.ChargerKW,
		ReadyBy:   readyBy,
		// Nil pointers only survive when SetDefaults was skipped.
		UseMeasured: c.UseMeasured == nil || *c.UseMeasured,
		Enabled:     c.Enabled == nil || *c.Enabled,
	}
	return d, nil
}

func (c ChargingConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

func (c ChargingConfig) AutoStartGrace() time.Duration {
	return time.Duration(c.AutoStartGraceSeconds) * time.Second
}
