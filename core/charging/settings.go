package charging

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/kv"
	"github.com/kilianp07/smartcharge/core/logger"
	"github.com/kilianp07/smartcharge/core/rate"
	"github.com/kilianp07/smartcharge/core/tariff"
)

// Namespace holds every user setting and the persisted session fields.
const Namespace = "usr"

// Setting keys.
const (
	KeyTargetSOC       = "charging.target_soc"
	KeyCheapStart      = "charging.cheap_start"
	KeyCheapEnd        = "charging.cheap_end"
	KeyCheapRate       = "charging.cheap_rate"
	KeyStandardRate    = "charging.standard_rate"
	KeyChargerRate     = "charging.charger_rate"
	KeyBatteryOverride = "charging.battery_override"
	KeySOHOverride     = "charging.soh_override"
	KeyMeasuredRate    = "charging.measured_rate"
	KeyUseMeasuredRate = "charging.use_measured_rate"
	KeyReadyBy         = "charging.ready_by"
	KeyEnabled         = "charging.enabled"

	KeySessionActive    = "charging.session_active"
	KeySessionID        = "charging.session_id"
	KeySessionStart     = "charging.session_start"
	KeySessionStartSOC  = "charging.session_start_soc"
	KeySessionTargetSOC = "charging.session_target_soc"
	KeySessionMode      = "charging.session_mode"
)

// Target SOC bounds accepted from users.
const (
	MinTargetSOC = 20
	MaxTargetSOC = 100
)

// MaxChargerKW bounds the nameplate charger power.
const MaxChargerKW = rate.MaxPlausibleKW * 2

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotPlugged      = errors.New("vehicle not plugged in")
	ErrAtTarget        = errors.New("already at target")
	ErrUnknownCommand  = errors.New("unknown command")
)

// Defaults apply whenever a setting is missing or unreadable.
type Defaults struct {
	TargetSOC   int
	Window      clock.Window
	Tariff      tariff.Tariff
	ChargerKW   float64
	UseMeasured bool
	Enabled     bool
	ReadyBy     clock.TimeOfDay
}

// DefaultDefaults returns the built-in defaults: charge to 80 % between 23:30
// and 05:30 on a 1.8 kW charger.
func DefaultDefaults() Defaults {
	return Defaults{
		TargetSOC:   80,
		Window:      clock.Window{Start: clock.TimeOfDay{Hour: 23, Minute: 30}, End: clock.TimeOfDay{Hour: 5, Minute: 30}},
		Tariff:      tariff.Tariff{CheapRate: 0.07, StandardRate: 0.292},
		ChargerKW:   1.8,
		UseMeasured: true,
		Enabled:     true,
	}
}

// Settings is a typed view over the key-value store. Reads never fail: a
// store error or malformed value is logged and the default is returned.
type Settings struct {
	store kv.Store
	def   Defaults
	log   logger.Logger
}

// NewSettings wraps store with the given defaults.
func NewSettings(store kv.Store, def Defaults, log logger.Logger) *Settings {
	return &Settings{store: store, def: def, log: log}
}

// Defaults returns the configured defaults.
func (s *Settings) Defaults() Defaults { return s.def }

func (s *Settings) raw(key string) (string, bool) {
	v, ok, err := s.store.Get(Namespace, key)
	if err != nil {
		s.log.Warnf("read setting %s: %v", key, err)
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (s *Settings) float(key string, def float64) float64 {
	v, ok := s.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		s.log.Warnf("setting %s=%q is not a number, using %v", key, v, def)
		return def
	}
	return f
}

func (s *Settings) bool(key string, def bool) bool {
	v, ok := s.raw(key)
	if !ok {
		return def
	}
	b, err := kv.ParseBool(v)
	if err != nil {
		s.log.Warnf("setting %s: %v, using %v", key, err, def)
		return def
	}
	return b
}

func (s *Settings) timeOfDay(key string, def clock.TimeOfDay) clock.TimeOfDay {
	v, ok := s.raw(key)
	if !ok {
		return def
	}
	t, err := clock.ParseTimeOfDay(v)
	if err != nil {
		s.log.Warnf("setting %s: %v, using %s", key, err, def)
		return def
	}
	return t
}

func (s *Settings) set(key, value string) error {
	if err := s.store.Set(Namespace, key, value); err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// TargetSOC returns the charge target in percent.
func (s *Settings) TargetSOC() int {
	v := s.float(KeyTargetSOC, float64(s.def.TargetSOC))
	t := int(math.Round(v))
	if t < MinTargetSOC || t > MaxTargetSOC {
		s.log.Warnf("target soc %d out of range, using %d", t, s.def.TargetSOC)
		return s.def.TargetSOC
	}
	return t
}

// Window returns the cheap window.
func (s *Settings) Window() clock.Window {
	return clock.Window{
		Start: s.timeOfDay(KeyCheapStart, s.def.Window.Start),
		End:   s.timeOfDay(KeyCheapEnd, s.def.Window.End),
	}
}

// Tariff returns the cheap and standard prices.
func (s *Settings) Tariff() tariff.Tariff {
	t := tariff.Tariff{
		CheapRate:    s.float(KeyCheapRate, s.def.Tariff.CheapRate),
		StandardRate: s.float(KeyStandardRate, s.def.Tariff.StandardRate),
	}
	if err := t.Validate(); err != nil {
		s.log.Warnf("stored tariff invalid (%v), using defaults", err)
		return s.def.Tariff
	}
	return t
}

// RateProfile returns the nameplate and learned charging power.
func (s *Settings) RateProfile() rate.Profile {
	p := rate.Profile{
		NameplateKW: s.float(KeyChargerRate, s.def.ChargerKW),
		MeasuredKW:  s.float(KeyMeasuredRate, 0),
		UseMeasured: s.bool(KeyUseMeasuredRate, s.def.UseMeasured),
	}
	if p.NameplateKW <= 0 {
		p.NameplateKW = s.def.ChargerKW
	}
	if rate.ValidateMeasured(p.MeasuredKW) != nil {
		s.log.Warnf("stored measured rate %.2f kW implausible, ignoring", p.MeasuredKW)
		p.MeasuredKW = 0
	}
	return p
}

// ReadyBy returns the deadline; 00:00 means disabled.
func (s *Settings) ReadyBy() clock.TimeOfDay { return s.timeOfDay(KeyReadyBy, s.def.ReadyBy) }

// Enabled reports whether scheduling is on.
func (s *Settings) Enabled() bool { return s.bool(KeyEnabled, s.def.Enabled) }

// BatteryOverrides returns the capacity (kWh) and SOH (%) overrides, 0 when unset.
func (s *Settings) BatteryOverrides() (capacityKWh, soh float64) {
	capacityKWh = s.float(KeyBatteryOverride, 0)
	soh = s.float(KeySOHOverride, 0)
	if capacityKWh < 0 {
		capacityKWh = 0
	}
	if soh < 0 || soh > 100 {
		soh = 0
	}
	return capacityKWh, soh
}

// SetTargetSOC stores a target within MinTargetSOC..MaxTargetSOC.
func (s *Settings) SetTargetSOC(percent int) error {
	if percent < MinTargetSOC || percent > MaxTargetSOC {
		return fmt.Errorf("%w: target must be %d-%d", ErrInvalidArgument, MinTargetSOC, MaxTargetSOC)
	}
	return s.set(KeyTargetSOC, strconv.Itoa(percent))
}

// SetWindow stores the cheap window.
func (s *Settings) SetWindow(w clock.Window) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := s.set(KeyCheapStart, w.Start.String()); err != nil {
		return err
	}
	return s.set(KeyCheapEnd, w.End.String())
}

// SetTariff stores both prices.
func (s *Settings) SetTariff(t tariff.Tariff) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := s.set(KeyCheapRate, formatFloat(t.CheapRate)); err != nil {
		return err
	}
	return s.set(KeyStandardRate, formatFloat(t.StandardRate))
}

// SetChargerKW stores the nameplate power.
func (s *Settings) SetChargerKW(kw float64) error {
	if !(kw > 0 && kw <= MaxChargerKW) {
		return fmt.Errorf("%w: charger rate must be within 0-%.0f kW", ErrInvalidArgument, MaxChargerKW)
	}
	return s.set(KeyChargerRate, formatFloat(kw))
}

// SetReadyBy stores the deadline; 00:00 disables it.
func (s *Settings) SetReadyBy(t clock.TimeOfDay) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return s.set(KeyReadyBy, t.String())
}

// SetEnabled turns scheduling on or off.
func (s *Settings) SetEnabled(on bool) error { return s.set(KeyEnabled, kv.FormatBool(on)) }

// SetUseMeasured toggles blending of the learned rate.
func (s *Settings) SetUseMeasured(on bool) error { return s.set(KeyUseMeasuredRate, kv.FormatBool(on)) }

// SetMeasuredKW overwrites the learned rate with two decimals. 0 clears it.
func (s *Settings) SetMeasuredKW(kw float64) error {
	if err := rate.ValidateMeasured(kw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return s.set(KeyMeasuredRate, strconv.FormatFloat(kw, 'f', 2, 64))
}

// SetBatteryOverride stores a usable capacity override; 0 clears it.
func (s *Settings) SetBatteryOverride(kWh float64) error {
	if kWh < 0 || kWh > 250 {
		return fmt.Errorf("%w: battery capacity must be within 0-250 kWh", ErrInvalidArgument)
	}
	return s.set(KeyBatteryOverride, formatFloat(kWh))
}

// SetSOHOverride stores a state of health override; 0 clears it.
func (s *Settings) SetSOHOverride(percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: soh must be within 0-100", ErrInvalidArgument)
	}
	return s.set(KeySOHOverride, formatFloat(percent))
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
