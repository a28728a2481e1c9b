// Package rate learns the real charging power of the vehicle from observed
// sessions and blends it with the charger nameplate rating.
package rate

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/smartcharge/core/clock"
)

const (
	// MinSessionHours is the shortest session that yields a measurement.
	MinSessionHours = 0.5
	// MinSOCGain is the smallest SOC increase, in percent points, accepted.
	MinSOCGain = 1.0
	// MinPlausibleKW and MaxPlausibleKW bound a believable charging power.
	MinPlausibleKW = 0.5
	MaxPlausibleKW = 25.0
	// MeasuredWeight is the share of the measured rate in the effective rate.
	MeasuredWeight = 0.7
	// CheckpointSpacing debounces checkpoints when ticks come faster.
	CheckpointSpacing = 4 * time.Minute
	// MaxCheckpoints bounds the in-memory checkpoint ring.
	MaxCheckpoints = 96
)

var (
	ErrNoSession         = errors.New("no active charge session")
	ErrSessionTooShort   = errors.New("session too short to measure")
	ErrSOCGainTooSmall   = errors.New("soc gain too small")
	ErrImplausibleRate   = errors.New("measured rate outside plausible range")
	ErrInvalidMeasuredKW = errors.New("measured rate must be 0 or within 0.5-25 kW")
)

// Skipped reports whether err means the session was discarded for lack of
// good data rather than a failure.
func Skipped(err error) bool {
	return errors.Is(err, ErrSessionTooShort) || errors.Is(err, ErrSOCGainTooSmall) || errors.Is(err, ErrImplausibleRate)
}

// Plausible reports whether kw is a believable charging power.
func Plausible(kw float64) bool {
	return kw >= MinPlausibleKW && kw <= MaxPlausibleKW
}

// ValidateMeasured accepts 0 (unset) or a plausible rate.
func ValidateMeasured(kw float64) error {
	if kw == 0 || Plausible(kw) {
		return nil
	}
	return ErrInvalidMeasuredKW
}

// Profile is the charging power knowledge for the vehicle.
type Profile struct {
	NameplateKW float64 `json:"nameplate_kw" yaml:"nameplate_kw"`
	MeasuredKW  float64 `json:"measured_kw" yaml:"measured_kw"` // 0 means never learned
	UseMeasured bool    `json:"use_measured" yaml:"use_measured"`
}

// EffectiveKW blends the measured rate into the nameplate rate when it is
// enabled and plausible; otherwise it returns the nameplate rate unchanged.
func (p Profile) EffectiveKW() float64 {
	if p.UseMeasured && Plausible(p.MeasuredKW) {
		return p.MeasuredKW*MeasuredWeight + p.NameplateKW*(1-MeasuredWeight)
	}
	return p.NameplateKW
}

// Checkpoint is one SOC sample taken while charging.
type Checkpoint struct {
	Time           time.Time `json:"time" yaml:"time"`
	SOC            float64   `json:"soc" yaml:"soc"`
	ElapsedMinutes float64   `json:"elapsed_minutes" yaml:"elapsed_minutes"`
}

// Session is the charge session currently being observed.
type Session struct {
	ID          string       `json:"id" yaml:"id"`
	Active      bool         `json:"active" yaml:"active"`
	Start       time.Time    `json:"start" yaml:"start"`
	StartSOC    float64      `json:"start_soc" yaml:"start_soc"`
	TargetSOC   float64      `json:"target_soc" yaml:"target_soc"`
	StartMinute int          `json:"start_minute" yaml:"start_minute"`
	Checkpoints []Checkpoint `json:"checkpoints,omitempty" yaml:"checkpoints,omitempty"`
}

// Measurement is the outcome of finalizing a session.
type Measurement struct {
	SessionID     string        `json:"session_id" yaml:"session_id"`
	Start         time.Time     `json:"start" yaml:"start"`
	End           time.Time     `json:"end" yaml:"end"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
	StartSOC      float64       `json:"start_soc" yaml:"start_soc"`
	EndSOC        float64       `json:"end_soc" yaml:"end_soc"`
	SOCGained     float64       `json:"soc_gained" yaml:"soc_gained"`
	KWhDelivered  float64       `json:"kwh_delivered" yaml:"kwh_delivered"`
	RateKW        float64       `json:"rate_kw" yaml:"rate_kw"`
	TrendKW       float64       `json:"trend_kw,omitempty" yaml:"trend_kw,omitempty"`
	CheckpointLen int           `json:"checkpoints" yaml:"checkpoints"`
}

// DurationHours returns the session length in hours.
func (m Measurement) DurationHours() float64 { return m.Duration.Hours() }

// Estimator tracks a single charge session. It is not safe for concurrent
// use; the controller owns it.
type Estimator struct {
	session Session
	last    time.Time
}

// NewEstimator returns an idle estimator.
func NewEstimator() *Estimator { return &Estimator{} }

// Active reports whether a session is being tracked.
func (e *Estimator) Active() bool { return e.session.Active }

// Session returns a copy of the current session.
func (e *Estimator) Session() Session {
	s := e.session
	s.Checkpoints = append([]Checkpoint(nil), e.session.Checkpoints...)
	return s
}

// Start begins a new session, discarding any previous one.
func (e *Estimator) Start(soc, target float64, now time.Time) Session {
	e.session = Session{
		ID:          uuid.NewString(),
		Active:      true,
		Start:       now,
		StartSOC:    soc,
		TargetSOC:   target,
		StartMinute: clock.MinuteOfDay(now),
	}
	e.last = now
	return e.Session()
}

// Restore reinstates a session persisted before a restart. Checkpoints are not
// persisted, so the debounce restarts from the session start.
func (e *Estimator) Restore(s Session) {
	s.Active = true
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	e.session = s
	e.last = s.Start
	if n := len(s.Checkpoints); n > 0 {
		e.last = s.Checkpoints[n-1].Time
	}
}

// Record appends a checkpoint when a session is active and at least
// CheckpointSpacing elapsed since the previous one. It reports whether a
// checkpoint was stored.
func (e *Estimator) Record(soc float64, now time.Time) bool {
	if !e.session.Active {
		return false
	}
	if now.Sub(e.last) < CheckpointSpacing {
		return false
	}
	cp := Checkpoint{Time: now, SOC: soc, ElapsedMinutes: now.Sub(e.session.Start).Minutes()}
	e.session.Checkpoints = append(e.session.Checkpoints, cp)
	if len(e.session.Checkpoints) > MaxCheckpoints {
		e.session.Checkpoints = e.session.Checkpoints[len(e.session.Checkpoints)-MaxCheckpoints:]
	}
	e.last = now
	return true
}

// Abort drops the session without measuring it.
func (e *Estimator) Abort() Session {
	s := e.Session()
	e.session = Session{}
	return s
}

// Finalize ends the session and derives the charging power from the SOC gained.
// The session is cleared in every case. A skipped session returns the partial
// measurement together with ErrSessionTooShort, ErrSOCGainTooSmall or
// ErrImplausibleRate; persisting an accepted rate is the caller's job.
func (e *Estimator) Finalize(soc float64, now time.Time, capacityKWh float64) (Measurement, error) {
	if !e.session.Active {
		return Measurement{}, ErrNoSession
	}
	s := e.Abort()
	m := Measurement{
		SessionID:     s.ID,
		Start:         s.Start,
		End:           now,
		Duration:      now.Sub(s.Start),
		StartSOC:      s.StartSOC,
		EndSOC:        soc,
		SOCGained:     soc - s.StartSOC,
		CheckpointLen: len(s.Checkpoints),
	}
	m.TrendKW, _ = Trend(s.Checkpoints, capacityKWh)

	hours := float64(now.Sub(s.Start).Milliseconds()) / 3.6e6
	if hours < MinSessionHours {
		return m, ErrSessionTooShort
	}
	if m.SOCGained < MinSOCGain {
		return m, ErrSOCGainTooSmall
	}
	m.KWhDelivered = m.SOCGained / 100 * capacityKWh
	m.RateKW = m.KWhDelivered / hours
	if !Plausible(m.RateKW) {
		return m, ErrImplausibleRate
	}
	return m, nil
}

// TrendKW returns the regression rate of the active session so far.
func (e *Estimator) TrendKW(capacityKWh float64) (float64, bool) {
	return Trend(e.session.Checkpoints, capacityKWh)
}

// Trend fits SOC against elapsed hours and converts the slope to kW. It needs
// at least two checkpoints spread over time.
func Trend(cps []Checkpoint, capacityKWh float64) (float64, bool) {
	if len(cps) < 2 || capacityKWh <= 0 {
		return 0, false
	}
	x := make([]float64, len(cps))
	y := make([]float64, len(cps))
	for i, cp := range cps {
		x[i] = cp.ElapsedMinutes / 60
		y[i] = cp.SOC
	}
	if stat.Variance(x, nil) == 0 {
		return 0, false
	}
	_, slope := stat.LinearRegression(x, y, nil, false)
	kw := slope / 100 * capacityKWh
	if math.IsNaN(kw) || math.IsInf(kw, 0) {
		return 0, false
	}
	return kw, true
}
