package metrics

import "time"

// DecisionEvent describes one evaluation of the charge controller.
type DecisionEvent struct {
	Time            time.Time
	Trigger         string // tick, plug_in, command, ...
	Action          string // start, stop, wait, none
	Reason          string // solver reason or stop cause
	State           string
	SOC             float64
	TargetSOC       float64
	KWhNeeded       float64
	StartMinute     float64
	EffectiveRateKW float64
	EstimatedCost   float64
	Overflow        bool
}

// Sink records controller decisions for observability purposes.
type Sink interface {
	RecordDecision(ev DecisionEvent) error
}

// Session outcomes.
const (
	OutcomeStored    = "stored"
	OutcomeDiscarded = "discarded"
	OutcomeAborted   = "aborted"
)

// SessionEvent is emitted when a charge session ends.
type SessionEvent struct {
	SessionID     string
	Mode          string
	Outcome       string
	Reason        string
	Start         time.Time
	End           time.Time
	DurationHours float64
	SOCGained     float64
	KWhDelivered  float64
	RateKW        float64
	TrendKW       float64
	Cost          float64
}

// SessionRecorder records finished sessions.
type SessionRecorder interface {
	RecordSession(ev SessionEvent) error
}

// StateEvent is a snapshot of the vehicle and the controller.
type StateEvent struct {
	Time            time.Time
	State           string
	SOC             float64
	Plugged         bool
	Charging        bool
	EffectiveRateKW float64
	MeasuredRateKW  float64
	CapacityKWh     float64
}

// StateRecorder records state snapshots.
type StateRecorder interface {
	RecordState(ev StateEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDecision(DecisionEvent) error { return nil }
func (NopSink) RecordSession(SessionEvent) error   { return nil }
func (NopSink) RecordState(StateEvent) error       { return nil }

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDecision forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordDecision(ev DecisionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDecision(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordSession forwards session events to sinks supporting them.
func (m *MultiSink) RecordSession(ev SessionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SessionRecorder); ok {
			if err := rec.RecordSession(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordState forwards state snapshots to sinks supporting them.
func (m *MultiSink) RecordState(ev StateEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(StateRecorder); ok {
			if err := rec.RecordState(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
