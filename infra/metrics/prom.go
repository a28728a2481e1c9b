package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/smartcharge/core/metrics"
)

// States exported through the smartcharge_state gauge. Exactly one of them is
// set to 1 at any time.
var knownStates = []string{"idle", "waiting_for_window", "charging_scheduled", "charging_manual", "completed"}

// PromSink records controller activity in Prometheus metrics.
type PromSink struct {
	soc       prometheus.Gauge
	effective prometheus.Gauge
	measured  prometheus.Gauge
	state     *prometheus.GaugeVec
	decisions *prometheus.CounterVec
	sessions  *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The HTTP exposition is started separately with StartServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// that are already registered are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		soc: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartcharge_soc_percent",
			Help: "Last reported vehicle state of charge",
		}),
		effective: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartcharge_effective_rate_kw",
			Help: "Charge rate used for planning",
		}),
		measured: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartcharge_measured_rate_kw",
			Help: "Last stored measured charge rate, 0 when unset",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smartcharge_state",
			Help: "Controller state, 1 for the current state",
		}, []string{"state"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartcharge_decisions_total",
			Help: "Controller evaluations by action and reason",
		}, []string{"action", "reason"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartcharge_sessions_total",
			Help: "Finished charge sessions by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartcharge_session_duration_hours",
			Help:    "Duration of finished charge sessions",
			Buckets: []float64{0.25, 0.5, 1, 2, 3, 4, 6, 8, 12},
		}),
	}

	var err error
	if s.soc, err = register(reg, s.soc); err != nil {
		return nil, err
	}
	if s.effective, err = register(reg, s.effective); err != nil {
		return nil, err
	}
	if s.measured, err = register(reg, s.measured); err != nil {
		return nil, err
	}
	if s.state, err = register(reg, s.state); err != nil {
		return nil, err
	}
	if s.decisions, err = register(reg, s.decisions); err != nil {
		return nil, err
	}
	if s.sessions, err = register(reg, s.sessions); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDecision counts the evaluation and updates the rate gauge.
func (s *PromSink) RecordDecision(ev coremetrics.DecisionEvent) error {
	s.decisions.WithLabelValues(ev.Action, ev.Reason).Inc()
	if ev.EffectiveRateKW > 0 {
		s.effective.Set(ev.EffectiveRateKW)
	}
	return nil
}

// RecordSession counts the session and observes its duration when stored.
func (s *PromSink) RecordSession(ev coremetrics.SessionEvent) error {
	s.sessions.WithLabelValues(ev.Outcome).Inc()
	if ev.Outcome == coremetrics.OutcomeStored {
		s.duration.Observe(ev.DurationHours)
	}
	return nil
}

// RecordState updates the snapshot gauges.
func (s *PromSink) RecordState(ev coremetrics.StateEvent) error {
	s.soc.Set(ev.SOC)
	s.effective.Set(ev.EffectiveRateKW)
	s.measured.Set(ev.MeasuredRateKW)
	for _, st := range knownStates {
		v := 0.0
		if st == ev.State {
			v = 1
		}
		s.state.WithLabelValues(st).Set(v)
	}
	return nil
}
