// Package telemetry reads OVMS vehicle metrics from MQTT and turns lifecycle
// events into charging.Event values for the service loop.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/smartcharge/core/charging"
	"github.com/kilianp07/smartcharge/infra/logger"
	"github.com/kilianp07/smartcharge/infra/mqtt"
)

// OVMS metric names as they appear in the metric topic path.
const (
	MetricSOC      = "v/b/soc"
	MetricPilot    = "v/c/pilot"
	MetricCharging = "v/c/charging"
	MetricCapacity = "v/b/capacity"
	MetricSOH      = "v/b/soh"
)

// Metrics lists every metric the source subscribes to.
var Metrics = []string{MetricSOC, MetricPilot, MetricCharging, MetricCapacity, MetricSOH}

// OVMS event names mapped to controller events.
var eventNames = map[string]charging.EventType{
	"vehicle.charge.prepare":   charging.EventPlugIn,
	"vehicle.charge.pilot.on":  charging.EventPlugIn,
	"vehicle.charge.pilot.off": charging.EventUnplug,
	"vehicle.charge.start":     charging.EventChargeStart,
	"vehicle.charge.stop":      charging.EventChargeStop,
}

// ErrUnavailable is returned for metrics that were never received or are
// older than the staleness limit.
var ErrUnavailable = errors.New("telemetry: reading unavailable")

// DecodeBool decodes the boolean encodings OVMS uses for flag metrics.
func DecodeBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1", "on":
		return true, nil
	case "no", "false", "0", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

// EventSink receives lifecycle events. eventbus.TypedBus satisfies it.
type EventSink interface {
	Publish(ctx context.Context, e charging.Event) error
}

type reading struct {
	raw string
	at  time.Time
}

// Source caches the latest value of every metric and implements
// charging.Telemetry.
type Source struct {
	conn       mqtt.Conn
	topics     mqtt.Topics
	events     EventSink
	staleAfter time.Duration
	now        func() time.Time
	log        logger.Logger

	mu     sync.Mutex
	values map[string]reading
	flags  map[string]bool
	ctx    context.Context
}

// NewSource creates a source. A zero staleAfter disables the staleness check.
// events may be nil when only readings are needed.
func NewSource(conn mqtt.Conn, topics mqtt.Topics, events EventSink, staleAfter time.Duration) *Source {
	return &Source{
		conn:       conn,
		topics:     topics,
		events:     events,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        logger.New("telemetry"),
		values:     make(map[string]reading),
		flags:      make(map[string]bool),
		ctx:        context.Background(),
	}
}

// WithClock replaces the time source used for event times and staleness.
func (s *Source) WithClock(now func() time.Time) *Source {
	if now != nil {
		s.now = now
	}
	return s
}

// Start subscribes to the metric and event topics. Events are published with
// ctx.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	for _, m := range Metrics {
		if err := s.conn.Subscribe(s.topics.Metric(m), s.onMetric); err != nil {
			return err
		}
	}
	return s.conn.Subscribe(s.topics.Event(), s.onEvent)
}

// Stop removes all subscriptions.
func (s *Source) Stop() error {
	var errs []error
	for _, m := range Metrics {
		errs = append(errs, s.conn.Unsubscribe(s.topics.Metric(m)))
	}
	errs = append(errs, s.conn.Unsubscribe(s.topics.Event()))
	return errors.Join(errs...)
}

func (s *Source) onMetric(topic string, payload []byte) {
	name := strings.TrimPrefix(topic, s.topics.Metric(""))
	raw := strings.TrimSpace(string(payload))
	var edge charging.EventType

	s.mu.Lock()
	s.values[name] = reading{raw: raw, at: s.now()}
	if name == MetricPilot || name == MetricCharging {
		v, err := DecodeBool(raw)
		if err != nil {
			s.log.Warnf("metric %s: %v", name, err)
		} else {
			prev, known := s.flags[name]
			s.flags[name] = v
			// The first value after subscribing is the retained state, not an edge.
			if known && prev != v {
				edge = flagEvent(name, v)
			}
		}
	}
	s.mu.Unlock()

	if edge != 0 {
		s.emit(edge)
	}
}

func (s *Source) onEvent(_ string, payload []byte) {
	name := strings.TrimSpace(string(payload))
	typ, ok := eventNames[name]
	if !ok {
		return
	}
	metric, value := MetricPilot, "yes"
	switch typ {
	case charging.EventUnplug:
		value = "no"
	case charging.EventChargeStart:
		metric = MetricCharging
	case charging.EventChargeStop:
		metric, value = MetricCharging, "no"
	}
	v := value == "yes"

	s.mu.Lock()
	prev, known := s.flags[metric]
	s.flags[metric] = v
	s.values[metric] = reading{raw: value, at: s.now()}
	if typ == charging.EventUnplug {
		s.flags[MetricCharging] = false
		s.values[MetricCharging] = reading{raw: "no", at: s.now()}
	}
	s.mu.Unlock()

	// The metric edge may already have reported this change.
	if known && prev == v {
		return
	}
	s.emit(typ)
}

func flagEvent(metric string, v bool) charging.EventType {
	switch {
	case metric == MetricPilot && v:
		return charging.EventPlugIn
	case metric == MetricPilot:
		return charging.EventUnplug
	case v:
		return charging.EventChargeStart
	default:
		return charging.EventChargeStop
	}
}

func (s *Source) emit(t charging.EventType) {
	if s.events == nil {
		return
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	ev := charging.Event{Type: t, Time: s.now()}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Errorf("publish %s: %v", t, err)
		return
	}
	s.log.Infof("vehicle event %s", t)
}

func (s *Source) raw(name string) (string, error) {
	s.mu.Lock()
	r, ok := s.values[name]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s never received", ErrUnavailable, name)
	}
	if s.staleAfter > 0 && s.now().Sub(r.at) > s.staleAfter {
		return "", fmt.Errorf("%w: %s is stale", ErrUnavailable, name)
	}
	return r.raw, nil
}

func (s *Source) float(name string) (float64, error) {
	raw, err := s.raw(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
	}
	return v, nil
}

func (s *Source) flag(name string) (bool, error) {
	raw, err := s.raw(name)
	if err != nil {
		return false, err
	}
	v, err := DecodeBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
	}
	return v, nil
}

// SOC returns the state of charge in percent.
func (s *Source) SOC() (float64, error) { return s.float(MetricSOC) }

// PluggedIn reports the pilot signal.
func (s *Source) PluggedIn() (bool, error) { return s.flag(MetricPilot) }

// Charging reports whether the vehicle is charging.
func (s *Source) Charging() (bool, error) { return s.flag(MetricCharging) }

// CapacityKWh returns the nominal pack size reported by the vehicle.
func (s *Source) CapacityKWh() (float64, error) { return s.float(MetricCapacity) }

// StateOfHealth returns the battery state of health in percent.
func (s *Source) StateOfHealth() (float64, error) { return s.float(MetricSOH) }
