package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/smartcharge/core/metrics"
)

type lineRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (l *lineRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.bodies = append(l.bodies, strings.TrimSpace(string(b)))
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (l *lineRecorder) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.bodies...)
}

func TestInfluxSink_RecordDecision(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	ev := coremetrics.DecisionEvent{
		Time:            now,
		Trigger:         "tick",
		Action:          "start",
		Reason:          "window_start",
		State:           "charging_scheduled",
		SOC:             40,
		TargetSOC:       80,
		KWhNeeded:       15.2,
		StartMinute:     1410,
		EffectiveRateKW: 2.3456,
		EstimatedCost:   1.0641,
	}
	if err := sink.RecordDecision(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("charge_decision").
		AddTag("trigger", "tick").
		AddTag("action", "start").
		AddTag("reason", "window_start").
		AddTag("state", "charging_scheduled").
		AddField("soc", 40.0).
		AddField("target_soc", 80.0).
		AddField("kwh_needed", 15.2).
		AddField("start_minute", 1410.0).
		AddField("rate_kw", 2.346).
		AddField("estimated_cost", 1.064).
		AddField("overflow", false).
		SetTime(now)
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if b := rec.all(); len(b) != 1 || b[0] != exp {
		t.Errorf("unexpected bodies: %#v", b)
	}
}

func TestInfluxSink_RecordSession(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()

	end := time.Date(2026, 3, 11, 4, 0, 0, 0, time.UTC)
	ev := coremetrics.SessionEvent{
		SessionID:     "s1",
		Mode:          "scheduled",
		Outcome:       coremetrics.OutcomeStored,
		Start:         end.Add(-4 * time.Hour),
		End:           end,
		DurationHours: 4,
		SOCGained:     30,
		KWhDelivered:  9.6,
		RateKW:        2.4,
		Cost:          0.672,
	}
	if err := sink.RecordSession(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("charge_session").
		AddTag("session_id", "s1").
		AddTag("mode", "scheduled").
		AddTag("outcome", "stored").
		AddField("duration_h", 4.0).
		AddField("soc_gained", 30.0).
		AddField("kwh", 9.6).
		AddField("rate_kw", 2.4).
		AddField("trend_kw", 0.0).
		AddField("cost", 0.672).
		SetTime(end)
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if b := rec.all(); len(b) != 1 || b[0] != exp {
		t.Errorf("unexpected bodies: %#v", b)
	}
}

func TestInfluxSink_RecordState(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	ev := coremetrics.StateEvent{
		Time:            now,
		State:           "waiting_for_window",
		SOC:             55.5,
		Plugged:         true,
		EffectiveRateKW: 1.8,
		CapacityKWh:     37.2,
	}
	if err := sink.RecordState(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("vehicle_state").
		AddTag("state", "waiting_for_window").
		AddField("soc", 55.5).
		AddField("plugged", true).
		AddField("charging", false).
		AddField("rate_kw", 1.8).
		AddField("measured_kw", 0.0).
		AddField("capacity_kwh", 37.2).
		SetTime(now)
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if b := rec.all(); len(b) != 1 || b[0] != exp {
		t.Errorf("unexpected bodies: %#v", b)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
