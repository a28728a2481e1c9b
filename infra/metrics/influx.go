package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/smartcharge/core/metrics"
	"github.com/kilianp07/smartcharge/infra/logger"
)

const writeTimeout = 5 * time.Second

// InfluxSink writes controller events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: writeTimeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

// RecordDecision writes one charge_decision point.
func (s *InfluxSink) RecordDecision(ev coremetrics.DecisionEvent) error {
	p := write.NewPointWithMeasurement("charge_decision").
		AddTag("trigger", ev.Trigger).
		AddTag("action", ev.Action).
		AddTag("reason", ev.Reason).
		AddTag("state", ev.State).
		AddField("soc", round3(ev.SOC)).
		AddField("target_soc", round3(ev.TargetSOC)).
		AddField("kwh_needed", round3(ev.KWhNeeded)).
		AddField("start_minute", round3(ev.StartMinute)).
		AddField("rate_kw", round3(ev.EffectiveRateKW)).
		AddField("estimated_cost", round3(ev.EstimatedCost)).
		AddField("overflow", ev.Overflow).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordSession writes one charge_session point per finished session.
func (s *InfluxSink) RecordSession(ev coremetrics.SessionEvent) error {
	p := write.NewPointWithMeasurement("charge_session").
		AddTag("session_id", ev.SessionID).
		AddTag("mode", ev.Mode).
		AddTag("outcome", ev.Outcome)
	if ev.Reason != "" {
		p = p.AddTag("reason", ev.Reason)
	}
	p = p.AddField("duration_h", round3(ev.DurationHours)).
		AddField("soc_gained", round3(ev.SOCGained)).
		AddField("kwh", round3(ev.KWhDelivered)).
		AddField("rate_kw", round3(ev.RateKW)).
		AddField("trend_kw", round3(ev.TrendKW)).
		AddField("cost", round3(ev.Cost)).
		SetTime(ev.End)
	return s.write(p)
}

// RecordState writes a vehicle_state snapshot.
func (s *InfluxSink) RecordState(ev coremetrics.StateEvent) error {
	p := write.NewPointWithMeasurement("vehicle_state").
		AddTag("state", ev.State).
		AddField("soc", round3(ev.SOC)).
		AddField("plugged", ev.Plugged).
		AddField("charging", ev.Charging).
		AddField("rate_kw", round3(ev.EffectiveRateKW)).
		AddField("measured_kw", round3(ev.MeasuredRateKW)).
		AddField("capacity_kwh", round3(ev.CapacityKWh)).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
