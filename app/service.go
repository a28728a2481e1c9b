package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/smartcharge/api/status"
	"github.com/kilianp07/smartcharge/config"
	"github.com/kilianp07/smartcharge/core/charging"
	"github.com/kilianp07/smartcharge/core/kv"
	coremetrics "github.com/kilianp07/smartcharge/core/metrics"
	"github.com/kilianp07/smartcharge/core/vehiclestatus"
	infrakv "github.com/kilianp07/smartcharge/infra/kv"
	"github.com/kilianp07/smartcharge/infra/logger"
	"github.com/kilianp07/smartcharge/infra/metrics"
	"github.com/kilianp07/smartcharge/infra/mqtt"
	"github.com/kilianp07/smartcharge/infra/telemetry"
	"github.com/kilianp07/smartcharge/internal/eventbus"
)

// settleDelay leaves time for retained metrics to arrive before the first
// evaluation after start.
const settleDelay = 5 * time.Second

// Deps are the external connections of a Service.
type Deps struct {
	Conn  mqtt.Conn
	Store kv.Store
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service wires the OVMS adapters to the charge controller. Run owns the
// controller: ticks, vehicle events and user commands are all handled on
// its goroutine.
type Service struct {
	cfg      *config.Config
	ctrl     *charging.Controller
	source   *telemetry.Source
	server   *mqtt.CommandServer
	events   *eventbus.TypedBus[charging.Event]
	requests *eventbus.TypedBus[mqtt.Request]
	eventCh  <-chan charging.Event
	reqCh    <-chan mqtt.Request
	status   *vehiclestatus.MemoryStore
	sink     coremetrics.Sink
	log      logger.Logger
	closers  []func() error
}

// New opens the settings store, connects to the broker and builds the
// service.
func New(cfg *config.Config, version string) (*Service, error) {
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	store, err := infrakv.OpenFileStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("settings store: %w", err)
	}
	client, err := mqtt.NewPahoClient(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}
	svc, err := NewWithDeps(cfg, version, Deps{Conn: client, Store: store})
	if err != nil {
		client.Disconnect()
		return nil, err
	}
	svc.closers = append(svc.closers, func() error { client.Disconnect(); return nil })
	return svc, nil
}

// NewWithDeps builds the service on existing connections.
func NewWithDeps(cfg *config.Config, version string, deps Deps) (*Service, error) {
	defaults, err := cfg.Charging.Defaults()
	if err != nil {
		return nil, fmt.Errorf("charging defaults: %w", err)
	}
	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	topics := mqtt.Topics{Prefix: cfg.Vehicle.TopicPrefix, ClientID: cfg.Vehicle.ClientID}
	commander, err := mqtt.NewCommander(deps.Conn, topics)
	if err != nil {
		return nil, fmt.Errorf("commander: %w", err)
	}

	s := &Service{
		cfg:      cfg,
		events:   eventbus.NewTyped[charging.Event](),
		requests: eventbus.NewTyped[mqtt.Request](),
		status:   vehiclestatus.NewMemoryStore(),
		sink:     sink,
		log:      logger.New("service"),
	}
	// Subscribe before any producer starts so nothing is dropped.
	s.eventCh = s.events.Subscribe()
	s.reqCh = s.requests.Subscribe()

	s.source = telemetry.NewSource(deps.Conn, topics, s.events, cfg.Vehicle.StaleAfter()).WithClock(deps.Clock)
	s.server = mqtt.NewCommandServer(deps.Conn, topics, s.requests.Publish)
	s.ctrl = charging.New(s.source, commander, mqtt.NewNotifier(deps.Conn, topics), deps.Store, charging.Options{
		Defaults:        defaults,
		NativeAutoStop:  cfg.Vehicle.NativeAutoStop,
		StopAtWindowEnd: cfg.Charging.StopAtWindowEnd,
		AutoStartGrace:  cfg.Charging.AutoStartGrace(),
		Currency:        cfg.Charging.Currency,
		Version:         version,
		Clock:           deps.Clock,
		Metrics:         sink,
		Status:          s.status,
		Logger:          logger.New("controller"),
	})
	return s, nil
}

// Controller exposes the controller for inspection. It must not be used
// concurrently with Run.
func (s *Service) Controller() *charging.Controller { return s.ctrl }

// Status returns the snapshot store behind /api/status.
func (s *Service) Status() vehiclestatus.Store { return s.status }

// Run subscribes to the vehicle, serves metrics and the status API, and
// processes ticks, events and commands until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.source.Start(ctx); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := s.server.Start(ctx); err != nil {
		return fmt.Errorf("command server: %w", err)
	}
	go func() {
		routes := map[string]http.Handler{"/api/status": status.NewHandler(s.status)}
		if err := metrics.StartServer(ctx, s.cfg.Metrics.ListenAddr, routes); err != nil {
			s.log.Errorf("metrics server: %v", err)
		}
	}()
	s.log.Infof("smart charging for %s, tick every %s", s.cfg.Vehicle.TopicPrefix, s.cfg.Charging.TickInterval())
	return s.loop(ctx)
}

func (s *Service) loop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Charging.TickInterval())
	defer ticker.Stop()
	settle := time.NewTimer(settleDelay)
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-settle.C:
			s.ctrl.Tick(ctx)
		case <-ticker.C:
			s.ctrl.Tick(ctx)
		case ev, ok := <-s.eventCh:
			if !ok {
				return nil
			}
			s.ctrl.Handle(ctx, ev)
		case req, ok := <-s.reqCh:
			if !ok {
				return nil
			}
			s.execute(ctx, req)
		}
	}
}

func (s *Service) execute(ctx context.Context, req mqtt.Request) {
	var reply string
	cmd, err := charging.ParseCommand(req.Line)
	if err == nil {
		reply, err = s.ctrl.Execute(ctx, cmd)
	}
	if err != nil {
		s.log.Warnf("command %q: %v", req.Line, err)
	}
	rctx, cancel := context.WithTimeout(ctx, s.cfg.MQTT.PublishTimeout())
	defer cancel()
	if rerr := req.Respond(rctx, reply, err); rerr != nil {
		s.log.Errorf("respond to %s: %v", req.ID, rerr)
	}
}

// Close unsubscribes from the broker, closes the queues and sinks, and
// disconnects.
func (s *Service) Close() error {
	errs := []error{s.server.Stop(), s.source.Stop()}
	s.requests.Close()
	s.events.Close()
	errs = append(errs, coremetrics.CloseSink(s.sink))
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
