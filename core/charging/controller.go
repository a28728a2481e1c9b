package charging

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/kv"
	"github.com/kilianp07/smartcharge/core/logger"
	"github.com/kilianp07/smartcharge/core/metrics"
	"github.com/kilianp07/smartcharge/core/model"
	"github.com/kilianp07/smartcharge/core/rate"
	"github.com/kilianp07/smartcharge/core/scheduler"
	"github.com/kilianp07/smartcharge/core/tariff"
)

// Options tune the controller. Zero values select the defaults.
type Options struct {
	Defaults Defaults
	// NativeAutoStop offloads the stop-at-target decision to the vehicle when
	// the charge controller implements AutoStopper.
	NativeAutoStop bool
	// StopAtWindowEnd stops scheduled sessions without a ready-by deadline
	// when the cheap window closes.
	StopAtWindowEnd bool
	// AutoStartGrace is how long after a plug-in hold or a start request a
	// charge-start is attributed to that action.
	AutoStartGrace time.Duration
	Currency       string
	Version        string
	// Topic is the notification topic.
	Topic   string
	Clock   func() time.Time
	Metrics metrics.Sink
	Status  StatusPublisher
	Logger  logger.Logger
}

func (o *Options) setDefaults() {
	if o.Defaults == (Defaults{}) {
		o.Defaults = DefaultDefaults()
	}
	if o.AutoStartGrace <= 0 {
		o.AutoStartGrace = 2 * time.Minute
	}
	if o.Currency == "" {
		o.Currency = "£"
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.Topic == "" {
		o.Topic = "charge.smart"
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NopSink{}
	}
	if o.Logger == nil {
		o.Logger = logger.NopLogger{}
	}
}

// Controller is the schedule evaluator and session state machine for one
// vehicle. All methods must be called from a single goroutine.
type Controller struct {
	tel      Telemetry
	charger  ChargeController
	autoStop AutoStopper
	notifier Notifier
	store    kv.Store
	settings *Settings
	est      *rate.Estimator
	opts     Options
	log      logger.Logger

	state State
	mode  Mode
	// paused suppresses scheduled starts after a manual stop until unplug.
	paused bool
	// heldAt is when the vehicle's own start was stopped on plug-in.
	heldAt time.Time
	// requestedAt is when the last start command was issued.
	requestedAt time.Time

	lastMeasurement *rate.Measurement
}

// New builds a controller and restores a session persisted before a restart.
// The vehicle is not probed; the first Tick or Handle reconciles the restored
// session with live telemetry.
func New(tel Telemetry, charger ChargeController, notifier Notifier, store kv.Store, opts Options) *Controller {
	opts.setDefaults()
	c := &Controller{
		tel:      tel,
		charger:  charger,
		notifier: notifier,
		store:    store,
		settings: NewSettings(store, opts.Defaults, opts.Logger),
		est:      rate.NewEstimator(),
		opts:     opts,
		log:      opts.Logger,
	}
	if as, ok := charger.(AutoStopper); ok && opts.NativeAutoStop {
		c.autoStop = as
	}
	c.restoreSession()
	return c
}

// Settings exposes the typed settings view.
func (c *Controller) Settings() *Settings { return c.settings }

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Mode returns who started the current charge.
func (c *Controller) Mode() Mode { return c.mode }

// Tick runs one periodic evaluation. It never fails; collaborator errors are
// logged and the next tick evaluates again from scratch.
func (c *Controller) Tick(ctx context.Context) {
	c.run(ctx, "tick", nil)
}

// Handle processes a lifecycle event. The reading implied by the event
// overrides possibly stale telemetry.
func (c *Controller) Handle(ctx context.Context, ev Event) {
	c.run(ctx, ev.Type.String(), &ev)
}

// snapshot is everything one evaluation looks at.
type snapshot struct {
	now      time.Time
	minute   int
	vehicle  model.VehicleState
	socKnown bool
	target   int
	window   clock.Window
	tariff   tariff.Tariff
	profile  rate.Profile
	readyBy  clock.TimeOfDay
	enabled  bool
	decision scheduler.Decision
}

func (s snapshot) atTarget() bool { return s.vehicle.AtTarget(float64(s.target)) }

func (s snapshot) eligible() bool { return s.decision.Eligible(s.minute, s.window) }

func (s snapshot) capacity() float64 { return s.vehicle.Battery.EffectiveCapacityKWh() }

func (c *Controller) run(ctx context.Context, trigger string, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("%s: recovered from panic: %v", trigger, r)
		}
	}()
	s := c.snapshot()
	if ev != nil {
		if !ev.Time.IsZero() {
			s.now = ev.Time
			s.minute = clock.MinuteOfDay(ev.Time)
		}
		c.applyEvent(ctx, ev.Type, &s)
	}
	c.evaluate(ctx, trigger, s)
	c.publish(s)
}

func (c *Controller) snapshot() snapshot {
	now := c.opts.Clock()
	vehicle, socKnown := c.readVehicle()
	s := snapshot{
		now:      now,
		minute:   clock.MinuteOfDay(now),
		vehicle:  vehicle,
		socKnown: socKnown,
		target:   c.settings.TargetSOC(),
		window:   c.settings.Window(),
		tariff:   c.settings.Tariff(),
		profile:  c.settings.RateProfile(),
		readyBy:  c.settings.ReadyBy(),
		enabled:  c.settings.Enabled(),
	}
	s.decision = c.solve(s)
	return s
}

func (c *Controller) solve(s snapshot) scheduler.Decision {
	return scheduler.Solve(scheduler.Request{
		SOC:         s.vehicle.SOC,
		TargetSOC:   float64(s.target),
		CapacityKWh: s.capacity(),
		RateKW:      s.profile.EffectiveKW(),
		Window:      s.window,
		ReadyBy:     s.readyBy,
	})
}

// readVehicle reads telemetry. Unavailable readings become 0 or false;
// socKnown is false when the SOC reading failed.
func (c *Controller) readVehicle() (v model.VehicleState, socKnown bool) {
	var err error
	socKnown = true
	if v.SOC, err = c.tel.SOC(); err != nil {
		c.log.Debugf("soc unavailable: %v", err)
		v.SOC = 0
		socKnown = false
	}
	if v.Plugged, err = c.tel.PluggedIn(); err != nil {
		c.log.Debugf("plug state unavailable: %v", err)
		v.Plugged = false
	}
	if v.Charging, err = c.tel.Charging(); err != nil {
		c.log.Debugf("charge state unavailable: %v", err)
		v.Charging = false
	}
	if v.Battery.NominalCapacityKWh, err = c.tel.CapacityKWh(); err != nil {
		v.Battery.NominalCapacityKWh = 0
	}
	if v.Battery.StateOfHealth, err = c.tel.StateOfHealth(); err != nil {
		v.Battery.StateOfHealth = 0
	}
	v.Battery.CapacityOverrideKWh, v.Battery.SOHOverride = c.settings.BatteryOverrides()
	return v, socKnown
}

func (c *Controller) applyEvent(ctx context.Context, t EventType, s *snapshot) {
	switch t {
	case EventPlugIn:
		s.vehicle.Plugged = true
		if c.onPlugIn(ctx, *s) {
			s.vehicle.Charging = false
		}
	case EventUnplug:
		s.vehicle.Plugged = false
		s.vehicle.Charging = false
		c.notify(ctx, "info", "Vehicle unplugged. Schedule cleared.")
	case EventChargeStart:
		s.vehicle.Plugged = true
		s.vehicle.Charging = true
	case EventChargeStop:
		s.vehicle.Charging = false
	}
}

// onPlugIn decides what to do with the charge the vehicle starts on its own
// when plugged in, and tells the user. It reports whether that charge was
// stopped.
func (c *Controller) onPlugIn(ctx context.Context, s snapshot) bool {
	c.paused = false
	c.heldAt = time.Time{}
	soc := fmt.Sprintf("%.0f", s.vehicle.SOC)
	switch {
	case s.atTarget():
		stopped := c.stopCharge(ctx)
		c.setState(Completed)
		c.notify(ctx, "info", fmt.Sprintf("Plugged in at %s%%. Already at target %d%%.", soc, s.target))
		return stopped
	case !s.enabled:
		c.armAutoStop(ctx, s.target)
		c.notify(ctx, "info", fmt.Sprintf("Plugged in at %s%%. Charging to %d%% (schedule disabled)", soc, s.target))
	case s.eligible():
		c.armAutoStop(ctx, s.target)
		c.notify(ctx, "info", fmt.Sprintf("Plugged in at %s%%. Charging to %d%% now.", soc, s.target))
	default:
		stopped := c.stopCharge(ctx)
		if stopped {
			c.heldAt = s.now
		}
		c.notify(ctx, "info", PlanMessage(s.vehicle.SOC, s.target, s.window, s.decision, s.decision.Cost(s.window, s.tariff), c.opts.Currency))
		return stopped
	}
	return false
}

func (c *Controller) evaluate(ctx context.Context, trigger string, s snapshot) {
	if !s.vehicle.Plugged {
		if c.est.Active() {
			c.abortSession(s, "unplugged")
		}
		c.paused = false
		c.heldAt = time.Time{}
		c.requestedAt = time.Time{}
		c.mode = ModeNone
		c.setState(Idle)
		c.record(s, trigger, "none", "unplugged")
		return
	}
	if s.vehicle.Charging {
		c.whileCharging(ctx, trigger, s)
		return
	}

	finished := false
	if c.est.Active() {
		c.finishSession(ctx, s)
		finished = true
	}
	switch {
	case s.atTarget():
		if finished || c.state.Charging() || c.state == Completed {
			c.setState(Completed)
		} else {
			c.setState(Idle)
		}
		c.mode = ModeNone
		c.record(s, trigger, "none", "at_target")
	case !finished && c.mode != ModeNone && c.pending(s.now):
		// Start requested; waiting for the vehicle to report charging.
		c.setState(c.mode.state())
	case c.paused:
		c.mode = ModeNone
		c.setState(Idle)
		c.record(s, trigger, "none", "paused")
	case !s.enabled:
		c.mode = ModeNone
		c.setState(Idle)
		c.record(s, trigger, "none", "disabled")
	case s.eligible():
		c.mode = ModeNone
		c.startScheduled(ctx, trigger, s)
	default:
		c.mode = ModeNone
		c.setState(WaitingForWindow)
		c.record(s, trigger, "wait", s.decision.Reason.String())
	}
}

func (c *Controller) pending(now time.Time) bool {
	return !c.requestedAt.IsZero() && now.Sub(c.requestedAt) < c.opts.AutoStartGrace
}

func (c *Controller) startScheduled(ctx context.Context, trigger string, s snapshot) {
	c.armAutoStop(ctx, s.target)
	if err := c.charger.StartCharge(ctx); err != nil {
		c.log.Errorf("start charge: %v", err)
		return
	}
	c.mode = ModeScheduled
	c.requestedAt = s.now
	c.setState(ChargingScheduled)
	c.record(s, trigger, "start", s.decision.Reason.String())
	if trigger != EventPlugIn.String() {
		c.notify(ctx, "info", fmt.Sprintf("Charging started (scheduled). Target %d%%", s.target))
	}
}

func (c *Controller) whileCharging(ctx context.Context, trigger string, s snapshot) {
	if !c.est.Active() {
		if c.mode == ModeNone && c.heldWithinGrace(s.now) && !(s.enabled && s.eligible()) {
			// The vehicle restarted its own charge right after the plug-in hold.
			c.stopCharge(ctx)
			c.setState(WaitingForWindow)
			c.record(s, trigger, "stop", "auto_start_held")
			return
		}
		mode := c.mode
		if mode == ModeNone {
			mode = ModeManual
			if s.enabled && !c.paused && s.eligible() {
				mode = ModeScheduled
			}
		}
		c.beginSession(s, mode)
	}
	c.heldAt = time.Time{}
	c.requestedAt = time.Time{}
	c.setState(c.mode.state())
	if s.socKnown && c.est.Record(s.vehicle.SOC, s.now) {
		c.log.Debugw("checkpoint", map[string]any{"soc": s.vehicle.SOC, "mode": string(c.mode)})
	}

	switch {
	case c.autoStop == nil && s.atTarget():
		if c.stopCharge(ctx) {
			c.finishSession(ctx, s)
			c.setState(Completed)
			c.record(s, trigger, "stop", "target_reached")
		}
	case c.opts.StopAtWindowEnd && c.mode == ModeScheduled && s.readyBy.IsMidnight() && !s.eligible():
		if c.stopCharge(ctx) {
			c.finishSession(ctx, s)
			c.setState(WaitingForWindow)
			c.record(s, trigger, "stop", "window_end")
		}
	default:
		c.record(s, trigger, "none", "charging")
	}
}

func (c *Controller) heldWithinGrace(now time.Time) bool {
	return !c.heldAt.IsZero() && now.Sub(c.heldAt) < c.opts.AutoStartGrace
}

func (c *Controller) beginSession(s snapshot, mode Mode) {
	sess := c.est.Start(s.vehicle.SOC, float64(s.target), s.now)
	c.mode = mode
	c.paused = false
	c.persistSession(sess, mode)
	c.log.Infof("charge session %s started (%s) at %.0f%%, target %d%%", sess.ID, mode, sess.StartSOC, s.target)
}

// finishSession finalizes the active session, stores an accepted rate and
// reports the outcome.
func (c *Controller) finishSession(ctx context.Context, s snapshot) {
	mode := c.mode
	m, err := c.est.Finalize(s.vehicle.SOC, s.now, s.capacity())
	c.clearSession()
	c.mode = ModeNone
	if err != nil && !rate.Skipped(err) {
		c.log.Warnf("finalize session: %v", err)
		return
	}
	c.lastMeasurement = &m

	ev := metrics.SessionEvent{
		SessionID:     m.SessionID,
		Mode:          string(mode),
		Start:         m.Start,
		End:           m.End,
		DurationHours: m.DurationHours(),
		SOCGained:     m.SOCGained,
		KWhDelivered:  m.KWhDelivered,
		RateKW:        m.RateKW,
		TrendKW:       m.TrendKW,
	}
	if err != nil {
		c.log.Infof("session %s not measured: %v", m.SessionID, err)
		ev.Outcome = metrics.OutcomeDiscarded
		ev.Reason = err.Error()
		c.recordSession(ev)
		return
	}

	ev.Outcome = metrics.OutcomeStored
	if err := c.settings.SetMeasuredKW(m.RateKW); err != nil {
		c.log.Errorf("store measured rate: %v", err)
	} else {
		c.log.Infof("measured charge rate %.2f kW stored", m.RateKW)
	}
	start := float64(clock.MinuteOfDay(m.Start))
	cost := tariff.Attribute(start, start+m.Duration.Minutes(), m.KWhDelivered, s.window, s.tariff)
	ev.Cost = cost.TotalCost
	c.recordSession(ev)
	c.notify(ctx, "info", SessionSummary(m, cost, s.window, c.opts.Currency))
}

func (c *Controller) abortSession(s snapshot, reason string) {
	sess := c.est.Abort()
	c.clearSession()
	c.log.Infof("charge session %s aborted: %s", sess.ID, reason)
	c.recordSession(metrics.SessionEvent{
		SessionID:     sess.ID,
		Mode:          string(c.mode),
		Outcome:       metrics.OutcomeAborted,
		Reason:        reason,
		Start:         sess.Start,
		End:           s.now,
		DurationHours: s.now.Sub(sess.Start).Hours(),
		SOCGained:     s.vehicle.SOC - sess.StartSOC,
	})
	c.mode = ModeNone
}

func (c *Controller) armAutoStop(ctx context.Context, target int) {
	if c.autoStop == nil {
		return
	}
	if err := c.autoStop.SetAutoStopTarget(ctx, target); err != nil {
		c.log.Warnf("arm native auto-stop at %d%%: %v", target, err)
	}
}

func (c *Controller) stopCharge(ctx context.Context) bool {
	if err := c.charger.StopCharge(ctx); err != nil {
		c.log.Errorf("stop charge: %v", err)
		return false
	}
	return true
}

func (c *Controller) notify(ctx context.Context, severity, msg string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Raise(ctx, severity, c.opts.Topic, msg); err != nil {
		c.log.Warnf("notify: %v", err)
	}
}

func (c *Controller) setState(st State) {
	if st != c.state {
		c.log.Infof("state %s -> %s", c.state, st)
		c.state = st
	}
}

func (c *Controller) record(s snapshot, trigger, action, reason string) {
	d := s.decision
	cost := d.Cost(s.window, s.tariff)
	ev := metrics.DecisionEvent{
		Time:            s.now,
		Trigger:         trigger,
		Action:          action,
		Reason:          reason,
		State:           c.state.String(),
		SOC:             s.vehicle.SOC,
		TargetSOC:       float64(s.target),
		KWhNeeded:       d.KWhNeeded,
		StartMinute:     d.StartMinute,
		EffectiveRateKW: d.RateKW,
		EstimatedCost:   cost.TotalCost,
		Overflow:        cost.HasOverflow,
	}
	if err := c.opts.Metrics.RecordDecision(ev); err != nil {
		c.log.Warnf("record decision: %v", err)
	}
}

func (c *Controller) recordSession(ev metrics.SessionEvent) {
	rec, ok := c.opts.Metrics.(metrics.SessionRecorder)
	if !ok {
		return
	}
	if err := rec.RecordSession(ev); err != nil {
		c.log.Warnf("record session: %v", err)
	}
}

func (c *Controller) publish(s snapshot) {
	if rec, ok := c.opts.Metrics.(metrics.StateRecorder); ok {
		err := rec.RecordState(metrics.StateEvent{
			Time:            s.now,
			State:           c.state.String(),
			SOC:             s.vehicle.SOC,
			Plugged:         s.vehicle.Plugged,
			Charging:        s.vehicle.Charging,
			EffectiveRateKW: s.profile.EffectiveKW(),
			MeasuredRateKW:  s.profile.MeasuredKW,
			CapacityKWh:     s.capacity(),
		})
		if err != nil {
			c.log.Warnf("record state: %v", err)
		}
	}
	if c.opts.Status != nil {
		c.opts.Status.Publish(c.report(s))
	}
}

// Session persistence. Only the fields needed to finalize after a restart are
// stored; checkpoints stay in memory.

func (c *Controller) persistSession(sess rate.Session, mode Mode) {
	fields := []struct{ key, value string }{
		{KeySessionID, sess.ID},
		{KeySessionStart, strconv.FormatInt(sess.Start.UnixMilli(), 10)},
		{KeySessionStartSOC, formatFloat(sess.StartSOC)},
		{KeySessionTargetSOC, formatFloat(sess.TargetSOC)},
		{KeySessionMode, string(mode)},
		{KeySessionActive, kv.FormatBool(true)},
	}
	for _, f := range fields {
		if err := c.store.Set(Namespace, f.key, f.value); err != nil {
			c.log.Errorf("persist session %s: %v", f.key, err)
			return
		}
	}
}

// clearSession marks the persisted session inactive and, when the store
// supports it, drops the remaining session fields.
func (c *Controller) clearSession() {
	if err := c.store.Set(Namespace, KeySessionActive, kv.FormatBool(false)); err != nil {
		c.log.Errorf("clear persisted session: %v", err)
		return
	}
	d, ok := c.store.(kv.Deleter)
	if !ok {
		return
	}
	for _, key := range []string{KeySessionID, KeySessionStart, KeySessionStartSOC, KeySessionTargetSOC, KeySessionMode} {
		if err := d.Delete(Namespace, key); err != nil {
			c.log.Warnf("delete %s: %v", key, err)
		}
	}
}

func (c *Controller) restoreSession() {
	active, ok := c.settings.raw(KeySessionActive)
	if !ok {
		return
	}
	if on, err := kv.ParseBool(active); err != nil || !on {
		return
	}
	startRaw, _ := c.settings.raw(KeySessionStart)
	ms, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil || ms <= 0 {
		c.log.Warnf("persisted session has no valid start (%q), dropping it", startRaw)
		c.clearSession()
		return
	}
	start := time.UnixMilli(ms).In(c.opts.Clock().Location())
	id, _ := c.settings.raw(KeySessionID)
	sess := rate.Session{
		ID:          id,
		Start:       start,
		StartSOC:    c.settings.float(KeySessionStartSOC, 0),
		TargetSOC:   c.settings.float(KeySessionTargetSOC, float64(c.settings.TargetSOC())),
		StartMinute: clock.MinuteOfDay(start),
	}
	c.est.Restore(sess)
	c.mode = ModeScheduled
	if m, _ := c.settings.raw(KeySessionMode); Mode(m) == ModeManual {
		c.mode = ModeManual
	}
	c.state = c.mode.state()
	c.log.Infof("restored charge session %s started %s at %.0f%%", c.est.Session().ID, start.Format(time.RFC3339), sess.StartSOC)
}
