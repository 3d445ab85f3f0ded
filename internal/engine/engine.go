// Package engine implements the Engine Controller (C11): the public
// façade over the whole transcription pipeline — start/stop, status
// events, device selection, runtime settings, and failure recovery.
package engine

import (
	"context"
	"sync"

	"github.com/hammamikhairi/dictum/internal/diag"
	"github.com/hammamikhairi/dictum/internal/dispatcher"
	"github.com/hammamikhairi/dictum/internal/domain"
	"github.com/hammamikhairi/dictum/internal/inject"
	"github.com/hammamikhairi/dictum/internal/logger"
	"github.com/hammamikhairi/dictum/internal/playback"
)

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithDebugTranscribe mirrors DICTUM_DEBUG_TRANSCRIBE=1 (§6): the
// inference worker logs the first 20 decoder token ids per utterance.
func WithDebugTranscribe(on bool) Option {
	return func(c *Controller) { c.debugTranscribe = on }
}

// WithInjectMode overrides the text injector's starting mode (default
// sendinput, per §4.10).
func WithInjectMode(mode domain.InjectMode) Option {
	return func(c *Controller) { c.injector.SetMode(mode) }
}

// WithDebugPlayback plays every finalized utterance's captured PCM back
// through the system audio output, so a developer can hear exactly what
// the segmenter handed to the decoder. Off by default; p may be nil to
// disable it even if the option is applied.
func WithDebugPlayback(p *playback.Player) Option {
	return func(c *Controller) { c.player = p }
}

// Controller is the engine's public façade. It depends only on the
// domain ports (DeviceSource/ModelSource/SettingsStore) supplied by the
// host at construction time — never on a concrete capture library or
// storage backend — so it is fully testable against fakes.
type Controller struct {
	log     *logger.Logger
	devices domain.DeviceSource
	models  domain.ModelSource
	store   domain.SettingsStore

	diagReg  *diag.Registry
	disp     *dispatcher.Dispatcher
	injector *inject.Injector
	player   *playback.Player

	debugTranscribe bool

	ctrlCh  chan ctrlOp
	failCh  chan error

	mu              sync.RWMutex
	settings        domain.RuntimeSettings
	rules           domain.RewriteRules
	preferredDevice string
	status          domain.EngineStatus

	cache *modelCache
	run   *runState
}

// New constructs a Controller and starts its control-loop goroutine
// (§5's "controller thread"), which serializes every start/stop request
// so rapid hotkey toggles never race (§4.11, §8 "hotkey pressed twice
// within 50ms coalesces").
func New(log *logger.Logger, devices domain.DeviceSource, models domain.ModelSource, store domain.SettingsStore, opts ...Option) *Controller {
	diagReg := diag.NewRegistry()
	c := &Controller{
		log:      log,
		devices:  devices,
		models:   models,
		store:    store,
		diagReg:  diagReg,
		disp:     dispatcher.New(log, diagReg),
		injector: inject.New(log, diagReg),
		settings: domain.DefaultRuntimeSettings(),
		rules:    domain.EmptyRewriteRules(),
		status:   domain.EngineStatus{Status: domain.StatusIdle},
		ctrlCh:   make(chan ctrlOp),
		failCh:   make(chan error, 4),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.controlLoop()
	return c
}

// LoadInitialState reads the host's persisted settings/rewrite-rule
// snapshots once, at startup — the only time the engine talks to
// domain.SettingsStore (§6 "the engine reads snapshots at startup and on
// explicit reload").
func (c *Controller) LoadInitialState(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	settings, err := c.store.LoadSettings(ctx)
	if err != nil {
		return domain.NewEngineError(domain.ErrKindConfig, "load runtime settings", err)
	}
	rules, err := c.store.LoadRewriteRules(ctx)
	if err != nil {
		return domain.NewEngineError(domain.ErrKindConfig, "load rewrite rules", err)
	}
	c.mu.Lock()
	c.settings = settings
	c.rules = rules
	c.mu.Unlock()
	return nil
}

// Start resolves after the engine reaches `listening`. Fails with
// ErrAlreadyRunning if the controller isn't idle/stopped (§4.11).
func (c *Controller) Start(ctx context.Context, deviceName string) error {
	return c.submit(ctx, ctrlOp{kind: opStart, deviceName: deviceName})
}

// Stop flushes any open utterance and resolves after `stopped`.
// Idempotent: stopping an already-stopped engine succeeds immediately.
func (c *Controller) Stop(ctx context.Context) error {
	return c.submit(ctx, ctrlOp{kind: opStop})
}

// Toggle implements the global hotkey's semantics (§6): start if
// idle/stopped, else stop.
func (c *Controller) Toggle(ctx context.Context, deviceName string) error {
	if s := c.Status(); s.Status == domain.StatusIdle || s.Status == domain.StatusStopped {
		return c.Start(ctx, deviceName)
	}
	return c.Stop(ctx)
}

// Reload tears down and reloads the resident model/VAD session, e.g.
// after a modelProfile/ortEp change (§6; SPEC_FULL supplemented feature:
// "the model/EP changes require restart rule... rather than leaving it
// implicit in set_settings"). It is a no-op while listening — callers get
// ErrAlreadyRunning and must Stop first.
func (c *Controller) Reload(ctx context.Context) error {
	return c.submit(ctx, ctrlOp{kind: opReload})
}

func (c *Controller) submit(ctx context.Context, op ctrlOp) error {
	op.reply = make(chan error, 1)
	select {
	case c.ctrlCh <- op:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-op.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the engine's current status.
func (c *Controller) Status() domain.EngineStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// ListDevices enumerates input devices, annotated per §4.1.
func (c *Controller) ListDevices(ctx context.Context) ([]domain.DeviceInfo, error) {
	return c.devices.ListDevices(ctx)
}

// SetPreferredInputDevice records the device name used by the next Start
// call that doesn't pass one explicitly.
func (c *Controller) SetPreferredInputDevice(name string) {
	c.mu.Lock()
	c.preferredDevice = name
	c.mu.Unlock()
}

// GetPreferredInputDevice returns the stored preferred device name, or ""
// if none is set.
func (c *Controller) GetPreferredInputDevice() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.preferredDevice
}

// GetRuntimeSettings returns a copy of the current settings bundle.
func (c *Controller) GetRuntimeSettings() domain.RuntimeSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// SetRuntimeSettings validates and applies patch, returning the resulting
// settings. Changes apply hot except modelProfile/ortEp, which only take
// effect on the next Reload/Start (§6).
func (c *Controller) SetRuntimeSettings(patch domain.RuntimeSettingsPatch) (domain.RuntimeSettings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.settings.Apply(patch)
	if err != nil {
		return c.settings, err
	}
	c.settings = next

	if c.run != nil {
		c.run.applySettings(next, c.rules)
	}
	return next, nil
}

// SetRewriteRules publishes a new rewrite-rule snapshot, atomically
// visible to the post-processor on the next final (§3 "updates publish a
// new snapshot atomically").
func (c *Controller) SetRewriteRules(rules domain.RewriteRules) {
	c.mu.Lock()
	c.rules = rules
	run := c.run
	settings := c.settings
	c.mu.Unlock()
	if run != nil {
		run.applySettings(settings, rules)
	}
}

// Subscribe registers sub with the engine's subscriber registry and
// returns an unregister func. The engine never holds a reference back to
// the host beyond this weak handle (§9 design note).
func (c *Controller) Subscribe(sub domain.Subscriber) (unregister func()) {
	return c.disp.Register(sub)
}

// Diagnostics returns a snapshot of the §4.9 pipeline counters and stage
// timing histograms — an accessor the spec names the counters for but
// never gives a read path (SPEC_FULL supplemented feature).
func (c *Controller) Diagnostics() DiagnosticsSnapshot {
	return DiagnosticsSnapshot{
		Counters:  c.diagReg.Counters.Snapshot(),
		Transform: c.diagReg.HistogramSnapshot(diag.StageTransform),
		Inject:    c.diagReg.HistogramSnapshot(diag.StageInject),
		Persist:   c.diagReg.HistogramSnapshot(diag.StagePersist),
		Finalize:  c.diagReg.HistogramSnapshot(diag.StageFinalize),
	}
}

// DiagnosticsSnapshot is the accessor form of §4.9's counters/histograms.
type DiagnosticsSnapshot struct {
	Counters  diag.Snapshot
	Transform diag.HistogramStats
	Inject    diag.HistogramStats
	Persist   diag.HistogramStats
	Finalize  diag.HistogramStats
}

func (c *Controller) setStatus(status domain.EngineStatusKind, detail string) {
	c.mu.Lock()
	c.status = domain.EngineStatus{Status: status, Detail: detail}
	c.mu.Unlock()
	c.disp.DispatchStatus(domain.EngineStatus{Status: status, Detail: detail})
}

// fatal transitions the engine to `error` with detail and tears down the
// running pipeline — §7 "Internal: engine transitions to error... refuses
// further work until restarted". Only the control loop goroutine calls
// this, so it is free to touch c.run the same way handleStop does.
func (c *Controller) fatal(err error) {
	c.log.Error("engine: fatal: %v", err)

	c.mu.Lock()
	run := c.run
	c.run = nil
	c.mu.Unlock()

	if run != nil {
		run.shutdown()
	}
	c.setStatus(domain.StatusError, err.Error())
}
