package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/dictum/internal/domain"
	"github.com/hammamikhairi/dictum/internal/logger"
)

// fakeDevices is a domain.DeviceSource that never actually opens a stream.
type fakeDevices struct {
	devices []domain.DeviceInfo
}

func (f *fakeDevices) ListDevices(ctx context.Context) ([]domain.DeviceInfo, error) {
	return f.devices, nil
}

func (f *fakeDevices) Open(ctx context.Context, deviceName string) (domain.AudioStream, error) {
	return nil, domain.NewEngineError(domain.ErrKindDevice, "fake device source never opens a stream", domain.ErrDeviceNotFound)
}

// fakeModels always fails to resolve, since no real ONNX artifacts exist in
// a unit test environment; this exercises handleStart's failure path
// without needing the onnxruntime shared library.
type fakeModels struct{}

func (fakeModels) Resolve(ctx context.Context, modelProfile string) (domain.ModelPaths, error) {
	return domain.ModelPaths{}, domain.NewEngineError(domain.ErrKindModel, "no model artifacts in test environment", nil)
}

func newTestController() *Controller {
	return New(logger.New(logger.LevelOff, nil), &fakeDevices{}, fakeModels{}, nil)
}

func TestNewControllerStartsIdle(t *testing.T) {
	c := newTestController()
	if got := c.Status().Status; got != domain.StatusIdle {
		t.Fatalf("status = %v, want idle", got)
	}
}

func TestStartFailsWithoutModelArtifactsAndReturnsToIdle(t *testing.T) {
	c := newTestController()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := c.Start(ctx, ""); err == nil {
		t.Fatal("expected Start to fail without real model artifacts")
	}
	if got := c.Status().Status; got != domain.StatusIdle {
		t.Fatalf("status after failed start = %v, want idle", got)
	}
}

func TestStopWhenNotRunningIsIdempotent(t *testing.T) {
	c := newTestController()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop on idle controller: %v", err)
	}
	if got := c.Status().Status; got != domain.StatusStopped {
		t.Fatalf("status = %v, want stopped", got)
	}
}

func TestListDevicesDelegatesToDeviceSource(t *testing.T) {
	want := []domain.DeviceInfo{{Name: "Mic", IsRecommended: true}}
	c := New(logger.New(logger.LevelOff, nil), &fakeDevices{devices: want}, fakeModels{}, nil)

	got, err := c.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Mic" {
		t.Fatalf("ListDevices = %+v, want %+v", got, want)
	}
}

func TestPreferredInputDeviceRoundTrips(t *testing.T) {
	c := newTestController()
	c.SetPreferredInputDevice("Headset Mic")
	if got := c.GetPreferredInputDevice(); got != "Headset Mic" {
		t.Fatalf("GetPreferredInputDevice = %q, want %q", got, "Headset Mic")
	}
}

func TestSetRuntimeSettingsValidatesAndApplies(t *testing.T) {
	c := newTestController()

	boost := float32(2.0)
	next, err := c.SetRuntimeSettings(domain.RuntimeSettingsPatch{InputGainBoost: &boost})
	if err != nil {
		t.Fatalf("SetRuntimeSettings: %v", err)
	}
	if next.InputGainBoost != 2.0 {
		t.Fatalf("InputGainBoost = %v, want 2.0", next.InputGainBoost)
	}
	if got := c.GetRuntimeSettings().InputGainBoost; got != 2.0 {
		t.Fatalf("GetRuntimeSettings().InputGainBoost = %v, want 2.0", got)
	}
}

func TestSetRuntimeSettingsRejectsOutOfRangeAndLeavesStateUnchanged(t *testing.T) {
	c := newTestController()
	before := c.GetRuntimeSettings()

	bad := float32(50.0)
	_, err := c.SetRuntimeSettings(domain.RuntimeSettingsPatch{InputGainBoost: &bad})
	if err == nil {
		t.Fatal("expected an error for an out-of-range inputGainBoost")
	}
	after := c.GetRuntimeSettings()
	if after.InputGainBoost != before.InputGainBoost {
		t.Fatalf("settings changed despite rejected patch: before=%+v after=%+v", before, after)
	}
}

func TestReloadWhileIdleClearsModelCache(t *testing.T) {
	c := newTestController()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := c.Reload(ctx); err != nil {
		t.Fatalf("Reload while idle: %v", err)
	}
	c.mu.Lock()
	cache := c.cache
	c.mu.Unlock()
	if cache != nil {
		t.Fatal("model cache still resident after Reload")
	}
}

func TestSubscribeReceivesStatusEvents(t *testing.T) {
	c := newTestController()
	sub := &fakeSubscriber{}
	unregister := c.Subscribe(sub)
	defer unregister()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.Start(ctx, "") // fails, but still transitions idle->warmingup->idle

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(sub.snapshot()) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if len(sub.snapshot()) == 0 {
		t.Fatal("expected at least one status event from the failed start attempt")
	}
}

// fakeSubscriber records every event notified to it; mirrors the
// dispatcher package's own test fake since engine tests only care whether
// events flow, not fan-out/backpressure semantics.
type fakeSubscriber struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakeSubscriber) Notify(ev domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}
func (f *fakeSubscriber) Closed() bool { return false }
func (f *fakeSubscriber) snapshot() []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Event, len(f.events))
	copy(out, f.events)
	return out
}
