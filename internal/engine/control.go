package engine

import (
	"context"

	"github.com/hammamikhairi/dictum/internal/domain"
)

type opKind int

const (
	opStart opKind = iota
	opStop
	opReload
)

// ctrlOp is one request on the controller thread's serialization queue.
type ctrlOp struct {
	kind       opKind
	deviceName string
	reply      chan error
}

// controlLoop is the controller thread (§5 item 6): it is the only
// goroutine allowed to start or tear down a run, eliminating the
// overlapping-start-while-prior-stop-in-flight race called out in §4.11.
func (c *Controller) controlLoop() {
	ctx := context.Background()
	for {
		select {
		case op, ok := <-c.ctrlCh:
			if !ok {
				return
			}
			var err error
			switch op.kind {
			case opStart:
				err = c.handleStart(ctx, op.deviceName)
			case opStop:
				err = c.handleStop(ctx)
			case opReload:
				err = c.handleReload(ctx)
			}
			op.reply <- err
		case err := <-c.failCh:
			// A run reported a §7 InferencePersistent failure. Handled on
			// this same serialization point as start/stop so it can never
			// race a concurrent Start/Stop/Reload call.
			c.fatal(err)
		}
	}
}

func (c *Controller) handleStart(ctx context.Context, deviceName string) error {
	c.mu.Lock()
	status := c.status.Status
	if status != domain.StatusIdle && status != domain.StatusStopped {
		c.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	if deviceName == "" {
		deviceName = c.preferredDevice
	}
	settings := c.settings
	rules := c.rules
	c.mu.Unlock()

	c.setStatus(domain.StatusWarmingUp, "")

	cache, warm, err := c.ensureModelSession(ctx, settings)
	if err != nil {
		c.setStatus(domain.StatusIdle, "")
		return domain.NewEngineError(domain.ErrKindModel, "load model session", err)
	}
	if !warm {
		c.log.Debug("engine: model session resident, skipping warm-up pass")
	}

	run, err := c.startRun(ctx, cache, deviceName, settings, rules)
	if err != nil {
		c.setStatus(domain.StatusIdle, "")
		return err
	}

	c.mu.Lock()
	c.run = run
	c.mu.Unlock()

	c.setStatus(domain.StatusListening, "")
	return nil
}

func (c *Controller) handleStop(ctx context.Context) error {
	c.mu.Lock()
	run := c.run
	c.run = nil
	c.mu.Unlock()

	if run == nil {
		// Idempotent per §4.11.
		c.setStatus(domain.StatusStopped, "")
		return nil
	}
	run.shutdown()
	c.setStatus(domain.StatusStopped, "")
	return nil
}

func (c *Controller) handleReload(ctx context.Context) error {
	c.mu.Lock()
	running := c.run != nil
	c.mu.Unlock()
	if running {
		return domain.ErrAlreadyRunning
	}
	c.closeModelSession()
	return nil
}
