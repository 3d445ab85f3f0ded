// Package inject implements the Text Injector (C10): delivering a final
// transcript segment into whichever foreign window currently holds
// keyboard focus, via sendinput, clipboard-paste, or a no-op off mode.
package inject

import (
	"context"
	"sync"
	"time"

	"github.com/atotto/clipboard"

	"github.com/hammamikhairi/dictum/internal/diag"
	"github.com/hammamikhairi/dictum/internal/domain"
	"github.com/hammamikhairi/dictum/internal/logger"
)

// clipboardRestoreDelay is the minimum dwell time spec §4.10 requires
// between setting the clipboard for a paste and restoring the caller's
// original contents, so the target application has time to read it.
const clipboardRestoreDelay = 150 * time.Millisecond

// Option configures an Injector.
type Option func(*Injector)

// WithNewlinePolicy selects what LF characters become when synthesized:
// the Enter key (default) or a configurable no-op (dropped entirely).
func WithNewlinePolicy(sendEnter bool) Option {
	return func(i *Injector) { i.sendEnterForNewline = sendEnter }
}

// Injector is the domain.Injector implementation. Its mutex guards only the
// mode settings and is released before the platform call, so Inject does
// not serialize concurrent callers; the engine keeps one injection in
// flight by calling Inject from a single goroutine, the same
// single-consumer shape as internal/speech/mouth.go's dispatch.
type Injector struct {
	log  *logger.Logger
	diag *diag.Registry

	mu                  sync.Mutex
	mode                domain.InjectMode
	sendEnterForNewline bool
}

// New returns an Injector in sendinput mode (spec's default).
func New(log *logger.Logger, diagReg *diag.Registry, opts ...Option) *Injector {
	i := &Injector{
		log:                 log,
		diag:                diagReg,
		mode:                domain.InjectSendInput,
		sendEnterForNewline: true,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Mode returns the currently selected injection mode.
func (i *Injector) Mode() domain.InjectMode {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mode
}

// SetMode switches injection mode, effective on the next Inject call.
func (i *Injector) SetMode(mode domain.InjectMode) {
	i.mu.Lock()
	i.mode = mode
	i.mu.Unlock()
}

// Inject delivers text into the focused foreign window. Per §4.10: skip
// silently if focus is the engine's own window; on platform failure,
// record inject_calls without inject_success and return
// domain.ErrInjectionBlocked — the caller still publishes the text event
// regardless of this method's result.
func (i *Injector) Inject(ctx context.Context, text string) error {
	i.mu.Lock()
	mode := i.mode
	sendEnter := i.sendEnterForNewline
	i.mu.Unlock()

	if mode == domain.InjectOff {
		return nil
	}

	i.diag.Counters.InjectCalls.Inc()

	if isOwnWindowFocused() {
		i.log.Debug("inject: skipped, own window has focus")
		return nil
	}

	start := time.Now()
	var err error
	switch mode {
	case domain.InjectClipboardPaste:
		err = i.injectViaClipboard(text)
	default:
		err = sendInputText(text, sendEnter)
	}
	i.diag.Observe(diag.StageInject, float64(time.Since(start))/float64(time.Millisecond))

	if err != nil {
		i.log.Warn("inject: failed (mode=%s): %v", mode, err)
		return domain.NewEngineError(domain.ErrKindInject, "injection blocked", domain.ErrInjectionBlocked)
	}

	i.diag.Counters.InjectSuccess.Inc()
	return nil
}

// injectViaClipboard saves the current clipboard, sets it to text,
// synthesizes a paste keystroke, then restores the original contents after
// clipboardRestoreDelay.
func (i *Injector) injectViaClipboard(text string) error {
	original, _ := clipboard.ReadAll() // best-effort; empty original is fine

	if err := clipboard.WriteAll(text); err != nil {
		return err
	}

	if err := sendPasteKeystroke(); err != nil {
		// Still try to restore the clipboard before returning the error.
		time.Sleep(clipboardRestoreDelay)
		_ = clipboard.WriteAll(original)
		return err
	}

	go func() {
		time.Sleep(clipboardRestoreDelay)
		_ = clipboard.WriteAll(original)
	}()
	return nil
}
