package engine

import (
	"context"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hammamikhairi/dictum/internal/domain"
	"github.com/hammamikhairi/dictum/internal/inference"
	"github.com/hammamikhairi/dictum/internal/vad"
)

var ortOnce sync.Once
var ortInitErr error

// ensureOrtEnvironment initializes the shared ONNX Runtime environment
// exactly once per process, at the path resolved for the first loaded
// model. Both the VAD (C4) and inference (C7) sessions run against this
// one environment — there is nothing per-model about the runtime itself,
// only about the sessions opened against it.
func ensureOrtEnvironment(libPath string) error {
	ortOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// modelCache holds the resident VAD/inference sessions for one
// modelProfile+ortEp combination. §4.11 "warmingup... is skipped on
// subsequent starts if the session is still resident" — Start reuses this
// cache rather than reloading when the settings fingerprint is unchanged.
type modelCache struct {
	fingerprint string
	paths       domain.ModelPaths

	vadSess *vad.Session
	infSess *inference.Session
}

func fingerprintOf(s domain.RuntimeSettings) string {
	return s.ModelProfile + "|" + s.OrtEP.String()
}

// ensureModelSession returns the resident cache for settings' fingerprint,
// loading one from scratch if none exists or a prior one doesn't match.
// The bool return reports whether a fresh (cold) load happened, so the
// caller knows whether to treat this as a warm-up pass.
func (c *Controller) ensureModelSession(ctx context.Context, settings domain.RuntimeSettings) (*modelCache, bool, error) {
	fp := fingerprintOf(settings)

	c.mu.Lock()
	cache := c.cache
	c.mu.Unlock()
	if cache != nil && cache.fingerprint == fp {
		return cache, false, nil
	}

	paths, err := c.models.Resolve(ctx, settings.ModelProfile)
	if err != nil {
		return nil, false, domain.NewEngineError(domain.ErrKindModel, "resolve model profile", err)
	}

	if err := ensureOrtEnvironment(paths.OnnxLibPath); err != nil {
		return nil, false, domain.NewEngineError(domain.ErrKindModel, "initialize onnx runtime", err)
	}

	vadSess, err := vad.OpenSession(paths.VadModelPath)
	if err != nil {
		return nil, false, domain.NewEngineError(domain.ErrKindModel, "load vad model", err)
	}

	infSess, err := inference.Open(paths)
	if err != nil {
		_ = vadSess.Close()
		return nil, false, domain.NewEngineError(domain.ErrKindModel, "load inference model", err)
	}

	c.closeModelSessionLocked()

	next := &modelCache{fingerprint: fp, paths: paths, vadSess: vadSess, infSess: infSess}
	c.mu.Lock()
	c.cache = next
	c.mu.Unlock()
	return next, true, nil
}

// closeModelSession tears down and discards the resident model cache, if
// any (used by Reload).
func (c *Controller) closeModelSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeModelSessionLocked()
	c.cache = nil
}

func (c *Controller) closeModelSessionLocked() {
	if c.cache == nil {
		return
	}
	_ = c.cache.vadSess.Close()
	_ = c.cache.infSess.Close()
}

// debugTranscribeEnabled reports whether DICTUM_DEBUG_TRANSCRIBE is "1".
// Nothing calls it: cmd/dictumd reads the variable itself as the default of
// its -debug-transcribe flag and passes it in via WithDebugTranscribe.
func debugTranscribeEnabled() bool {
	return os.Getenv("DICTUM_DEBUG_TRANSCRIBE") == "1"
}
