package domain

// PerformanceProfile selects a segmenter/partial-interval preset.
type PerformanceProfile int

const (
	ProfileWhisperBalancedEnglish PerformanceProfile = iota
	ProfileStabilityLongForm
	ProfileBalancedGeneral
	ProfileLatencyShortUtterance
)

// String returns the wire name of a performance profile.
func (p PerformanceProfile) String() string {
	switch p {
	case ProfileWhisperBalancedEnglish:
		return "whisper_balanced_english"
	case ProfileStabilityLongForm:
		return "stability_long_form"
	case ProfileBalancedGeneral:
		return "balanced_general"
	case ProfileLatencyShortUtterance:
		return "latency_short_utterance"
	default:
		return "unknown"
	}
}

// ExecutionProvider selects the ONNX backend.
type ExecutionProvider int

const (
	EPAuto ExecutionProvider = iota
	EPCPU
	EPDirectML
)

// String returns the wire name of an execution provider.
func (e ExecutionProvider) String() string {
	switch e {
	case EPCPU:
		return "cpu"
	case EPDirectML:
		return "directml"
	default:
		return "auto"
	}
}

// CloudMode controls whether the (external) cloud fallback client is
// consulted; the engine itself never calls out, it only honors this value
// when deciding whether to hand off to that external collaborator.
type CloudMode int

const (
	CloudLocalOnly CloudMode = iota
	CloudHybrid
	CloudPreferred
)

// String returns the wire name of a cloud mode.
func (c CloudMode) String() string {
	switch c {
	case CloudHybrid:
		return "hybrid"
	case CloudPreferred:
		return "cloud_preferred"
	default:
		return "local_only"
	}
}

// RuntimeSettings is the configuration bundle controlling segmentation and
// inference behavior. Zero value is not meaningful on its own; use
// DefaultRuntimeSettings.
type RuntimeSettings struct {
	ModelProfile       string
	PerformanceProfile PerformanceProfile
	OrtEP              ExecutionProvider
	LanguageHint       string

	ToggleShortcut string

	PillVisualizerSensitivity int
	ActivitySensitivity       int
	ActivityNoiseGate         float32
	ActivityClipThreshold     float32
	InputGainBoost            float32

	PostUtteranceRefine bool
	PhraseBiasTerms     []string
	ReliabilityMode     bool
	CloudMode           CloudMode

	PartialIntervalMs  int
	SilenceHangoverMs  int
	MaxUtteranceMs     int
	IntraOpThreadCount int
}

// DefaultRuntimeSettings returns the baseline settings bundle the controller
// starts with before any set_settings call.
func DefaultRuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		ModelProfile:              "whisper-base",
		PerformanceProfile:        ProfileWhisperBalancedEnglish,
		OrtEP:                     EPAuto,
		LanguageHint:              "auto",
		ToggleShortcut:            "Ctrl+Shift+Space",
		PillVisualizerSensitivity: 10,
		ActivitySensitivity:       10,
		ActivityNoiseGate:         0.01,
		ActivityClipThreshold:     0.3,
		InputGainBoost:            1.0,
		PostUtteranceRefine:       false,
		ReliabilityMode:           false,
		CloudMode:                 CloudLocalOnly,
		PartialIntervalMs:         600,
		SilenceHangoverMs:         700,
		MaxUtteranceMs:            30000,
		IntraOpThreadCount:        4,
	}
}

// RequiresReload reports whether updating from this settings value to next
// touches a field that the controller must treat as model/EP-affecting —
// per §6, modelProfile and ortEp changes require a restart of the inference
// session, everything else applies hot.
func (s RuntimeSettings) RequiresReload(next RuntimeSettings) bool {
	return s.ModelProfile != next.ModelProfile || s.OrtEP != next.OrtEP
}

// SegmenterTiming is the partial-interval/hangover/max-duration triple a
// PerformanceProfile preset resolves to (§6 "segmenter/partial-interval
// preset").
type SegmenterTiming struct {
	PartialIntervalMs int
	SilenceHangoverMs int
	MaxUtteranceMs    int
}

// Preset returns the segmenter timing for p. ApplyProfile uses this to
// populate a RuntimeSettings' explicit Ms fields whenever PerformanceProfile
// changes, so the segmenter never has to know about profiles at all — it
// only ever reads the three Ms fields (§4.5).
func (p PerformanceProfile) Preset() SegmenterTiming {
	switch p {
	case ProfileStabilityLongForm:
		// Long-form dictation tolerates more trailing silence before
		// closing an utterance and allows much longer single utterances.
		return SegmenterTiming{PartialIntervalMs: 900, SilenceHangoverMs: 1500, MaxUtteranceMs: 45000}
	case ProfileBalancedGeneral:
		return SegmenterTiming{PartialIntervalMs: 700, SilenceHangoverMs: 900, MaxUtteranceMs: 30000}
	case ProfileLatencyShortUtterance:
		// Short-utterance/command mode: close fast, keep utterances small.
		return SegmenterTiming{PartialIntervalMs: 400, SilenceHangoverMs: 500, MaxUtteranceMs: 15000}
	default: // ProfileWhisperBalancedEnglish
		return SegmenterTiming{PartialIntervalMs: 600, SilenceHangoverMs: 700, MaxUtteranceMs: 30000}
	}
}

// ApplyProfile resolves s.PerformanceProfile's preset into the explicit
// Ms fields, returning the updated settings. Called whenever
// PerformanceProfile changes via set_runtime_settings; the preset replaces
// all three Ms fields (a patch carries no Ms fields of its own).
func (s RuntimeSettings) ApplyProfile() RuntimeSettings {
	t := s.PerformanceProfile.Preset()
	s.PartialIntervalMs = t.PartialIntervalMs
	s.SilenceHangoverMs = t.SilenceHangoverMs
	s.MaxUtteranceMs = t.MaxUtteranceMs
	return s
}

// RuntimeSettingsPatch carries only the fields a set_runtime_settings call
// wants to override (§6 "all optional on update"); a nil field leaves the
// current value untouched. PhraseBiasTerms is a pointer-to-slice so an
// explicit empty list (clear all bias terms) is distinguishable from "not
// supplied".
type RuntimeSettingsPatch struct {
	ModelProfile              *string
	PerformanceProfile        *PerformanceProfile
	OrtEP                     *ExecutionProvider
	LanguageHint              *string
	ToggleShortcut            *string
	PillVisualizerSensitivity *int
	ActivitySensitivity       *int
	ActivityNoiseGate         *float32
	ActivityClipThreshold     *float32
	InputGainBoost            *float32
	PostUtteranceRefine       *bool
	PhraseBiasTerms           *[]string
	ReliabilityMode           *bool
	CloudMode                 *CloudMode
}

// Apply validates and folds patch onto s, returning the resulting settings.
// Invalid values return ErrKindConfig and leave s's caller-visible copy
// unchanged (§7 "surfaced synchronously to the caller, state unchanged").
// A PerformanceProfile change re-resolves the segmenter timing preset,
// replacing all three Ms fields.
func (s RuntimeSettings) Apply(patch RuntimeSettingsPatch) (RuntimeSettings, error) {
	next := s

	if patch.ModelProfile != nil {
		if *patch.ModelProfile == "" {
			return s, NewEngineError(ErrKindConfig, "modelProfile must not be empty", ErrInvalidSetting)
		}
		next.ModelProfile = *patch.ModelProfile
	}
	if patch.PerformanceProfile != nil {
		next.PerformanceProfile = *patch.PerformanceProfile
		next = next.ApplyProfile()
	}
	if patch.OrtEP != nil {
		next.OrtEP = *patch.OrtEP
	}
	if patch.LanguageHint != nil {
		next.LanguageHint = *patch.LanguageHint
	}
	if patch.ToggleShortcut != nil {
		next.ToggleShortcut = *patch.ToggleShortcut
	}
	if patch.PillVisualizerSensitivity != nil {
		if *patch.PillVisualizerSensitivity < 1 || *patch.PillVisualizerSensitivity > 20 {
			return s, NewEngineError(ErrKindConfig, "pillVisualizerSensitivity must be in [1,20]", ErrInvalidSetting)
		}
		next.PillVisualizerSensitivity = *patch.PillVisualizerSensitivity
	}
	if patch.ActivitySensitivity != nil {
		if *patch.ActivitySensitivity < 1 || *patch.ActivitySensitivity > 20 {
			return s, NewEngineError(ErrKindConfig, "activitySensitivity must be in [1,20]", ErrInvalidSetting)
		}
		next.ActivitySensitivity = *patch.ActivitySensitivity
	}
	if patch.ActivityNoiseGate != nil {
		if *patch.ActivityNoiseGate < 0 || *patch.ActivityNoiseGate > 0.1 {
			return s, NewEngineError(ErrKindConfig, "activityNoiseGate must be in [0,0.1]", ErrInvalidSetting)
		}
		next.ActivityNoiseGate = *patch.ActivityNoiseGate
	}
	if patch.ActivityClipThreshold != nil {
		if *patch.ActivityClipThreshold < 0.02 || *patch.ActivityClipThreshold > 1 {
			return s, NewEngineError(ErrKindConfig, "activityClipThreshold must be in [0.02,1]", ErrInvalidSetting)
		}
		next.ActivityClipThreshold = *patch.ActivityClipThreshold
	}
	if patch.InputGainBoost != nil {
		if *patch.InputGainBoost < 0.5 || *patch.InputGainBoost > 8 {
			return s, NewEngineError(ErrKindConfig, "inputGainBoost must be in [0.5,8]", ErrInvalidSetting)
		}
		next.InputGainBoost = *patch.InputGainBoost
	}
	if patch.PostUtteranceRefine != nil {
		next.PostUtteranceRefine = *patch.PostUtteranceRefine
	}
	if patch.PhraseBiasTerms != nil {
		next.PhraseBiasTerms = append([]string(nil), (*patch.PhraseBiasTerms)...)
	}
	if patch.ReliabilityMode != nil {
		next.ReliabilityMode = *patch.ReliabilityMode
	}
	if patch.CloudMode != nil {
		next.CloudMode = *patch.CloudMode
	}

	return next, nil
}
