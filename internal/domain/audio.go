package domain

import "time"

// SampleRate is the fixed rate, in Hz, every stage past the resampler
// operates at. Whisper's mel front end has no other contract.
const SampleRate = 16000

// VadWindowSamples is the fixed VAD analysis window: 30 ms at SampleRate.
const VadWindowSamples = 480

// AudioFrame is a chunk of mono f32 PCM at SampleRate, produced by the
// resampler and consumed by the ring buffer/framer. Ownership moves forward
// one stage at a time; a frame is never read by two stages concurrently.
type AudioFrame struct {
	Samples    []float32
	SampleRate int
	CapturedAt time.Time
	Seq        uint64
}

// VadDecision is the per-window output of the voice activity detector,
// produced at roughly 33 Hz (one per 30 ms window).
type VadDecision struct {
	WindowSeq uint64
	IsSpeech  bool
	Score     float32
}

// AudioActivityEvent is emitted per processed chunk for UI activity meters.
type AudioActivityEvent struct {
	Seq      uint64
	RMS      float32
	IsSpeech bool
}

// DeviceInfo describes one enumerated input device.
type DeviceInfo struct {
	Name           string
	IsDefault      bool
	IsLoopbackLike bool
	IsRecommended  bool
	SampleRate     int
	Channels       int
}
