// Package vad implements the Voice Activity Detector stage (C4): a
// Silero-class neural VAD over 480-sample windows with enter/exit
// hysteresis.
package vad

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hammamikhairi/dictum/internal/domain"
)

// Session wraps one ONNX VAD model. I/O names are probed once at load time
// per §9's design note ("probe at load time, persist the detected variant
// in the session object; never branch on names inside the hot decode
// loop") — incompatible exports fail loudly at Open, not on first Score.
type Session struct {
	sess *ort.AdvancedSession
	in   *ort.Tensor[float32]
	out  *ort.Tensor[float32]

	inputName  string
	outputName string
}

// OpenSession loads the VAD model at modelPath, using the ONNX runtime
// environment already initialized for the process (shared with the
// inference worker's sessions).
func OpenSession(modelPath string) (*Session, error) {
	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, domain.VadWindowSamples))
	if err != nil {
		return nil, fmt.Errorf("vad: alloc input tensor: %w", err)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		in.Destroy()
		return nil, fmt.Errorf("vad: alloc output tensor: %w", err)
	}

	inInfo, outInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, domain.NewEngineError(domain.ErrKindModel, "vad model I/O probe", err)
	}
	if len(inInfo) == 0 || len(outInfo) == 0 {
		in.Destroy()
		out.Destroy()
		return nil, domain.NewEngineError(domain.ErrKindModel, "vad model exposes no input/output", domain.ErrIOMismatch)
	}

	sess, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{in}, []ort.Value{out},
		nil,
	)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, domain.NewEngineError(domain.ErrKindModel, "vad session create", err)
	}

	return &Session{
		sess:       sess,
		in:         in,
		out:        out,
		inputName:  inInfo[0].Name,
		outputName: outInfo[0].Name,
	}, nil
}

// Score runs one VAD window through the model and returns its raw
// speech-probability score in [0,1]. window must be exactly
// domain.VadWindowSamples long.
func (s *Session) Score(window []float32) (float32, error) {
	if len(window) != domain.VadWindowSamples {
		return 0, fmt.Errorf("vad: window length %d, want %d", len(window), domain.VadWindowSamples)
	}
	copy(s.in.GetData(), window)
	if err := s.sess.Run(); err != nil {
		return 0, domain.NewEngineError(domain.ErrKindInferenceTransient, "vad run", err)
	}
	data := s.out.GetData()
	if len(data) == 0 {
		return 0, domain.NewEngineError(domain.ErrKindInternal, "vad produced no output", domain.ErrIOMismatch)
	}
	return data[0], nil
}

// Close releases the ONNX session and tensors.
func (s *Session) Close() error {
	s.sess.Destroy()
	s.in.Destroy()
	s.out.Destroy()
	return nil
}
