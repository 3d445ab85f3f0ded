package inference

import (
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hammamikhairi/dictum/internal/domain"
	"github.com/hammamikhairi/dictum/internal/mel"
)

// DecoderVariant distinguishes the two decoder calling conventions §4.7
// requires supporting, detected once at load time by I/O-name probing and
// never branched on again inside the hot decode loop.
type DecoderVariant int

const (
	DecoderPlain DecoderVariant = iota
	DecoderCachedKV
)

// Session owns the encoder and decoder ONNX sessions for one loaded model.
// It is used exclusively by the single inference thread (§5); no other
// goroutine may touch it concurrently.
type Session struct {
	encoder *ort.AdvancedSession
	encIn   *ort.Tensor[float32]
	encOut  *ort.Tensor[float32]

	decoder        *ort.DynamicAdvancedSession
	decInputNames  []string
	decOutputNames []string
	variant        DecoderVariant

	tokenizer *Tokenizer

	multilingual bool
}

// Open loads the encoder/decoder from paths and probes their I/O layout.
// Incompatible exports fail here, at load time, with a clear message — not
// at first decode (§4.7).
func Open(paths domain.ModelPaths) (*Session, error) {
	tok, err := LoadTokenizer(paths.TokenizerPath)
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindModel, "load tokenizer", err)
	}

	encIn, err := ort.NewEmptyTensor[float32](ort.NewShape(1, mel.NumMelBins, mel.TargetFrames))
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindModel, "alloc encoder input", err)
	}
	encOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, mel.TargetFrames/2, encoderHiddenSize))
	if err != nil {
		encIn.Destroy()
		return nil, domain.NewEngineError(domain.ErrKindModel, "alloc encoder output", err)
	}

	encInInfo, encOutInfo, err := ort.GetInputOutputInfo(paths.EncoderPath)
	if err != nil {
		encIn.Destroy()
		encOut.Destroy()
		return nil, domain.NewEngineError(domain.ErrKindModel, "encoder I/O probe", err)
	}
	if len(encInInfo) == 0 || len(encOutInfo) == 0 {
		encIn.Destroy()
		encOut.Destroy()
		return nil, domain.NewEngineError(domain.ErrKindModel, "encoder exposes no input/output", domain.ErrIOMismatch)
	}

	encoder, err := ort.NewAdvancedSession(
		paths.EncoderPath,
		[]string{encInInfo[0].Name}, []string{encOutInfo[0].Name},
		[]ort.Value{encIn}, []ort.Value{encOut},
		nil,
	)
	if err != nil {
		encIn.Destroy()
		encOut.Destroy()
		return nil, domain.NewEngineError(domain.ErrKindModel, "encoder session create", err)
	}

	decInInfo, decOutInfo, err := ort.GetInputOutputInfo(paths.DecoderPath)
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindModel, "decoder I/O probe", err)
	}
	if len(decInInfo) == 0 || len(decOutInfo) == 0 {
		return nil, domain.NewEngineError(domain.ErrKindModel, "decoder exposes no input/output", domain.ErrIOMismatch)
	}

	variant := DecoderPlain
	decInNames := make([]string, 0, len(decInInfo))
	for _, in := range decInInfo {
		decInNames = append(decInNames, in.Name)
		if strings.Contains(strings.ToLower(in.Name), "past_key_values") {
			variant = DecoderCachedKV
		}
	}
	decOutNames := make([]string, 0, len(decOutInfo))
	for _, out := range decOutInfo {
		decOutNames = append(decOutNames, out.Name)
	}

	multilingual := false
	for _, in := range decInInfo {
		if strings.Contains(strings.ToLower(in.Name), "lang") {
			multilingual = true
		}
	}

	// decoderStep only ever builds the plain input_ids/encoder_hidden_states
	// pair; fail here, at load time, rather than on the first Decode call,
	// until cached-KV input construction exists.
	if variant == DecoderCachedKV {
		return nil, domain.NewEngineError(domain.ErrKindModel, "decoder exposes past_key_values inputs, which this build cannot drive", domain.ErrIOMismatch)
	}

	// The decoder's sequence-length dimension grows by one token per decode
	// step, so unlike the encoder (fixed-shape mel input) it is opened as a
	// dynamic session that accepts a fresh shape on every Run call.
	decoder, err := ort.NewDynamicAdvancedSession(paths.DecoderPath, decInNames, decOutNames, nil)
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindModel, "decoder session create", err)
	}

	return &Session{
		encoder:        encoder,
		encIn:          encIn,
		encOut:         encOut,
		decoder:        decoder,
		decInputNames:  decInNames,
		decOutputNames: decOutNames,
		variant:        variant,
		tokenizer:      tok,
		multilingual:   multilingual,
	}, nil
}

// encoderHiddenSize is the Whisper-base embedding width; real deployments
// resolve this per modelProfile, kept as a named constant here since the
// mel input shape is fixed regardless of model size.
const encoderHiddenSize = 512

// Variant reports the detected decoder calling convention.
func (s *Session) Variant() DecoderVariant { return s.variant }

// Multilingual reports whether the loaded model exposes a language-token
// input slot.
func (s *Session) Multilingual() bool { return s.multilingual }

// Encode runs the encoder over a mel spectrogram, returning the
// audio-embedding tensor's backing data for the decoder to attend over.
func (s *Session) Encode(melSpec [][]float32) ([]float32, error) {
	dst := s.encIn.GetData()
	for m, row := range melSpec {
		copy(dst[m*mel.TargetFrames:(m+1)*mel.TargetFrames], row)
	}
	if err := s.encoder.Run(); err != nil {
		return nil, domain.NewEngineError(domain.ErrKindInferenceTransient, "encoder run", err)
	}
	out := s.encOut.GetData()
	cp := make([]float32, len(out))
	copy(cp, out)
	return cp, nil
}

// Close releases every ONNX handle owned by this session.
func (s *Session) Close() error {
	s.encoder.Destroy()
	s.encIn.Destroy()
	s.encOut.Destroy()
	if s.decoder != nil {
		s.decoder.Destroy()
	}
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("inference.Session{variant=%v multilingual=%v}", s.variant, s.multilingual)
}
