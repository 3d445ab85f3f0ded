// Package playback provides optional audio monitoring of utterance PCM via
// oto, so a developer running the CLI with --debug-play-audio can hear
// exactly what the pipeline segmented and sent to the decoder.
package playback

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hammamikhairi/dictum/internal/domain"
	"github.com/hammamikhairi/dictum/internal/logger"
)

// Player plays mono f32 PCM at domain.SampleRate via oto. Grounded on the
// teacher's speech.Player, generalized here to play raw utterance buffers
// handed over by the engine rather than WAV-encoded TTS output.
type Player struct {
	ctx    *oto.Context
	log    *logger.Logger
	mu     sync.Mutex
	active *oto.Player
}

// New initializes the system audio output context. Returns an error if no
// output device is available; callers should treat that as "debug playback
// unavailable" rather than a fatal condition.
func New(log *logger.Logger) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   domain.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	log.Debug("playback: audio output initialized (rate=%d, channels=1)", domain.SampleRate)
	return &Player{ctx: ctx, log: log}, nil
}

// PlayPCM plays mono f32 samples synchronously, converting to the signed
// 16-bit PCM oto expects. Blocks until playback finishes.
func (p *Player) PlayPCM(samples []float32) error {
	if len(samples) == 0 {
		return errors.New("playback: empty utterance buffer")
	}

	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s
		if v > 1 {
			v = 1
		}
		if v < -1 {
			v = -1
		}
		sample := int16(v * 32767)
		raw[2*i] = byte(sample)
		raw[2*i+1] = byte(sample >> 8)
	}

	player := p.ctx.NewPlayer(&byteReader{raw: raw})

	p.mu.Lock()
	p.active = player
	p.mu.Unlock()

	player.Play()
	p.log.Debug("playback: playing %d samples (%.2fs)", len(samples), float64(len(samples))/float64(domain.SampleRate))

	for player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}

	p.mu.Lock()
	p.active = nil
	p.mu.Unlock()

	return player.Close()
}

// Stop interrupts the currently playing utterance, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if active != nil {
		active.Pause()
	}
}

// byteReader adapts a plain byte slice to io.Reader without pulling in
// bytes.Reader's seek/len machinery that oto's player never needs.
type byteReader struct {
	raw []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.raw) {
		return 0, io.EOF
	}
	n := copy(p, r.raw[r.pos:])
	r.pos += n
	return n, nil
}
