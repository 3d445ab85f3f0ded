package audiocap

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/gordonklaus/portaudio"

	"github.com/hammamikhairi/dictum/internal/logger"
)

// Backend selects which capture library a Source's Open call streams
// through. Device enumeration and name resolution always go through
// PortAudio (BackendMalgo still needs resolveDevice's *portaudio.DeviceInfo
// for the native rate/channel count and loopback-like filtering); only the
// always-on streaming path changes.
type Backend int

const (
	// BackendPortAudio streams through PortAudio end to end.
	BackendPortAudio Backend = iota
	// BackendMalgo streams through miniaudio's low-latency callback once
	// the device has been resolved via PortAudio.
	BackendMalgo
)

// WithBackend selects the streaming backend Open uses. Defaults to
// BackendPortAudio.
func WithBackend(b Backend) Option {
	return func(s *Source) { s.backend = b }
}

// malgoStream implements domain.AudioStream over a miniaudio capture
// device, grounded on the teacher's wakeword detector's always-on capture
// loop: InitContext → DefaultDeviceConfig(Capture) → a Data callback that
// copies into a pre-sized buffer and does a non-blocking channel send. The
// callback runs on miniaudio's own audio thread and must not block or
// allocate beyond the one copy.
type malgoStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	rate     int
	channels int
	log      *logger.Logger

	frames  chan []int16
	dropped atomic.Int64

	closeOnce sync.Once
}

func newMalgoStream(dev *portaudio.DeviceInfo, log *logger.Logger) (*malgoStream, error) {
	channels := dev.MaxInputChannels
	if channels < 1 {
		channels = 1
	}
	rate := int(dev.DefaultSampleRate)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, err
	}

	s := &malgoStream{
		ctx:      mctx,
		rate:     rate,
		channels: channels,
		log:      log,
		frames:   make(chan []int16, 16),
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = uint32(rate)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(channels)
	devCfg.Alsa.NoMMap = 1

	// pool mirrors stream.go's PortAudio callback: a small ring of reusable
	// buffers instead of one make() per invocation, since a dropped-frame
	// send would otherwise leave a still-pending channel slot pointing at a
	// buffer this callback is about to overwrite. Each slot is allocated on
	// first use at the current period length; a size change (should the
	// driver ever renegotiate it) replaces that slot with a fresh buffer of
	// the new size.
	pool := make([][]int16, callbackBufPoolSize)
	var poolNext int

	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			n := len(raw) / 2

			idx := poolNext
			poolNext = (poolNext + 1) % len(pool)
			pcm := pool[idx]
			if len(pcm) != n {
				pcm = make([]int16, n)
				pool[idx] = pcm
			}
			for i := 0; i < n; i++ {
				pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
			}
			select {
			case s.frames <- pcm:
			default:
				s.dropped.Add(1)
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, devCfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, err
	}

	s.device = device
	log.Debug("audiocap: malgo capture started (rate=%d, channels=%d)", rate, channels)
	return s, nil
}

func (s *malgoStream) NativeSampleRate() int { return s.rate }
func (s *malgoStream) NativeChannels() int    { return s.channels }
func (s *malgoStream) Frames() <-chan []int16 { return s.frames }

// DroppedFrames reports callback buffers discarded because the pipeline
// thread fell behind.
func (s *malgoStream) DroppedFrames() int64 { return s.dropped.Load() }

func (s *malgoStream) Close() error {
	s.closeOnce.Do(func() {
		s.device.Uninit()
		_ = s.ctx.Uninit()
		s.ctx.Free()
		close(s.frames)
	})
	return nil
}
