package audiocap

import (
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/hammamikhairi/dictum/internal/logger"
)

// portAudioStream implements domain.AudioStream over a PortAudio input
// stream. The callback runs on PortAudio's real-time thread: it must not
// allocate and must not block more than the 2 ms budget from §5, so it
// copies into one of a small pool of pre-sized buffers and does a
// non-blocking channel send, dropping frames rather than stalling the
// audio driver if the pipeline thread falls behind. The pool (not a single
// reused buffer) exists because a dropped-frame send leaves the previous
// buffer still owned by a channel slot the pipeline thread hasn't drained
// yet; reusing it immediately would corrupt that still-pending frame.
type portAudioStream struct {
	stream   *portaudio.Stream
	rate     int
	channels int
	log      *logger.Logger

	frames  chan []int16
	dropped atomic.Int64

	closeOnce sync.Once
}

// callbackBufPoolSize must exceed the frames channel's capacity so the
// callback never has to wait for a buffer the pipeline thread is still
// reading from.
const callbackBufPoolSize = 24

func newPortAudioStream(dev *portaudio.DeviceInfo, framesPerBuffer int, log *logger.Logger) (*portAudioStream, error) {
	channels := dev.MaxInputChannels
	if channels < 1 {
		channels = 1
	}

	s := &portAudioStream{
		rate:     int(dev.DefaultSampleRate),
		channels: channels,
		log:      log,
		frames:   make(chan []int16, 16),
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = channels
	params.SampleRate = dev.DefaultSampleRate
	params.FramesPerBuffer = framesPerBuffer

	bufSize := framesPerBuffer * channels
	pool := make([][]int16, callbackBufPoolSize)
	for i := range pool {
		pool[i] = make([]int16, bufSize)
	}
	var next int

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		out := pool[next]
		next = (next + 1) % len(pool)
		if len(out) != len(in) {
			// framesPerBuffer mismatch on this callback; fall back to a
			// fresh slice rather than corrupt the fixed-size pool entry.
			out = make([]int16, len(in))
		}
		copy(out, in)
		select {
		case s.frames <- out:
		default:
			s.dropped.Add(1)
		}
	})
	if err != nil {
		return nil, err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, err
	}

	s.stream = stream
	return s, nil
}

func (s *portAudioStream) NativeSampleRate() int { return s.rate }
func (s *portAudioStream) NativeChannels() int    { return s.channels }
func (s *portAudioStream) Frames() <-chan []int16 { return s.frames }

// DroppedFrames reports how many callback buffers were discarded because the
// pipeline thread fell behind — a diagnostics signal, not a fatal condition.
func (s *portAudioStream) DroppedFrames() int64 { return s.dropped.Load() }

func (s *portAudioStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stream != nil {
			_ = s.stream.Stop()
			err = s.stream.Close()
		}
		close(s.frames)
	})
	return err
}
