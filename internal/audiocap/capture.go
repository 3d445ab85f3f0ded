// Package audiocap implements the Device Source stage (C1): device
// enumeration and PCM streaming from the selected input device.
package audiocap

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/hammamikhairi/dictum/internal/domain"
	"github.com/hammamikhairi/dictum/internal/logger"
)

// loopbackPattern matches device names that capture system output rather
// than a microphone. is_loopback_like is true for these.
var loopbackPattern = regexp.MustCompile(`(?i)(speakers?|what u hear|stereo mix|loopback)`)

// Option configures a Source.
type Option func(*Source)

// WithFramesPerBuffer overrides the PortAudio callback buffer size.
func WithFramesPerBuffer(n int) Option {
	return func(s *Source) { s.framesPerBuffer = n }
}

// Source enumerates PortAudio input devices and opens streams on them. It
// owns the PortAudio library handle exclusively for its own lifetime, per
// the concurrency model's rule that audio device handles belong to a single
// thread.
type Source struct {
	log             *logger.Logger
	framesPerBuffer int
	backend         Backend

	mu          sync.Mutex
	initialized bool
}

// New creates a device source. Call Init before ListDevices/Open.
func New(log *logger.Logger, opts ...Option) *Source {
	s := &Source{log: log, framesPerBuffer: 480}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init initializes the underlying PortAudio library. Must be called once
// before any other method, and Close must be called on shutdown.
func (s *Source) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return domain.NewEngineError(domain.ErrKindDevice, "portaudio init", err)
	}
	s.initialized = true
	return nil
}

// Close tears down the PortAudio library handle.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil
	}
	s.initialized = false
	return portaudio.Terminate()
}

// ListDevices enumerates input-capable devices, annotated per §4.1.
func (s *Source) ListDevices(ctx context.Context) ([]domain.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindDevice, "enumerate devices", err)
	}

	defaultIn, _ := portaudio.DefaultInputDevice()

	var out []domain.DeviceInfo
	recommended := false
	for _, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}
		info := domain.DeviceInfo{
			Name:           d.Name,
			IsDefault:      defaultIn != nil && d.Name == defaultIn.Name,
			IsLoopbackLike: loopbackPattern.MatchString(d.Name),
			SampleRate:     int(d.DefaultSampleRate),
			Channels:       d.MaxInputChannels,
		}
		if !info.IsLoopbackLike && !recommended {
			info.IsRecommended = true
			recommended = true
		}
		out = append(out, info)
	}
	// Fall back to the default device if every device looked loopback-like.
	if !recommended {
		for i := range out {
			if out[i].IsDefault {
				out[i].IsRecommended = true
				break
			}
		}
	}
	return out, nil
}

// Open opens the named device, or the OS default if deviceName is empty or
// not found. No restart is attempted when the stream reports an error.
func (s *Source) Open(ctx context.Context, deviceName string) (domain.AudioStream, error) {
	dev, err := s.resolveDevice(deviceName)
	if err != nil {
		return nil, err
	}

	if s.backend == BackendMalgo {
		stream, err := newMalgoStream(dev, s.log)
		if err != nil {
			return nil, domain.NewEngineError(domain.ErrKindDevice, fmt.Sprintf("open device %q via malgo", dev.Name), err)
		}
		return stream, nil
	}

	stream, err := newPortAudioStream(dev, s.framesPerBuffer, s.log)
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindDevice, fmt.Sprintf("open device %q", dev.Name), err)
	}
	return stream, nil
}

func (s *Source) resolveDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, domain.NewEngineError(domain.ErrKindDevice, "no default input device", domain.ErrDeviceNotFound)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, domain.NewEngineError(domain.ErrKindDevice, "enumerate devices", err)
	}
	for _, d := range devices {
		if strings.EqualFold(d.Name, name) && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	s.log.Warn("audiocap: device %q not found, using default input device", name)
	return s.resolveDevice("")
}
