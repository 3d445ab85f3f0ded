// Dictumd — a real-time desktop dictation engine.
//
// Usage:
//
//	dictumd [-verbose] [-device "Headset Mic"] [-encoder ...] [-decoder ...]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hammamikhairi/dictum/internal/audiocap"
	"github.com/hammamikhairi/dictum/internal/display"
	"github.com/hammamikhairi/dictum/internal/domain"
	"github.com/hammamikhairi/dictum/internal/engine"
	"github.com/hammamikhairi/dictum/internal/logger"
	"github.com/hammamikhairi/dictum/internal/playback"
)

const stopTimeout = 5 * time.Second

func main() {
	_ = godotenv.Load()

	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", ".dictum-logs/dictumd.log", "file to write logs to (use \"stderr\" to log to console)")

	device := flag.String("device", "", "preferred input device name (empty = recommended default)")
	captureBackend := flag.String("capture-backend", "portaudio", "capture backend: portaudio or malgo (miniaudio, lower latency)")
	encoderPath := flag.String("encoder", "models/whisper-encoder.onnx", "path to the Whisper encoder ONNX model")
	decoderPath := flag.String("decoder", "models/whisper-decoder.onnx", "path to the Whisper decoder ONNX model")
	vadModelPath := flag.String("vad-model", "models/silero-vad.onnx", "path to the Silero VAD ONNX model")
	tokenizerPath := flag.String("tokenizer", "models/tokenizer.json", "path to the Whisper tokenizer file")
	onnxLibPath := flag.String("onnx-lib", "", "path to the onnxruntime shared library (empty = system default)")

	injectMode := flag.String("inject-mode", "sendinput", "text injection mode: sendinput, clipboard-paste, off")
	debugTranscribe := flag.Bool("debug-transcribe", os.Getenv("DICTUM_DEBUG_TRANSCRIBE") == "1", "log decoder token ids per utterance")
	debugPlayAudio := flag.Bool("debug-play-audio", false, "play back every finalized utterance's captured audio")
	noDashboard := flag.Bool("no-dashboard", false, "disable the terminal status dashboard")
	autoStart := flag.Bool("auto-start", true, "start listening immediately on launch")
	flag.Parse()

	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}

	var logOut io.Writer = os.Stderr
	if *logFile != "" && *logFile != "stderr" {
		dir := filepath.Dir(*logFile)
		if dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", *logFile, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}

	// Redirect Go's default log package (used by onnxruntime/portaudio's
	// cgo shims) to the same output so it doesn't spam the terminal.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(logLevel, logOut)

	mode, err := parseInjectMode(*injectMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := parseCaptureBackend(*captureBackend)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	devices := audiocap.New(log, audiocap.WithBackend(backend))
	if err := devices.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "error: audio device init failed: %v\n", err)
		os.Exit(1)
	}
	defer devices.Close()

	models := staticModelSource{
		paths: domain.ModelPaths{
			EncoderPath:   *encoderPath,
			DecoderPath:   *decoderPath,
			VadModelPath:  *vadModelPath,
			TokenizerPath: *tokenizerPath,
			OnnxLibPath:   *onnxLibPath,
		},
	}

	opts := []engine.Option{
		engine.WithDebugTranscribe(*debugTranscribe),
		engine.WithInjectMode(mode),
	}
	if *debugPlayAudio {
		player, err := playback.New(log)
		if err != nil {
			log.Warn("debug playback unavailable: %v", err)
		} else {
			opts = append(opts, engine.WithDebugPlayback(player))
		}
	}

	eng := engine.New(log, devices, models, nil, opts...)
	if *device != "" {
		eng.SetPreferredInputDevice(*device)
	}

	if *autoStart {
		go func() {
			if err := eng.Start(ctx, eng.GetPreferredInputDevice()); err != nil {
				log.Error("engine: start failed: %v", err)
			}
		}()
	}

	if *noDashboard {
		<-ctx.Done()
		shutdown(eng)
		return
	}

	ui := display.NewUI(selectedDeviceLabel(*device))
	unregister := eng.Subscribe(ui)
	defer unregister()

	go func() {
		<-ctx.Done()
		ui.Quit()
	}()

	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
	}
	shutdown(eng)
}

func shutdown(eng *engine.Controller) {
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	_ = eng.Stop(stopCtx)
}

func selectedDeviceLabel(device string) string {
	if device == "" {
		return "default device"
	}
	return device
}

func parseCaptureBackend(s string) (audiocap.Backend, error) {
	switch s {
	case "portaudio":
		return audiocap.BackendPortAudio, nil
	case "malgo":
		return audiocap.BackendMalgo, nil
	default:
		return audiocap.BackendPortAudio, errors.New("error: -capture-backend must be portaudio or malgo")
	}
}

func parseInjectMode(s string) (domain.InjectMode, error) {
	switch s {
	case "sendinput":
		return domain.InjectSendInput, nil
	case "clipboard-paste":
		return domain.InjectClipboardPaste, nil
	case "off":
		return domain.InjectOff, nil
	default:
		return domain.InjectSendInput, errors.New("error: -inject-mode must be one of sendinput, clipboard-paste, off")
	}
}

// staticModelSource resolves every modelProfile to the same flag-supplied
// paths; a real model-manager/downloader keyed by profile is out of scope
// (spec.md §1 non-goal: "model management/downloading").
type staticModelSource struct {
	paths domain.ModelPaths
}

func (s staticModelSource) Resolve(ctx context.Context, modelProfile string) (domain.ModelPaths, error) {
	return s.paths, nil
}
