package playback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/twitchtranslate/pipeline/internal/logging"
	"github.com/twitchtranslate/pipeline/internal/tts"
)

// blankAudioWarnWindow rate-limits the invalid-clip warning to at most
// one per window, per spec.md §8's "emits at most one warning per
// rate-limit window".
const blankAudioWarnWindow = 10 * time.Second

type pcmFormat struct {
	sampleRateHz int
	channels     int
}

// pcmSource is the in-flight clip fed to the device's data callback.
type pcmSource struct {
	remaining []byte
	done      chan struct{}
	closed    bool
}

// DeviceSink is a malgo-backed playback sink. The output stream is
// opened lazily on first Play and reused across clips of the same PCM
// format (reopened only when the format changes), matching the
// "continuous device ownership" contract.
type DeviceSink struct {
	DeviceName string
	Logger     logging.Logger

	initOnce sync.Once
	initErr  error
	audioCtx *malgo.AllocatedContext

	mu         sync.Mutex
	device     *malgo.Device
	format     pcmFormat
	source     *pcmSource
	disabled   bool
	enumLogged bool
	lastWarnAt time.Time
}

// NewDeviceSink builds a lazily-initialized playback sink. deviceName
// selects a named output device; empty selects the system default.
func NewDeviceSink(deviceName string, logger logging.Logger) *DeviceSink {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &DeviceSink{DeviceName: deviceName, Logger: logger}
}

func (s *DeviceSink) Play(ctx context.Context, audio tts.TtsAudio) error {
	if !isPlayable(audio) {
		s.warnBlankAudio()
		return nil
	}

	if err := s.ensureContext(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.disabled {
		s.mu.Unlock()
		return nil
	}

	format := pcmFormat{sampleRateHz: audio.SampleRateHz, channels: audio.Channels}
	if err := s.ensureDeviceLocked(format); err != nil {
		s.disabled = true
		s.mu.Unlock()
		s.Logger.Warn("no playback device available, disabling sink", "error", err.Error())
		return nil
	}

	src := &pcmSource{remaining: i16ToBytesLE(audio.PcmI16), done: make(chan struct{})}
	s.source = src
	s.mu.Unlock()

	select {
	case <-src.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the device and audio context. Safe to call even if a
// device was never opened.
func (s *DeviceSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.audioCtx != nil {
		s.audioCtx.Uninit()
		s.audioCtx = nil
	}
	return nil
}

func (s *DeviceSink) ensureContext() error {
	s.initOnce.Do(func() {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
			s.Logger.Debug("malgo log", "message", strings.TrimSpace(message))
		})
		if err != nil {
			s.initErr = fmt.Errorf("playback: init audio context: %w", err)
			return
		}
		s.audioCtx = ctx
	})
	return s.initErr
}

// ensureDeviceLocked opens (or reopens, on format change) the playback
// device. Callers must hold s.mu.
func (s *DeviceSink) ensureDeviceLocked(format pcmFormat) error {
	if s.device != nil && s.format == format {
		return nil
	}
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.channels)
	deviceConfig.SampleRate = uint32(format.sampleRateHz)
	deviceConfig.Alsa.NoMMap = 1

	if s.DeviceName != "" {
		if id, ok := s.resolveNamedDevice(s.DeviceName); ok {
			deviceConfig.Playback.DeviceID = id
		} else {
			s.logEnumeratedDevicesLocked()
			s.Logger.Warn("configured playback device not found, falling back to default", "device", s.DeviceName)
		}
	}

	device, err := malgo.InitDevice(s.audioCtx.Context, deviceConfig, malgo.DeviceCallbacks{Data: s.onData})
	if err != nil {
		s.logEnumeratedDevicesLocked()
		return fmt.Errorf("playback: init device: %w", err)
	}
	if err := device.Start(); err != nil {
		return fmt.Errorf("playback: start device: %w", err)
	}

	s.device = device
	s.format = format
	return nil
}

func (s *DeviceSink) resolveNamedDevice(name string) (*malgo.DeviceID, bool) {
	infos, err := s.audioCtx.Devices(malgo.Playback)
	if err != nil {
		return nil, false
	}
	for i := range infos {
		if infos[i].Name() == name {
			return &infos[i].ID, true
		}
	}
	return nil, false
}

// logEnumeratedDevicesLocked logs the available playback devices once
// per process, per spec.md §4.5's "log the enumerated available devices
// once" on device-not-found or open failure.
func (s *DeviceSink) logEnumeratedDevicesLocked() {
	if s.enumLogged {
		return
	}
	s.enumLogged = true

	infos, err := s.audioCtx.Devices(malgo.Playback)
	if err != nil {
		s.Logger.Warn("failed to enumerate playback devices", "error", err.Error())
		return
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	s.Logger.Warn("available playback devices", "devices", strings.Join(names, ", "))
}

func (s *DeviceSink) onData(output, _ []byte, _ uint32) {
	s.mu.Lock()
	src := s.source
	s.mu.Unlock()
	if src == nil {
		return
	}

	n := copy(output, src.remaining)
	src.remaining = src.remaining[n:]
	for i := n; i < len(output); i++ {
		output[i] = 0
	}

	if len(src.remaining) == 0 && !src.closed {
		src.closed = true
		close(src.done)
	}
}

func (s *DeviceSink) warnBlankAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastWarnAt) < blankAudioWarnWindow {
		return
	}
	s.lastWarnAt = time.Now()
	s.Logger.Warn("dropping invalid tts audio clip", "reason", "zero sample rate, zero channels, empty pcm, or sample count not divisible by channels")
}

func i16ToBytesLE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		out[i*2] = byte(uint16(v))
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}
