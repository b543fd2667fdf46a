// Package playback renders synthesized TTS audio to an output device.
package playback

import (
	"context"

	"github.com/twitchtranslate/pipeline/internal/tts"
)

// Sink renders one TtsAudio clip, blocking until playback completes (or
// ctx is canceled), so the caller's back-pressure propagates naturally.
type Sink interface {
	Play(ctx context.Context, audio tts.TtsAudio) error
}

// isPlayable reports whether a, clip has the dimensions needed to reach
// an output device. Zero sample rate/channels, an empty PCM buffer, or a
// sample count that doesn't divide evenly across channels are dropped
// rather than sent to the device.
func isPlayable(audio tts.TtsAudio) bool {
	return audio.SampleRateHz > 0 && audio.Channels > 0 && len(audio.PcmI16) > 0 &&
		len(audio.PcmI16)%audio.Channels == 0
}

// DummyPlaybackSink discards every clip without touching a device. Used
// for headless configurations and in tests that don't want a real audio
// backend, grounded on the teacher's dummy-sink idiom
// (playback/dummy.rs).
type DummyPlaybackSink struct{}

func NewDummyPlaybackSink() *DummyPlaybackSink { return &DummyPlaybackSink{} }

func (DummyPlaybackSink) Play(ctx context.Context, audio tts.TtsAudio) error { return nil }
