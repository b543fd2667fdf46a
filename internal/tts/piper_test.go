package tts

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeScript writes an executable shell script and returns its path.
// Piper tests exercise PiperProvider against a fake "piper" binary rather
// than invoking the real model, mirroring how the decoder tests fake
// ffmpeg via binary-path injection.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-piper.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestPiperStripsWavHeader(t *testing.T) {
	// A 44-byte RIFF-prefixed header (content beyond the "RIFF" magic is
	// irrelevant to StripWavHeader) followed by two i16 LE samples (1, 2).
	script := writeScript(t, `printf 'RIFF'; printf '%040d' 0; printf '\001\000\002\000'`)
	p := NewPiperProvider(script, "unused.onnx")

	audio, err := p.Synthesize(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	require.Equal(t, 22050, audio.SampleRateHz)
	require.Equal(t, 1, audio.Channels)
	require.Equal(t, []int16{1, 2}, audio.PcmI16)
}

func TestPiperPassesThroughRawPcmWithoutRiffPrefix(t *testing.T) {
	script := writeScript(t, `printf '\005\000\006\000'`)
	p := NewPiperProvider(script, "unused.onnx")

	audio, err := p.Synthesize(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	require.Equal(t, []int16{5, 6}, audio.PcmI16)
}

func TestPiperRejectsEmptyOutput(t *testing.T) {
	script := writeScript(t, `true`)
	p := NewPiperProvider(script, "unused.onnx")

	_, err := p.Synthesize(context.Background(), Request{Text: "hello"})
	require.Error(t, err)
}

func TestPiperPropagatesNonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "model not found" 1>&2; exit 1`)
	p := NewPiperProvider(script, "unused.onnx")

	_, err := p.Synthesize(context.Background(), Request{Text: "hello"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "model not found")
}
