package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/twitchtranslate/pipeline/internal/audio"
)

const (
	piperSampleRateHz = 22050
	piperChannels     = 1
)

// PiperProvider is the local secondary TTS backend: a subprocess fed text
// on stdin, producing raw or WAV-prefixed signed-16-bit LE mono PCM on
// stdout.
type PiperProvider struct {
	Binary string
	Model  string
}

// NewPiperProvider builds a local Piper client.
func NewPiperProvider(binary, model string) *PiperProvider {
	return &PiperProvider{Binary: binary, Model: model}
}

func (p *PiperProvider) Name() string { return "piper" }

func (p *PiperProvider) Synthesize(ctx context.Context, req Request) (TtsAudio, error) {
	cmd := exec.CommandContext(ctx, p.Binary, "--model", p.Model, "--output_raw")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return TtsAudio{}, fmt.Errorf("tts: piper: open stdin: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return TtsAudio{}, fmt.Errorf("tts: piper: failed to spawn at %s: %w", p.Binary, err)
	}

	if _, err := stdin.Write([]byte(req.Text)); err != nil {
		stdin.Close()
		return TtsAudio{}, fmt.Errorf("tts: piper: stdin write failed: %w", err)
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return TtsAudio{}, fmt.Errorf("tts: piper exited with error: %w: %s", err, stderr.String())
	}

	raw := audio.StripWavHeader(stdout.Bytes())
	if len(raw) == 0 {
		return TtsAudio{}, fmt.Errorf("tts: piper produced no audio output")
	}

	pcm := audio.I16LEToPCM(raw)
	if len(pcm) == 0 {
		return TtsAudio{}, fmt.Errorf("tts: piper produced empty pcm data")
	}

	return TtsAudio{
		SampleRateHz: piperSampleRateHz,
		Channels:     piperChannels,
		PcmI16:       pcm,
	}, nil
}
