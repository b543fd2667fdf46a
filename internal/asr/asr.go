// Package asr converts a normalized PCM chunk into recognized text.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/twitchtranslate/pipeline/internal/audio"
	"github.com/twitchtranslate/pipeline/internal/config"
	"github.com/twitchtranslate/pipeline/internal/decode"
)

// TranscriptSegment is recognized text plus the audio span it covers.
type TranscriptSegment struct {
	Text          string
	AudioDuration time.Duration
	Confidence    *float32
}

var (
	ErrEmptyAudio     = errors.New("asr: empty audio")
	ErrFormatMismatch = errors.New("asr: pcm chunk is not the normalized f32 mono 16khz format")
)

// Provider transcribes one PCM chunk. Implementations must reject empty
// audio and format mismatches; confidence is optional.
type Provider interface {
	Transcribe(ctx context.Context, chunk decode.PcmChunk) (TranscriptSegment, error)
	Name() string
}

// RemoteProvider is an HTTP, Whisper-compatible transcription backend,
// grounded on the teacher's multipart-WAV-upload idiom
// (pkg/providers/stt/{openai,groq}.go).
type RemoteProvider struct {
	Endpoint string
	APIKey   config.ApiKey
	Client   *http.Client
	name     string
}

// NewRemoteProvider builds a remote ASR client.
func NewRemoteProvider(name, endpoint string, apiKey config.ApiKey, client *http.Client) *RemoteProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteProvider{Endpoint: endpoint, APIKey: apiKey, Client: client, name: name}
}

func (p *RemoteProvider) Name() string { return p.name }

func (p *RemoteProvider) Transcribe(ctx context.Context, chunk decode.PcmChunk) (TranscriptSegment, error) {
	if len(chunk.Samples) == 0 {
		return TranscriptSegment{}, ErrEmptyAudio
	}
	if chunk.Format.SampleRateHz != 16000 || chunk.Format.Channels != 1 {
		return TranscriptSegment{}, ErrFormatMismatch
	}

	pcm16 := f32ToI16(chunk.Samples)
	wav := audio.NewWavBuffer(i16ToBytesLE(pcm16), chunk.Format.SampleRateHz)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "segment.wav")
	if err != nil {
		return TranscriptSegment{}, fmt.Errorf("asr: build multipart body: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return TranscriptSegment{}, fmt.Errorf("asr: write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return TranscriptSegment{}, fmt.Errorf("asr: close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, body)
	if err != nil {
		return TranscriptSegment{}, fmt.Errorf("asr: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if !p.APIKey.IsZero() {
		req.Header.Set("Authorization", "Bearer "+p.APIKey.Expose())
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return TranscriptSegment{}, fmt.Errorf("asr: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return TranscriptSegment{}, fmt.Errorf("asr: backend returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return TranscriptSegment{}, fmt.Errorf("asr: decode response: %w", err)
	}

	return TranscriptSegment{
		Text:          parsed.Text,
		AudioDuration: chunk.DurationEstimate,
	}, nil
}

func f32ToI16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

func i16ToBytesLE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(uint16(s))
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}
