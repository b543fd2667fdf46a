package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hajimehoshi/go-mp3"

	"github.com/twitchtranslate/pipeline/internal/config"
)

const defaultElevenLabsVoiceID = "21m00Tcm4TlvDq8ikWAM"

// ElevenLabsProvider is the cloud primary TTS backend, grounded on the
// teacher's HTTP-provider idiom (pkg/providers/stt/{openai,groq}.go):
// build request, set headers, do, check status, decode body.
type ElevenLabsProvider struct {
	APIKey config.ApiKey
	Client *http.Client

	// BaseURL overrides the production endpoint when set, for tests.
	BaseURL string
}

// NewElevenLabsProvider builds an ElevenLabs client.
func NewElevenLabsProvider(apiKey config.ApiKey, client *http.Client) *ElevenLabsProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &ElevenLabsProvider{APIKey: apiKey, Client: client, BaseURL: "https://api.elevenlabs.io/v1"}
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

type elevenLabsRequest struct {
	Text          string             `json:"text"`
	VoiceSettings *elevenLabsVoiceSet `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSet struct {
	Stability        float32 `json:"stability"`
	SimilarityBoost  float32 `json:"similarity_boost"`
	Style            float32 `json:"style"`
	UseSpeakerBoost  bool    `json:"use_speaker_boost"`
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req Request) (TtsAudio, error) {
	voiceID := req.Voice
	if voiceID == "" {
		voiceID = defaultElevenLabsVoiceID
	}
	url := fmt.Sprintf("%s/text-to-speech/%s/stream", p.BaseURL, voiceID)

	voiceSettings := &elevenLabsVoiceSet{Stability: 0.5, SimilarityBoost: 0.75, Style: 0.0, UseSpeakerBoost: true}
	if req.ProsodyHint != nil {
		energy := clamp01(req.ProsodyHint.EnergyRMS)
		voiceSettings.Stability = 1.0 - energy
		voiceSettings.Style = energy
	}

	payload, err := json.Marshal(elevenLabsRequest{Text: req.Text, VoiceSettings: voiceSettings})
	if err != nil {
		return TtsAudio{}, fmt.Errorf("tts: elevenlabs: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return TtsAudio{}, fmt.Errorf("tts: elevenlabs: build request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.APIKey.Expose())
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return TtsAudio{}, fmt.Errorf("tts: elevenlabs: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TtsAudio{}, fmt.Errorf("tts: elevenlabs: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || strings.Contains(strings.ToLower(string(body)), "quota") {
		return TtsAudio{}, ErrQuotaExhausted
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TtsAudio{}, fmt.Errorf("tts: elevenlabs returned %d: %s", resp.StatusCode, string(body))
	}

	return decodeMpegToTtsAudio(body)
}

// decodeMpegToTtsAudio decodes the compressed MPEG audio ElevenLabs
// returns into interleaved signed-16-bit PCM via go-mp3.
func decodeMpegToTtsAudio(mpeg []byte) (TtsAudio, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(mpeg))
	if err != nil {
		return TtsAudio{}, fmt.Errorf("tts: elevenlabs: decode mpeg: %w", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return TtsAudio{}, fmt.Errorf("tts: elevenlabs: read decoded pcm: %w", err)
	}
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}

	return TtsAudio{
		SampleRateHz: decoder.SampleRate(),
		Channels:     2,
		PcmI16:       samples,
	}, nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
