// Package config holds the immutable, startup-resolved settings shared by
// every pipeline stage: the latency budget, redacted API credentials, and
// Twitch-specific defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultTargetLang          = "pt-BR"
	DefaultLatencyMS           = 1500
	DefaultTwitchWebClientID   = "kimne78kx3ncx6brgo4mv6wki5h1ko"
	EnvDeepLAPIKey             = "DEEPL_API_KEY"
	EnvElevenLabsAPIKey        = "ELEVENLABS_API_KEY"
	EnvTwitchClientID          = "TWITCH_CLIENT_ID"
	EnvTwitchOAuthToken        = "TWITCH_OAUTH_TOKEN"
)

var (
	ErrEmptyTargetLang = errors.New("config: target language must not be empty")
	ErrEmptyAPIKey     = errors.New("config: api key must not be empty")
	ErrZeroLatency     = errors.New("config: latency must be > 0 ms")
)

// ApiKey wraps a credential so that it can never be accidentally logged or
// serialized in the clear. Every formatting path is overridden.
type ApiKey struct {
	value string
}

// NewApiKey validates and wraps a raw credential string.
func NewApiKey(value string) (ApiKey, error) {
	if strings.TrimSpace(value) == "" {
		return ApiKey{}, ErrEmptyAPIKey
	}
	return ApiKey{value: value}, nil
}

// Expose returns the underlying secret. Callers must not log or print the
// result; it exists only so HTTP clients can attach it to a request.
func (k ApiKey) Expose() string { return k.value }

// IsZero reports whether the key was never set.
func (k ApiKey) IsZero() bool { return k.value == "" }

func (k ApiKey) String() string             { return "ApiKey(**redacted**)" }
func (k ApiKey) GoString() string           { return "ApiKey(**redacted**)" }
func (k ApiKey) Format(f fmt.State, _ rune) { fmt.Fprint(f, k.String()) }

// LatencyBudget is the single tunable that sizes every inter-stage channel.
type LatencyBudget struct {
	TargetMS int
}

// NewLatencyBudget validates a positive latency target in milliseconds.
func NewLatencyBudget(targetMS int) (LatencyBudget, error) {
	if targetMS <= 0 {
		return LatencyBudget{}, ErrZeroLatency
	}
	return LatencyBudget{TargetMS: targetMS}, nil
}

// ChannelCapacity implements clamp(target_ms/250, 2, 32), the formula every
// inter-stage channel's buffer size is derived from.
func (b LatencyBudget) ChannelCapacity() int {
	cap := b.TargetMS / 250
	if cap < 2 {
		return 2
	}
	if cap > 32 {
		return 32
	}
	return cap
}

// FramesForSampleRate mirrors the original's saturating frame-count helper:
// Go has no native saturating integer ops, so overflow is checked by hand.
func (b LatencyBudget) FramesForSampleRate(sampleRateHz int) uint64 {
	target := uint64(b.TargetMS)
	sr := uint64(sampleRateHz)
	product, overflowed := saturatingMulU64(target, sr)
	if overflowed {
		product = ^uint64(0)
	}
	return product / 1000
}

func saturatingMulU64(a, b uint64) (result uint64, overflowed bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	result = a * b
	if result/a != b {
		return 0, true
	}
	return result, false
}

// TwitchConfig holds the defaults and overrides for talking to Twitch's
// GraphQL and Usher endpoints.
type TwitchConfig struct {
	ClientID     string
	OAuthToken   string
	HLSAudioOnly bool
}

// DefaultTwitchConfig returns the spec's documented defaults.
func DefaultTwitchConfig() TwitchConfig {
	return TwitchConfig{
		ClientID:     DefaultTwitchWebClientID,
		HLSAudioOnly: true,
	}
}

// NewTargetLang validates a non-empty target language code.
func NewTargetLang(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", ErrEmptyTargetLang
	}
	return value, nil
}
