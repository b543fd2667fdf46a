package tts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type quotaProvider struct{}

func (quotaProvider) Name() string { return "quota" }
func (quotaProvider) Synthesize(ctx context.Context, req Request) (TtsAudio, error) {
	return TtsAudio{}, ErrQuotaExhausted
}

type stubLocalProvider struct{}

func (stubLocalProvider) Name() string { return "stub-local" }
func (stubLocalProvider) Synthesize(ctx context.Context, req Request) (TtsAudio, error) {
	return TtsAudio{SampleRateHz: 22050, Channels: 1, PcmI16: []int16{1, 2, 3}}, nil
}

type okProvider struct{}

func (okProvider) Name() string { return "ok" }
func (okProvider) Synthesize(ctx context.Context, req Request) (TtsAudio, error) {
	return TtsAudio{SampleRateHz: 44100, Channels: 1, PcmI16: []int16{10, 20, 30}}, nil
}

type transientErrorProvider struct{}

func (transientErrorProvider) Name() string { return "transient-error" }
func (transientErrorProvider) Synthesize(ctx context.Context, req Request) (TtsAudio, error) {
	return TtsAudio{}, errors.New("network timeout")
}

func makeRequest() Request {
	return Request{Text: "hello"}
}

func TestFallbackFallsBackOnQuotaExhausted(t *testing.T) {
	client := NewFallbackProvider(quotaProvider{}, stubLocalProvider{}, nil)
	require.False(t, client.IsUsingFallback())

	result, err := client.Synthesize(context.Background(), makeRequest())
	require.NoError(t, err)
	require.Equal(t, 22050, result.SampleRateHz)
	require.True(t, client.IsUsingFallback())

	result2, err := client.Synthesize(context.Background(), makeRequest())
	require.NoError(t, err)
	require.Equal(t, 22050, result2.SampleRateHz)
}

func TestFallbackUsesPrimaryWhenOk(t *testing.T) {
	client := NewFallbackProvider(okProvider{}, stubLocalProvider{}, nil)
	result, err := client.Synthesize(context.Background(), makeRequest())
	require.NoError(t, err)
	require.Equal(t, 44100, result.SampleRateHz)
	require.False(t, client.IsUsingFallback())
}

func TestFallbackResetAllowsPrimaryAgain(t *testing.T) {
	client := NewFallbackProvider(okProvider{}, stubLocalProvider{}, nil)
	client.forceFallback(time.Now())
	require.True(t, client.IsUsingFallback())

	result, err := client.Synthesize(context.Background(), makeRequest())
	require.NoError(t, err)
	require.Equal(t, 22050, result.SampleRateHz)

	client.ResetQuotaFlag()
	result2, err := client.Synthesize(context.Background(), makeRequest())
	require.NoError(t, err)
	require.Equal(t, 44100, result2.SampleRateHz)
}

func TestFallbackFallsBackOnNonQuotaErrorWithoutSettingFlag(t *testing.T) {
	client := NewFallbackProvider(transientErrorProvider{}, stubLocalProvider{}, nil)
	result, err := client.Synthesize(context.Background(), makeRequest())
	require.NoError(t, err)
	require.Equal(t, 22050, result.SampleRateHz)
	require.False(t, client.IsUsingFallback())
}

func TestFallbackRetryPrimaryAfterIntervalElapsed(t *testing.T) {
	client := NewFallbackProvider(okProvider{}, stubLocalProvider{}, nil)
	client.forceFallback(time.Now().Add(-RetryPrimaryInterval - time.Second))

	result, err := client.Synthesize(context.Background(), makeRequest())
	require.NoError(t, err)
	require.Equal(t, 44100, result.SampleRateHz)
	require.False(t, client.IsUsingFallback())
}

func TestFallbackNoRetryBeforeIntervalElapsed(t *testing.T) {
	client := NewFallbackProvider(okProvider{}, stubLocalProvider{}, nil)
	client.forceFallback(time.Now())

	result, err := client.Synthesize(context.Background(), makeRequest())
	require.NoError(t, err)
	require.Equal(t, 22050, result.SampleRateHz)
	require.True(t, client.IsUsingFallback())
}

func TestFallbackRetryResetsTimerOnRepeatedQuotaExhaustion(t *testing.T) {
	client := NewFallbackProvider(quotaProvider{}, stubLocalProvider{}, nil)
	client.forceFallback(time.Now().Add(-RetryPrimaryInterval - time.Second))

	result, err := client.Synthesize(context.Background(), makeRequest())
	require.NoError(t, err)
	require.Equal(t, 22050, result.SampleRateHz)
	require.True(t, client.IsUsingFallback())

	client.mu.Lock()
	exhaustedAt := client.exhaustedAt
	client.mu.Unlock()
	require.NotNil(t, exhaustedAt)
	require.Less(t, time.Since(*exhaustedAt), 2*time.Second)
}
