package tts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twitchtranslate/pipeline/internal/logging"
)

// RetryPrimaryInterval is the cooldown before a fallback composite will
// retry its primary provider after a quota exhaustion.
const RetryPrimaryInterval = 5 * time.Minute

// FallbackProvider wraps a cloud primary and a local secondary provider
// behind a quota-exhaustion latch, per the state table:
//
//	quota_exhausted=false                -> use primary; on QuotaExhausted,
//	                                         set latch+timestamp, use secondary
//	quota_exhausted=true, < cooldown      -> use secondary directly
//	quota_exhausted=true, >= cooldown     -> retry primary; success clears
//	                                         the latch, QuotaExhausted refreshes
//	                                         the timestamp, any other error
//	                                         falls back without clearing the latch
type FallbackProvider struct {
	primary Provider
	local   Provider
	logger  logging.Logger

	quotaExhausted atomic.Bool
	mu             sync.Mutex
	exhaustedAt    *time.Time
}

// NewFallbackProvider builds a cloud-primary/local-secondary composite.
func NewFallbackProvider(primary, local Provider, logger logging.Logger) *FallbackProvider {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &FallbackProvider{primary: primary, local: local, logger: logger}
}

func (f *FallbackProvider) Name() string { return "fallback(" + f.primary.Name() + "," + f.local.Name() + ")" }

// IsUsingFallback reports whether the quota-exhaustion latch is currently
// set.
func (f *FallbackProvider) IsUsingFallback() bool {
	return f.quotaExhausted.Load()
}

// ResetQuotaFlag clears the latch unconditionally.
func (f *FallbackProvider) ResetQuotaFlag() {
	f.quotaExhausted.Store(false)
	f.mu.Lock()
	f.exhaustedAt = nil
	f.mu.Unlock()
}

func (f *FallbackProvider) Synthesize(ctx context.Context, req Request) (TtsAudio, error) {
	if f.quotaExhausted.Load() {
		if f.shouldRetryPrimary() {
			f.logger.Warn("retrying primary TTS provider after cooldown", "provider", f.primary.Name())
			audio, err := f.primary.Synthesize(ctx, req)
			switch {
			case err == nil:
				f.quotaExhausted.Store(false)
				f.setExhaustedAt(nil)
				f.logger.Info("primary TTS provider recovered", "provider", f.primary.Name())
				return audio, nil
			case errors.Is(err, ErrQuotaExhausted):
				now := time.Now()
				f.setExhaustedAt(&now)
				return f.local.Synthesize(ctx, req)
			default:
				f.logger.Warn("primary TTS provider errored (not quota), using local for this request", "error", err.Error())
				return f.local.Synthesize(ctx, req)
			}
		}
		return f.local.Synthesize(ctx, req)
	}

	audio, err := f.primary.Synthesize(ctx, req)
	switch {
	case err == nil:
		return audio, nil
	case errors.Is(err, ErrQuotaExhausted):
		f.logger.Warn("primary TTS provider quota exhausted, switching to local", "provider", f.primary.Name())
		f.quotaExhausted.Store(true)
		now := time.Now()
		f.setExhaustedAt(&now)
		return f.local.Synthesize(ctx, req)
	default:
		f.logger.Warn("primary TTS provider errored (not quota), using local for this request", "error", err.Error())
		return f.local.Synthesize(ctx, req)
	}
}

func (f *FallbackProvider) shouldRetryPrimary() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exhaustedAt == nil {
		return false
	}
	return time.Since(*f.exhaustedAt) >= RetryPrimaryInterval
}

func (f *FallbackProvider) setExhaustedAt(t *time.Time) {
	f.mu.Lock()
	f.exhaustedAt = t
	f.mu.Unlock()
}

// forceFallback is a test-only seam mirroring the original's
// `#[cfg(test)] force_fallback`, letting tests set the latch directly
// without going through a real quota-exhaustion call.
func (f *FallbackProvider) forceFallback(at time.Time) {
	f.quotaExhausted.Store(true)
	f.setExhaustedAt(&at)
}
