// Package pipeline wires the six stages — Ingestor, Decoder, ASR,
// Translator, TTS, Playback — into a running dataflow connected by
// bounded channels sized to a latency budget.
package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/twitchtranslate/pipeline/internal/asr"
	"github.com/twitchtranslate/pipeline/internal/config"
	"github.com/twitchtranslate/pipeline/internal/decode"
	"github.com/twitchtranslate/pipeline/internal/ingest"
	"github.com/twitchtranslate/pipeline/internal/logging"
	"github.com/twitchtranslate/pipeline/internal/playback"
	"github.com/twitchtranslate/pipeline/internal/translate"
	"github.com/twitchtranslate/pipeline/internal/tts"
)

// Ingestor produces stream segments onto sink until ctx is canceled or
// the source ends, closing sink is the caller's (Pipeline's)
// responsibility, not the Ingestor's.
type Ingestor interface {
	Start(ctx context.Context, sink chan<- ingest.IngestItem) error
}

// Config carries the knobs that shape a Pipeline run.
type Config struct {
	Latency    config.LatencyBudget
	TargetLang string
}

// Pipeline connects one implementation of each stage through
// single-producer/single-consumer channels.
type Pipeline struct {
	Ingestor   Ingestor
	Decoder    decode.Decoder
	ASR        asr.Provider
	Translator translate.Provider
	TTS        tts.Provider
	Playback   playback.Sink
	Config     Config
	Logger     logging.Logger
}

// New builds a Pipeline from its six stage implementations.
func New(ingestor Ingestor, decoder decode.Decoder, asrProvider asr.Provider, translator translate.Provider, ttsProvider tts.Provider, sink playback.Sink, cfg Config, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Pipeline{
		Ingestor:   ingestor,
		Decoder:    decoder,
		ASR:        asrProvider,
		Translator: translator,
		TTS:        ttsProvider,
		Playback:   sink,
		Config:     cfg,
		Logger:     logger,
	}
}

// Run drives every stage until ctx is canceled or the ingestor's source
// ends and every downstream item has drained. A stage failure that
// closes its output channel propagates the shutdown through to
// playback; per-item failures (decode, ASR, translate, TTS, playback)
// are logged and the item is dropped, matching spec's "degrade
// gracefully" edge-case handling.
func (p *Pipeline) Run(ctx context.Context) error {
	capacity := p.Config.Latency.ChannelCapacity()

	ingestCh := make(chan ingest.IngestItem, capacity)
	pcmCh := make(chan decode.PcmChunk, capacity)
	transcriptCh := make(chan asr.TranscriptSegment, capacity)
	translationCh := make(chan translate.Translation, capacity)
	ttsCh := make(chan tts.TtsAudio, capacity)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(ingestCh)
		if err := p.Ingestor.Start(gctx, ingestCh); err != nil {
			p.Logger.Error("ingestor failed", "error", err.Error())
			return err
		}
		return nil
	})

	g.Go(func() error {
		defer close(pcmCh)
		for item := range ingestCh {
			chunk, err := p.Decoder.DecodeSegment(gctx, item)
			if err != nil {
				p.Logger.Warn("decode failed", "error", err.Error())
				continue
			}
			if !sendOrDone(gctx, pcmCh, chunk) {
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		defer close(transcriptCh)
		for chunk := range pcmCh {
			segment, err := p.ASR.Transcribe(gctx, chunk)
			if err != nil {
				p.Logger.Warn("asr failed", "error", err.Error())
				continue
			}
			if !sendOrDone(gctx, transcriptCh, segment) {
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		defer close(translationCh)
		for segment := range transcriptCh {
			translation, err := p.Translator.Translate(gctx, segment.Text, p.Config.TargetLang)
			if err != nil {
				p.Logger.Warn("translation failed", "error", err.Error())
				continue
			}
			if !sendOrDone(gctx, translationCh, translation) {
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		defer close(ttsCh)
		for translation := range translationCh {
			audio, err := p.TTS.Synthesize(gctx, tts.Request{Text: translation.Text})
			if err != nil {
				p.Logger.Warn("tts failed", "error", err.Error())
				continue
			}
			if !sendOrDone(gctx, ttsCh, audio) {
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for audio := range ttsCh {
			if err := p.Playback.Play(gctx, audio); err != nil {
				p.Logger.Warn("playback failed", "error", err.Error())
			}
		}
		return nil
	})

	return g.Wait()
}

// sendOrDone sends value on ch, returning false without sending if ctx
// is done first.
func sendOrDone[T any](ctx context.Context, ch chan<- T, value T) bool {
	select {
	case ch <- value:
		return true
	case <-ctx.Done():
		return false
	}
}
