// Package decode normalizes one ingested segment into one PCM chunk by
// shelling out to a short-lived ffmpeg process per segment.
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"time"

	"github.com/twitchtranslate/pipeline/internal/ingest"
	"github.com/twitchtranslate/pipeline/internal/logging"
)

// PcmSampleType distinguishes the two sample encodings the pipeline knows
// about; only F32 is produced by FfmpegDecoder today.
type PcmSampleType int

const (
	SampleI16 PcmSampleType = iota
	SampleF32
)

// PcmFormat describes one chunk's sample layout.
type PcmFormat struct {
	SampleRateHz int
	Channels     int
	SampleType   PcmSampleType
}

// WhisperF32Mono16kHz is the normalized target format every downstream
// stage may assume.
func WhisperF32Mono16kHz() PcmFormat {
	return PcmFormat{SampleRateHz: 16000, Channels: 1, SampleType: SampleF32}
}

// PcmChunk is a normalized audio slice ready for ASR.
type PcmChunk struct {
	Sequence         uint64
	StartedAt        time.Time
	FetchedAt        time.Time
	Format           PcmFormat
	Samples          []float32
	DurationEstimate time.Duration
}

var (
	ErrFfmpegUnavailable = errors.New("decode: ffmpeg binary unavailable")
	ErrFfmpegFailed      = errors.New("decode: ffmpeg process failed")
	ErrInvalidPcm        = errors.New("decode: invalid pcm output")
)

// Decoder turns one ingested segment into one normalized PCM chunk.
type Decoder interface {
	DecodeSegment(ctx context.Context, item ingest.IngestItem) (PcmChunk, error)
}

// FfmpegDecoder spawns ffmpeg once per segment, writing the segment bytes to
// its stdin and reading little-endian f32 mono 16kHz samples from stdout.
type FfmpegDecoder struct {
	BinaryPath   string
	OutputFormat PcmFormat
	Logger       logging.Logger
}

// NewFfmpegDecoder builds a decoder targeting the whisper-compatible
// normalized format.
func NewFfmpegDecoder(binaryPath string, logger logging.Logger) *FfmpegDecoder {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &FfmpegDecoder{
		BinaryPath:   binaryPath,
		OutputFormat: WhisperF32Mono16kHz(),
		Logger:       logger,
	}
}

func (d *FfmpegDecoder) DecodeSegment(ctx context.Context, item ingest.IngestItem) (PcmChunk, error) {
	if d.OutputFormat.Channels != 1 || d.OutputFormat.SampleRateHz != 16000 || d.OutputFormat.SampleType != SampleF32 {
		return PcmChunk{}, fmt.Errorf("%w: only f32 mono 16kHz supported", ErrInvalidPcm)
	}

	samples, err := d.decodeWithFfmpeg(ctx, item.Data)
	if err != nil {
		return PcmChunk{}, err
	}

	duration := durationFromSamples(d.OutputFormat.SampleRateHz, len(samples))
	return PcmChunk{
		Sequence:         item.Sequence,
		StartedAt:        item.FetchedAt,
		FetchedAt:        item.FetchedAt,
		Format:           d.OutputFormat,
		Samples:          samples,
		DurationEstimate: duration,
	}, nil
}

func (d *FfmpegDecoder) decodeWithFfmpeg(ctx context.Context, segment []byte) ([]float32, error) {
	binary := d.BinaryPath
	if binary == "" {
		binary = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, binary,
		"-hide_banner", "-nostdin", "-loglevel", "warning",
		"-probesize", "10M", "-analyzeduration", "10M",
		"-f", "mpegts", "-i", "pipe:0",
		"-map", "0:a?", "-vn", "-sn", "-dn",
		"-ac", "1", "-ar", "16000",
		"-f", "f32le", "-acodec", "pcm_f32le", "pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrFfmpegFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrFfmpegFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrFfmpegFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFfmpegUnavailable, err)
	}

	type writeResult struct{ err error }
	stdinDone := make(chan writeResult, 1)
	stdoutDone := make(chan struct {
		data []byte
		err  error
	}, 1)
	stderrDone := make(chan []byte, 1)

	go func() {
		_, werr := stdin.Write(segment)
		stdin.Close()
		stdinDone <- writeResult{err: werr}
	}()
	go func() {
		data, rerr := io.ReadAll(stdout)
		stdoutDone <- struct {
			data []byte
			err  error
		}{data, rerr}
	}()
	go func() {
		data, _ := io.ReadAll(stderr)
		stderrDone <- data
	}()

	wr := <-stdinDone
	out := <-stdoutDone
	stderrBytes := <-stderrDone

	waitErr := cmd.Wait()

	if wr.err != nil {
		return nil, fmt.Errorf("%w: stdin write: %v", ErrFfmpegFailed, wr.err)
	}
	if out.err != nil {
		return nil, fmt.Errorf("%w: stdout read: %v", ErrFfmpegFailed, out.err)
	}

	if trimmed := bytes.TrimSpace(stderrBytes); len(trimmed) > 0 {
		d.Logger.Warn("ffmpeg stderr", "stderr", string(trimmed))
	}

	if waitErr != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrFfmpegFailed, waitErr, bytes.TrimSpace(stderrBytes))
	}

	if len(out.data) == 0 {
		d.Logger.Warn("ffmpeg produced empty output", "segment_bytes", len(segment))
	}

	return ParseF32LEMono(out.data)
}

// ParseF32LEMono decodes little-endian f32 samples, rejecting byte counts
// that aren't a multiple of 4.
func ParseF32LEMono(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: f32le byte length must be multiple of 4, got %d", ErrInvalidPcm, len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = bytesToF32LE(raw[i*4 : i*4+4])
	}
	return out, nil
}

func bytesToF32LE(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

// I16ToF32PCM converts signed 16-bit PCM samples to the normalized f32
// range used by ASR.
func I16ToF32PCM(samples []int16) []float32 {
	if len(samples) == 0 {
		return nil
	}
	const scale = 1.0 / 32768.0
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) * scale
	}
	return out
}

// DurationFromSampleCount computes playout duration for interleaved
// multi-channel sample counts.
func DurationFromSampleCount(sampleRateHz, channels, sampleCount int) time.Duration {
	if sampleRateHz == 0 || channels == 0 {
		return 0
	}
	frames := sampleCount / channels
	return durationFromSamples(sampleRateHz, frames)
}

func durationFromSamples(sampleRateHz, samples int) time.Duration {
	if sampleRateHz == 0 {
		return 0
	}
	micros := (int64(samples) * 1_000_000) / int64(sampleRateHz)
	return time.Duration(micros) * time.Microsecond
}
