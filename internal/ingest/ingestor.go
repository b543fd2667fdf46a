package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/twitchtranslate/pipeline/internal/logging"
)

const (
	minPollInterval = 1 * time.Second
	maxPollInterval = 15 * time.Second
	defaultJitterBufferCapacity = 8
)

// Options configures a TwitchIngestor.
type Options struct {
	// Channel is set when the input names a live channel login.
	Channel string
	// URL is set when the input is a URL. A twitch.tv channel URL is
	// resolved like Channel; any other URL is used directly as the media
	// playlist (skips GQL/Usher).
	URL string

	Twitch TwitchOptions

	// InitialBacklogSegments controls how far behind live-edge the Cold
	// state starts: the first poll emits this many of the newest segments.
	// Values <= 0 select the default of 1 (only the live-edge segment).
	InitialBacklogSegments int

	// JitterBufferCapacity overrides the default jitter buffer size
	// (target_ms / segment_duration in the spec's terms).
	JitterBufferCapacity int
}

// TwitchIngestor implements the Ingestor contract: Start(ctx, sink) runs
// until ctx is cancelled, Stop is called, or a fatal resolution error occurs.
type TwitchIngestor struct {
	opts   Options
	client *http.Client
	logger logging.Logger

	shutdown chan struct{}
	once     sync.Once
}

// NewTwitchIngestor builds an ingestor over the given HTTP client (nil uses
// http.DefaultClient).
func NewTwitchIngestor(opts Options, client *http.Client, logger logging.Logger) *TwitchIngestor {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	if opts.JitterBufferCapacity <= 0 {
		opts.JitterBufferCapacity = defaultJitterBufferCapacity
	}
	return &TwitchIngestor{
		opts:     opts,
		client:   client,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

// Stop signals the poller and fetcher to converge on exit.
func (t *TwitchIngestor) Stop() {
	t.once.Do(func() { close(t.shutdown) })
}

// Start resolves the live media playlist and runs until ctx is cancelled or
// Stop is called; a send to sink blocks until the receiver takes the item
// or one of those two happens. Resolution failures (GQL, Usher, variant
// selection) are fatal and returned; playlist and segment fetch failures
// after that point are logged and retried.
func (t *TwitchIngestor) Start(ctx context.Context, sink chan<- IngestItem) error {
	mediaURL, err := t.resolveMediaPlaylistURL(ctx)
	if err != nil {
		return err
	}

	jb := NewJitterBuffer(t.opts.JitterBufferCapacity)
	defer jb.Close()

	fetchErrCh := make(chan error, 1)
	go t.runFetcher(ctx, jb, sink, fetchErrCh)

	pollErr := t.runPoller(ctx, mediaURL, jb)

	jb.Close()
	fetchErr := <-fetchErrCh

	if pollErr != nil {
		return pollErr
	}
	return fetchErr
}

func (t *TwitchIngestor) resolveMediaPlaylistURL(ctx context.Context) (string, error) {
	input := t.opts.Channel
	if t.opts.URL != "" {
		if _, isChannel := ClassifyInput(t.opts.URL); !isChannel || !strings.Contains(t.opts.URL, "://") {
			return t.opts.URL, nil
		}
		input = t.opts.URL
	}

	channel, isChannel := ClassifyInput(input)
	if !isChannel {
		return "", fmt.Errorf("%w: input does not name a live channel", ErrInvalidURL)
	}

	value, signature, err := playbackAccessToken(ctx, t.client, channel, t.opts.Twitch)
	if err != nil {
		return "", err
	}

	masterURL := usherMasterURL(channel, value, signature, t.opts.Twitch.HLSAudioOnly)
	master, base, err := fetchMasterPlaylist(ctx, t.client, masterURL)
	if err != nil {
		return "", err
	}

	return selectVariant(master, base, t.opts.Twitch.HLSAudioOnly)
}

// runPoller drives the Cold/Live state machine, pushing newly observed
// segment descriptors into the jitter buffer. Playlist fetch errors are
// logged and retried on the next scheduled poll; they are never fatal.
func (t *TwitchIngestor) runPoller(ctx context.Context, mediaURL string, jb *JitterBuffer) error {
	state := pollState{}
	sleep := minPollInterval

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.shutdown:
			return nil
		case <-time.After(sleep):
		}

		media, err := fetchMediaPlaylist(ctx, t.client, mediaURL)
		if err != nil {
			t.logger.Warn("media playlist fetch failed, will retry", "error", err.Error())
			continue
		}

		targetDuration := time.Duration(media.TargetDuration * float64(time.Second))
		sleep = pollSleepInterval(targetDuration, minPollInterval, maxPollInterval)

		var segments []SegmentInfo
		state, segments = state.advance(media, baseURL(mediaURL), t.effectiveInitialBacklog())

		for _, seg := range segments {
			if dropped := jb.Push(seg); dropped != nil {
				t.logger.Warn("jitter buffer full, dropped oldest segment", "dropped_sequence", dropped.Sequence)
			}
		}
	}
}

func (t *TwitchIngestor) effectiveInitialBacklog() int {
	if t.opts.InitialBacklogSegments > 0 {
		return t.opts.InitialBacklogSegments
	}
	return defaultInitialBacklogSegments
}

// runFetcher drains the jitter buffer and performs the HTTP fetch for each
// segment, emitting successfully fetched items to sink. Segment fetch
// errors are logged and the fetcher continues with the next item. It sends
// nil on done once the buffer is closed, ctx is cancelled or Stop is
// called; it reports no error of its own.
func (t *TwitchIngestor) runFetcher(ctx context.Context, jb *JitterBuffer, sink chan<- IngestItem, done chan<- error) {
	for {
		seg, ok := jb.Pop()
		if !ok {
			done <- nil
			return
		}

		select {
		case <-ctx.Done():
			done <- nil
			return
		case <-t.shutdown:
			done <- nil
			return
		default:
		}

		data, err := fetchSegment(ctx, t.client, seg.URL)
		if err != nil {
			t.logger.Warn("segment fetch failed, continuing", "sequence", seg.Sequence, "error", err.Error())
			continue
		}

		item := IngestItem{
			Sequence:       seg.Sequence,
			FetchedAt:      time.Now(),
			SourceURL:      seg.URL,
			ApproxDuration: seg.ApproxDuration,
			Data:           data,
		}

		select {
		case sink <- item:
		case <-ctx.Done():
			done <- nil
			return
		case <-t.shutdown:
			done <- nil
			return
		}
	}
}
