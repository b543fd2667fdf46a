package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/grafov/m3u8"
)

// pollState tracks the Cold → Live transition of spec.md §4.1's polling
// state machine.
type pollState struct {
	live         bool
	nextSequence uint64
}

// fetchMediaPlaylist fetches and parses an HLS media playlist.
func fetchMediaPlaylist(ctx context.Context, client *http.Client, mediaURL string) (*m3u8.MediaPlaylist, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ingest: build media playlist request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingest: fetch media playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ingest: read media playlist: %w", err)
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHlsParse, err)
	}
	if listType != m3u8.MEDIA {
		return nil, ErrExpectedMediaPlaylist
	}
	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, ErrExpectedMediaPlaylist
	}
	return media, nil
}

// pollSleepInterval computes clamp(target_duration/2, min, max).
func pollSleepInterval(targetDuration, minInterval, maxInterval time.Duration) time.Duration {
	d := targetDuration / 2
	if d < minInterval {
		return minInterval
	}
	if d > maxInterval {
		return maxInterval
	}
	return d
}

const defaultInitialBacklogSegments = 1

// advance runs one poll cycle of the Cold/Live state machine against a
// freshly fetched media playlist, returning the segments to emit in order
// and the new state.
func (s pollState) advance(media *m3u8.MediaPlaylist, baseURL string, initialBacklog int) (pollState, []SegmentInfo) {
	seq0 := media.SeqNo
	n := int(media.Count())
	if n == 0 {
		return s, nil
	}

	next := s.nextSequence
	if !s.live {
		backlog := n - initialBacklog
		if backlog < 0 {
			backlog = 0
		}
		next = saturatingAddU64(seq0, uint64(backlog))
	} else if next < seq0 {
		// Sliding-window jump: the tracked position fell out of the
		// playlist's window. Segments between next and seq0 are
		// irrecoverably lost; resume at the new window start.
		next = seq0
	}

	var out []SegmentInfo
	for i := 0; i < n; i++ {
		seg := media.Segments[i]
		if seg == nil {
			continue
		}
		absSeq := saturatingAddU64(seq0, uint64(i))
		if absSeq < next {
			continue
		}
		out = append(out, SegmentInfo{
			Sequence:       absSeq,
			URL:            resolveURI(baseURL, seg.URI),
			ApproxDuration: time.Duration(seg.Duration * float64(time.Second)),
		})
		next = saturatingAddU64(absSeq, 1)
	}

	return pollState{live: true, nextSequence: next}, out
}

// saturatingAddU64 avoids silent wraparound when the upstream window has
// slid far ahead of our tracked position.
func saturatingAddU64(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}
