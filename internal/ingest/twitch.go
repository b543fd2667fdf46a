package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
)

const (
	twitchGqlURL              = "https://gql.twitch.tv/gql"
	twitchUsherURLTemplate     = "https://usher.ttvnw.net/api/channel/hls/%s.m3u8"
	playbackAccessTokenHash    = "0828119ded94e3c6f6785b25a0f31a6b46c0c8e6d7f32cbb6fba58828a741b2e"
	playbackAccessTokenOpName  = "PlaybackAccessToken_Template"
)

// TwitchOptions configures the Twitch resolution protocol.
type TwitchOptions struct {
	ClientID     string
	OAuthToken   string
	HLSAudioOnly bool
}

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     gqlVariables   `json:"variables"`
	Extensions    gqlExtensions  `json:"extensions"`
}

type gqlVariables struct {
	IsLive     bool   `json:"isLive"`
	Login      string `json:"login"`
	IsVod      bool   `json:"isVod"`
	VodID      string `json:"vodID"`
	PlayerType string `json:"playerType"`
}

type gqlExtensions struct {
	PersistedQuery gqlPersistedQuery `json:"persistedQuery"`
}

type gqlPersistedQuery struct {
	Version    int    `json:"version"`
	Sha256Hash string `json:"sha256Hash"`
}

type gqlResponse struct {
	Data struct {
		StreamPlaybackAccessToken *struct {
			Value     string `json:"value"`
			Signature string `json:"signature"`
		} `json:"streamPlaybackAccessToken"`
	} `json:"data"`
}

// playbackAccessToken resolves the value/signature pair Usher requires.
func playbackAccessToken(ctx context.Context, client *http.Client, channel string, opts TwitchOptions) (value, signature string, err error) {
	body := gqlRequest{
		OperationName: playbackAccessTokenOpName,
		Variables: gqlVariables{
			IsLive:     true,
			Login:      channel,
			IsVod:      false,
			VodID:      "",
			PlayerType: "site",
		},
		Extensions: gqlExtensions{
			PersistedQuery: gqlPersistedQuery{
				Version:    1,
				Sha256Hash: playbackAccessTokenHash,
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", "", fmt.Errorf("ingest: encode gql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, twitchGqlURL, bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("ingest: build gql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-ID", opts.ClientID)
	if auth := normalizedAuthHeader(opts.OAuthToken); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("ingest: gql request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", &HTTPStatusError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed gqlResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", "", fmt.Errorf("ingest: decode gql response: %w", err)
	}

	tok := parsed.Data.StreamPlaybackAccessToken
	if tok == nil || tok.Value == "" || tok.Signature == "" {
		return "", "", ErrTwitchGqlMissingFields
	}
	return tok.Value, tok.Signature, nil
}

// normalizedAuthHeader accepts a raw OAuth token and normalizes it into a
// usable Authorization header value, tolerating callers who already
// prefixed it with "OAuth " or "Bearer ".
func normalizedAuthHeader(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "oauth ") || strings.HasPrefix(lower, "bearer ") {
		return trimmed
	}
	return "OAuth " + trimmed
}

// usherMasterURL builds the Usher master-playlist URL with its required
// query parameters.
func usherMasterURL(channel, value, signature string, audioOnly bool) string {
	q := url.Values{}
	q.Set("p", strconv.Itoa(rand.Intn(999999)))
	q.Set("player", "twitchweb")
	q.Set("allow_source", "true")
	q.Set("allow_audio_only", strconv.FormatBool(audioOnly))
	q.Set("fast_bread", "true")
	q.Set("sig", signature)
	q.Set("token", value)

	base := fmt.Sprintf(twitchUsherURLTemplate, url.PathEscape(channel))
	return base + "?" + q.Encode()
}

// fetchMasterPlaylist fetches and parses an HLS master playlist.
func fetchMasterPlaylist(ctx context.Context, client *http.Client, masterURL string) (*m3u8.MasterPlaylist, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, masterURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("ingest: build master playlist request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("ingest: fetch master playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", &HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("ingest: read master playlist: %w", err)
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), true)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrHlsParse, err)
	}
	if listType != m3u8.MASTER {
		return nil, "", ErrExpectedMasterPlaylist
	}
	master, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok {
		return nil, "", ErrExpectedMasterPlaylist
	}
	return master, baseURL(masterURL), nil
}

// selectVariant implements spec.md §4.1's variant selection policy:
// audio-only alternative whose URI contains "audio" if requested; else any
// audio alternative; else the lowest-bandwidth variant.
func selectVariant(master *m3u8.MasterPlaylist, base string, audioOnly bool) (string, error) {
	if audioOnly {
		for _, v := range master.Variants {
			for _, alt := range v.Alternatives {
				if strings.EqualFold(alt.Type, "AUDIO") && strings.Contains(strings.ToLower(alt.URI), "audio") {
					return resolveURI(base, alt.URI), nil
				}
			}
		}
		for _, v := range master.Variants {
			for _, alt := range v.Alternatives {
				if strings.EqualFold(alt.Type, "AUDIO") {
					return resolveURI(base, alt.URI), nil
				}
			}
		}
	}

	var best *m3u8.Variant
	var bestBandwidth uint32
	for _, v := range master.Variants {
		if v.URI == "" {
			continue
		}
		bw := v.VariantParams.Bandwidth
		if v.VariantParams.AverageBandwidth > 0 {
			bw = v.VariantParams.AverageBandwidth
		}
		if best == nil || bw < bestBandwidth {
			best = v
			bestBandwidth = bw
		}
	}
	if best == nil {
		return "", ErrNoUsableVariant
	}
	return resolveURI(base, best.URI), nil
}

func resolveURI(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

func baseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
