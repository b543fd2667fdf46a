// Package translate converts transcript text into the configured target
// language.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/twitchtranslate/pipeline/internal/config"
	"github.com/twitchtranslate/pipeline/internal/retry"
)

// Translation is translated text plus the detected source language, if any.
type Translation struct {
	Text               string
	DetectedSourceLang string
}

// Provider translates text into targetLang, optionally inferring the
// source language.
type Provider interface {
	Translate(ctx context.Context, text, targetLang string) (Translation, error)
	Name() string
}

// NormalizeTargetLang applies spec.md §4.3's region-tag casing rule:
// pt-br, pt-pt, en-gb, en-us are matched case-insensitively and returned
// in that lower-case form (not upper-cased); every other code is
// upper-cased.
func NormalizeTargetLang(code string) string {
	switch strings.ToLower(code) {
	case "pt-br":
		return "pt-br"
	case "pt-pt":
		return "pt-pt"
	case "en-gb":
		return "en-gb"
	case "en-us":
		return "en-us"
	default:
		return strings.ToUpper(code)
	}
}

// PassthroughProvider returns the input text unchanged. Used when no
// DeepL API key is configured, mirroring the original pipeline's inline
// "if no deepl key, pass through the text" branch.
type PassthroughProvider struct{}

func (PassthroughProvider) Name() string { return "passthrough" }

func (PassthroughProvider) Translate(ctx context.Context, text, targetLang string) (Translation, error) {
	return Translation{Text: text}, nil
}

const (
	deeplFreeURL = "https://api-free.deepl.com/v2/translate"
	deeplProURL  = "https://api.deepl.com/v2/translate"
)

// DeepLProvider talks to DeepL's Free or Pro translation endpoint,
// selected by whether the API key ends in ":fx".
type DeepLProvider struct {
	APIKey      config.ApiKey
	Client      *http.Client
	RetryConfig retry.Config

	// BaseURL overrides the free/pro endpoint selection when set. Tests
	// point this at an httptest server; production leaves it empty.
	BaseURL string
}

// NewDeepLProvider builds a DeepL client.
func NewDeepLProvider(apiKey config.ApiKey, client *http.Client) *DeepLProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &DeepLProvider{APIKey: apiKey, Client: client, RetryConfig: retry.DefaultConfig()}
}

func (p *DeepLProvider) Name() string { return "deepl" }

type deeplRequest struct {
	Text       []string `json:"text"`
	TargetLang string   `json:"target_lang"`
	SourceLang *string  `json:"source_lang"`
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

func (p *DeepLProvider) Translate(ctx context.Context, text, targetLang string) (Translation, error) {
	url := deeplProURL
	if strings.HasSuffix(p.APIKey.Expose(), ":fx") {
		url = deeplFreeURL
	}
	if p.BaseURL != "" {
		url = p.BaseURL
	}

	reqBody := deeplRequest{
		Text:       []string{text},
		TargetLang: NormalizeTargetLang(targetLang),
		SourceLang: nil,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Translation{}, fmt.Errorf("translate: encode request: %w", err)
	}

	op := func() (Translation, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return Translation{}, fmt.Errorf("translate: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "DeepL-Auth-Key "+p.APIKey.Expose())

		resp, err := p.Client.Do(req)
		if err != nil {
			return Translation{}, fmt.Errorf("translate: request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return Translation{}, &statusError{status: resp.StatusCode, body: string(respBody)}
		}

		var parsed deeplResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return Translation{}, fmt.Errorf("translate: decode response: %w", err)
		}
		if len(parsed.Translations) == 0 {
			return Translation{}, fmt.Errorf("translate: empty translations array")
		}

		return Translation{
			Text:               parsed.Translations[0].Text,
			DetectedSourceLang: parsed.Translations[0].DetectedSourceLanguage,
		}, nil
	}

	return retry.WithBackoff(ctx, p.RetryConfig, op, isRetryableError)
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("translate: deepl returned %d: %s", e.status, e.body)
}

func isRetryableError(err error) bool {
	if se, ok := err.(*statusError); ok {
		return retry.IsHTTPRetryable(se.status)
	}
	return false
}
