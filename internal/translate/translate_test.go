package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twitchtranslate/pipeline/internal/config"
)

func TestNormalizeTargetLangPreservesRegionCase(t *testing.T) {
	require.Equal(t, "pt-br", NormalizeTargetLang("PT-BR"))
	require.Equal(t, "pt-pt", NormalizeTargetLang("Pt-Pt"))
	require.Equal(t, "en-gb", NormalizeTargetLang("en-GB"))
	require.Equal(t, "en-us", NormalizeTargetLang("EN-us"))
}

func TestNormalizeTargetLangUppercasesOthers(t *testing.T) {
	require.Equal(t, "FR", NormalizeTargetLang("fr"))
	require.Equal(t, "DE", NormalizeTargetLang("de"))
}

func TestDeepLTranslateSendsAuthHeaderAndUppercasedTargetLang(t *testing.T) {
	var gotAuth, gotTarget string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var reqBody deeplRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		gotTarget = reqBody.TargetLang

		json.NewEncoder(w).Encode(map[string]any{
			"translations": []map[string]string{
				{"text": "Bonjour", "detected_source_language": "EN"},
			},
		})
	}))
	defer server.Close()

	key, err := config.NewApiKey("test-key")
	require.NoError(t, err)
	p := &DeepLProvider{APIKey: key, Client: server.Client(), BaseURL: server.URL}
	p.RetryConfig.MaxAttempts = 1

	translation, err := p.Translate(context.Background(), "hello", "fr")
	require.NoError(t, err)
	require.Equal(t, "Bonjour", translation.Text)
	require.Equal(t, "EN", translation.DetectedSourceLang)
	require.Equal(t, "DeepL-Auth-Key test-key", gotAuth)
	require.Equal(t, "FR", gotTarget)
}

func TestDeepLTranslatePreservesRegionTagCaseOnWire(t *testing.T) {
	var gotTarget string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody deeplRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		gotTarget = reqBody.TargetLang

		json.NewEncoder(w).Encode(map[string]any{
			"translations": []map[string]string{
				{"text": "Ola", "detected_source_language": "EN"},
			},
		})
	}))
	defer server.Close()

	key, err := config.NewApiKey("test-key")
	require.NoError(t, err)
	p := &DeepLProvider{APIKey: key, Client: server.Client(), BaseURL: server.URL}
	p.RetryConfig.MaxAttempts = 1

	_, err = p.Translate(context.Background(), "hello", "pt-BR")
	require.NoError(t, err)
	require.Equal(t, "pt-br", gotTarget)
}

func TestDeepLTranslateUsesFreeEndpointForFxKey(t *testing.T) {
	key, err := config.NewApiKey("abc123:fx")
	require.NoError(t, err)

	p := NewDeepLProvider(key, nil)
	require.Equal(t, deeplFreeURL, resolvedURL(p))
}

func TestDeepLTranslateUsesProEndpointForNonFxKey(t *testing.T) {
	key, err := config.NewApiKey("abc123")
	require.NoError(t, err)

	p := NewDeepLProvider(key, nil)
	require.Equal(t, deeplProURL, resolvedURL(p))
}

func TestDeepLTranslatePropagatesNonRetryableError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid auth key"))
	}))
	defer server.Close()

	key, err := config.NewApiKey("bad-key")
	require.NoError(t, err)
	p := &DeepLProvider{APIKey: key, Client: server.Client(), BaseURL: server.URL}
	p.RetryConfig.MaxAttempts = 1

	_, err = p.Translate(context.Background(), "hello", "fr")
	require.Error(t, err)
}

// resolvedURL mirrors Translate's endpoint-selection rule so the :fx split
// can be tested without performing a request.
func resolvedURL(p *DeepLProvider) string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	if strings.HasSuffix(p.APIKey.Expose(), ":fx") {
		return deeplFreeURL
	}
	return deeplProURL
}
