// Command translator runs the Twitch-to-translated-speech pipeline:
// HLS ingest -> decode -> ASR -> translate -> TTS -> playback.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/twitchtranslate/pipeline/internal/asr"
	"github.com/twitchtranslate/pipeline/internal/config"
	"github.com/twitchtranslate/pipeline/internal/decode"
	"github.com/twitchtranslate/pipeline/internal/ingest"
	"github.com/twitchtranslate/pipeline/internal/logging"
	"github.com/twitchtranslate/pipeline/internal/pipeline"
	"github.com/twitchtranslate/pipeline/internal/playback"
	"github.com/twitchtranslate/pipeline/internal/translate"
	"github.com/twitchtranslate/pipeline/internal/tts"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "note: no .env file found, using system environment variables")
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "translator: "+err.Error())
		os.Exit(1)
	}
}

func run() error {
	flags, err := parseFlags()
	if err != nil {
		return err
	}

	logger := logging.NewZerolog(flags.logLevel)

	channel, sourceURL, err := resolveSource(flags)
	if err != nil {
		return err
	}

	latency, err := config.NewLatencyBudget(flags.latencyMS)
	if err != nil {
		return fmt.Errorf("invalid --latency-ms: %w", err)
	}

	targetLang, err := config.NewTargetLang(flags.targetLang)
	if err != nil {
		return fmt.Errorf("invalid --target-lang: %w", err)
	}

	twitch := config.TwitchConfig{
		ClientID:     flags.twitchClientID,
		OAuthToken:   flags.twitchOAuthToken,
		HLSAudioOnly: flags.hlsAudioOnly,
	}

	translator, err := buildTranslator(flags)
	if err != nil {
		return err
	}

	ttsProvider, err := buildTTS(flags, logger)
	if err != nil {
		return err
	}

	ingestor := ingest.NewTwitchIngestor(ingest.Options{
		Channel: channel,
		URL:     sourceURL,
		Twitch: ingest.TwitchOptions{
			ClientID:     twitch.ClientID,
			OAuthToken:   twitch.OAuthToken,
			HLSAudioOnly: twitch.HLSAudioOnly,
		},
	}, http.DefaultClient, logger)

	decoder := decode.NewFfmpegDecoder("ffmpeg", logger)
	asrProvider := buildASR()
	sink := playback.NewDeviceSink("", logger)

	p := pipeline.New(ingestor, decoder, asrProvider, translator, ttsProvider, sink,
		pipeline.Config{Latency: latency, TargetLang: targetLang}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := p.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("pipeline stopped: %w", err)
	}
	return nil
}

type cliFlags struct {
	channel          string
	url              string
	targetLang       string
	deeplAPIKey      string
	elevenlabsAPIKey string
	latencyMS        int
	twitchClientID   string
	twitchOAuthToken string
	hlsAudioOnly     bool
	piperBinary      string
	piperModel       string
	logLevel         string
}

// parseFlags defines the CLI surface via pflag, binds each flag into
// viper so configured environment variables act as a fallback, and
// returns the resolved values. CLI > environment > built-in default.
func parseFlags() (cliFlags, error) {
	pflag.String("channel", "", "Twitch channel login to ingest")
	pflag.String("url", "", "Direct HLS or channel URL to ingest")
	pflag.String("target-lang", config.DefaultTargetLang, "Target language code for translation")
	pflag.String("deepl-api-key", "", "DeepL API key")
	pflag.String("elevenlabs-api-key", "", "ElevenLabs API key")
	pflag.Int("latency-ms", config.DefaultLatencyMS, "End-to-end latency budget in milliseconds")
	pflag.String("twitch-client-id", config.DefaultTwitchWebClientID, "Twitch GraphQL client ID")
	pflag.String("twitch-oauth-token", "", "Twitch OAuth token")
	pflag.Bool("hls-audio-only", true, "Prefer an audio-only HLS variant when available")
	pflag.String("piper-binary", "piper", "Path to the Piper TTS binary")
	pflag.String("piper-model", "", "Path to the Piper voice model")
	pflag.String("log-level", "info", "Log level (debug, info, warn, error)")
	pflag.Parse()

	v := viper.New()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return cliFlags{}, fmt.Errorf("bind flags: %w", err)
	}
	v.BindEnv("deepl-api-key", config.EnvDeepLAPIKey)
	v.BindEnv("elevenlabs-api-key", config.EnvElevenLabsAPIKey)
	v.BindEnv("twitch-oauth-token", config.EnvTwitchOAuthToken)

	flags := cliFlags{
		channel:          v.GetString("channel"),
		url:              v.GetString("url"),
		targetLang:       v.GetString("target-lang"),
		deeplAPIKey:      v.GetString("deepl-api-key"),
		elevenlabsAPIKey: v.GetString("elevenlabs-api-key"),
		latencyMS:        v.GetInt("latency-ms"),
		twitchClientID:   v.GetString("twitch-client-id"),
		twitchOAuthToken: v.GetString("twitch-oauth-token"),
		hlsAudioOnly:     v.GetBool("hls-audio-only"),
		piperBinary:      v.GetString("piper-binary"),
		piperModel:       v.GetString("piper-model"),
		logLevel:         v.GetString("log-level"),
	}
	return flags, nil
}

func resolveSource(flags cliFlags) (channel, url string, err error) {
	if flags.channel != "" && flags.url != "" {
		return "", "", fmt.Errorf("exactly one of --channel or --url is required, got both")
	}
	if flags.channel == "" && flags.url == "" {
		return "", "", fmt.Errorf("exactly one of --channel or --url is required")
	}
	return flags.channel, flags.url, nil
}

func buildTranslator(flags cliFlags) (translate.Provider, error) {
	if flags.deeplAPIKey == "" {
		return translate.PassthroughProvider{}, nil
	}
	key, err := config.NewApiKey(flags.deeplAPIKey)
	if err != nil {
		return nil, fmt.Errorf("invalid --deepl-api-key: %w", err)
	}
	return translate.NewDeepLProvider(key, http.DefaultClient), nil
}

func buildTTS(flags cliFlags, logger logging.Logger) (tts.Provider, error) {
	local := tts.NewPiperProvider(flags.piperBinary, flags.piperModel)
	if flags.elevenlabsAPIKey == "" {
		return local, nil
	}
	key, err := config.NewApiKey(flags.elevenlabsAPIKey)
	if err != nil {
		return nil, fmt.Errorf("invalid --elevenlabs-api-key: %w", err)
	}
	primary := tts.NewElevenLabsProvider(key, http.DefaultClient)
	return tts.NewFallbackProvider(primary, local, logger), nil
}

// buildASR wires a Whisper-compatible remote transcription backend.
// Vendor selection is an external-collaborator concern (spec.md §1's
// out-of-scope list, not its Non-goals); the endpoint and key come from environment variables
// rather than a dedicated flag, matching the teacher's direct-os.Getenv
// provider-selection idiom (cmd/agent/main.go).
func buildASR() asr.Provider {
	endpoint := os.Getenv("ASR_ENDPOINT")
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/audio/transcriptions"
	}
	key, _ := config.NewApiKey(os.Getenv("ASR_API_KEY"))
	return asr.NewRemoteProvider("whisper", endpoint, key, http.DefaultClient)
}
