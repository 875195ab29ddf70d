// voiceagent serves a voice persona to media runtimes.
//
// Runtimes connect to /ws/runtime and stream transcripts and video frames;
// the agent answers with synthesized speech. The same address serves a
// dashboard under /api and /ws.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-voiceagent/internal/config"
	ilog "github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/bridge"
	"github.com/teslashibe/go-voiceagent/pkg/inference"
	"github.com/teslashibe/go-voiceagent/pkg/persona"
	"github.com/teslashibe/go-voiceagent/pkg/tts"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
	"github.com/teslashibe/go-voiceagent/pkg/web"
)

type options struct {
	persona     string
	addr        string
	llm         string
	tts         string
	fallbackURL string
	staticDir   string
	logLevel    string
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	opts := parseFlags()

	base := ilog.Init(ilog.Options{Level: opts.logLevel})
	if err := run(opts, base); err != nil {
		base.Error("voiceagent failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.persona, "persona", config.String(config.EnvPersona, "sara"), "Persona preset ("+fmt.Sprint(persona.Presets())+") or YAML file")
	flag.StringVar(&o.addr, "addr", config.String(config.EnvAddr, ":8080"), "Listen address for the bridge and dashboard")
	flag.StringVar(&o.llm, "llm", "", "LLM provider: openai, compatible (default from persona)")
	flag.StringVar(&o.tts, "tts", "", "TTS provider: openai, mock (default from persona)")
	flag.StringVar(&o.fallbackURL, "fallback-url", "", "OpenAI-compatible server to try when the primary LLM fails")
	flag.StringVar(&o.staticDir, "web", "", "Directory with dashboard assets")
	flag.StringVar(&o.logLevel, "log-level", config.String(config.EnvLogLevel, "info"), "Log level: debug, info, warn, error")
	flag.Parse()
	return o
}

func run(opts options, base *slog.Logger) error {
	cfg, err := loadPersona(opts)
	if err != nil {
		return err
	}

	srv := web.NewServer(opts.addr, cfg, web.WithLogger(base), web.WithStaticDir(opts.staticDir))
	logger := slog.New(srv.LogHandler(base.Handler()))
	slog.SetDefault(logger)

	llm, err := buildLLM(cfg, opts.fallbackURL, logger)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	defer llm.Close()

	speech, err := buildTTS(cfg, logger)
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	defer speech.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	checkHealth(ctx, logger, llm, speech)

	b := bridge.New(cfg, llm, speech, bridge.WithLogger(logger))
	srv.Attach(b)

	logger.Info("voice agent ready",
		"persona", cfg.Name,
		"llm", cfg.LLMProvider,
		"model", cfg.LLMModel,
		"tts", cfg.TTSProvider,
		"voice", cfg.Voice.ID,
		"addr", opts.addr,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

// loadPersona resolves the persona and applies flag and env overrides.
func loadPersona(opts options) (voice.Config, error) {
	cfg, err := persona.Load(opts.persona)
	if err != nil {
		return voice.Config{}, err
	}
	if opts.llm != "" {
		cfg = cfg.WithLLMProvider(voice.LLMProvider(opts.llm))
	}
	if opts.tts != "" {
		cfg = cfg.WithTTSProvider(voice.TTSProvider(opts.tts))
	}
	cfg.LLMModel = config.String(config.EnvLLMModel, cfg.LLMModel)
	cfg = cfg.WithResponseTimeout(config.Duration(config.EnvResponseLimit, cfg.ResponseTimeout))
	cfg.Voice.Speed = config.Float(config.EnvTTSSpeed, cfg.Voice.Speed)
	return cfg, cfg.Validate()
}

func buildLLM(cfg voice.Config, fallbackURL string, logger *slog.Logger) (inference.Provider, error) {
	common := []inference.Option{
		inference.WithModel(cfg.LLMModel),
		inference.WithTemperature(cfg.LLMTemperature),
		inference.WithMaxTokens(cfg.LLMMaxTokens),
		inference.WithLogger(logger),
	}

	var primary inference.Provider
	switch cfg.LLMProvider {
	case voice.LLMOpenAI:
		key, err := config.Required(config.EnvOpenAIKey)
		if err != nil {
			return nil, err
		}
		opts := append(common, inference.WithAPIKey(key))
		if u := config.String(config.EnvOpenAIBaseURL, ""); u != "" {
			opts = append(opts, inference.WithBaseURL(u))
		}
		p, err := inference.NewOpenAI(opts...)
		if err != nil {
			return nil, err
		}
		primary = p
	case voice.LLMCompatible:
		opts := append(common,
			inference.WithBaseURL(config.String(config.EnvOpenAIBaseURL, "http://localhost:11434/v1")),
			inference.WithAPIKey(config.String(config.EnvOpenAIKey, "")),
		)
		p, err := inference.NewClient(opts...)
		if err != nil {
			return nil, err
		}
		primary = p
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.LLMProvider)
	}

	if fallbackURL == "" {
		return primary, nil
	}
	fallback, err := inference.NewClient(append(common, inference.WithBaseURL(fallbackURL))...)
	if err != nil {
		return nil, err
	}
	return inference.NewChainWithLogger(logger, primary, fallback)
}

func buildTTS(cfg voice.Config, logger *slog.Logger) (tts.Provider, error) {
	switch cfg.TTSProvider {
	case voice.TTSOpenAI:
		key, err := config.Required(config.EnvOpenAIKey)
		if err != nil {
			return nil, err
		}
		opts := []tts.Option{
			tts.WithAPIKey(key),
			tts.WithVoice(cfg.Voice.ID),
			tts.WithLogger(logger),
		}
		if cfg.Voice.Model != "" {
			opts = append(opts, tts.WithModel(cfg.Voice.Model))
		}
		if cfg.Voice.Speed > 0 {
			opts = append(opts, tts.WithSpeed(cfg.Voice.Speed))
		}
		if cfg.Voice.Instructions != "" {
			opts = append(opts, tts.WithInstructions(cfg.Voice.Instructions))
		}
		return tts.NewOpenAI(opts...)
	case voice.TTSMock:
		return tts.NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.TTSProvider)
	}
}

// checkHealth logs unreachable providers. The agent still starts; a
// session against a dead provider reports model_unavailable to its runtime.
func checkHealth(ctx context.Context, logger *slog.Logger, llm inference.Provider, speech tts.Provider) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := llm.Health(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("llm health check failed", "error", err)
	}
	if err := speech.Health(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("tts health check failed", "error", err)
	}
}
