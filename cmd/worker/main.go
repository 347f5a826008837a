package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tourcast/internal/assembler"
	"tourcast/internal/cache"
	"tourcast/internal/geo"
	"tourcast/internal/infra"
	"tourcast/internal/infra/credentials"
	"tourcast/internal/orchestrator"
	"tourcast/internal/providers"
	"tourcast/internal/storage"
	"tourcast/internal/usage"
)

const cacheSweepInterval = time.Hour

// The worker binary runs the generation pool without the HTTP surface. It
// picks up jobs the API enqueued (or that were in flight when a process
// died) and sweeps expired cache rows.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	meter := usage.NewMeter(usage.Options{
		Runner:           runner,
		Logger:           &logger,
		MonthlyBudgetUSD: cfg.MonthlyBudgetUSD,
	})
	meter.Hydrate(ctx)

	credStore := credentials.NewStore(runner)
	openAIKey := strings.TrimSpace(cfg.OpenAIAPIKey)
	if openAIKey == "" {
		if key, err := credStore.OpenAIAPIKey(ctx); err == nil {
			openAIKey = key
		}
	}
	geminiKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if geminiKey == "" {
		if key, err := credStore.GeminiAPIKey(ctx); err == nil {
			geminiKey = key
		}
	}

	var text []providers.TextGenerator
	var speech []providers.SpeechSynthesizer
	if openAIKey != "" {
		client, err := providers.NewOpenAIClient(providers.OpenAIOptions{
			APIKey:       openAIKey,
			Model:        cfg.OpenAIModel,
			TTSModel:     cfg.OpenAITTSModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			DefaultVoice: cfg.OpenAITTSVoice,
			HTTPClient:   &http.Client{Timeout: cfg.SpeechTimeout},
			Meter:        meter,
			Logger:       &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure openai client")
		}
		text = append(text, client)
		speech = append(speech, client)
	} else {
		logger.Warn().Msg("worker: openai api key missing, provider disabled")
	}
	gemini := providers.NewGeminiClient(providers.GeminiOptions{
		APIKey:     geminiKey,
		Model:      cfg.GeminiModel,
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.SpeechTimeout},
		Meter:      meter,
		Logger:     &logger,
	})
	text = append(text, gemini)
	speech = append(speech, gemini)

	geocoder := geo.NewNominatim(geo.NominatimOptions{
		BaseURL:      cfg.GeocoderBaseURL,
		HTTPClient:   &http.Client{Timeout: cfg.GeocodeTimeout},
		RadiusMeters: float64(cfg.GeocoderRadiusM),
	})

	asm := assembler.New(assembler.Options{
		Router:                providers.NewRouter(text, speech, &logger),
		Geocoder:              geocoder,
		Logger:                &logger,
		DefaultTextProvider:   cfg.TextProvider,
		DefaultSpeechProvider: cfg.SpeechProvider,
		TextTimeout:           cfg.TextTimeout,
		SpeakingRateCPS:       cfg.SpeakingRateCPS,
		SpeechSpeed:           cfg.SpeechSpeed,
		MinStops:              cfg.MinStops,
		MaxStops:              cfg.MaxStops,
		MaxLegMeters:          cfg.MaxWalkLegMeters,
		MaxTotalMeters:        cfg.MaxWalkTotalMeters,
		WalkingSpeedMPerMin:   cfg.WalkingSpeedMPerMin,
	})

	cacheStore := cache.NewPostgres(runner, logger)
	orch := orchestrator.New(orchestrator.Options{
		Store:     orchestrator.NewPostgresStore(runner),
		Cache:     cacheStore,
		Assembler: asm,
		Audio:     fileStore,
		Throttle:  meter,
		Logger:    &logger,
		Workers:   cfg.WorkerCount,
		CacheTTL:  cfg.ContentCacheTTL,
	})
	if err := orch.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to start")
	}
	logger.Info().Int("workers", cfg.WorkerCount).Msg("worker: started")

	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			orch.Stop()
			logger.Info().Msg("worker: stopped")
			return
		case <-ticker.C:
			cacheStore.Sweep(ctx)
			if n, err := fileStore.SweepOlderThan(ctx, "audio", cfg.AudioTTL); err != nil {
				logger.Warn().Err(err).Msg("worker: audio sweep failed")
			} else if n > 0 {
				logger.Info().Int("removed", n).Msg("worker: swept expired audio blobs")
			}
		}
	}
}
