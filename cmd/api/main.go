package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"tourcast/internal/assembler"
	"tourcast/internal/cache"
	"tourcast/internal/geo"
	"tourcast/internal/http/handlers"
	httpapi "tourcast/internal/http/httpapi"
	"tourcast/internal/infra"
	"tourcast/internal/infra/credentials"
	"tourcast/internal/infra/geoip"
	"tourcast/internal/middleware"
	"tourcast/internal/orchestrator"
	"tourcast/internal/providers"
	"tourcast/internal/storage"
	"tourcast/internal/usage"
)

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
		logger.Fatal().Err(err).Msg("failed to connect database")
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
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	meter := usage.NewMeter(usage.Options{
		Runner:           runner,
		Logger:           &logger,
		MonthlyBudgetUSD: cfg.MonthlyBudgetUSD,
	})
	meter.Hydrate(ctx)

	router := buildProviderRouter(ctx, cfg, runner, meter, logger)

	geocoder := geo.NewNominatim(geo.NominatimOptions{
		BaseURL:      cfg.GeocoderBaseURL,
		HTTPClient:   &http.Client{Timeout: cfg.GeocodeTimeout},
		RadiusMeters: float64(cfg.GeocoderRadiusM),
	})

	asm := assembler.New(assembler.Options{
		Router:                router,
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

	orch := orchestrator.New(orchestrator.Options{
		Store:     orchestrator.NewPostgresStore(runner),
		Cache:     cache.NewPostgres(runner, logger),
		Assembler: asm,
		Audio:     fileStore,
		Throttle:  meter,
		Logger:    &logger,
		Workers:   cfg.WorkerCount,
		CacheTTL:  cfg.ContentCacheTTL,
	})
	if err := orch.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start orchestrator")
	}

	var countryLookup middleware.CountryLookup
	if resolver, err := geoip.NewResolver(cfg.GeoIPDBPath); err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		countryLookup = resolver.CountryCode
	}

	app := handlers.NewApp(orch, meter, logger)
	handler := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   countryLookup,
	})
	server := infra.NewHTTPServer(cfg, handler)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	orch.Stop()
	logger.Info().Msg("server stopped")
}

// buildProviderRouter assembles the provider fallback chains. OpenAI is
// skipped entirely without a key; the Gemini client always joins the speech
// chain because it degrades to synthetic audio when unkeyed.
func buildProviderRouter(ctx context.Context, cfg *infra.Config, runner *infra.SQLRunner, meter *usage.Meter, logger infra.Logger) *providers.Router {
	credStore := credentials.NewStore(runner)

	openAIKey := strings.TrimSpace(cfg.OpenAIAPIKey)
	if openAIKey == "" {
		if key, err := credStore.OpenAIAPIKey(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to load openai key from store")
		} else {
			openAIKey = key
		}
	}
	geminiKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if geminiKey == "" {
		if key, err := credStore.GeminiAPIKey(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to load gemini key from store")
		} else {
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
			logger.Fatal().Err(err).Msg("failed to configure openai client")
		}
		text = append(text, client)
		speech = append(speech, client)
	} else {
		logger.Warn().Msg("openai api key missing, provider disabled")
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

	return providers.NewRouter(text, speech, &logger)
}
