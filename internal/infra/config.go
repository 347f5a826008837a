package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	StoragePath string
	GeoIPDBPath string

	TextProvider   string
	SpeechProvider string

	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAITTSModel string
	OpenAITTSVoice string
	OpenAIBaseURL  string
	OpenAIOrg      string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	GeocoderBaseURL string
	GeocoderRadiusM int

	WorkerCount         int
	TextTimeout         time.Duration
	SpeechTimeout       time.Duration
	GeocodeTimeout      time.Duration
	ContentCacheTTL     time.Duration
	AudioTTL            time.Duration
	SpeakingRateCPS     float64
	MaxWalkTotalMeters  float64
	MaxWalkLegMeters    float64
	MonthlyBudgetUSD    float64
	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPIdleTimeout     time.Duration
	RateLimitPerMin     int
	DefaultLocale       string
	SpeechSpeed         float64
	MinStops            int
	MaxStops            int
	WalkingSpeedMPerMin float64
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		StoragePath: getEnv("STORAGE_PATH", "./storage"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		TextProvider:   getEnv("TEXT_PROVIDER", "openai"),
		SpeechProvider: getEnv("SPEECH_PROVIDER", "openai"),

		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITTSModel: getEnv("OPENAI_TTS_MODEL", "tts-1"),
		OpenAITTSVoice: getEnv("OPENAI_TTS_VOICE", "nova"),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:      os.Getenv("OPENAI_ORG"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		GeocoderBaseURL: getEnv("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocoderRadiusM: getEnvInt("GEOCODER_RADIUS_METERS", 2000),

		WorkerCount:         getEnvInt("WORKER_COUNT", 4),
		TextTimeout:         time.Second * time.Duration(getEnvInt("TEXT_TIMEOUT_SECONDS", 60)),
		SpeechTimeout:       time.Second * time.Duration(getEnvInt("SPEECH_TIMEOUT_SECONDS", 180)),
		GeocodeTimeout:      time.Second * time.Duration(getEnvInt("GEOCODE_TIMEOUT_SECONDS", 10)),
		ContentCacheTTL:     time.Hour * time.Duration(getEnvInt("CONTENT_CACHE_TTL_HOURS", 24*7)),
		AudioTTL:            time.Hour * time.Duration(getEnvInt("AUDIO_TTL_HOURS", 24*30)),
		SpeakingRateCPS:     getEnvFloat("SPEAKING_RATE_CPS", 15),
		MaxWalkTotalMeters:  getEnvFloat("MAX_WALK_TOTAL_METERS", 2000),
		MaxWalkLegMeters:    getEnvFloat("MAX_WALK_LEG_METERS", 500),
		MonthlyBudgetUSD:    getEnvFloat("MONTHLY_BUDGET_USD", 10),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:     getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		DefaultLocale:       getEnv("DEFAULT_LOCALE", "en"),
		SpeechSpeed:         getEnvFloat("SPEECH_SPEED", 1.2),
		MinStops:            getEnvInt("MIN_STOPS", 3),
		MaxStops:            getEnvInt("MAX_STOPS", 7),
		WalkingSpeedMPerMin: getEnvFloat("WALKING_SPEED_M_PER_MIN", 80),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.MinStops < 1 {
		cfg.MinStops = 3
	}
	if cfg.MaxStops < cfg.MinStops {
		cfg.MaxStops = cfg.MinStops
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
