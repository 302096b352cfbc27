// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, card generation tunables,
// rarity scoring constants, rate limiting, and observability.
//
// The loaded Config is immutable by convention: it is constructed once at
// process start and passed by reference into the components that need it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-cards-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RarityConfig holds the scoring constants used by the rarity engine.
// All values are operator-tunable; the defaults reproduce the documented
// tier boundaries and multiplier caps.
type RarityConfig struct {
	// Tier thresholds on the [0,1] score; evaluated highest-first.
	LegendaryMin float64 // RARITY_LEGENDARY_MIN
	EpicMin      float64 // RARITY_EPIC_MIN
	RareMin      float64 // RARITY_RARE_MIN
	UncommonMin  float64 // RARITY_UNCOMMON_MIN

	// IdentityStep is the boost added per notable participant;
	// IdentityCap bounds the total.
	IdentityStep float64 // RARITY_IDENTITY_STEP
	IdentityCap  float64 // RARITY_IDENTITY_CAP
	// VoiceWeight scales the voice-message ratio; VoiceCap bounds the result.
	VoiceWeight float64 // RARITY_VOICE_WEIGHT
	VoiceCap    float64 // RARITY_VOICE_CAP
}

// CardsConfig holds the card generation and ownership lifecycle tunables.
type CardsConfig struct {
	// MinMessages is the conversation size at which a card may be generated.
	MinMessages int // CARD_MIN_MESSAGES
	// ClaimDeadline is how long participants have to claim an offered card.
	// Bounded to [1 minute, 7 days].
	ClaimDeadline time.Duration // CLAIM_DEADLINE_MINUTES
	// VaultOwnerID is the fallback owner for unclaimed cards. Defaulting
	// fails (with an operational alert) when it is empty.
	VaultOwnerID string // VAULT_OWNER_ID

	// Collaborator call bounds.
	SentimentTimeout time.Duration // SENTIMENT_TIMEOUT
	ArtworkTimeout   time.Duration // ARTWORK_TIMEOUT

	// Deadline sweep.
	SweepInterval time.Duration // SWEEP_INTERVAL
	SweepBatch    int           // SWEEP_BATCH
	SweepWorkers  int           // SWEEP_WORKERS
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path
	Cards  CardsConfig
	Rarity RarityConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

const (
	// MinClaimDeadline and MaxClaimDeadline bound CLAIM_DEADLINE_MINUTES.
	MinClaimDeadline = 1 * time.Minute
	MaxClaimDeadline = 7 * 24 * time.Hour
)

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "app.db"),
		Cards: CardsConfig{
			MinMessages:      getint("CARD_MIN_MESSAGES", 10),
			ClaimDeadline:    time.Duration(getint("CLAIM_DEADLINE_MINUTES", 1440)) * time.Minute,
			VaultOwnerID:     getenv("VAULT_OWNER_ID", "vault"),
			SentimentTimeout: getdur("SENTIMENT_TIMEOUT", 30*time.Second),
			ArtworkTimeout:   getdur("ARTWORK_TIMEOUT", 45*time.Second),
			SweepInterval:    getdur("SWEEP_INTERVAL", time.Minute),
			SweepBatch:       getint("SWEEP_BATCH", 100),
			SweepWorkers:     getint("SWEEP_WORKERS", 4),
		},
		Rarity: RarityConfig{
			LegendaryMin: getfloat("RARITY_LEGENDARY_MIN", 0.95),
			EpicMin:      getfloat("RARITY_EPIC_MIN", 0.85),
			RareMin:      getfloat("RARITY_RARE_MIN", 0.70),
			UncommonMin:  getfloat("RARITY_UNCOMMON_MIN", 0.50),
			IdentityStep: getfloat("RARITY_IDENTITY_STEP", 0.5),
			IdentityCap:  getfloat("RARITY_IDENTITY_CAP", 2.0),
			VoiceWeight:  getfloat("RARITY_VOICE_WEIGHT", 0.3),
			VoiceCap:     getfloat("RARITY_VOICE_CAP", 0.3),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-cards-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Cards.MinMessages < 1 {
		return cfg, errors.New("CARD_MIN_MESSAGES must be >= 1")
	}
	if cfg.Cards.ClaimDeadline < MinClaimDeadline || cfg.Cards.ClaimDeadline > MaxClaimDeadline {
		return cfg, fmt.Errorf("CLAIM_DEADLINE_MINUTES must be between %d and %d",
			int(MinClaimDeadline.Minutes()), int(MaxClaimDeadline.Minutes()))
	}
	if cfg.Cards.SentimentTimeout <= 0 || cfg.Cards.ArtworkTimeout <= 0 {
		return cfg, errors.New("collaborator timeouts must be positive durations")
	}
	if cfg.Cards.SweepInterval <= 0 {
		return cfg, errors.New("SWEEP_INTERVAL must be > 0")
	}
	if cfg.Cards.SweepBatch < 1 {
		return cfg, errors.New("SWEEP_BATCH must be >= 1")
	}
	if cfg.Cards.SweepWorkers < 1 {
		return cfg, errors.New("SWEEP_WORKERS must be >= 1")
	}
	if err := validateRarity(cfg.Rarity); err != nil {
		return cfg, err
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// validateRarity checks that tier thresholds are in (0,1], strictly
// descending, and that multiplier tunables are non-negative.
func validateRarity(r RarityConfig) error {
	for _, th := range []float64{r.LegendaryMin, r.EpicMin, r.RareMin, r.UncommonMin} {
		if th <= 0 || th > 1 {
			return errors.New("rarity thresholds must be in (0,1]")
		}
	}
	if !(r.LegendaryMin > r.EpicMin && r.EpicMin > r.RareMin && r.RareMin > r.UncommonMin) {
		return errors.New("rarity thresholds must be strictly descending: legendary > epic > rare > uncommon")
	}
	if r.IdentityStep < 0 || r.IdentityCap < 0 || r.VoiceWeight < 0 || r.VoiceCap < 0 {
		return errors.New("rarity multiplier tunables must be >= 0")
	}
	return nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
