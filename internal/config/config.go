// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/reseller/internal/domain"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for all databases (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool

	// CORSOrigins may call the API cross-origin outside dev mode.
	CORSOrigins []string

	Pricing     PricingConfig
	Repricing   RepricingConfig
	Reconcile   ReconcileConfig
	Forecasting ForecastConfig
	Fetch       FetchConfig
	Report      ReportConfig
	Backup      BackupConfig

	// WorkSchedule is the cron expression (with seconds) that wakes the work processor.
	WorkSchedule string
}

// PricingConfig configures the pricing engine and the seeded default rule.
type PricingConfig struct {
	DefaultMarginPercent    float64
	DefaultMinMarginPercent float64
	PsychologicalPricing    bool
}

// RepricingConfig configures batch repricing.
type RepricingConfig struct {
	TolerancePercent float64
	Workers          int
	StaleAfter       time.Duration
}

// ReconcileConfig configures profit-opportunity reconciliation.
type ReconcileConfig struct {
	StandardVATRate    float64
	PlatformFees       map[string]float64 // lower-cased platform name -> fee percent
	DefaultPlatformFee float64
	ROILow             float64
	ROIMedium          float64
	ROIHigh            float64
}

// FeeFor returns the fee percent for a platform, falling back to the default.
func (c ReconcileConfig) FeeFor(platform string) float64 {
	if fee, ok := c.PlatformFees[strings.ToLower(platform)]; ok {
		return fee
	}
	return c.DefaultPlatformFee
}

// ForecastConfig configures the forecast engine.
type ForecastConfig struct {
	MinHistoryPeriods  int
	LookbackMultiplier int
}

// FetchConfig bounds calls to external price sources.
type FetchConfig struct {
	Timeout       time.Duration
	MaxAttempts   int
	Backoff       time.Duration
	RatePerSecond float64
	CacheTTL      time.Duration
	Sources       map[string]string // source name -> base URL
}

// ReportConfig configures the optional S3 export of forecast accuracy reports.
type ReportConfig struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// BackupConfig configures database backups. Backups go to the report bucket.
type BackupConfig struct {
	Schedule      string
	RetentionDays int
	MinFreeDiskMB int
}

// Enabled reports whether accuracy export is configured.
func (c ReportConfig) Enabled() bool { return c.Bucket != "" }

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("RESELLER_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	fees, err := parseFloatPairs(getEnv("PLATFORM_FEES", "stockx:9.5,ebay:12.9,alias:9.5,goat:9.5,vinted:5"), ':')
	if err != nil {
		return nil, domain.NewValidationError("PLATFORM_FEES", "%v", err)
	}
	sources, err := parseStringPairs(getEnv("MARKET_SOURCES", ""), '=')
	if err != nil {
		return nil, domain.NewValidationError("MARKET_SOURCES", "%v", err)
	}

	cfg := &Config{
		DataDir:     absDataDir,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", true),
		Port:        getEnvAsInt("PORT", 8090),
		DevMode:     getEnvAsBool("DEV_MODE", false),
		CORSOrigins: parseList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		Pricing: PricingConfig{
			DefaultMarginPercent:    getEnvAsFloat("DEFAULT_MARGIN_PERCENT", 20),
			DefaultMinMarginPercent: getEnvAsFloat("DEFAULT_MIN_MARGIN_PERCENT", 10),
			PsychologicalPricing:    getEnvAsBool("PSYCHOLOGICAL_PRICING", false),
		},
		Repricing: RepricingConfig{
			TolerancePercent: getEnvAsFloat("REPRICE_TOLERANCE_PERCENT", 1),
			Workers:          getEnvAsInt("REPRICE_WORKERS", 4),
			StaleAfter:       getEnvAsDuration("REPRICE_STALE_AFTER", 24*time.Hour),
		},
		Reconcile: ReconcileConfig{
			StandardVATRate:    getEnvAsFloat("STANDARD_VAT_RATE", 19),
			PlatformFees:       fees,
			DefaultPlatformFee: getEnvAsFloat("DEFAULT_PLATFORM_FEE", 10),
			ROILow:             getEnvAsFloat("ROI_LOW", 25),
			ROIMedium:          getEnvAsFloat("ROI_MEDIUM", 35),
			ROIHigh:            getEnvAsFloat("ROI_HIGH", 50),
		},
		Forecasting: ForecastConfig{
			MinHistoryPeriods:  getEnvAsInt("FORECAST_MIN_HISTORY_PERIODS", 2),
			LookbackMultiplier: getEnvAsInt("FORECAST_LOOKBACK_MULTIPLIER", 4),
		},
		Fetch: FetchConfig{
			Timeout:       getEnvAsDuration("FETCH_TIMEOUT", 10*time.Second),
			MaxAttempts:   getEnvAsInt("FETCH_MAX_ATTEMPTS", 3),
			Backoff:       getEnvAsDuration("FETCH_BACKOFF", 500*time.Millisecond),
			RatePerSecond: getEnvAsFloat("FETCH_RATE_PER_SECOND", 5),
			CacheTTL:      getEnvAsDuration("OBSERVATION_CACHE_TTL", 6*time.Hour),
			Sources:       sources,
		},
		Report: ReportConfig{
			Bucket:    getEnv("REPORT_S3_BUCKET", ""),
			Endpoint:  getEnv("REPORT_S3_ENDPOINT", ""),
			Region:    getEnv("REPORT_S3_REGION", "auto"),
			AccessKey: getEnv("REPORT_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("REPORT_S3_SECRET_KEY", ""),
		},
		Backup: BackupConfig{
			Schedule:      getEnv("BACKUP_SCHEDULE", "0 0 2 * * *"),
			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
			MinFreeDiskMB: getEnvAsInt("MIN_FREE_DISK_MB", 500),
		},
		WorkSchedule: getEnv("WORK_SCHEDULE", "0 */5 * * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges and cross-field invariants.
func (c *Config) Validate() error {
	var errs domain.ValidationErrors

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, domain.NewValidationError("PORT", "must be between 1 and 65535"))
	}
	if c.Pricing.DefaultMarginPercent < 0 || c.Pricing.DefaultMarginPercent >= 100 {
		errs = append(errs, domain.NewValidationError("DEFAULT_MARGIN_PERCENT", "must be in [0, 100)"))
	}
	if c.Pricing.DefaultMinMarginPercent > c.Pricing.DefaultMarginPercent {
		errs = append(errs, domain.NewValidationError("DEFAULT_MIN_MARGIN_PERCENT", "must not exceed DEFAULT_MARGIN_PERCENT"))
	}
	if c.Repricing.TolerancePercent < 0 {
		errs = append(errs, domain.NewValidationError("REPRICE_TOLERANCE_PERCENT", "must be >= 0"))
	}
	if c.Repricing.Workers < 1 {
		errs = append(errs, domain.NewValidationError("REPRICE_WORKERS", "must be >= 1"))
	}
	if c.Reconcile.StandardVATRate < 0 {
		errs = append(errs, domain.NewValidationError("STANDARD_VAT_RATE", "must be >= 0"))
	}
	if !(c.Reconcile.ROILow <= c.Reconcile.ROIMedium && c.Reconcile.ROIMedium <= c.Reconcile.ROIHigh) {
		errs = append(errs, domain.NewValidationError("ROI_LOW", "thresholds must satisfy ROI_LOW <= ROI_MEDIUM <= ROI_HIGH"))
	}
	for name, fee := range c.Reconcile.PlatformFees {
		if fee < 0 || fee >= 100 {
			errs = append(errs, domain.NewValidationError("PLATFORM_FEES", "fee for %s must be in [0, 100)", name))
		}
	}
	if c.Forecasting.MinHistoryPeriods < 1 {
		errs = append(errs, domain.NewValidationError("FORECAST_MIN_HISTORY_PERIODS", "must be >= 1"))
	}
	if c.Forecasting.LookbackMultiplier < 4 {
		errs = append(errs, domain.NewValidationError("FORECAST_LOOKBACK_MULTIPLIER", "must be >= 4"))
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, domain.NewValidationError("FETCH_MAX_ATTEMPTS", "must be >= 1"))
	}
	if c.Backup.RetentionDays < 0 {
		errs = append(errs, domain.NewValidationError("BACKUP_RETENTION_DAYS", "must be >= 0"))
	}
	if c.Backup.MinFreeDiskMB < 0 {
		errs = append(errs, domain.NewValidationError("MIN_FREE_DISK_MB", "must be >= 0"))
	}
	if c.Fetch.RatePerSecond <= 0 {
		errs = append(errs, domain.NewValidationError("FETCH_RATE_PER_SECOND", "must be > 0"))
	}

	return errs.OrNil()
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// parseStringPairs parses "a=x,b=y" style lists. Keys are lower-cased.
// parseList splits a comma-separated value, dropping empty entries.
func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseStringPairs(raw string, sep byte) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.IndexByte(part, sep)
		if idx <= 0 || idx == len(part)-1 {
			return nil, fmt.Errorf("malformed entry %q", part)
		}
		out[strings.ToLower(strings.TrimSpace(part[:idx]))] = strings.TrimSpace(part[idx+1:])
	}
	return out, nil
}

func parseFloatPairs(raw string, sep byte) (map[string]float64, error) {
	pairs, err := parseStringPairs(raw, sep)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(pairs))
	for k, v := range pairs {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", k, err)
		}
		out[k] = f
	}
	return out, nil
}
