package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. TOCGEST_PORT.
const EnvPrefix = "TOCGEST"

type Config struct {
	Port string `mapstructure:"port"`

	// Auth
	APIKey string `mapstructure:"api_key"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Worker pool
	WorkerCount  int `mapstructure:"worker_count"`
	MaxQueueSize int `mapstructure:"max_queue_size"`
	PageWorkers  int `mapstructure:"page_workers"`

	// Upload limits
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	// Job state
	JobTTL time.Duration `mapstructure:"job_ttl"`

	// Large-document guard
	SizeThreshold int64 `mapstructure:"size_threshold"`
	PageCap       int   `mapstructure:"page_cap"`
	ScanPages     int   `mapstructure:"scan_pages"`

	// Per-document extraction deadline (0 = none)
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`

	// PDF
	PDFFallbackPdftotext bool   `mapstructure:"pdf_fallback_pdftotext"`
	PdftotextPath        string `mapstructure:"pdftotext_path"`
	MinNativeChars       int    `mapstructure:"min_native_chars"`

	// OCR
	PdftoppmPath  string `mapstructure:"pdftoppm_path"`
	TesseractPath string `mapstructure:"tesseract_path"`
	OCRLanguage   string `mapstructure:"ocr_language"`
	OCRDPI        int    `mapstructure:"ocr_dpi"`
	OCRPSM        int    `mapstructure:"ocr_psm"`
	OCRAttempts   int    `mapstructure:"ocr_attempts"`

	// Locator
	MinScore float64 `mapstructure:"min_score"`

	// Result cache (empty path = off)
	CachePath string        `mapstructure:"cache_path"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`

	// Upload rate limit (0 = off)
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port: "8090",

		LogLevel:  "info",
		LogFormat: "json",

		WorkerCount:  2,
		MaxQueueSize: 50,
		PageWorkers:  1,

		MaxUploadBytes: 256 << 20,

		JobTTL: 1 * time.Hour,

		SizeThreshold: 100 << 20,
		PageCap:       70,

		PDFFallbackPdftotext: true,
		PdftotextPath:        "pdftotext",
		MinNativeChars:       25,

		PdftoppmPath:  "pdftoppm",
		TesseractPath: "tesseract",
		OCRLanguage:   "eng",
		OCRDPI:        400,
		OCRPSM:        6,
		OCRAttempts:   2,

		MinScore: 3.0,

		CacheTTL: 30 * 24 * time.Hour,

		RateBurst: 5,
	}
}

// Load reads configuration from defaults, an optional config file, and
// TOCGEST_* environment variables, in increasing order of precedence.
func Load(cfgFile string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("tocgest")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tocgest")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.clamp()
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("port", d.Port)
	v.SetDefault("api_key", d.APIKey)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("worker_count", d.WorkerCount)
	v.SetDefault("max_queue_size", d.MaxQueueSize)
	v.SetDefault("page_workers", d.PageWorkers)
	v.SetDefault("max_upload_bytes", d.MaxUploadBytes)
	v.SetDefault("job_ttl", d.JobTTL)
	v.SetDefault("size_threshold", d.SizeThreshold)
	v.SetDefault("page_cap", d.PageCap)
	v.SetDefault("scan_pages", d.ScanPages)
	v.SetDefault("extract_timeout", d.ExtractTimeout)
	v.SetDefault("pdf_fallback_pdftotext", d.PDFFallbackPdftotext)
	v.SetDefault("pdftotext_path", d.PdftotextPath)
	v.SetDefault("min_native_chars", d.MinNativeChars)
	v.SetDefault("pdftoppm_path", d.PdftoppmPath)
	v.SetDefault("tesseract_path", d.TesseractPath)
	v.SetDefault("ocr_language", d.OCRLanguage)
	v.SetDefault("ocr_dpi", d.OCRDPI)
	v.SetDefault("ocr_psm", d.OCRPSM)
	v.SetDefault("ocr_attempts", d.OCRAttempts)
	v.SetDefault("min_score", d.MinScore)
	v.SetDefault("cache_path", d.CachePath)
	v.SetDefault("cache_ttl", d.CacheTTL)
	v.SetDefault("rate_limit", d.RateLimit)
	v.SetDefault("rate_burst", d.RateBurst)
}

// clamp replaces nonsensical values with defaults.
func (c *Config) clamp() {
	d := Default()
	if c.Port == "" {
		c.Port = d.Port
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.PageWorkers <= 0 {
		c.PageWorkers = d.PageWorkers
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.JobTTL <= 0 {
		c.JobTTL = d.JobTTL
	}
	if c.SizeThreshold <= 0 {
		c.SizeThreshold = d.SizeThreshold
	}
	if c.PageCap <= 0 {
		c.PageCap = d.PageCap
	}
	if c.ScanPages < 0 {
		c.ScanPages = 0
	}
	if c.ExtractTimeout < 0 {
		c.ExtractTimeout = 0
	}
	if c.MinNativeChars <= 0 {
		c.MinNativeChars = d.MinNativeChars
	}
	if c.OCRLanguage == "" {
		c.OCRLanguage = d.OCRLanguage
	}
	if c.OCRDPI <= 0 {
		c.OCRDPI = d.OCRDPI
	}
	if c.OCRPSM < 0 {
		c.OCRPSM = d.OCRPSM
	}
	if c.OCRAttempts <= 0 {
		c.OCRAttempts = d.OCRAttempts
	}
	if c.MinScore <= 0 {
		c.MinScore = d.MinScore
	}
	if c.CacheTTL < 0 {
		c.CacheTTL = 0
	}
	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
	if c.RateBurst <= 0 {
		c.RateBurst = d.RateBurst
	}
}

// Validate checks the settings every entry point needs.
func (c Config) Validate() error {
	if c.PdftoppmPath == "" {
		return fmt.Errorf("pdftoppm_path is required")
	}
	if c.TesseractPath == "" {
		return fmt.Errorf("tesseract_path is required")
	}
	if c.PDFFallbackPdftotext && c.PdftotextPath == "" {
		return fmt.Errorf("pdftotext_path is required when pdf_fallback_pdftotext is set")
	}
	if c.OCRDPI < 72 || c.OCRDPI > 1200 {
		return fmt.Errorf("ocr_dpi must be between 72 and 1200, got %d", c.OCRDPI)
	}
	return nil
}

// ValidateServer additionally checks settings required by the HTTP service.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("TOCGEST_API_KEY is required")
	}
	return nil
}
