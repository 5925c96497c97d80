package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avolkov/ocr-manager/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Watch    WatchConfig
	OCR      OCRConfig
}

// DatabaseConfig holds store-related configuration
type DatabaseConfig struct {
	Path        string
	BusyTimeout time.Duration
}

// WatchConfig holds watched-directory configuration
type WatchConfig struct {
	Dir         string
	AllowedExts map[string]struct{}
	InitialScan bool
	Debounce    time.Duration
}

// OCRConfig holds recognition-related configuration
type OCRConfig struct {
	DefaultEngine       string
	Languages           []string
	DPI                 int
	Workers             int
	PageParallelism     int
	ProcessTimeout      time.Duration
	ShutdownGrace       time.Duration
	ConfidenceThreshold float32
	DefaultPriority     int
	Pdftoppm            string // binary name or absolute path; if empty -> "pdftoppm"
	EasyOCRBin          string // helper binary for the easyocr engine
	TessdataDir         string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        getEnv("DB_PATH", "./ocr-manager.db"),
			BusyTimeout: getEnvAsDuration("DB_BUSY_TIMEOUT", 5*time.Second),
		},
		Watch: WatchConfig{
			Dir:         getEnv("WATCH_DIR", "./watch"),
			AllowedExts: parseExts(getEnv("SUPPORTED_FORMATS", "")),
			InitialScan: getEnvAsBool("INITIAL_SCAN", true),
			Debounce:    getEnvAsDuration("WATCH_DEBOUNCE", 200*time.Millisecond),
		},
		OCR: OCRConfig{
			DefaultEngine:       getEnv("DEFAULT_OCR_ENGINE", "tesseract"),
			Languages:           splitCSV(getEnv("OCR_LANGUAGES", "eng")),
			DPI:                 getEnvAsInt("PDF_DPI", 300),
			Workers:             getEnvAsInt("MAX_CONCURRENT_OCR", 2),
			PageParallelism:     getEnvAsInt("PAGE_PARALLELISM", 2),
			ProcessTimeout:      getEnvAsDuration("PROCESS_TIMEOUT", 3*time.Minute),
			ShutdownGrace:       getEnvAsDuration("SHUTDOWN_GRACE", 10*time.Second),
			ConfidenceThreshold: getEnvAsFloat32("OCR_CONFIDENCE_THRESHOLD", 0.5),
			DefaultPriority:     getEnvAsInt("DEFAULT_TASK_PRIORITY", 10),
			Pdftoppm:            getEnv("PDFTOPPM", "pdftoppm"),
			EasyOCRBin:          getEnv("EASYOCR_BIN", "easyocr-json"),
			TessdataDir:         getEnv("TESSDATA_PREFIX", ""),
		},
	}
}

// Helper functions for environment variable parsing
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseExts(s string) map[string]struct{} {
	if strings.TrimSpace(s) == "" {
		return constants.AllowedExtensions
	}
	exts := make(map[string]struct{})
	for _, e := range splitCSV(s) {
		exts[constants.NormalizeExt(e)] = struct{}{}
	}
	return exts
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Watch.Dir == "" {
		return NewAppError("CONFIG_ERROR", "WATCH_DIR is required", ErrInvalidInput)
	}
	if c.Database.Path == "" {
		return NewAppError("CONFIG_ERROR", "DB_PATH is required", ErrInvalidInput)
	}
	if c.OCR.Workers < 1 || c.OCR.Workers > 8 {
		return NewAppError("CONFIG_ERROR", "MAX_CONCURRENT_OCR must be between 1 and 8", ErrInvalidInput)
	}
	if c.OCR.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "PDF_DPI must be positive", ErrInvalidInput)
	}
	return nil
}
