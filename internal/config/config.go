package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	InboxDir  string
	OutputDir string

	// Header detection.
	HeaderProbeRows   int
	FallbackHeaderRow int
	SynonymsPath      string

	// Process routing.
	RulesPath string

	// Catalog API (optional remote source for sheet specs).
	CatalogAPIBaseURL string
	CatalogAPIToken   string
	CatalogRateRPS    int
	CatalogTimeoutMs  int

	// Watcher.
	WatchIntervalSec int
	WatchBatch       int
	WatchAutoExport  bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "opcost.db")),
		InboxDir:  getEnv("OP_INBOX_DIR", filepath.Join(cwd, "data", "inbox")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		HeaderProbeRows:   getEnvInt("HEADER_PROBE_ROWS", 50),
		FallbackHeaderRow: getEnvInt("HEADER_FALLBACK_ROW", 0),
		SynonymsPath:      getEnv("HEADER_SYNONYMS_PATH", ""),

		RulesPath: getEnv("PROCESS_RULES_PATH", ""),

		CatalogAPIBaseURL: getEnv("CATALOG_API_BASE_URL", ""),
		CatalogAPIToken:   getEnv("CATALOG_API_TOKEN", ""),
		CatalogRateRPS:    getEnvInt("CATALOG_RATE_LIMIT_RPS", 5),
		CatalogTimeoutMs:  getEnvInt("CATALOG_TIMEOUT_MS", 30000),

		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 30),
		WatchBatch:       getEnvInt("WATCH_PROCESS_BATCH", 20),
		WatchAutoExport:  getEnvBool("WATCH_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
