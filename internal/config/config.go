package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken string
	MySQLDSN string

	GeminiAPIKey    string
	GeminiBaseURL   string
	ImageModel      string
	TextModel       string
	ClassifierModel string
	AspectRatio     string
	ImageSize       string
	RequestTimeout  time.Duration

	DefaultBalance  int
	CreatePhotoCost int
	AnalyzeCTRCost  int

	MaxImages        int
	AlbumQuietPeriod time.Duration
	BannerPath       string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://api.laozhang.ai/v1beta/models"),
		ImageModel:       getEnv("IMAGE_MODEL", "gemini-3-pro-image-preview-2k"),
		TextModel:        getEnv("TEXT_MODEL", "gemini-3-flash-preview"),
		ClassifierModel:  getEnv("CLASSIFIER_MODEL", "gemma-3-12b-it"),
		AspectRatio:      getEnv("IMAGE_ASPECT_RATIO", "3:4"),
		ImageSize:        getEnv("IMAGE_SIZE", "2K"),
		RequestTimeout:   time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 180)),
		DefaultBalance:   getInt("DEFAULT_BALANCE", 50),
		CreatePhotoCost:  getInt("CREATE_PHOTO_COST", 25),
		AnalyzeCTRCost:   getInt("ANALYZE_CTR_COST", 5),
		MaxImages:        getInt("MAX_IMAGES", 5),
		AlbumQuietPeriod: time.Millisecond * time.Duration(getInt("ALBUM_QUIET_PERIOD_MS", 1500)),
		BannerPath:       getEnv("BANNER_PATH", filepath.Join("assets", "menu_banner.png")),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiBaseURL = strings.TrimRight(cfg.GeminiBaseURL, "/")

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely off the process environment is fine.
	return nil
}
