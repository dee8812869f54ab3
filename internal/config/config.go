// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Vision  VisionConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type StorageConfig struct {
	DataDir  string
	FilesDir string
}

// VisionConfig configures the vision-capable provider used for document
// extraction. APIKey may be empty; document uploads then fail with a
// configuration message instead of an extraction one.
type VisionConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Storage: StorageConfig{
			DataDir:  dataDir,
			FilesDir: filepath.Join(dataDir, "files"),
		},
		Vision: VisionConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from ATENDA_* environment variables on top of
// defaults. A .env file in the working directory is loaded first when
// present; real environment variables win over it.
func Load() (Config, error) {
	// godotenv does not overwrite variables already set in the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return loadFromEnv()
}

func loadFromEnv() (Config, error) {
	cfg := defaults()

	applyString(&cfg.Server.Token, "ATENDA_API_TOKEN")
	applyString(&cfg.Storage.DataDir, "ATENDA_DATA_DIR")
	applyString(&cfg.Storage.FilesDir, "ATENDA_FILES_DIR")
	applyString(&cfg.Vision.APIKey, "ATENDA_VISION_API_KEY")
	applyString(&cfg.Vision.BaseURL, "ATENDA_VISION_BASE_URL")
	applyString(&cfg.Vision.Model, "ATENDA_VISION_MODEL")
	applyString(&cfg.Log.Level, "ATENDA_LOG_LEVEL")

	if raw := os.Getenv("ATENDA_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ATENDA_PORT %q: %w", raw, err)
		}
		cfg.Server.Port = port
	}

	if cfg.Server.Token == "" {
		return Config{}, fmt.Errorf("missing required config: API token. Set it via environment variable ATENDA_API_TOKEN")
	}

	// FilesDir follows a relocated DataDir unless set explicitly.
	if os.Getenv("ATENDA_FILES_DIR") == "" && os.Getenv("ATENDA_DATA_DIR") != "" {
		cfg.Storage.FilesDir = filepath.Join(cfg.Storage.DataDir, "files")
	}

	return cfg, nil
}

func applyString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "atenda-data"
		}
	}
	return filepath.Join(dir, "atenda")
}
