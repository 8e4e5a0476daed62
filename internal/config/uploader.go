package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const defaultUploaderConfigPath = "~/.config/docflow/uploader.toml"

// Uploader configures the command-line bulk uploader.
type Uploader struct {
	Endpoint        string `toml:"endpoint"`
	Concurrency     int    `toml:"concurrency"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	MaxFileBytes    int64  `toml:"max_file_bytes"`
	ReuploadOnRetry bool   `toml:"reupload_on_retry"`
	DataDir         string `toml:"data_dir"`
	LogLevel        string `toml:"log_level"`
	MetricsFile     string `toml:"metrics_file"`
}

func DefaultUploader() Uploader {
	return Uploader{
		Endpoint:       "http://localhost:8080",
		Concurrency:    3,
		TimeoutSeconds: 300,
		MaxFileBytes:   domain.DefaultMaxUploadBytes,
		DataDir:        "~/.local/share/docflow",
		LogLevel:       "warn",
	}
}

// LoadUploader reads the TOML file at path (or the default location), then
// applies DOCFLOW_* environment overrides. A missing file is not an error.
func LoadUploader(path string) (Uploader, string, error) {
	cfg := DefaultUploader()

	resolved, exists, err := resolveUploaderPath(path)
	if err != nil {
		return Uploader{}, "", err
	}
	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return Uploader{}, "", fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
			return Uploader{}, "", fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return Uploader{}, "", err
	}
	return cfg, resolved, nil
}

func (u *Uploader) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("DOCFLOW_ENDPOINT")); v != "" {
		u.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("DOCFLOW_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			u.Concurrency = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DOCFLOW_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			u.TimeoutSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DOCFLOW_DATA_DIR")); v != "" {
		u.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("DOCFLOW_LOG_LEVEL")); v != "" {
		u.LogLevel = v
	}
}

func (u *Uploader) normalize() error {
	u.Endpoint = strings.TrimRight(strings.TrimSpace(u.Endpoint), "/")
	if u.Endpoint == "" {
		return errors.New("uploader config: endpoint is required")
	}
	if !strings.HasPrefix(u.Endpoint, "http://") && !strings.HasPrefix(u.Endpoint, "https://") {
		return fmt.Errorf("uploader config: endpoint %q must be an http(s) URL", u.Endpoint)
	}
	if u.Concurrency <= 0 {
		u.Concurrency = DefaultUploader().Concurrency
	}
	if u.TimeoutSeconds < 0 {
		u.TimeoutSeconds = 0
	}
	if u.MaxFileBytes <= 0 {
		u.MaxFileBytes = domain.DefaultMaxUploadBytes
	}
	dir, err := expandPath(u.DataDir)
	if err != nil {
		return err
	}
	u.DataDir = dir
	if u.MetricsFile != "" {
		metrics, err := expandPath(u.MetricsFile)
		if err != nil {
			return err
		}
		u.MetricsFile = metrics
	}
	return nil
}

func (u Uploader) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

func resolveUploaderPath(path string) (string, bool, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = defaultUploaderConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if explicit {
				return "", false, fmt.Errorf("config file %s not found", expanded)
			}
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
