package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func LoadConfig() (*Config, error) {
	dataDir := getenv("DATA_DIR", "./data")

	searchTimeout, err := strconv.Atoi(getenv("SEARCH_TIMEOUT_SECONDS", "15"))
	if err != nil || searchTimeout <= 0 {
		searchTimeout = 15
	}

	cfg := &Config{
		ListenAddr:          ":" + getenv("PORT", "3000"),
		DataDir:             dataDir,
		PublicDir:           getenv("PUBLIC_DIR", ""),
		MPVPath:             getenv("MPV_PATH", "mpv"),
		MPVSocket:           getenv("MPV_SOCKET", "/tmp/mpvsocket"),
		TokenSecret:         os.Getenv("JUKEBOX_SECRET"),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SearchTimeout:       time.Duration(searchTimeout) * time.Second,
	}

	if cfg.TokenSecret == "" {
		return nil, ErrConfig("JUKEBOX_SECRET required")
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)
	_ = os.MkdirAll(filepath.Dir(cfg.MPVSocket), 0o755)
	return cfg, nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
