package config

import "time"

type Config struct {
	ListenAddr string
	DataDir    string
	PublicDir  string

	MPVPath   string
	MPVSocket string

	TokenSecret string

	SpotifyClientID     string
	SpotifyClientSecret string

	SearchTimeout time.Duration
}
