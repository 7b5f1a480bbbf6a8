package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultMaxUploadBytes はアップロード画像の上限サイズ（20MiB）です。
	DefaultMaxUploadBytes int64 = 20 << 20
	defaultModel                = "gemini-2.5-flash-image"
)

// Config は環境変数から読み込むアプリケーション設定です。
type Config struct {
	AppEnv           string
	Port             string
	LogLevel         string
	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string
	HistoryLimit     int
	MaxUploadBytes   int64
	GenerateTimeout  time.Duration
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// Load は .env / .env.local を読み込んだうえで環境変数から Config を組み立てます。
// ファイルが無くてもエラーにはなりません。API キーの有無もここでは検証しません。
func Load() *Config {
	_ = godotenv.Load(".env", ".env.local")
	return FromEnv()
}

// FromEnv は現在の環境変数だけから Config を組み立てます。
func FromEnv() *Config {
	return &Config{
		AppEnv:           getenv("APP_ENV", "development"),
		Port:             getenv("PORT", "8080"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		GeminiAPIKey:     getenv("GEMINI_API_KEY", os.Getenv("API_KEY")),
		GeminiModel:      getenv("GEMINI_MODEL", defaultModel),
		GeminiBaseURL:    os.Getenv("GEMINI_BASE_URL"),
		HistoryLimit:     getenvInt("HISTORY_LIMIT", 0),
		MaxUploadBytes:   int64(getenvInt("MAX_UPLOAD_BYTES", int(DefaultMaxUploadBytes))),
		GenerateTimeout:  getenvDuration("GENERATE_TIMEOUT", 0),
		HTTPReadTimeout:  getenvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
		HTTPWriteTimeout: getenvDuration("HTTP_WRITE_TIMEOUT", 5*time.Minute),
		HTTPIdleTimeout:  getenvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getenvDuration は "90s" のような time.Duration 表記と、単位なしの秒数の両方を受け付けます。
func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if sec, err := strconv.Atoi(v); err == nil {
		return time.Duration(sec) * time.Second
	}
	return def
}
