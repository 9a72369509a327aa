package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	CORSOrigin string
	AdminToken string

	// Remote document store
	GistBaseURL string
	CacheTTL    time.Duration

	// Local key-value substrate (credentials + audit trail)
	RedisURL string

	// Spreadsheet import
	SheetsAPIKey string

	// Drive to media storage sync
	DriveAPIKey    string
	StorageBackend string // "firebase" or "s3"
	StorageBucket  string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3PublicURL    string

	// Search
	MeiliURL       string
	MeiliMasterKey string

	// Snapshot archive
	SnapshotsDir string

	// Checkout
	OrderPhone string
}

func Load() Config {
	return Config{
		Addr:       getenv("API_ADDR", ":8788"),
		CORSOrigin: getenv("GALLEY_CORS_ORIGIN", "*"),
		AdminToken: getenv("GALLEY_ADMIN_TOKEN", ""),

		GistBaseURL: getenv("GALLEY_GIST_BASE_URL", "https://api.github.com/gists"),
		CacheTTL:    time.Duration(getenvInt("GALLEY_CACHE_TTL_SECONDS", 5)) * time.Second,

		RedisURL: getenv("REDIS_URL", "redis://localhost:6379/0"),

		SheetsAPIKey: getenv("GALLEY_SHEETS_API_KEY", ""),

		DriveAPIKey:    getenv("GALLEY_DRIVE_API_KEY", ""),
		StorageBackend: getenv("GALLEY_STORAGE_BACKEND", "firebase"),
		StorageBucket:  getenv("GALLEY_STORAGE_BUCKET", ""),
		S3Endpoint:     getenv("GALLEY_S3_ENDPOINT", ""),
		S3AccessKey:    getenv("GALLEY_S3_ACCESS_KEY", ""),
		S3SecretKey:    getenv("GALLEY_S3_SECRET_KEY", ""),
		S3PublicURL:    getenv("GALLEY_S3_PUBLIC_URL", ""),

		// Meili is optional; empty URL disables it and search falls
		// back to the in-memory index.
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),

		SnapshotsDir: getenv("GALLEY_SNAPSHOTS_DIR", "./data/snapshots"),

		OrderPhone: getenv("GALLEY_ORDER_PHONE", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
