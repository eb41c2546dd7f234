package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DatabaseConfig holds all the configuration for the catalog connection.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSL      string
}

// StorageConfig names the directory tree the pipeline works in.
type StorageConfig struct {
	Root    string
	Imports string
	Assets  string
	Images  string
	Videos  string
	Private string
	Temp    string
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	LogLevel          string
	WorkerConcurrency int
	PublicBaseURL     string
}

// MediaConfig carries the transformation tuning knobs.
type MediaConfig struct {
	Image     ImageConfig
	Video     VideoConfig
	Thumbnail ThumbnailConfig
	Preview   PreviewConfig
}

type ImageConfig struct {
	Quality   int
	MaxWidth  int
	MaxHeight int
}

type VideoConfig struct {
	SegmentDuration int
	Preset          string
	CRF             int
	AudioBitrate    string
	MaxWidth        int
	MaxHeight       int
}

type ThumbnailConfig struct {
	Width            int
	FPS              int
	Duration         int
	Quality          int
	CompressionLevel int
}

type PreviewConfig struct {
	Width            int
	FPS              int
	MaxFrames        int
	Quality          int
	CompressionLevel int
}

// Config is the full application configuration.
type Config struct {
	DB      DatabaseConfig
	Storage StorageConfig
	Server  ServerConfig
	Media   MediaConfig
}

// IsDevelopmentMode checks if the application is running in development mode
func IsDevelopmentMode() bool {
	return strings.ToLower(os.Getenv("SERVER_ENV")) == "development"
}

// LoadEnvironment loads environment variables from the appropriate .env file.
// It automatically loads .env.development in development mode, .env otherwise.
func LoadEnvironment() {
	isDev := IsDevelopmentMode()

	envFile := ".env"
	if isDev {
		if _, err := os.Stat(".env.development"); err == nil {
			envFile = ".env.development"
		}
	}

	if err := godotenv.Load(envFile); err != nil {
		log.Printf("Running without %s file, using environment variables", envFile)
	} else {
		log.Printf("Environment variables loaded from %s file", envFile)
	}
}

// Load assembles the full configuration from the environment.
func Load() Config {
	return Config{
		DB:      LoadDBConfig(),
		Storage: LoadStorageConfig(),
		Server:  LoadServerConfig(),
		Media:   LoadMediaConfig(),
	}
}

// LoadDBConfig loads catalog connection settings from environment variables.
func LoadDBConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Password: "password",
		DBName:   "media_streaming",
		SSL:      "disable",
	}

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		cfg.Port = port
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}
	if ssl := os.Getenv("DB_SSL"); ssl != "" {
		cfg.SSL = ssl
	}

	return cfg
}

// LoadStorageConfig resolves the working directory tree under STORAGE_ROOT.
func LoadStorageConfig() StorageConfig {
	root := "/app"
	if v := strings.TrimSpace(os.Getenv("STORAGE_ROOT")); v != "" {
		root = v
	}

	assets := filepath.Join(root, "assets")
	return StorageConfig{
		Root:    root,
		Imports: filepath.Join(root, "imports"),
		Assets:  assets,
		Images:  filepath.Join(assets, "images"),
		Videos:  filepath.Join(assets, "videos"),
		Private: filepath.Join(root, "private"),
		Temp:    filepath.Join(root, "temp"),
	}
}

// EnsureDirs creates every configured directory that does not exist yet.
func (s StorageConfig) EnsureDirs() error {
	for _, dir := range []string{s.Imports, s.Assets, s.Images, s.Videos, s.Private, s.Temp} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// LoadServerConfig loads process-level settings from environment variables.
func LoadServerConfig() ServerConfig {
	cfg := ServerConfig{
		LogLevel:          "info",
		WorkerConcurrency: 1,
		PublicBaseURL:     "https://localhost:1027",
	}
	if IsDevelopmentMode() {
		cfg.LogLevel = "debug"
	}

	if logLevel := os.Getenv("SERVER_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if raw := strings.TrimSpace(os.Getenv("WORKER_CONCURRENCY")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.WorkerConcurrency = n
		}
	}
	if baseURL := strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")); baseURL != "" {
		cfg.PublicBaseURL = strings.TrimRight(baseURL, "/")
	}

	return cfg
}

// LoadMediaConfig returns the transformation settings. These are fixed
// contracts of the output format rather than operator knobs.
func LoadMediaConfig() MediaConfig {
	return MediaConfig{
		Image: ImageConfig{
			Quality:   85,
			MaxWidth:  3840,
			MaxHeight: 2160,
		},
		Video: VideoConfig{
			SegmentDuration: 10,
			Preset:          "veryfast",
			CRF:             23,
			AudioBitrate:    "128k",
			MaxWidth:        1280,
			MaxHeight:       720,
		},
		Thumbnail: ThumbnailConfig{
			Width:            320,
			FPS:              10,
			Duration:         3,
			Quality:          75,
			CompressionLevel: 6,
		},
		Preview: PreviewConfig{
			Width:            480,
			FPS:              5,
			MaxFrames:        20,
			Quality:          80,
			CompressionLevel: 6,
		},
	}
}
