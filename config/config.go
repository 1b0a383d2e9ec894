package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with
// sensible defaults for local development.
type Config struct {
	ServerPort string

	// Mixdown engine
	FFmpegPath   string
	FFprobePath  string
	AudioBitrate string // e.g., "192k", pipeline renderer encode bitrate
	SampleRate   int    // fixed render sample rate for both renderers
	MixRenderer  string // "pipeline" or "graph", default renderer for API jobs
	MixTempDir   string // scratch space for pipeline renders

	// Local directories
	UploadDir      string // Base directory for all uploads
	AudioUploadDir string // Subdirectory for audio files: UploadDir/audio
	OutputDir      string // Local artifact sink directory
	ArtifactSink   string // "minio" or "local"
	ImportDir      string // Watched directory for auto-imported clips
	ImportWorkers  int    // Concurrent import ingest workers
	ImportUserID   int64  // Owner of auto-imported tracks

	// Export defaults (per-user settings override these)
	DefaultLoopCount int
	DefaultFadeoutMs int
	LoopModeEnabled  bool

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// 认证配置
	JWTSecret      string
	JWTExpireHours int

	// 日志配置
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load() // Loads .env file from the current directory
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	uploadBase := getEnv("UPLOAD_DIR", "uploads")

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),

		FFmpegPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:  getEnv("FFPROBE_PATH", "ffprobe"),
		AudioBitrate: getEnv("AUDIO_BITRATE", "192k"),
		SampleRate:   getEnvInt("SAMPLE_RATE", 44100),
		MixRenderer:  getEnv("MIX_RENDERER", "graph"),
		MixTempDir:   getEnv("MIX_TEMP_DIR", filepath.Join(os.TempDir(), "1qlooper")),

		UploadDir:      uploadBase,
		AudioUploadDir: filepath.Join(uploadBase, "audio"),
		OutputDir:      getEnv("OUTPUT_DIR", "exports"),
		ArtifactSink:   getEnv("ARTIFACT_SINK", "minio"),
		ImportDir:      getEnv("IMPORT_DIR", ""), // empty disables the import watcher
		ImportWorkers:  getEnvInt("IMPORT_WORKERS", 2),
		ImportUserID:   int64(getEnvInt("IMPORT_USER_ID", 1)),

		DefaultLoopCount: getEnvInt("DEFAULT_LOOP_COUNT", 1),
		DefaultFadeoutMs: getEnvInt("DEFAULT_FADEOUT_MS", 0),
		LoopModeEnabled:  getEnvBool("LOOP_MODE_ENABLED", true),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"), // Default to localhost if not set
		DBPort:     getEnv("DB_PORT", "3306"),      // Default to standard MySQL port
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "looper"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库

		// MinIO配置
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnv("MINIO_BUCKET", "looper"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		JWTSecret:      getEnv("JWT_SECRET", "1qlooper-dev-secret"),
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 72),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
