package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPictureAPIURL = "https://ai-picture-488889291017.asia-northeast1.run.app"
	defaultPlotAPIURL    = "https://ai-plot-488889291017.asia-northeast1.run.app"

	defaultCharacterPrefix = "Shiki is a five-year-old human boy, and Shiro is his one-year-old little sister."
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ImagenConfig holds the fixed parameters passed to the Imagen model
type ImagenConfig struct {
	Model             string
	NumberOfImages    int
	AspectRatio       string
	SafetyFilterLevel string
	PersonGeneration  string
	AddWatermark      bool
}

// Config holds all configuration for the application
type Config struct {
	PictureAPIURL string
	PlotAPIURL    string
	HTTPTimeout   time.Duration

	GoogleProject     string
	GoogleLocation    string
	GoogleCredentials string
	GoogleAPIKey      string

	Imagen           ImagenConfig
	GeminiImageModel string

	OutputDir       string
	CharacterPrefix string

	PageDelay             time.Duration
	RetryDelay            time.Duration
	MaxServerErrorRetries int
	MaxRetries            int
	MaxSavedBooks         int

	CronSchedule  string
	CheckInterval time.Duration

	DB DBConfig
}

// Load loads the configuration from the environment. A .env file in the
// working directory is read first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := &Config{
		PictureAPIURL: getEnv("PICTURE_API_URL", defaultPictureAPIURL),
		PlotAPIURL:    getEnv("PLOT_API_URL", defaultPlotAPIURL),
		HTTPTimeout:   getEnvSeconds("HTTP_TIMEOUT", 120*time.Second),

		GoogleProject:     os.Getenv("GOOGLE_CLOUD_PROJECT"),
		GoogleLocation:    getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		GoogleCredentials: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		GoogleAPIKey:      os.Getenv("GOOGLE_API_KEY"),

		Imagen: ImagenConfig{
			Model:             getEnv("IMAGEN_MODEL", "imagen-3.0-generate-001"),
			NumberOfImages:    getEnvInt("IMAGEN_NUMBER_OF_IMAGES", 1),
			AspectRatio:       getEnv("IMAGEN_ASPECT_RATIO", "1:1"),
			SafetyFilterLevel: getEnv("IMAGEN_SAFETY_FILTER_LEVEL", "BLOCK_MEDIUM_AND_ABOVE"),
			PersonGeneration:  getEnv("IMAGEN_PERSON_GENERATION", "ALLOW_ALL"),
			AddWatermark:      getEnvBool("IMAGEN_ADD_WATERMARK", true),
		},
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.0-flash-preview-image-generation"),

		OutputDir:       getEnv("OUTPUT_DIR", "."),
		CharacterPrefix: getEnv("CHARACTER_PREFIX", defaultCharacterPrefix),

		PageDelay:             getEnvSeconds("PAGE_DELAY", 10*time.Second),
		RetryDelay:            getEnvSeconds("RETRY_DELAY", 30*time.Second),
		MaxServerErrorRetries: getEnvInt("MAX_SERVER_ERROR_RETRIES", 10),
		MaxRetries:            getEnvInt("MAX_RETRIES", 3),
		MaxSavedBooks:         getEnvInt("MAX_SAVED_BOOKS", 10),

		CronSchedule:  getEnv("CRON_SCHEDULE", "0 */3 * * * *"),
		CheckInterval: getEnvSeconds("CHECK_INTERVAL", 5*time.Second),
	}

	config.DB = DBConfig{
		Host:            os.Getenv("DB_HOST"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            os.Getenv("DB_USER"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        os.Getenv("DB_NAME"),
		SSLMode:         getEnv("DB_SSL_MODE", "disable"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: getEnvSeconds("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if config.Imagen.NumberOfImages < 1 {
		return nil, fmt.Errorf("IMAGEN_NUMBER_OF_IMAGES must be positive, got %d", config.Imagen.NumberOfImages)
	}
	if config.MaxRetries < 0 || config.MaxServerErrorRetries < 0 {
		return nil, fmt.Errorf("retry limits must not be negative")
	}
	if config.CheckInterval <= 0 {
		return nil, fmt.Errorf("CHECK_INTERVAL must be positive")
	}
	if config.MaxSavedBooks < 1 {
		return nil, fmt.Errorf("MAX_SAVED_BOOKS must be positive, got %d", config.MaxSavedBooks)
	}

	return config, nil
}

// ValidateVertex checks the settings needed by the Vertex AI backend
func (c *Config) ValidateVertex() error {
	if c.GoogleProject == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required")
	}
	if c.GoogleLocation == "" {
		return fmt.Errorf("GOOGLE_CLOUD_LOCATION is required")
	}
	return nil
}

// ValidateGemini checks the settings needed by the Gemini API backend
func (c *Config) ValidateGemini() error {
	if c.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required")
	}
	return nil
}

// ValidateDB checks the database settings
func (c *Config) ValidateDB() error {
	if c.DB.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.DB.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.DB.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.DB.Database == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	return nil
}

// ApplyCredentials exports the service account key path so the Google SDK
// picks it up through application default credentials.
func (c *Config) ApplyCredentials() error {
	if c.GoogleCredentials == "" {
		return nil
	}
	if _, err := os.Stat(c.GoogleCredentials); err != nil {
		return fmt.Errorf("credentials file: %w", err)
	}
	return os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentials)
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

// getEnvSeconds reads an integer number of seconds. Go duration strings
// such as "1m30s" are accepted too.
func getEnvSeconds(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d
	}
	return def
}
