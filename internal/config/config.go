package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port            string        `json:"port"`
	Env             string        `json:"env"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	HTTPTimeout     time.Duration `json:"http_timeout"`

	// Redis configuration (device mirror and section selections)
	RedisURL    string `json:"redis_url"`
	RedisPrefix string `json:"redis_prefix"`

	// Appwrite configuration
	AppwriteURL          string `json:"appwrite_url"`
	AppwriteProjectID    string `json:"appwrite_project_id"`
	AppwriteAPIKey       string `json:"appwrite_api_key"`
	AppwriteDatabaseID   string `json:"appwrite_database_id"`
	UserCollectionID     string `json:"user_collection_id"`
	PostCollectionID     string `json:"post_collection_id"`
	CategoryCollectionID string `json:"category_collection_id"`
	OrderCollectionID    string `json:"order_collection_id"`
	BannerCollectionID   string `json:"banner_collection_id"`
	SavesCollectionID    string `json:"saves_collection_id"`
	AppwritePageSize     int    `json:"appwrite_page_size"`

	// CloudFlare R2 Configuration
	R2Endpoint  string `json:"r2_endpoint"`
	R2AccessKey string `json:"r2_access_key"`
	R2SecretKey string `json:"r2_secret_key"`
	R2Bucket    string `json:"r2_bucket"`
	R2PublicURL string `json:"r2_public_url"`

	// Auth
	JWTSecret   string        `json:"-"`
	JWTIssuer   string        `json:"jwt_issuer"`
	JWTTTL      time.Duration `json:"jwt_ttl"`
	AdminAPIKey string        `json:"-"`

	// Homepage behaviour
	PostsLimit       int           `json:"posts_limit"`
	OrderSaveTimeout time.Duration `json:"order_save_timeout"`
	SectionLeftCount int           `json:"section_left_count"`
	MaxImageSize     int64         `json:"max_image_size"`

	// Storage (in-memory backend snapshot, local media)
	StoragePath string `json:"storage_path"`
	MediaDir    string `json:"media_dir"`

	// Development sign-in for the in-memory backend
	DevAdminEmail    string `json:"dev_admin_email"`
	DevAdminPassword string `json:"-"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

// Load loads configuration from environment variables and validates it
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// FromEnv reads the configuration without loading .env or validating.
func FromEnv() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("APP_ENV", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),

		RedisURL:    getEnv("REDIS_URL", ""),
		RedisPrefix: getEnv("REDIS_PREFIX", "altavoz:"),

		AppwriteURL:          getEnv("APPWRITE_URL", ""),
		AppwriteProjectID:    getEnv("APPWRITE_PROJECT_ID", ""),
		AppwriteAPIKey:       getEnv("APPWRITE_API_KEY", ""),
		AppwriteDatabaseID:   getEnv("APPWRITE_DATABASE_ID", ""),
		UserCollectionID:     getEnv("APPWRITE_USER_COLLECTION_ID", ""),
		PostCollectionID:     getEnv("APPWRITE_POST_COLLECTION_ID", ""),
		CategoryCollectionID: getEnv("APPWRITE_CATEGORIES_COLLECTION_ID", ""),
		OrderCollectionID:    getEnv("APPWRITE_POST_ORDER_COLLECTION_ID", ""),
		BannerCollectionID:   getEnv("APPWRITE_BANNER_COLLECTION_ID", ""),
		SavesCollectionID:    getEnv("APPWRITE_SAVES_COLLECTION_ID", ""),
		AppwritePageSize:     getEnvAsInt("APPWRITE_PAGE_SIZE", 100),

		R2Endpoint:  getEnv("R2_ENDPOINT", ""),
		R2AccessKey: getEnv("R2_ACCESS_KEY", ""),
		R2SecretKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:    getEnv("R2_BUCKET", "altavoz"),
		R2PublicURL: getEnv("R2_PUBLIC_URL", ""),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "altavoz"),
		JWTTTL:      getEnvAsDuration("JWT_TTL", 12*time.Hour),
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),

		PostsLimit:       getEnvAsInt("POSTS_LIMIT", 20),
		OrderSaveTimeout: getEnvAsDuration("ORDER_SAVE_TIMEOUT", 10*time.Second),
		SectionLeftCount: getEnvAsInt("SECTION_LEFT_COUNT", 4),
		MaxImageSize:     getEnvAsInt64("MAX_IMAGE_SIZE", 10<<20), // 10MB

		StoragePath: getEnv("STORAGE_PATH", "./data"),
		MediaDir:    getEnv("MEDIA_DIR", "./data/media"),

		DevAdminEmail:    getEnv("DEV_ADMIN_EMAIL", ""),
		DevAdminPassword: getEnv("DEV_ADMIN_PASSWORD", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// UseAppwrite reports whether the Appwrite backend is configured.
func (c *Config) UseAppwrite() bool { return c.AppwriteURL != "" }

// UseRedis reports whether a Redis cache is configured.
func (c *Config) UseRedis() bool { return c.RedisURL != "" }

// UseR2 reports whether R2 object storage is configured.
func (c *Config) UseR2() bool { return c.R2Endpoint != "" }

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.UseAppwrite() {
		required := map[string]string{
			"APPWRITE_PROJECT_ID":               c.AppwriteProjectID,
			"APPWRITE_API_KEY":                  c.AppwriteAPIKey,
			"APPWRITE_DATABASE_ID":              c.AppwriteDatabaseID,
			"APPWRITE_USER_COLLECTION_ID":       c.UserCollectionID,
			"APPWRITE_POST_COLLECTION_ID":       c.PostCollectionID,
			"APPWRITE_CATEGORIES_COLLECTION_ID": c.CategoryCollectionID,
			"APPWRITE_POST_ORDER_COLLECTION_ID": c.OrderCollectionID,
			"APPWRITE_BANNER_COLLECTION_ID":     c.BannerCollectionID,
			"APPWRITE_SAVES_COLLECTION_ID":      c.SavesCollectionID,
		}
		for name, value := range required {
			if value == "" {
				errs = append(errs, fmt.Errorf("%s is required when APPWRITE_URL is set", name))
			}
		}
	}

	if c.UseR2() && (c.R2AccessKey == "" || c.R2SecretKey == "" || c.R2Bucket == "") {
		errs = append(errs, errors.New("R2_ACCESS_KEY, R2_SECRET_ACCESS_KEY and R2_BUCKET are required when R2_ENDPOINT is set"))
	}

	if c.JWTSecret == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}

	if c.PostsLimit <= 0 {
		errs = append(errs, fmt.Errorf("POSTS_LIMIT must be positive, got %d", c.PostsLimit))
	}
	if c.SectionLeftCount < 0 {
		errs = append(errs, fmt.Errorf("SECTION_LEFT_COUNT must not be negative, got %d", c.SectionLeftCount))
	}

	return errors.Join(errs...)
}

// Helper functions for environment variable handling
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsInt64(name string, defaultVal int64) int64 {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}
