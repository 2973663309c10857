package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageLocal = "local"
	StorageR2    = "r2"

	ProcessorSimulated = "simulated"
	ProcessorGemini    = "gemini"
)

type Config struct {
	Env  string
	Port string

	DBUsername string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	StorageDriver string
	UploadDir     string
	MaxFileSize   int64

	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2BucketName      string

	Processor    string
	GoogleAPIKey string

	BrokerAddress string
	SentryDSN     string

	LogLevel string
	LogFile  string

	CORSOrigins []string
	RateLimit   float64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "local")
	v.SetDefault("PORT", "3002")
	v.SetDefault("JWT_TTL", "168h")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("STORAGE_DRIVER", StorageLocal)
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("GENERATION_PROCESSOR", ProcessorSimulated)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT", 20)
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// .env is optional, the environment alone is enough
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:               v.GetString("ENV"),
		Port:              v.GetString("PORT"),
		DBUsername:        v.GetString("DB_USERNAME"),
		DBPassword:        v.GetString("DB_PASSWORD"),
		DBHost:            v.GetString("DB_HOST"),
		DBPort:            v.GetString("DB_PORT"),
		DBName:            v.GetString("DB_NAME"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		TokenTTL:          v.GetDuration("JWT_TTL"),
		BcryptCost:        v.GetInt("BCRYPT_COST"),
		StorageDriver:     strings.ToLower(v.GetString("STORAGE_DRIVER")),
		UploadDir:         v.GetString("UPLOAD_DIR"),
		MaxFileSize:       v.GetInt64("MAX_FILE_SIZE"),
		R2AccountID:       v.GetString("R2_ACCOUNT_ID"),
		R2AccessKeyID:     v.GetString("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret: v.GetString("R2_ACCESS_KEY_SECRET"),
		R2BucketName:      v.GetString("R2_BUCKET_NAME"),
		Processor:         strings.ToLower(v.GetString("GENERATION_PROCESSOR")),
		GoogleAPIKey:      v.GetString("GOOGLE_API_KEY"),
		BrokerAddress:     v.GetString("ASYNC_BROKER_ADDRESS"),
		SentryDSN:         v.GetString("SENTRY_DSN"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFile:           v.GetString("LOG_FILE"),
		CORSOrigins:       splitList(v.GetString("CORS_ORIGINS")),
		RateLimit:         v.GetFloat64("RATE_LIMIT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageLocal:
		if c.UploadDir == "" {
			return errors.New("UPLOAD_DIR is required for local storage")
		}
	case StorageR2:
		if c.R2AccountID == "" || c.R2AccessKeyID == "" || c.R2AccessKeySecret == "" || c.R2BucketName == "" {
			return errors.New("R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_ACCESS_KEY_SECRET and R2_BUCKET_NAME are required for r2 storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	switch c.Processor {
	case ProcessorSimulated:
	case ProcessorGemini:
		if c.GoogleAPIKey == "" {
			return errors.New("GOOGLE_API_KEY is required for the gemini processor")
		}
	default:
		return fmt.Errorf("unknown GENERATION_PROCESSOR %q", c.Processor)
	}

	if c.MaxFileSize <= 0 {
		return errors.New("MAX_FILE_SIZE must be positive")
	}
	if c.TokenTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.DBUsername, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) IsLocal() bool {
	return c.Env == "local"
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
