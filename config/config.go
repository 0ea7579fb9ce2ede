package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	promoerrors "milhasradar/promoworker/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Postgres configuration
	DatabaseURL string `validate:"required"`

	// Redis configuration
	RedisAddr            string `validate:"required"`
	RedisDB              int
	RedisStream          string `validate:"required"`
	RedisStreamMaxLength int    `validate:"gte=1"`

	// Memcache configuration
	MemcacheAddr string `validate:"required"`

	// Scrape source
	ListingURL   string `validate:"required,url"`
	SourceDomain string `validate:"required,fqdn"`
	SourceName   string `validate:"required"`

	// Fetch block window after the source rate limits us
	FetchBlockTime time.Duration

	// Run defaults
	MaxArticles int  `validate:"gte=1,lte=100"`
	Enrich      bool

	// Retention thresholds
	SoftExpiryDays int `validate:"gte=1"`
	HardDeleteDays int `validate:"gte=1"`

	// Optional YAML override for the parser rule tables
	RulesPath string

	// Server / scheduling
	Port     string `validate:"required"`
	CronSpec string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))
	blockSeconds, _ := strconv.Atoi(getEnv("FETCH_BLOCK_SECONDS", "300"))
	maxArticles, _ := strconv.Atoi(getEnv("MAX_ARTICLES", "20"))
	softDays, _ := strconv.Atoi(getEnv("SOFT_EXPIRY_DAYS", "7"))
	hardDays, _ := strconv.Atoi(getEnv("HARD_DELETE_DAYS", "30"))

	return Config{
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "promotions"),
		RedisStreamMaxLength: streamMaxLen,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", "localhost:11211"),
		ListingURL:           getEnv("LISTING_URL", "https://www.milhasdoceu.com.br/promocoes"),
		SourceDomain:         getEnv("SOURCE_DOMAIN", "milhasdoceu.com.br"),
		SourceName:           getEnv("SOURCE_NAME", "milhasdoceu"),
		FetchBlockTime:       time.Duration(blockSeconds) * time.Second,
		MaxArticles:          maxArticles,
		Enrich:               getEnv("ENRICH", "true") != "false",
		SoftExpiryDays:       softDays,
		HardDeleteDays:       hardDays,
		RulesPath:            getEnv("RULES_PATH", ""),
		Port:                 getEnv("PORT", "8080"),
		CronSpec:             getEnv("CRON_SPEC", ""),
		Environment:          getEnv("PROMO_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return promoerrors.NewConfiguration("invalid configuration", err)
	}

	// The hard-delete threshold must always exceed the soft-expiry one,
	// otherwise records would be deleted while still considered active.
	if c.HardDeleteDays <= c.SoftExpiryDays {
		return promoerrors.NewConfiguration(fmt.Sprintf(
			"HARD_DELETE_DAYS (%d) must exceed SOFT_EXPIRY_DAYS (%d)",
			c.HardDeleteDays, c.SoftExpiryDays), nil)
	}

	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
