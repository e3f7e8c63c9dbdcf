// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// AdminConfig provides settings for the token-guarded admin read API.
type AdminConfig interface {
	GetAdminAPIToken() string
}

// AmoCRMConfig provides settings for the AmoCRM API client.
type AmoCRMConfig interface {
	GetAmoCRMDomain() string
	GetAmoCRMAccessToken() string
	GetAmoCRMTimeout() time.Duration
}

// PipelineConfig provides the stage filter and custom-field mapping
// used by the attribution pipeline.
type PipelineConfig interface {
	GetExpressPipelineID() int64
	GetChallenge3DPipelineIDs() []int64
	GetSuccessStatusID() int64
	GetUTMFieldIDs() UTMFieldIDs
	GetPrepaidThreshold() int64
}

// TelegramConfig provides settings for sale alert delivery.
type TelegramConfig interface {
	GetTelegramBotToken() string
	GetTelegramChatIDs() []string
	GetTelegramTimeout() time.Duration
	IsTelegramEnabled() bool
}

// SchedulerConfig provides settings for the asynq background scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetImportInterval() time.Duration
}

// UTMFieldIDs maps AmoCRM numeric custom-field IDs to UTM keys.
// Zero means the field is not configured in the CRM account.
type UTMFieldIDs struct {
	Source   int64
	Medium   int64
	Campaign int64
	Content  int64
	Term     int64
	Referrer int64
	ClickID  int64
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env          string
	HTTPAddr     string
	DatabaseURL  string
	CORSAllowAll bool
	CORSOrigins  []string

	AdminAPIToken string

	AmoCRMDomain      string
	AmoCRMAccessToken string
	AmoCRMTimeout     time.Duration

	ExpressPipelineID      int64
	Challenge3DPipelineIDs []int64
	SuccessStatusID        int64
	UTMFields              UTMFieldIDs
	PrepaidThreshold       int64

	TelegramBotToken string
	TelegramChatIDs  []string
	TelegramTimeout  time.Duration

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	ImportInterval   time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// AdminConfig implementation
func (c *Config) GetAdminAPIToken() string { return c.AdminAPIToken }

// AmoCRMConfig implementation
func (c *Config) GetAmoCRMDomain() string          { return c.AmoCRMDomain }
func (c *Config) GetAmoCRMAccessToken() string     { return c.AmoCRMAccessToken }
func (c *Config) GetAmoCRMTimeout() time.Duration  { return c.AmoCRMTimeout }

// PipelineConfig implementation
func (c *Config) GetExpressPipelineID() int64        { return c.ExpressPipelineID }
func (c *Config) GetChallenge3DPipelineIDs() []int64 { return c.Challenge3DPipelineIDs }
func (c *Config) GetSuccessStatusID() int64          { return c.SuccessStatusID }
func (c *Config) GetUTMFieldIDs() UTMFieldIDs        { return c.UTMFields }
func (c *Config) GetPrepaidThreshold() int64         { return c.PrepaidThreshold }

// TelegramConfig implementation
func (c *Config) GetTelegramBotToken() string       { return c.TelegramBotToken }
func (c *Config) GetTelegramChatIDs() []string      { return c.TelegramChatIDs }
func (c *Config) GetTelegramTimeout() time.Duration { return c.TelegramTimeout }
func (c *Config) IsTelegramEnabled() bool {
	return c.TelegramBotToken != "" && len(c.TelegramChatIDs) > 0
}

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool       { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string       { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int        { return c.AsynqConcurrency }
func (c *Config) GetImportInterval() time.Duration { return c.ImportInterval }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:          getEnv("APP_ENV", "development"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		CORSAllowAll: corsAllowAll,
		CORSOrigins:  corsOrigins,

		AdminAPIToken: getEnv("ADMIN_API_TOKEN", ""),

		AmoCRMDomain:      getEnv("AMOCRM_DOMAIN", ""),
		AmoCRMAccessToken: getEnv("AMOCRM_ACCESS_TOKEN", ""),
		AmoCRMTimeout:     mustDuration(getEnv("AMOCRM_TIMEOUT", "60s")),

		ExpressPipelineID:      mustInt64(getEnv("AMOCRM_EXPRESS_PIPELINE_ID", "10350882")),
		Challenge3DPipelineIDs: splitInt64CSV(getEnv("AMOCRM_CHALLENGE3D_PIPELINE_IDS", "9777626,9430994")),
		SuccessStatusID:        mustInt64(getEnv("AMOCRM_SUCCESS_STATUS_ID", "142")),
		UTMFields: UTMFieldIDs{
			Source:   mustInt64(getEnv("AMOCRM_FIELD_UTM_SOURCE", "434731")),
			Medium:   mustInt64(getEnv("AMOCRM_FIELD_UTM_MEDIUM", "434727")),
			Campaign: mustInt64(getEnv("AMOCRM_FIELD_UTM_CAMPAIGN", "434729")),
			Content:  mustInt64(getEnv("AMOCRM_FIELD_UTM_CONTENT", "434725")),
			Term:     mustInt64(getEnv("AMOCRM_FIELD_UTM_TERM", "434733")),
			Referrer: mustInt64(getEnv("AMOCRM_FIELD_UTM_REFERRER", "434735")),
			ClickID:  mustInt64(getEnv("AMOCRM_FIELD_FBCLID", "434761")),
		},
		PrepaidThreshold: mustInt64(getEnv("PREPAID_THRESHOLD", "10000")),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatIDs:  splitCSV(getEnv("TELEGRAM_CHAT_IDS", "")),
		TelegramTimeout:  mustDuration(getEnv("TELEGRAM_TIMEOUT", "5s")),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "1"))),
		ImportInterval:   mustDuration(getEnv("IMPORT_INTERVAL", "24h")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SuccessStatusID == 0 {
		return nil, fmt.Errorf("AMOCRM_SUCCESS_STATUS_ID is required")
	}
	if cfg.ExpressPipelineID == 0 {
		return nil, fmt.Errorf("AMOCRM_EXPRESS_PIPELINE_ID is required")
	}
	if cfg.TelegramBotToken != "" && len(cfg.TelegramChatIDs) == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_IDS is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func splitInt64CSV(value string) []int64 {
	results := make([]int64, 0, 2)
	for _, part := range splitCSV(value) {
		if id := mustInt64(part); id != 0 {
			results = append(results, id)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
