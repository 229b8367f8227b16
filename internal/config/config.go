/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables and an
 * optional .env file, providing a centralized way to manage application
 * settings.
 *
 * Monetary settings (default balance, daily limit, transfer bounds) are given
 * as decimal strings ("1000.00") and converted to paisa internally.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/hamza-sanaullah/Plutus/internal/domain"
)

// Config holds all the configuration variables for the ledger service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	// Storage backend: "csv" (default), "postgres" or "memory".
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	DataDir      string `mapstructure:"DATA_DIR"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`

	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`

	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	TransferEventExchange string `mapstructure:"TRANSFER_EVENT_EXCHANGE"`

	DefaultBalance    string `mapstructure:"DEFAULT_BALANCE"`
	DefaultDailyLimit string `mapstructure:"DEFAULT_DAILY_LIMIT"`
	MinTransferAmount string `mapstructure:"MIN_TRANSFER_AMOUNT"`
	MaxTransferAmount string `mapstructure:"MAX_TRANSFER_AMOUNT"`

	TransferRateLimitPerMinute int `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	StorageRetryAttempts       int `mapstructure:"STORAGE_RETRY_ATTEMPTS"`

	// Derived paisa values, populated by LoadConfig.
	DefaultBalancePaisa    int64 `mapstructure:"-"`
	DefaultDailyLimitPaisa int64 `mapstructure:"-"`
	MinTransferPaisa       int64 `mapstructure:"-"`
	MaxTransferPaisa       int64 `mapstructure:"-"`
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STORE_BACKEND", "csv")
	viper.SetDefault("DATA_DIR", "data")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "plutus:rate_limit")
	viper.SetDefault("TRANSFER_EVENT_EXCHANGE", "plutus.transfers")
	viper.SetDefault("DEFAULT_BALANCE", "1000.00")
	viper.SetDefault("DEFAULT_DAILY_LIMIT", "10000.00")
	viper.SetDefault("MIN_TRANSFER_AMOUNT", "0.01")
	viper.SetDefault("MAX_TRANSFER_AMOUNT", "50000.00")
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("STORAGE_RETRY_ATTEMPTS", 3)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("STORE_BACKEND")
	_ = viper.BindEnv("DATA_DIR")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("TRANSFER_EVENT_EXCHANGE")
	_ = viper.BindEnv("DEFAULT_BALANCE")
	_ = viper.BindEnv("DEFAULT_DAILY_LIMIT")
	_ = viper.BindEnv("MIN_TRANSFER_AMOUNT")
	_ = viper.BindEnv("MAX_TRANSFER_AMOUNT")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("STORAGE_RETRY_ATTEMPTS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.StoreBackend = strings.ToLower(strings.TrimSpace(config.StoreBackend))
	if config.StoreBackend == "" {
		config.StoreBackend = "csv"
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "plutus:rate_limit"
	}

	config.DefaultBalancePaisa = parseMoneySetting("DEFAULT_BALANCE", config.DefaultBalance, 100_000)
	config.DefaultDailyLimitPaisa = parseMoneySetting("DEFAULT_DAILY_LIMIT", config.DefaultDailyLimit, 1_000_000)
	config.MinTransferPaisa = parseMoneySetting("MIN_TRANSFER_AMOUNT", config.MinTransferAmount, 1)
	config.MaxTransferPaisa = parseMoneySetting("MAX_TRANSFER_AMOUNT", config.MaxTransferAmount, 5_000_000)

	if config.MaxTransferPaisa > 0 && config.MinTransferPaisa > config.MaxTransferPaisa {
		log.Printf("level=warn component=config msg=\"min transfer exceeds max; swapping\" min=%d max=%d",
			config.MinTransferPaisa, config.MaxTransferPaisa)
		config.MinTransferPaisa, config.MaxTransferPaisa = config.MaxTransferPaisa, config.MinTransferPaisa
	}
	if config.StorageRetryAttempts <= 0 {
		config.StorageRetryAttempts = 3
	}

	return
}

// parseMoneySetting converts a decimal-string setting to paisa, falling back
// to the given default on bad input.
func parseMoneySetting(name, value string, fallback int64) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	paisa, err := domain.ParseAmount(value)
	if err != nil || paisa < 0 {
		log.Printf("level=warn component=config msg=\"invalid monetary setting; using default\" setting=%s value=%q", name, value)
		return fallback
	}
	return paisa
}
