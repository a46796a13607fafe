/**
 * @description
 * This package handles the configuration management for the service. It
 * uses the Viper library to read configuration from environment variables,
 * providing a centralized way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the packet-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix          string `mapstructure:"REDIS_KEY_PREFIX"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	PacketEventExchange     string `mapstructure:"PACKET_EVENT_EXCHANGE"`
	ClaimArchiveQueue       string `mapstructure:"CLAIM_ARCHIVE_QUEUE"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	AuthJWKSURL             string `mapstructure:"AUTH_JWKS_URL"`
	AuthIssuer              string `mapstructure:"AUTH_ISSUER"`
	AuthAudience            string `mapstructure:"AUTH_AUDIENCE"`
	DefaultExpireMinutes    int    `mapstructure:"DEFAULT_EXPIRE_MINUTES"`
	ClaimLockTTLSeconds     int    `mapstructure:"CLAIM_LOCK_TTL_SECONDS"`
	ClaimRateLimitPerMinute int    `mapstructure:"CLAIM_RATE_LIMIT_PER_MINUTE"`
	MaxPacketCount          int    `mapstructure:"MAX_PACKET_COUNT"`
}

// LoadConfig reads configuration from environment variables and an
// optional .env file at the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_KEY_PREFIX", "packet")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "packet:rate_limit")
	viper.SetDefault("PACKET_EVENT_EXCHANGE", "packet.events")
	viper.SetDefault("CLAIM_ARCHIVE_QUEUE", "packet_service.claim_archive")
	viper.SetDefault("DEFAULT_EXPIRE_MINUTES", 1440)
	viper.SetDefault("CLAIM_LOCK_TTL_SECONDS", 10)
	viper.SetDefault("CLAIM_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("MAX_PACKET_COUNT", 1000)

	_ = viper.BindEnv("SERVER_PORT", "SERVER_PORT", "PORT")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PACKET_REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PACKET_EVENT_EXCHANGE")
	_ = viper.BindEnv("CLAIM_ARCHIVE_QUEUE")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("AUTH_ISSUER")
	_ = viper.BindEnv("AUTH_AUDIENCE")
	_ = viper.BindEnv("DEFAULT_EXPIRE_MINUTES")
	_ = viper.BindEnv("CLAIM_LOCK_TTL_SECONDS")
	_ = viper.BindEnv("CLAIM_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("MAX_PACKET_COUNT")

	if err = viper.ReadInConfig(); err != nil {
		// A missing .env file is fine; environment values still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "packet"
	}
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "packet:rate_limit"
	}

	if config.DefaultExpireMinutes <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive default expiry configured; using 1440\" minutes=%d", config.DefaultExpireMinutes)
		config.DefaultExpireMinutes = 1440
	}
	if config.ClaimLockTTLSeconds <= 0 {
		config.ClaimLockTTLSeconds = 10
	}
	if config.ClaimRateLimitPerMinute < 0 {
		config.ClaimRateLimitPerMinute = 0
	}
	if config.MaxPacketCount <= 0 {
		config.MaxPacketCount = 1000
	}

	return
}
