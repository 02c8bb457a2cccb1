// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	TrustProxy     bool   `mapstructure:"TRUST_PROXY_HEADER"`

	// Per-user and room-wide send limits (fixed window).
	ChatMsgRateLimit  int `mapstructure:"CHAT_MSG_RATE_LIMIT"`
	ChatMsgRatePeriod int `mapstructure:"CHAT_MSG_RATE_PERIOD"`
	RoomMsgRateLimit  int `mapstructure:"ROOM_MSG_RATE_LIMIT"`
	RoomMsgRatePeriod int `mapstructure:"ROOM_MSG_RATE_PERIOD"`

	// Anti-spam heuristics.
	DuplicateMsgTTL     int     `mapstructure:"DUPLICATE_MSG_TTL"`
	EmojiSpamMinRepeats int     `mapstructure:"EMOJI_SPAM_MIN_REPEATS"`
	EmojiSpamTTL        int     `mapstructure:"EMOJI_SPAM_TTL"`
	PasteLongMsgLen     int     `mapstructure:"PASTE_LONG_MSG_LEN"`
	PasteTypedMsMax     int     `mapstructure:"PASTE_TYPED_MS_MAX"`
	TypingCPSThreshold  float64 `mapstructure:"TYPING_CPS_THRESHOLD"`
	FastLongMsgLen      int     `mapstructure:"FAST_LONG_MSG_LEN"`
	FastLongMinInterval int     `mapstructure:"FAST_LONG_MIN_INTERVAL"`

	// Strike accumulation and auto-mute.
	AbuseWindow          int `mapstructure:"CHAT_ABUSE_WINDOW"`
	AbuseStrikeThreshold int `mapstructure:"CHAT_ABUSE_STRIKE_THRESHOLD"`
	AbuseMuteSeconds     int `mapstructure:"CHAT_ABUSE_MUTE_SECONDS"`

	// Message body and retention.
	MaxMessageLen      int `mapstructure:"CHAT_MAX_MESSAGE_LEN"`
	KeepLastMessages   int `mapstructure:"CHAT_MAX_MESSAGES_PER_ROOM"`
	PurgeMessageDays   int `mapstructure:"CHAT_PURGE_MESSAGE_DAYS"`
	PurgeCodeRoomDays  int `mapstructure:"CHAT_PURGE_CODE_ROOM_DAYS"`
	PurgeBatchSize     int `mapstructure:"CHAT_PURGE_BATCH_SIZE"`
	UnverifiedMsgLimit int `mapstructure:"CHAT_UNVERIFIED_MSG_LIMIT"`
	VerifyMandatory    bool `mapstructure:"CHAT_VERIFY_MANDATORY"`

	// Uploads.
	UploadDailyCap      int    `mapstructure:"CHAT_UPLOAD_DAILY_CAP"`
	UploadMaxBytes      int64  `mapstructure:"CHAT_UPLOAD_MAX_BYTES"`
	UploadAllowedPrefix string `mapstructure:"CHAT_UPLOAD_ALLOWED_PREFIX"`

	// Code rooms.
	PrivateRoomMemberLimit int `mapstructure:"PRIVATE_ROOM_MEMBER_LIMIT"`
	JoinRequestStaleSecs   int `mapstructure:"CHAT_JOIN_REQUEST_STALE_SECONDS"`

	// Calls.
	CallInviteRateLimit  int    `mapstructure:"CALL_INVITE_RATE_LIMIT"`
	CallInviteRatePeriod int    `mapstructure:"CALL_INVITE_RATE_PERIOD"`
	RTCAppID             string `mapstructure:"RTC_APP_ID"`
	RTCAppCertificate    string `mapstructure:"RTC_APP_CERTIFICATE"`
	RTCTokenTTL          int    `mapstructure:"RTC_TOKEN_TTL"`

	// Moderation (optional LLM gate).
	ModerationEnabled    bool    `mapstructure:"AI_MODERATION_ENABLED"`
	ModerationURL        string  `mapstructure:"AI_MODERATION_URL"`
	ModerationTimeout    int     `mapstructure:"AI_MODERATION_TIMEOUT"`
	AIBlockMinSeverity   int     `mapstructure:"AI_BLOCK_MIN_SEVERITY"`
	AIFlagMinSeverity    int     `mapstructure:"AI_FLAG_MIN_SEVERITY"`
	AIMinConfidence      float64 `mapstructure:"AI_MIN_CONFIDENCE"`
	CompanionBotEnabled  bool    `mapstructure:"COMPANION_BOT_ENABLED"`
	CompanionBotUsername string  `mapstructure:"COMPANION_BOT_USERNAME"`

	// Notifications.
	NotifyPersistWhenOnline bool   `mapstructure:"NOTIFY_PERSIST_WHEN_ONLINE"`
	PushProviderURL         string `mapstructure:"PUSH_PROVIDER_URL"`
	PushProviderToken       string `mapstructure:"PUSH_PROVIDER_TOKEN"`
	PushTimeout             int    `mapstructure:"PUSH_TIMEOUT"`

	// Username policy.
	UsernameCooldownDays int `mapstructure:"USERNAME_COOLDOWN_DAYS"`

	// Rollout flags, e.g. "companion_bot=25%". See featureflags.Parse.
	FeatureFlags string `mapstructure:"FEATURE_FLAGS"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional; environment variables may carry everything.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	viper.SetDefault("PORT", "8460")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "vixogram")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("TRUST_PROXY_HEADER", false)

	viper.SetDefault("CHAT_MSG_RATE_LIMIT", 5)
	viper.SetDefault("CHAT_MSG_RATE_PERIOD", 10)
	viper.SetDefault("ROOM_MSG_RATE_LIMIT", 60)
	viper.SetDefault("ROOM_MSG_RATE_PERIOD", 10)

	viper.SetDefault("DUPLICATE_MSG_TTL", 30)
	viper.SetDefault("EMOJI_SPAM_MIN_REPEATS", 5)
	viper.SetDefault("EMOJI_SPAM_TTL", 60)
	viper.SetDefault("PASTE_LONG_MSG_LEN", 120)
	viper.SetDefault("PASTE_TYPED_MS_MAX", 800)
	viper.SetDefault("TYPING_CPS_THRESHOLD", 35.0)
	viper.SetDefault("FAST_LONG_MSG_LEN", 100)
	viper.SetDefault("FAST_LONG_MIN_INTERVAL", 5)

	viper.SetDefault("CHAT_ABUSE_WINDOW", 60)
	viper.SetDefault("CHAT_ABUSE_STRIKE_THRESHOLD", 5)
	viper.SetDefault("CHAT_ABUSE_MUTE_SECONDS", 300)

	viper.SetDefault("CHAT_MAX_MESSAGE_LEN", 300)
	viper.SetDefault("CHAT_MAX_MESSAGES_PER_ROOM", 12000)
	viper.SetDefault("CHAT_PURGE_MESSAGE_DAYS", 90)
	viper.SetDefault("CHAT_PURGE_CODE_ROOM_DAYS", 14)
	viper.SetDefault("CHAT_PURGE_BATCH_SIZE", 500)
	viper.SetDefault("CHAT_UNVERIFIED_MSG_LIMIT", 20)
	viper.SetDefault("CHAT_VERIFY_MANDATORY", true)

	viper.SetDefault("CHAT_UPLOAD_DAILY_CAP", 20)
	viper.SetDefault("CHAT_UPLOAD_MAX_BYTES", int64(8*1024*1024))
	viper.SetDefault("CHAT_UPLOAD_ALLOWED_PREFIX", "image/,video/")

	viper.SetDefault("PRIVATE_ROOM_MEMBER_LIMIT", 10)
	viper.SetDefault("CHAT_JOIN_REQUEST_STALE_SECONDS", 120)

	viper.SetDefault("CALL_INVITE_RATE_LIMIT", 3)
	viper.SetDefault("CALL_INVITE_RATE_PERIOD", 60)
	viper.SetDefault("RTC_APP_ID", "")
	viper.SetDefault("RTC_APP_CERTIFICATE", "")
	viper.SetDefault("RTC_TOKEN_TTL", 3600)

	viper.SetDefault("AI_MODERATION_ENABLED", false)
	viper.SetDefault("AI_MODERATION_URL", "")
	viper.SetDefault("AI_MODERATION_TIMEOUT", 4)
	viper.SetDefault("AI_BLOCK_MIN_SEVERITY", 2)
	viper.SetDefault("AI_FLAG_MIN_SEVERITY", 1)
	viper.SetDefault("AI_MIN_CONFIDENCE", 0.6)
	viper.SetDefault("COMPANION_BOT_ENABLED", false)
	viper.SetDefault("COMPANION_BOT_USERNAME", "vixobot")
	viper.SetDefault("FEATURE_FLAGS", "")

	viper.SetDefault("NOTIFY_PERSIST_WHEN_ONLINE", true)
	viper.SetDefault("PUSH_PROVIDER_URL", "")
	viper.SetDefault("PUSH_PROVIDER_TOKEN", "")
	viper.SetDefault("PUSH_TIMEOUT", 4)
	viper.SetDefault("USERNAME_COOLDOWN_DAYS", 30)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.KeepLastMessages <= 0 {
		return errors.New("CHAT_MAX_MESSAGES_PER_ROOM must be positive")
	}
	if c.PrivateRoomMemberLimit < 2 {
		return errors.New("PRIVATE_ROOM_MEMBER_LIMIT must be at least 2")
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must be enabled in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else {
		if len(c.JWTSecret) < 32 {
			log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
		}
	}

	return nil
}
