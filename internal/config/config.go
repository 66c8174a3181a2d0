package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Notifier backends accepted by NOTIFIER.
const (
	NotifierDingTalk = "dingtalk"
	NotifierTwilio   = "twilio"
)

// Config stores runtime configuration loaded from an optional YAML file and environment variables.
type Config struct {
	Port string `yaml:"port"`

	// DingTalk custom robot credentials used for outbound messages.
	AccessToken string `yaml:"access_token"`
	Secret      string `yaml:"secret"`
	// AppSecret verifies inbound webhook signatures. Verification is skipped when empty.
	AppSecret string `yaml:"app_secret"`

	Notifier             string `yaml:"notifier"`
	TwilioAccountSID     string `yaml:"twilio_account_sid"`
	TwilioAuthToken      string `yaml:"twilio_auth_token"`
	TwilioWhatsAppNumber string `yaml:"twilio_whatsapp_number"`
	TwilioRecipient      string `yaml:"twilio_recipient"`

	LLMAPIKey  string `yaml:"llm_api_key"`
	LLMBaseURL string `yaml:"llm_base_url"`
	LLMModel   string `yaml:"llm_model"`

	Mem0APIKey  string `yaml:"mem0_api_key"`
	Mem0BaseURL string `yaml:"mem0_base_url"`

	DatabaseURL  string `yaml:"database_url"`
	DatabasePath string `yaml:"database_path"`

	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
	FactsIntervalSeconds int `yaml:"facts_interval_seconds"`

	DisableNetwork bool `yaml:"disable_network"`

	Timezone      string         `yaml:"timezone"`
	LocalTimezone *time.Location `yaml:"-"`
}

// CheckInterval is the reminder cycle period.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// FactsInterval is the fact extraction period. Zero disables the fact cycle.
func (c *Config) FactsInterval() time.Duration {
	return time.Duration(c.FactsIntervalSeconds) * time.Second
}

// Load reads configuration values and prepares defaults where applicable.
// path may be empty, in which case only the environment (and .env) is consulted.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.CheckIntervalSeconds <= 0 {
		log.Printf("config: CHECK_INTERVAL_SECONDS must be positive, got %d; using 60", cfg.CheckIntervalSeconds)
		cfg.CheckIntervalSeconds = 60
	}
	cfg.Notifier = strings.ToLower(strings.TrimSpace(cfg.Notifier))
	if cfg.Notifier != NotifierDingTalk && cfg.Notifier != NotifierTwilio {
		return nil, fmt.Errorf("config: unknown notifier %q", cfg.Notifier)
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Printf("config: invalid LOCAL_TIMEZONE %q, defaulting to system local: %v", cfg.Timezone, err)
		location = time.Local
	}
	cfg.LocalTimezone = location

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port:                 "8080",
		Notifier:             NotifierDingTalk,
		LLMModel:             "gemini-2.5-flash",
		Mem0BaseURL:          "https://api.mem0.ai",
		DatabasePath:         "dingbot_memory.db",
		CheckIntervalSeconds: 60,
		FactsIntervalSeconds: 86400,
		Timezone:             "Local",
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.AccessToken, "ACCESS_TOKEN")
	setString(&cfg.Secret, "SECRET")
	setString(&cfg.AppSecret, "APP_SECRET")
	setString(&cfg.Notifier, "NOTIFIER")
	setString(&cfg.TwilioAccountSID, "TWILIO_ACCOUNT_SID")
	setString(&cfg.TwilioAuthToken, "TWILIO_AUTH_TOKEN")
	setString(&cfg.TwilioWhatsAppNumber, "TWILIO_WHATSAPP_NUMBER")
	setString(&cfg.TwilioRecipient, "TWILIO_RECIPIENT")
	// GEMINI_API_KEY is honoured for deployments that predate the OpenAI-compatible endpoint.
	setString(&cfg.LLMAPIKey, "GEMINI_API_KEY")
	setString(&cfg.LLMAPIKey, "OPENAI_API_KEY")
	setString(&cfg.LLMBaseURL, "LLM_BASE_URL")
	setString(&cfg.LLMModel, "LLM_MODEL")
	setString(&cfg.Mem0APIKey, "MEM0_API_KEY")
	setString(&cfg.Mem0BaseURL, "MEM0_BASE_URL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.DatabasePath, "DATABASE_PATH")
	setString(&cfg.Timezone, "LOCAL_TIMEZONE")
	cfg.CheckIntervalSeconds = ParseIntEnv("CHECK_INTERVAL_SECONDS", cfg.CheckIntervalSeconds)
	cfg.FactsIntervalSeconds = ParseIntEnv("FACTS_INTERVAL_SECONDS", cfg.FactsIntervalSeconds)
	if os.Getenv("DINGBOT_DISABLE_NETWORK") != "" {
		cfg.DisableNetwork = true
	}
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

// ParseIntEnv returns the integer value for an environment variable or the provided default.
func ParseIntEnv(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: unable to parse %s=%q as int: %v", key, value, err)
		return def
	}
	return parsed
}
