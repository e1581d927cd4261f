package config

import (
	"fmt"
	"strings"
)

// WhatsAppConfig holds WhatsApp Cloud API credentials and endpoints.
type WhatsAppConfig struct {
	Token         string `yaml:"token" envconfig:"WHATSAPP_TOKEN"`
	VerifyToken   string `yaml:"verify_token" envconfig:"WEBHOOK_VERIFY_TOKEN"`
	PhoneNumberID string `yaml:"phone_number_id" envconfig:"PHONE_NUMBER_ID"`
	// APIBaseURL is the Graph API root; the version segment is part of it.
	APIBaseURL string `yaml:"api_base_url" envconfig:"WHATSAPP_API_BASE_URL"`
}

// ServerConfig specifies webhook HTTP listener settings.
type ServerConfig struct {
	Listen string `yaml:"listen" envconfig:"SERVER_LISTEN"`
	Port   int    `yaml:"port" envconfig:"SERVER_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	KeysOrder string `yaml:"keys_order"`
	Dir       string `yaml:"dir"`
	BotFile   string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// RateLimitConfig holds settings for per-phone inbound rate limiting.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
}

// PaymentConfig controls the payment gateway behaviour.
type PaymentConfig struct {
	// SimulateDelaySeconds is how long the simulated STK push takes to
	// resolve. A real gateway integration ignores it.
	SimulateDelaySeconds int `yaml:"simulate_delay_seconds" envconfig:"PAYMENT_SIMULATE_DELAY_SECONDS"`
}

const (
	defaultAPIBaseURL      = "https://graph.facebook.com/v17.0"
	defaultServerPort      = 3000
	defaultPaymentDelaySec = 30
)

// Config aggregates the configuration that belongs to the reusable core.
// Loading happens at the application layer, which embeds this struct
// alongside its own sections and calls Normalize after unmarshalling.
type Config struct {
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Payment   PaymentConfig   `yaml:"payment"`
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.WhatsApp.Token) == "" {
		return fmt.Errorf("whatsapp.token is required")
	}
	if strings.TrimSpace(cfg.WhatsApp.VerifyToken) == "" {
		return fmt.Errorf("whatsapp.verify_token is required")
	}
	if strings.TrimSpace(cfg.WhatsApp.PhoneNumberID) == "" {
		return fmt.Errorf("whatsapp.phone_number_id is required")
	}
	if strings.TrimSpace(cfg.WhatsApp.APIBaseURL) == "" {
		cfg.WhatsApp.APIBaseURL = defaultAPIBaseURL
	}
	cfg.WhatsApp.APIBaseURL = strings.TrimRight(cfg.WhatsApp.APIBaseURL, "/")

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultServerPort
	}
	if cfg.Server.Port < 0 {
		return fmt.Errorf("server.port must be > 0")
	}

	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}

	if cfg.Payment.SimulateDelaySeconds == 0 {
		cfg.Payment.SimulateDelaySeconds = defaultPaymentDelaySec
	}
	if cfg.Payment.SimulateDelaySeconds < 0 {
		return fmt.Errorf("payment.simulate_delay_seconds must be >= 0")
	}

	return nil
}
