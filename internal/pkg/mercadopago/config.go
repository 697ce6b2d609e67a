package mercadopago

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const DefaultBaseURL = "https://api.mercadopago.com"

// Config holds the gateway credentials. TestMode selects the sandbox pair.
type Config struct {
	TestMode        bool   `envconfig:"TEST_MODE" default:"true"`
	TestAccessToken string `envconfig:"TEST_ACCESS_TOKEN" validate:"required_if=TestMode true"`
	TestPublicKey   string `envconfig:"TEST_PUBLIC_KEY"`
	ProdAccessToken string `envconfig:"PROD_ACCESS_TOKEN" validate:"required_unless=TestMode true"`
	ProdPublicKey   string `envconfig:"PROD_PUBLIC_KEY"`
	AppID           string `envconfig:"APP_ID"`
	ClientSecret    string `envconfig:"CLIENT_SECRET"`
	WebhookSecret   string `envconfig:"WEBHOOK_SECRET"`
	BaseURL         string `envconfig:"BASE_URL" default:"https://api.mercadopago.com" validate:"required,url"`
}

// LoadConfig reads MP_* variables from the process environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("MP", &cfg); err != nil {
		return nil, fmt.Errorf("mercadopago config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("mercadopago config: %w", err)
	}
	return nil
}

// Credentials returns the access token and public key for the current mode.
func (c *Config) Credentials() (accessToken, publicKey string) {
	if c.TestMode {
		return strings.TrimSpace(c.TestAccessToken), strings.TrimSpace(c.TestPublicKey)
	}
	return strings.TrimSpace(c.ProdAccessToken), strings.TrimSpace(c.ProdPublicKey)
}

func (c *Config) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}
