package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BackendURL string `envconfig:"BACKEND_URL"`
	PushURL    string `envconfig:"PUSH_URL"`
	AuthToken  string `envconfig:"AUTH_TOKEN"`
	// E2E_DEEP_LINK is a chat link to a real guide, e.g. https://host/chat?guide=maya-lisbon
	DeepLink string `envconfig:"E2E_DEEP_LINK"`
	// E2E_SEND allows posting a message on the backend
	Send bool `envconfig:"E2E_SEND" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
