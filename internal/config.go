package internal

import (
	"errors"
	"fmt"
	"guide-chat/runtime"
	"io/fs"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	BackendURL       string        `env:"BACKEND_URL,required=true"`
	PushURL          string        `env:"PUSH_URL"`
	AuthToken        string        `env:"AUTH_TOKEN,required=true"`
	LogLevel         string        `env:"LOG_LEVEL,default=INFO"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
	SendTimeout      time.Duration `env:"SEND_TIMEOUT,default=15s"`
	SinkTimeout      time.Duration `env:"SINK_TIMEOUT,default=2s"`
	PersistTimeout   time.Duration `env:"PERSIST_TIMEOUT,default=5s"`
	PresenceInterval time.Duration `env:"PRESENCE_INTERVAL,default=30s"`
	RestartInterval  time.Duration `env:"RESTART_INTERVAL,default=2s"`
	BufferSize       int           `env:"BUFFER_SIZE,default=256"`
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH,default=4000"`
	JournalPath      string        `env:"JOURNAL_PATH"`
}

// LoadConfig reads the environment after loading the optional dotenv files.
// Variables already set in the environment win over the files.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if config.BufferSize <= 0 {
		return Config{}, fmt.Errorf("config error: BUFFER_SIZE must be positive, got %d", config.BufferSize)
	}
	return config, nil
}

func (c Config) Runtime() runtime.Config {
	return runtime.Config{
		BufferSize:       c.BufferSize,
		SinkTimeout:      c.SinkTimeout,
		RequestTimeout:   c.RequestTimeout,
		SendTimeout:      c.SendTimeout,
		PersistTimeout:   c.PersistTimeout,
		PresenceInterval: c.PresenceInterval,
		RestartInterval:  c.RestartInterval,
		MaxContentLength: c.MaxContentLength,
	}
}
