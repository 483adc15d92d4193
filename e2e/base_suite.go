package e2e

import (
	"context"
	"fmt"
	"guide-chat/auth"
	"guide-chat/contract"
	"guide-chat/infrastructure/push"
	"guide-chat/infrastructure/rest"
	"guide-chat/runtime"
	"log/slog"
	"net/http"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseEngineSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment and skips everything without a backend.
func (s *BaseEngineSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.BackendURL == "" || s.Config.AuthToken == "" {
		s.T().Skip("BACKEND_URL and AUTH_TOKEN are required for e2e tests")
	}
}

// WithEngine runs fn on a started engine and logs out afterwards.
func (s *BaseEngineSuite) WithEngine(name string, fn func(ctx context.Context, engine *runtime.Engine)) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	session, err := auth.SessionFromToken(s.Config.AuthToken)
	s.Require().NoError(err)

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	backend := rest.NewClient(log, s.Config.BackendURL, s.Config.AuthToken, &http.Client{Timeout: 10 * time.Second})
	var dialer contract.PushDialer
	if s.Config.PushURL != "" {
		dialer = push.NewDialer(s.Config.PushURL, s.Config.AuthToken, 0)
	}
	engine := runtime.NewEngine(log, runtime.Config{
		BufferSize:       256,
		SinkTimeout:      2 * time.Second,
		RequestTimeout:   10 * time.Second,
		SendTimeout:      15 * time.Second,
		PersistTimeout:   5 * time.Second,
		RestartInterval:  2 * time.Second,
		MaxContentLength: 4000,
	}, session, backend, dialer, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	s.Require().NoError(engine.Start(ctx), "engine failed to start against "+s.Config.BackendURL)
	defer engine.Logout()

	fn(ctx, engine)
}
