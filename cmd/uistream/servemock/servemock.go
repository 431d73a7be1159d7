// Package servemockcmder provides the serve-mock command, which runs the
// scripted assistant backend.
package servemockcmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/uistream/pkg/config"
	"github.com/papercomputeco/uistream/pkg/logger"
	"github.com/papercomputeco/uistream/pkg/mockserver"
)

type serveMockCommander struct {
	listen       string
	delay        time.Duration
	script       string
	requireToken bool
	tokenTTL     time.Duration
	debug        bool

	logger *zap.Logger
}

var serveMockFlags = []string{
	config.FlagMockListen,
	config.FlagMockEventDelay,
}

const serveMockLongDesc string = `Run a scripted assistant backend.

Every chat request is answered with the same UI message stream: a recorded
DocSearch reply by default, or the stream recorded in --script (for example
with "uistream chat --record"). Tokens are issued on /chat/token.

Examples:
  uistream serve-mock
  uistream serve-mock --listen :9000 --delay 200ms
  uistream serve-mock --script session.sse --require-token`

const serveMockShortDesc string = "Run a scripted assistant backend"

func NewServeMockCmd() *cobra.Command {
	return newServeMockCmd(&serveMockCommander{})
}

func newServeMockCmd(cmder *serveMockCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-mock",
		Short: serveMockShortDesc,
		Long:  serveMockLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, serveMockFlags)
			cmder.load(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagMockListen, &cmder.listen)
	config.AddDurationFlag(cmd, config.Flags, config.FlagMockEventDelay, &cmder.delay)
	cmd.Flags().StringVarP(&cmder.script, "script", "s", "", "Recorded stream to replay instead of the built-in script")
	cmd.Flags().BoolVar(&cmder.requireToken, "require-token", false, "Reject chat requests without a token issued by this server")
	cmd.Flags().DurationVar(&cmder.tokenTTL, "token-ttl", 5*time.Minute, "Lifetime of issued tokens")

	return cmd
}

func (c *serveMockCommander) load(v *viper.Viper) {
	c.listen = v.GetString("mock.listen")
	c.delay = v.GetDuration("mock.delay")
}

func (c *serveMockCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	server, err := c.newServer()
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("mock server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}

func (c *serveMockCommander) newServer() (*mockserver.Server, error) {
	cfg := &mockserver.Config{
		ListenAddr:   c.listen,
		Delay:        c.delay,
		RequireToken: c.requireToken,
		TokenTTL:     c.tokenTTL,
		Logger:       c.logger,
	}

	if c.script != "" {
		f, err := os.Open(c.script)
		if err != nil {
			return nil, fmt.Errorf("opening script: %w", err)
		}
		defer f.Close()

		cfg.Script, err = mockserver.LoadScript(f)
		if err != nil {
			return nil, err
		}
		if len(cfg.Script) == 0 {
			return nil, fmt.Errorf("script %s has no events", c.script)
		}
		c.logger.Info("loaded script", zap.String("path", c.script), zap.Int("events", len(cfg.Script)))
	}

	return mockserver.NewServer(cfg)
}
