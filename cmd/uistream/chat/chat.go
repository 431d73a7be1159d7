// Package chatcmder provides the chat command for an interactive
// conversation with a streaming assistant.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/uistream/pkg/chat"
	"github.com/papercomputeco/uistream/pkg/cliui"
	"github.com/papercomputeco/uistream/pkg/config"
	"github.com/papercomputeco/uistream/pkg/dotdir"
	"github.com/papercomputeco/uistream/pkg/eventstream"
	eventstreamutils "github.com/papercomputeco/uistream/pkg/eventstream/utils"
	"github.com/papercomputeco/uistream/pkg/llm"
	"github.com/papercomputeco/uistream/pkg/logger"
	"github.com/papercomputeco/uistream/pkg/token"
	"github.com/papercomputeco/uistream/pkg/tools"
	"github.com/papercomputeco/uistream/pkg/transport"
)

const publishTimeout = 5 * time.Second

type chatCommander struct {
	endpoint      string
	tokenEndpoint string
	appID         string
	apiKey        string
	indexName     string
	assistantID   string
	sdkVersion    string
	timeout       time.Duration

	eventStream  string
	kafkaBrokers string
	kafkaTopic   string

	record    string
	configDir string
	debug     bool

	in  io.Reader
	out io.Writer

	logger *zap.Logger
}

var chatFlags = []string{
	config.FlagEndpoint,
	config.FlagTokenEndpoint,
	config.FlagAppID,
	config.FlagAPIKey,
	config.FlagIndexName,
	config.FlagAssistantID,
	config.FlagTimeout,
	config.FlagSDKVersion,
	config.FlagEventStream,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

const chatLongDesc string = `Start an interactive chat session with an assistant.

Each message is posted to the assistant endpoint and the streamed reply is
printed as it is reconstructed. Press Ctrl+C while a reply is streaming to
stop it, or at the prompt to quit.

Commands at the prompt:
  /continue   Ask the assistant to continue its last reply
  /exit       Quit (as does Ctrl+D)

Completed replies are published to the configured event stream
(eventstream.provider). Use --record to keep the raw stream of every reply
for "uistream replay" and "uistream serve-mock --script". A bare file name is
placed in the recordings directory of .uistream/.

Examples:
  uistream chat --assistant-id my-assistant --app-id APP --api-key KEY --index-name docs
  uistream chat --endpoint http://localhost:8090/chat --token-endpoint http://localhost:8090/chat/token
  uistream chat --record session.sse`

const chatShortDesc string = "Interactive chat with a streaming assistant"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.configDir = configDir
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, chatFlags)
			cmder.load(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	stringFlags := map[string]*string{
		config.FlagEndpoint:      &cmder.endpoint,
		config.FlagTokenEndpoint: &cmder.tokenEndpoint,
		config.FlagAppID:         &cmder.appID,
		config.FlagAPIKey:        &cmder.apiKey,
		config.FlagIndexName:     &cmder.indexName,
		config.FlagAssistantID:   &cmder.assistantID,
		config.FlagSDKVersion:    &cmder.sdkVersion,
		config.FlagEventStream:   &cmder.eventStream,
		config.FlagKafkaBrokers:  &cmder.kafkaBrokers,
		config.FlagKafkaTopic:    &cmder.kafkaTopic,
	}
	for key, target := range stringFlags {
		config.AddStringFlag(cmd, config.Flags, key, target)
	}
	config.AddDurationFlag(cmd, config.Flags, config.FlagTimeout, &cmder.timeout)
	cmd.Flags().StringVarP(&cmder.record, "record", "r", "", "Append the raw stream of every reply to this file")

	return cmd
}

// load reads the resolved settings: flag, then env, then config file, then
// default.
func (c *chatCommander) load(v *viper.Viper) {
	c.endpoint = v.GetString("assistant.endpoint")
	c.tokenEndpoint = v.GetString("assistant.token_endpoint")
	c.appID = v.GetString("assistant.app_id")
	c.apiKey = v.GetString("assistant.api_key")
	c.indexName = v.GetString("assistant.index_name")
	c.assistantID = v.GetString("assistant.assistant_id")
	c.sdkVersion = v.GetString("client.sdk_version")
	c.timeout = v.GetDuration("client.timeout")
	c.eventStream = v.GetString("eventstream.provider")
	c.kafkaBrokers = v.GetString("eventstream.brokers")
	c.kafkaTopic = v.GetString("eventstream.topic")
}

// recordPath resolves --record. Paths with a directory are used as given.
func (c *chatCommander) recordPath() (string, error) {
	if filepath.Base(c.record) != c.record {
		return c.record, nil
	}

	dir, err := dotdir.NewManager().RecordingsDir(c.configDir)
	if err != nil {
		return "", fmt.Errorf("resolving recordings directory: %w", err)
	}
	return filepath.Join(dir, c.record), nil
}

func (c *chatCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: c.eventStream,
		Brokers:      c.kafkaBrokers,
		Topic:        c.kafkaTopic,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer publisher.Close()

	var tee io.Writer
	if c.record != "" {
		path, err := c.recordPath()
		if err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("opening recording: %w", err)
		}
		defer f.Close()
		tee = f
	}

	r := newRenderer(c.out)

	var (
		startedMu sync.Mutex
		started   time.Time
	)

	httpTransport, tokens := c.newTransport()

	var ch *chat.Chat
	ch = chat.New(&chat.Config{
		Transport: httpTransport,
		Tools:     tools.Default(),
		Tee:       tee,
		Logger:    c.logger,
		OnFinish: func(msg *llm.Message, err error) {
			startedMu.Lock()
			start := started
			startedMu.Unlock()

			c.publish(ctx, publisher, ch.ID(), start, msg, err)
		},
	})
	defer ch.Close()

	ch.Store().OnMessages(func() {
		messages := ch.Messages()
		if len(messages) > 0 {
			r.render(messages[len(messages)-1])
		}
	})

	ctx, quit := context.WithCancel(ctx)
	defer quit()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if ch.Status() == chat.StatusReady {
					quit()
					return
				}
				ch.Stop()
			}
		}
	}()

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, cliui.KeyValue("Endpoint:", c.endpoint))
	if c.assistantID != "" {
		fmt.Fprintln(c.out, cliui.KeyValue("Assistant:", c.assistantID))
	}
	if tokens != nil {
		// A failure here is reported again by the first request.
		err := cliui.Step(c.out, "Fetching token", func() error {
			_, err := tokens.Token(ctx, c.assistantID)
			return err
		})
		if err != nil {
			fmt.Fprintf(c.out, "  %s %v\n", cliui.WarnMark, err)
		}
	}

	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, cliui.UserPrompt)

		var input string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				return nil
			}
			input = strings.TrimSpace(line)
		}

		if input == "" {
			continue
		}
		if input == "/exit" {
			return nil
		}

		startedMu.Lock()
		started = time.Now()
		startedMu.Unlock()

		fmt.Fprint(c.out, cliui.AssistantPrompt)

		if input == "/continue" {
			var last *llm.Message
			if messages := ch.Messages(); len(messages) > 0 && messages[len(messages)-1].Role == llm.RoleAssistant {
				last = messages[len(messages)-1]
			}
			r.reset(last)
			err = ch.Resume(ctx)
		} else {
			r.reset(nil)
			err = ch.SendMessage(ctx, input)
		}

		fmt.Fprint(c.out, "\n\n")
		if err != nil {
			fmt.Fprintf(c.out, "  %s %v\n\n", cliui.FailMark, err)
		}
	}
}

// newTransport returns the HTTP transport, and the token cache authorizing it
// when a token endpoint and assistant id are configured.
func (c *chatCommander) newTransport() (*transport.HTTP, *token.Cache) {
	var (
		cache  *token.Cache
		tokens transport.TokenSource
	)
	if c.tokenEndpoint != "" && c.assistantID != "" {
		cache = token.NewCache(&token.Config{
			Fetcher: &token.HTTPFetcher{Endpoint: c.tokenEndpoint},
			Logger:  c.logger,
		})
		tokens = cache
	}

	return transport.NewHTTP(&transport.HTTPConfig{
		Endpoint:    c.endpoint,
		AppID:       c.appID,
		APIKey:      c.apiKey,
		IndexName:   c.indexName,
		AssistantID: c.assistantID,
		SDKVersion:  c.sdkVersion,
		Tokens:      tokens,
		Client:      &http.Client{Timeout: c.timeout},
		Logger:      c.logger,
	}), cache
}

// publish emits the completed message. Requests that produced nothing are
// not published.
func (c *chatCommander) publish(ctx context.Context, p eventstream.Publisher, chatID string, started time.Time, msg *llm.Message, err error) {
	if msg == nil {
		return
	}

	event := eventstream.NewMessageCompletedEvent(eventstream.EventSource{
		ChatID:      chatID,
		AssistantID: c.assistantID,
		IndexName:   c.indexName,
	}, started, time.Now(), msg, err)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.PublishMessage(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("failed to publish completed message",
			zap.String("chat_id", chatID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}
