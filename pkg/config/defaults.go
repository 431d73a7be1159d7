package config

// Event stream providers.
const (
	EventStreamNop   = "nop"
	EventStreamKafka = "kafka"
)

const (
	defaultEndpoint      = "https://askai.algolia.com/chat"
	defaultTokenEndpoint = "https://askai.algolia.com/chat/token"

	defaultClientTimeout = "5m"
	defaultSDKVersion    = "v5"

	defaultEventStreamProvider = EventStreamNop
	defaultEventStreamTopic    = "uistream.messages"

	defaultMockListen = ":8090"
	defaultMockDelay  = "50ms"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Assistant: AssistantConfig{
			Endpoint:      defaultEndpoint,
			TokenEndpoint: defaultTokenEndpoint,
		},
		Client: ClientConfig{
			Timeout:    defaultClientTimeout,
			SDKVersion: defaultSDKVersion,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		Mock: MockConfig{
			Listen: defaultMockListen,
			Delay:  defaultMockDelay,
		},
	}
}
