package config

import (
	"fmt"
	"time"
)

// Config represents the persistent uistream configuration stored as
// config.toml in the .uistream/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Assistant   AssistantConfig   `toml:"assistant"`
	Client      ClientConfig      `toml:"client"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Mock        MockConfig        `toml:"mock"`
}

// AssistantConfig identifies the assistant backend a chat talks to.
type AssistantConfig struct {
	Endpoint      string `toml:"endpoint,omitempty"`
	TokenEndpoint string `toml:"token_endpoint,omitempty"`
	AppID         string `toml:"app_id,omitempty"`
	APIKey        string `toml:"api_key,omitempty"`
	IndexName     string `toml:"index_name,omitempty"`
	AssistantID   string `toml:"assistant_id,omitempty"`
}

// ClientConfig holds settings for the HTTP client opening response streams.
// Timeout is a duration string (e.g. "5m").
type ClientConfig struct {
	Timeout    string `toml:"timeout,omitempty"`
	SDKVersion string `toml:"sdk_version,omitempty"`
}

// EventStreamConfig selects where completed-message events are published.
// Brokers is a comma separated list of kafka brokers.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// MockConfig holds settings for the mock assistant backend.
type MockConfig struct {
	Listen string `toml:"listen,omitempty"`
	Delay  string `toml:"delay,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func durationSetter(key string, field func(c *Config) *string) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		if v != "" {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
		}
		*field(c) = v
		return nil
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"assistant.endpoint": {
		get: func(c *Config) string { return c.Assistant.Endpoint },
		set: func(c *Config, v string) error { c.Assistant.Endpoint = v; return nil },
	},
	"assistant.token_endpoint": {
		get: func(c *Config) string { return c.Assistant.TokenEndpoint },
		set: func(c *Config, v string) error { c.Assistant.TokenEndpoint = v; return nil },
	},
	"assistant.app_id": {
		get: func(c *Config) string { return c.Assistant.AppID },
		set: func(c *Config, v string) error { c.Assistant.AppID = v; return nil },
	},
	"assistant.api_key": {
		get: func(c *Config) string { return c.Assistant.APIKey },
		set: func(c *Config, v string) error { c.Assistant.APIKey = v; return nil },
	},
	"assistant.index_name": {
		get: func(c *Config) string { return c.Assistant.IndexName },
		set: func(c *Config, v string) error { c.Assistant.IndexName = v; return nil },
	},
	"assistant.assistant_id": {
		get: func(c *Config) string { return c.Assistant.AssistantID },
		set: func(c *Config, v string) error { c.Assistant.AssistantID = v; return nil },
	},
	"client.timeout": {
		get: func(c *Config) string { return c.Client.Timeout },
		set: durationSetter("client.timeout", func(c *Config) *string { return &c.Client.Timeout }),
	},
	"client.sdk_version": {
		get: func(c *Config) string { return c.Client.SDKVersion },
		set: func(c *Config, v string) error { c.Client.SDKVersion = v; return nil },
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case "", EventStreamNop, EventStreamKafka:
			default:
				return fmt.Errorf("invalid value for eventstream.provider: %q (available: %s, %s)", v, EventStreamNop, EventStreamKafka)
			}
			c.EventStream.Provider = v
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return c.EventStream.Brokers },
		set: func(c *Config, v string) error { c.EventStream.Brokers = v; return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"mock.listen": {
		get: func(c *Config) string { return c.Mock.Listen },
		set: func(c *Config, v string) error { c.Mock.Listen = v; return nil },
	},
	"mock.delay": {
		get: func(c *Config) string { return c.Mock.Delay },
		set: durationSetter("mock.delay", func(c *Config) *string { return &c.Mock.Delay }),
	},
}
