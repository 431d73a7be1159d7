package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline, so a logical flag reads the
// same on every command that declares it.
type Flag struct {
	// Name is the long flag name (e.g. "endpoint").
	Name string

	// Shorthand is the one-letter short flag (e.g. "e"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "assistant.endpoint").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddDurationFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagEndpoint       = "endpoint"
	FlagTokenEndpoint  = "token-endpoint"
	FlagAppID          = "app-id"
	FlagAPIKey         = "api-key"
	FlagIndexName      = "index-name"
	FlagAssistantID    = "assistant-id"
	FlagTimeout        = "timeout"
	FlagSDKVersion     = "sdk-version"
	FlagEventStream    = "eventstream"
	FlagKafkaBrokers   = "kafka-brokers"
	FlagKafkaTopic     = "kafka-topic"
	FlagMockListen     = "listen"
	FlagMockEventDelay = "delay"
)

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddDurationFlag registers a duration flag on cmd from the given FlagSet.
func AddDurationFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *time.Duration) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultDuration(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().DurationVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().DurationVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultDuration returns the default duration value for a viper key from NewDefaultConfig.
func defaultDuration(viperKey string) time.Duration {
	v := viper.New()
	setViperDefaults(v)
	return v.GetDuration(viperKey)
}

// Flags is the registry shared by the uistream commands.
var Flags = FlagSet{
	FlagEndpoint:       {Name: "endpoint", Shorthand: "e", ViperKey: "assistant.endpoint", Description: "Assistant chat endpoint URL"},
	FlagTokenEndpoint:  {Name: "token-endpoint", ViperKey: "assistant.token_endpoint", Description: "Assistant token endpoint URL (empty disables tokens)"},
	FlagAppID:          {Name: "app-id", ViperKey: "assistant.app_id", Description: "Application id sent with every request"},
	FlagAPIKey:         {Name: "api-key", ViperKey: "assistant.api_key", Description: "API key sent with every request"},
	FlagIndexName:      {Name: "index-name", ViperKey: "assistant.index_name", Description: "Index the assistant searches"},
	FlagAssistantID:    {Name: "assistant-id", Shorthand: "a", ViperKey: "assistant.assistant_id", Description: "Assistant id"},
	FlagTimeout:        {Name: "timeout", ViperKey: "client.timeout", Description: "Timeout of a whole chat request"},
	FlagSDKVersion:     {Name: "sdk-version", ViperKey: "client.sdk_version", Description: "Value of the X-AI-SDK-Version header"},
	FlagEventStream:    {Name: "eventstream", ViperKey: "eventstream.provider", Description: "Completed-message publisher (nop, kafka)"},
	FlagKafkaBrokers:   {Name: "kafka-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated kafka brokers"},
	FlagKafkaTopic:     {Name: "kafka-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for completed messages"},
	FlagMockListen:     {Name: "listen", Shorthand: "l", ViperKey: "mock.listen", Description: "Address for the mock server to listen on"},
	FlagMockEventDelay: {Name: "delay", ViperKey: "mock.delay", Description: "Delay between scripted events"},
}
