// Package uistreamcmder
package uistreamcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/uistream/cmd/uistream/chat"
	configcmder "github.com/papercomputeco/uistream/cmd/uistream/config"
	replaycmder "github.com/papercomputeco/uistream/cmd/uistream/replay"
	servemockcmder "github.com/papercomputeco/uistream/cmd/uistream/servemock"
	toolscmder "github.com/papercomputeco/uistream/cmd/uistream/tools"
	versioncmder "github.com/papercomputeco/uistream/cmd/version"
)

const uistreamLongDesc string = `uistream reconstructs assistant replies from AI SDK UI message streams.

Talk to an assistant or work with recorded streams:
  uistream chat            Chat with an assistant in the terminal
  uistream replay <file>   Rebuild the message of a recorded stream
  uistream serve-mock      Run a scripted assistant backend locally
  uistream tools           Print the schemas of the known tools`

const uistreamShortDesc string = "uistream - UI message stream client"

func NewUistreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "uistream",
		Short:         uistreamShortDesc,
		Long:          uistreamLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .uistream/ config directory")

	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(replaycmder.NewReplayCmd())
	cmd.AddCommand(servemockcmder.NewServeMockCmd())
	cmd.AddCommand(toolscmder.NewToolsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
