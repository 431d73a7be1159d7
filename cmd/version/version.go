// Package versioncmder
package versioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/uistream/pkg/cliui"
	"github.com/papercomputeco/uistream/pkg/utils"
)

type VersionCommander struct{}

func NewVersionCmd() *cobra.Command {
	cmder := &VersionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version of the uistream CLI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	return cmd
}

func (c *VersionCommander) run(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cliui.KeyValue("Version: ", utils.Version))
	fmt.Fprintln(out, cliui.KeyValue("Sha:     ", utils.Sha))
	fmt.Fprintln(out, cliui.KeyValue("Built at:", utils.Buildtime))
	return nil
}
