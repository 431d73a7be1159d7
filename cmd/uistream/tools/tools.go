// Package toolscmder provides the tools command, which prints the JSON
// schemas of the tool payloads the client decodes.
package toolscmder

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/uistream/pkg/tools"
)

const toolsLongDesc string = `Print the JSON schemas of the known tools.

Tool parts of an assistant message carry a tool name; input and output of a
known tool are decoded into typed payloads following these schemas. Payloads
of unknown tools are kept as plain JSON.

Examples:
  uistream tools
  uistream tools searchIndex`

const toolsShortDesc string = "Print the schemas of the known tools"

func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools [name]",
		Short: toolsShortDesc,
		Long:  toolsLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runTools(cmd, tools.Default(), name)
		},
	}

	return cmd
}

func runTools(cmd *cobra.Command, registry *tools.Registry, name string) error {
	schemas := registry.Schemas()

	var out any = schemas
	if name != "" {
		tool, ok := registry.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown tool: %q", name)
		}
		out = tool.Schema()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("printing schemas: %w", err)
	}
	return nil
}
