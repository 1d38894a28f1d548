// Package cli implements the bridgectl commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd returns the top-level bridgectl command with all subcommands attached
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bridgectl",
		Short:         "Inspect NGSI-LD entities the way the context bridge sees them",
		Long:          "Offline tooling for the context bridge. Converts broker payloads into plain snapshots and rehydrates snapshots into entities.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newNormalizeCmd())
	root.AddCommand(newResolveCmd())

	return root
}

// readInput returns the contents of the file named by the first argument, or
// everything on stdin when no file is given or the name is "-"
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}

	b, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return b, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
