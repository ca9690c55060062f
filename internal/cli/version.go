package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cellgram/internal/ir"
)

// VersionInfo is the output of the version command.
type VersionInfo struct {
	Engine   string `json:"engine"`
	Snapshot string `json:"snapshot"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print engine and snapshot format versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{Engine: ir.EngineVersion, Snapshot: ir.SnapshotVersion}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: info})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cellgram %s (snapshot format %s)\n", info.Engine, info.Snapshot)
			return nil
		},
	}
}
