package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var observeDataFlag string

// observeCmd is the capture entry point used by hooks. It always exits 0:
// a capture failure must never interrupt the session that invoked it.
var observeCmd = &cobra.Command{
	Use:   "observe <type>",
	Short: "Record an observation (prompt, tool_use, file_modified)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			return nil
		}
		var data map[string]any
		if observeDataFlag != "" {
			if err := json.Unmarshal([]byte(observeDataFlag), &data); err != nil {
				// Malformed payloads are captured as raw text, not rejected.
				data = map[string]any{"raw": observeDataFlag}
			}
		}
		c.RecordObservation(args[0], data)
		return nil
	},
}

func init() {
	observeCmd.Flags().StringVar(&observeDataFlag, "data", "", "JSON payload for the observation")
}
