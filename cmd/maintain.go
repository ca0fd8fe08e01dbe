package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run maintenance: feedback, decay, archival, index rebuild",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		report := c.RunMaintenance()
		for _, step := range report.Steps {
			if step.Error != "" {
				fmt.Printf("  %-10s FAILED: %s\n", step.Step, step.Error)
				continue
			}
			fmt.Printf("  %-10s ok", step.Step)
			keys := make([]string, 0, len(step.Details))
			for k := range step.Details {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf(" %s=%d", k, step.Details[k])
			}
			fmt.Println()
		}
		if report.Failed() {
			return fmt.Errorf("maintenance completed with failures")
		}
		return nil
	},
}
