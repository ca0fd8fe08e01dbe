package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var analyzeIfDueFlag bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a pattern-detection pass over unprocessed observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if analyzeIfDueFlag && !c.AnalysisDue() {
			fmt.Println("Below analysis threshold, nothing to do")
			return nil
		}
		created, err := c.RunAnalysis()
		if err != nil {
			return err
		}
		if len(created) == 0 {
			fmt.Println("No new patterns detected")
			return nil
		}
		fmt.Printf("Created %d memories:\n", len(created))
		for _, id := range created {
			fmt.Printf("  %s\n", id)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeIfDueFlag, "if-due", false, "only run when the unprocessed count crosses the threshold")
}
