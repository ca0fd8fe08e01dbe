package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/engramdev/engram/pkg/models"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and give feedback on individual memories",
}

var memoryGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one memory as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		m, err := c.GetMemory(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	},
}

var (
	listScopeFlag   string
	listTypeFlag    string
	listTagFlag     string
	listMinConfFlag float64
	listLimitFlag   int
	listAllFlag     bool
)

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		filter := models.Filter{
			Scope:         listScopeFlag,
			Type:          models.MemoryType(listTypeFlag),
			Tag:           listTagFlag,
			MinConfidence: listMinConfFlag,
			Limit:         listLimitFlag,
		}
		if listAllFlag {
			filter.Status = models.StatusArchived
		}
		memories, err := c.ListMemories(filter)
		if err != nil {
			return err
		}
		for _, m := range memories {
			fmt.Printf("%.2f  %-12s %-12s %s (%s)\n",
				m.Metadata.Confidence, m.Type, m.Metadata.Status, m.Content.Title, m.ID)
		}
		fmt.Printf("%d memories\n", len(memories))
		return nil
	},
}

var memoryReinforceCmd = &cobra.Command{
	Use:   "reinforce <id>",
	Short: "Apply positive feedback to a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		m, err := c.Reinforce(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Reinforced %s: confidence %.2f, status %s\n", m.ID, m.Metadata.Confidence, m.Metadata.Status)
		return nil
	},
}

var (
	correctFeedbackFlag string
	correctActionFlag   string
)

var memoryCorrectCmd = &cobra.Command{
	Use:   "correct <id>",
	Short: "Apply negative feedback, optionally recording the right behavior",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		m, correctionID, err := c.Correct(args[0], correctFeedbackFlag, correctActionFlag)
		if err != nil {
			return err
		}
		fmt.Printf("Corrected %s: confidence %.2f, status %s\n", m.ID, m.Metadata.Confidence, m.Metadata.Status)
		if correctionID != "" {
			fmt.Printf("Created correction memory %s\n", correctionID)
		}
		return nil
	},
}

var memoryArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a memory (terminal; the file is kept for audit)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		m, err := c.Archive(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Archived %s\n", m.ID)
		return nil
	},
}

func init() {
	memoryCorrectCmd.Flags().StringVar(&correctFeedbackFlag, "feedback", "", "what was wrong")
	memoryCorrectCmd.Flags().StringVar(&correctActionFlag, "action", "", "the correct behavior; creates a correction memory")
	memoryListCmd.Flags().StringVar(&listScopeFlag, "scope", "", "global or a project hash")
	memoryListCmd.Flags().StringVarP(&listTypeFlag, "type", "t", "", "filter by type")
	memoryListCmd.Flags().StringVar(&listTagFlag, "tag", "", "filter by tag")
	memoryListCmd.Flags().Float64Var(&listMinConfFlag, "min-confidence", 0, "minimum confidence")
	memoryListCmd.Flags().IntVarP(&listLimitFlag, "limit", "n", 0, "maximum results")
	memoryListCmd.Flags().BoolVar(&listAllFlag, "archived", false, "list archived memories instead")

	memoryCmd.AddCommand(memoryGetCmd)
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryReinforceCmd)
	memoryCmd.AddCommand(memoryCorrectCmd)
	memoryCmd.AddCommand(memoryArchiveCmd)
}
