package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/engramdev/engram/internal/session"
	"github.com/engramdev/engram/pkg/models"
)

var (
	recallLimitFlag   int
	recallMinConfFlag float64
	recallProjectFlag string
	recallTypeFlag    string
	recallTagFlag     string
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search memories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		query := strings.Join(args, " ")
		projectHash := ""
		if recallProjectFlag != "" {
			projectHash = session.ProjectHash(session.ResolveProjectRoot(recallProjectFlag))
		}
		results, err := c.Search(query, projectHash, models.Filter{
			MinConfidence: recallMinConfFlag,
			Type:          models.MemoryType(recallTypeFlag),
			Tag:           recallTagFlag,
			Limit:         recallLimitFlag,
		})
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No matching memories")
			return nil
		}
		for _, r := range results {
			m := r.Memory
			fmt.Printf("%.2f  [%s] %s (%s)\n", r.Score, m.Type, m.Content.Title, m.ID)
			fmt.Printf("      %s\n", m.Content.Description)
			if m.Content.Action != "" {
				fmt.Printf("      -> %s\n", m.Content.Action)
			}
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().IntVarP(&recallLimitFlag, "limit", "n", 5, "maximum results")
	recallCmd.Flags().Float64Var(&recallMinConfFlag, "min-confidence", 0, "minimum confidence filter")
	recallCmd.Flags().StringVar(&recallProjectFlag, "project", "", "project path for scope boost")
	recallCmd.Flags().StringVarP(&recallTypeFlag, "type", "t", "", "filter by memory type")
	recallCmd.Flags().StringVar(&recallTagFlag, "tag", "", "filter by tag")
}
