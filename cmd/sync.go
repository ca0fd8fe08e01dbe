package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramdev/engram/internal/session"
	"github.com/engramdev/engram/pkg/models"
)

var (
	syncModeFlag    string
	syncProjectFlag string
)

var syncCmd = &cobra.Command{
	Use:   "sync <document>",
	Short: "Two-way sync between memories and a preference document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		scope := models.GlobalScope()
		if syncProjectFlag != "" {
			root := session.ResolveProjectRoot(syncProjectFlag)
			scope = models.ProjectScope(root, session.ProjectHash(root))
		}
		report, err := c.SyncDocument(syncModeFlag, args[0], scope)
		if err != nil {
			return err
		}
		fmt.Printf("Synced %s\n", report.DocumentPath)
		fmt.Printf("  imported: %d (skipped %d duplicates)\n", len(report.Imported), report.Skipped)
		fmt.Printf("  promoted: %d (document changed: %v)\n", len(report.Promoted), report.Changed)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncModeFlag, "mode", "m", "both", "promote, import or both")
	syncCmd.Flags().StringVar(&syncProjectFlag, "project", "", "project scope for the document")
}
