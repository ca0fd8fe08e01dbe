package cmd

import (
	"github.com/spf13/cobra"

	"github.com/engramdev/engram/internal/config"
	"github.com/engramdev/engram/internal/core"
	"github.com/engramdev/engram/internal/logging"
)

var (
	version = "0.1.0"
	dirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "A local memory store that learns your preferences and workflows",
	Long: `Engram is a local, file-based memory system. It captures observations
from your sessions, detects patterns worth remembering, scores them by
confidence, and syncs the high-confidence ones into your preference
document without clobbering your manual edits.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "state directory (default ~/.engram, or $ENGRAM_DIR)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(observeCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
}

// openCore resolves the state root, loads config and assembles the core.
func openCore() (*core.Core, error) {
	dir, err := config.Dir(dirFlag)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	return core.Open(dir, cfg, logging.New(cfg.LogLevel)), nil
}
