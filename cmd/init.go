package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/engramdev/engram/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the engram state directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.Dir(dirFlag)
		if err != nil {
			return err
		}
		dirs := []string{
			dir,
			filepath.Join(dir, "memories", "global"),
			filepath.Join(dir, "memories", "projects"),
		}
		for _, d := range dirs {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", d, err)
			}
		}
		if _, err := os.Stat(config.Path(dir)); os.IsNotExist(err) {
			if err := config.Save(dir, config.Default()); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Printf("Created %s\n", config.Path(dir))
		} else {
			fmt.Printf("Config exists at %s\n", config.Path(dir))
		}
		fmt.Printf("Initialized engram in %s\n", dir)
		return nil
	},
}
