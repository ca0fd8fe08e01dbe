package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/engramdev/engram/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		memories, err := c.Store.All()
		if err != nil {
			return err
		}
		byType := map[models.MemoryType]int{}
		byStatus := map[models.MemoryStatus]int{}
		for _, m := range memories {
			byType[m.Type]++
			byStatus[m.Metadata.Status]++
		}
		pending, _ := c.Detector.Pending()
		sessions, _ := c.Sessions.List()

		fmt.Printf("State directory: %s\n", c.Dir)
		fmt.Printf("Memories: %d\n", len(memories))
		for _, t := range sortedKeys(byType) {
			fmt.Printf("  %-12s %d\n", t, byType[t])
		}
		fmt.Println("By status:")
		for _, s := range sortedKeys(byStatus) {
			fmt.Printf("  %-12s %d\n", s, byStatus[s])
		}
		fmt.Printf("Unprocessed observations: %d\n", pending)
		fmt.Printf("Sessions tracked: %d\n", len(sessions))
		if active := c.Sessions.ActiveID(); active != "" {
			fmt.Printf("Active session: %s\n", active)
		}
		return nil
	},
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
