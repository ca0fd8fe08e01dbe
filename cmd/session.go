package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage session boundaries",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start [project-path]",
	Short: "Start a new session (recovering any orphaned ones first)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		s, err := c.StartSession(path)
		if err != nil {
			return err
		}
		fmt.Printf("Session %s started for %s\n", s.ID, s.ProjectPath)
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end [session-id]",
	Short: "End a session (defaults to the active one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		id := ""
		if len(args) > 0 {
			id = args[0]
		} else {
			id = c.Sessions.ActiveID()
		}
		if id == "" {
			return fmt.Errorf("no active session")
		}
		summary, err := c.EndSession(id)
		if err != nil {
			return err
		}
		fmt.Printf("Session %s ended: %d min, %d observations\n",
			summary.SessionID, summary.DurationMinutes, summary.ObservationCount)
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
}
