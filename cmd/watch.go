package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramdev/engram/internal/core"
	"github.com/engramdev/engram/internal/session"
	"github.com/engramdev/engram/internal/watch"
)

// coreRecorder adapts the core capture API to the watcher's sink.
type coreRecorder struct{ c *core.Core }

func (r coreRecorder) RecordObservation(obsType string, data map[string]any) {
	r.c.RecordObservation(obsType, data)
}

var watchCmd = &cobra.Command{
	Use:   "watch [project-path]",
	Short: "Watch a project tree and capture file changes until interrupted",
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
		root := session.ResolveProjectRoot(path)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w := watch.New(
			root,
			time.Duration(c.Config.Watch.DebounceMillis)*time.Millisecond,
			c.Config.Watch.Ignore,
			coreRecorder{c},
			c.Logger(),
		)
		fmt.Printf("Watching %s (ctrl-c to stop)\n", root)
		return w.Run(ctx)
	},
}
