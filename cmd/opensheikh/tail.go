package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sheikhcoders/opensheikh/eventfeed"
	"github.com/sheikhcoders/opensheikh/notice"
)

var tailSession string

var tailCmd = &cobra.Command{
	Use:   "tail <events.jsonl>",
	Short: "Follow a growing recording and print status as it is derived",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, cleanup := newLogger(cfg)
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		e := newEngine(cfg.EventBuffer, tailSession == "", logger)
		if tailSession != "" {
			e.session.Activate(tailSession)
		}
		e.overlay.Subscribe(func(n notice.Notice) {
			printNotice(os.Stdout, n)
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			e.bus.Run(gctx)
			return nil
		})
		g.Go(func() error {
			defer e.bus.Close()
			return eventfeed.Follow(gctx, args[0], e.bus, logger)
		})
		return g.Wait()
	},
}

func init() {
	tailCmd.Flags().StringVar(&tailSession, "session", "", "Active session identity (default: first seen)")
}
