package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheikhcoders/opensheikh/eventfeed"
)

var (
	replaySession string
	replayJSON    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <events.jsonl>...",
	Short: "Reconcile recorded feed events and print the resulting conversation",
	Long: `Replay reads feed envelopes, one JSON object per line, applies them in
order, and prints the resulting timeline of messages and notices.

Without --session the first session identity found in the recording
becomes the active one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, cleanup := newLogger(cfg)
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		e := newEngine(cfg.EventBuffer, replaySession == "", logger)
		if replaySession != "" {
			e.session.Activate(replaySession)
		}

		total := 0
		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			n, err := eventfeed.ReadJSONL(ctx, f, syncPublisher{bus: e.bus}, logger)
			f.Close()
			if err != nil {
				return fmt.Errorf("replay %s: %w", path, err)
			}
			logger.Info("replayed recording", "path", path, "events", n)
			total += n
		}

		if replayJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Messages interface{} `json:"messages"`
				Notices  interface{} `json:"notices"`
				State    interface{} `json:"state"`
			}{e.store.Messages(), e.overlay.Notices(), e.reconciler.State()})
		}

		printTimeline(os.Stdout, e.timeline())
		st := e.reconciler.State()
		fmt.Printf("\n%d events, %d messages, phase %s\n", total, e.store.Len(), st.Phase)
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replaySession, "session", "", "Active session identity (default: first seen)")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Output the final state as JSON")
}
