package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/ergochat/readline"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/sheikhcoders/opensheikh/client"
	"github.com/sheikhcoders/opensheikh/config"
	"github.com/sheikhcoders/opensheikh/conversation"
	"github.com/sheikhcoders/opensheikh/eventfeed"
	"github.com/sheikhcoders/opensheikh/notice"
	"github.com/sheikhcoders/opensheikh/session"
	"github.com/sheikhcoders/opensheikh/store"
	"github.com/sheikhcoders/opensheikh/submit"
)

var (
	chatSession string
	chatMode    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Attach to a live session and chat",
	Long: `Chat hydrates the store from the server's message list, subscribes to
the server's event feed, and submits each input line as a user turn.
Ctrl+D exits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, cleanup := newLogger(cfg)
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()
		return runChat(ctx, cfg, logger)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "Session identity to attach to (required)")
	chatCmd.Flags().StringVar(&chatMode, "mode", "", "Agent mode (default: config mode)")
	_ = chatCmd.MarkFlagRequired("session")
}

func runChat(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	eventsURL, err := cfg.EventsURL()
	if err != nil {
		return err
	}

	e := newEngine(cfg.EventBuffer, false, logger)
	api := client.New(cfg.Server.URL, cfg.Timeout(), logger)

	e.session.Begin(chatSession)
	history, err := api.Messages(ctx, chatSession)
	if err != nil {
		return fmt.Errorf("hydrate session %s: %w", chatSession, err)
	}
	e.store.Hydrate(history)
	e.session.MarkReady()
	printTimeline(os.Stdout, e.timeline())

	coord := submit.New(submit.Config{
		Store:       e.store,
		Session:     e.session,
		Models:      session.NewModels(cfg.Model, cfg.Provider, cfg.Models),
		Turn:        e.reconciler,
		Sender:      api,
		DefaultMode: cfg.Mode,
		Logger:      logger,
	})

	out := &replyPrinter{store: e.store, printed: make(map[string]bool)}
	for _, m := range history {
		out.printed[m.ID] = true
	}
	e.store.AddObserver(out)
	e.overlay.Subscribe(func(n notice.Notice) { printNotice(os.Stdout, n) })

	lines, closeInput, err := openInput(logger)
	if err != nil {
		return err
	}
	defer closeInput()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.bus.Run(gctx)
		return nil
	})
	g.Go(func() error {
		src := &eventfeed.WebSocketSource{URL: eventsURL, Logger: logger}
		if err := src.Stream(gctx, e.bus); err != nil {
			return err
		}
		if gctx.Err() == nil {
			logger.Warn("event feed closed by server")
		}
		return nil
	})
	g.Go(func() error {
		defer stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				_, err := coord.Submit(gctx, line, chatMode)
				switch {
				case errors.Is(err, submit.ErrInFlight), errors.Is(err, submit.ErrInitializing):
					fmt.Fprintln(os.Stderr, "busy:", err)
				case err != nil:
					logger.Debug("submission failed", "error", err)
				}
			}
		}
	})
	return g.Wait()
}

// openInput starts a reader goroutine delivering input lines. It uses an
// editable prompt when stdin is a terminal and a plain scanner otherwise.
// The goroutine is not tied to the caller's context: a blocked read on
// stdin cannot be interrupted, so it is left to end with the process.
func openInput(logger *slog.Logger) (<-chan string, func(), error) {
	lines := make(chan string)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		go func() {
			defer close(lines)
			sc := bufio.NewScanner(os.Stdin)
			for sc.Scan() {
				lines <- sc.Text()
			}
		}()
		return lines, func() {}, nil
	}

	rl, err := readline.New("> ")
	if err != nil {
		return nil, nil, fmt.Errorf("open prompt: %w", err)
	}
	go func() {
		defer close(lines)
		for {
			line, err := rl.ReadLine()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Debug("prompt closed", "error", err)
				}
				return
			}
			lines <- line
		}
	}()
	return lines, func() { rl.Close() }, nil
}

// replyPrinter prints each assistant message once it completes.
type replyPrinter struct {
	store   *store.Store
	printed map[string]bool
	mu      sync.Mutex
}

func (p *replyPrinter) OnStoreEvent(ev store.Event) {
	var id string
	switch e := ev.(type) {
	case store.MessageMerged:
		id = e.ID
	case store.PartMerged:
		id = e.MessageID
	default:
		return
	}

	m, ok := p.store.Message(id)
	if !ok || m.Role != conversation.RoleAssistant || !m.Metadata.IsCompleted() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed[id] {
		return
	}
	p.printed[id] = true
	printMessage(os.Stdout, m)
}
