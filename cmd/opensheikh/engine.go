package main

import (
	"context"
	"log/slog"

	"github.com/sheikhcoders/opensheikh/eventfeed"
	"github.com/sheikhcoders/opensheikh/notice"
	"github.com/sheikhcoders/opensheikh/reconciler"
	"github.com/sheikhcoders/opensheikh/session"
	"github.com/sheikhcoders/opensheikh/store"
)

// engine is the wired reconciliation core shared by every command.
type engine struct {
	store      *store.Store
	session    *session.Context
	overlay    *notice.Overlay
	bus        *eventfeed.Bus
	reconciler *reconciler.Reconciler
}

func newEngine(bufferSize int, adoptSession bool, logger *slog.Logger) *engine {
	e := &engine{
		store:   store.New(logger),
		session: session.NewContext(),
		overlay: notice.NewOverlay(nil),
		bus:     eventfeed.NewBus(bufferSize, logger),
	}
	e.reconciler = reconciler.New(e.store, e.session, reconciler.Options{
		Logger:       logger,
		Notifier:     e.overlay,
		AdoptSession: adoptSession,
	})
	e.reconciler.Connect(e.bus)
	return e
}

// timeline returns the current messages interleaved with notices.
func (e *engine) timeline() []notice.Entry {
	return notice.Timeline(e.store.Messages(), e.overlay.Notices())
}

// syncPublisher dispatches each event on the publishing goroutine, so a
// finished read means every event has been applied.
type syncPublisher struct {
	bus *eventfeed.Bus
}

func (p syncPublisher) Publish(ctx context.Context, ev eventfeed.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.bus.Dispatch(ev)
	return nil
}
