// Package reconciler consumes the named event feed of the active
// conversation, merges each event into the message store, and tracks the
// per-turn UI state the store does not: whether the turn is loading,
// whether any stream event has been seen yet, and the last status text
// surfaced.
package reconciler

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sheikhcoders/opensheikh/conversation"
	"github.com/sheikhcoders/opensheikh/eventfeed"
	"github.com/sheikhcoders/opensheikh/session"
	"github.com/sheikhcoders/opensheikh/status"
	"github.com/sheikhcoders/opensheikh/store"
)

// Phase is the turn lifecycle.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseAwaitingFirstEvent Phase = "awaiting-first-event"
	PhaseStreaming          Phase = "streaming"
)

// Notifier receives derived status and error text. The notice overlay
// implements it.
type Notifier interface {
	Status(text string)
	Error(text string)
	RemoveLastStatus()
}

type nopNotifier struct{}

func (nopNotifier) Status(string)     {}
func (nopNotifier) Error(string)      {}
func (nopNotifier) RemoveLastStatus() {}

// State is a point-in-time copy of the reconciler's turn state.
type State struct {
	LastMetadata       *conversation.Metadata
	Phase              Phase
	LastStatus         string
	TurnError          string
	Loading            bool
	FirstEventReceived bool
}

// Options configures a Reconciler.
type Options struct {
	Logger   *slog.Logger
	Notifier Notifier
	// AdoptSession makes the first session identity seen on the feed the
	// active one when none is set. Used when replaying recordings.
	AdoptSession bool
}

// Reconciler applies feed events to a store. Events are expected from a
// single dispatcher; the turn state is also read and written by the
// submission path, so it is guarded by mu.
type Reconciler struct {
	store    *store.Store
	session  *session.Context
	notifier Notifier
	logger   *slog.Logger

	unsubs []func()
	state  State
	adopt  bool
	mu     sync.Mutex

	// subMu guards unsubs and gen. Feed handlers hold it for reading while
	// they apply an event, so Disconnect waits for them.
	subMu sync.RWMutex
	gen   uint64
}

// New creates a reconciler writing into st and scoped to sess.
func New(st *store.Store, sess *session.Context, opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := opts.Notifier
	if n == nil {
		n = nopNotifier{}
	}
	return &Reconciler{
		store:    st,
		session:  sess,
		notifier: n,
		logger:   logger.With("component", "reconciler"),
		adopt:    opts.AdoptSession,
		state:    State{Phase: PhaseIdle},
	}
}

// eventTypes lists every event name the reconciler subscribes to.
var eventTypes = []string{
	eventfeed.TypeMessageUpdated,
	eventfeed.TypePartUpdated,
	eventfeed.TypeMessageRemoved,
	eventfeed.TypePartRemoved,
	eventfeed.TypeSessionError,
	eventfeed.TypeSessionIdle,
}

// Connect subscribes to every handled event name on feed. An existing
// subscription is dropped first; nothing is replayed. Connect and
// Disconnect must not be called from inside a feed handler.
func (r *Reconciler) Connect(feed eventfeed.Feed) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.unsubscribeLocked()
	gen := r.gen
	for _, typ := range eventTypes {
		r.unsubs = append(r.unsubs, feed.Subscribe(typ, func(ev eventfeed.Event) {
			r.handleFrom(gen, ev)
		}))
	}
}

// Disconnect removes all subscriptions and waits for a handler that is
// already applying an event. No event is merged once it returns. Applied
// state is kept.
func (r *Reconciler) Disconnect() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.unsubscribeLocked()
}

// unsubscribeLocked ends the current connection generation.
func (r *Reconciler) unsubscribeLocked() {
	r.gen++
	for _, u := range r.unsubs {
		u()
	}
	r.unsubs = nil
}

// handleFrom applies ev if it was delivered to the current connection.
func (r *Reconciler) handleFrom(gen uint64, ev eventfeed.Event) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	if gen != r.gen {
		r.logger.Debug("dropping event from a closed connection", "type", ev.Type)
		return
	}
	_ = r.Handle(ev)
}

// Handle applies one event. The returned error is informational: the
// event has been dropped or partially applied and the failure logged.
func (r *Reconciler) Handle(ev eventfeed.Event) error {
	var err error
	switch ev.Type {
	case eventfeed.TypeMessageUpdated:
		err = r.onMessageUpdated(ev)
	case eventfeed.TypePartUpdated:
		err = r.onPartUpdated(ev)
	case eventfeed.TypeMessageRemoved:
		err = r.onMessageRemoved(ev)
	case eventfeed.TypePartRemoved:
		err = r.onPartRemoved(ev)
	case eventfeed.TypeSessionError:
		err = r.onSessionError(ev)
	case eventfeed.TypeSessionIdle:
		err = r.onSessionIdle(ev)
	default:
		r.logger.Debug("ignoring event", "type", ev.Type)
		return nil
	}

	var de *eventfeed.DecodeError
	if errors.As(err, &de) {
		r.logger.Warn("dropping undecodable event", "type", ev.Type, "error", err)
	}
	return err
}

func (r *Reconciler) onMessageUpdated(ev eventfeed.Event) error {
	var p eventfeed.MessageUpdated
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if !r.inScope(p.Info.SessionID()) {
		return nil
	}
	r.markEvent()

	if err := r.store.MergeMessage(p.Info); err != nil {
		return fmt.Errorf("merge message: %w", err)
	}

	r.mu.Lock()
	if p.Info.Metadata != nil {
		meta := *p.Info.Metadata
		r.state.LastMetadata = &meta
	}
	if p.Info.Metadata.IsCompleted() {
		r.state.Loading = false
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	merged, ok := r.store.Message(p.Info.ID)
	if !ok {
		return nil
	}
	r.Status(status.MessageStatus(merged))
	return nil
}

func (r *Reconciler) onPartUpdated(ev eventfeed.Event) error {
	var p eventfeed.PartUpdated
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if !r.inScope(p.Part.SessionID) {
		return nil
	}
	r.markEvent()

	messageID := p.TargetMessageID()
	if err := r.store.MergePart(p.Part, messageID); err != nil {
		return err
	}

	switch {
	case p.Part.IsTool():
		r.Status(status.ContextualToolStatus(p.Part, r.metadataFor(messageID)))
	case p.Part.Type == conversation.PartTypeText && strings.TrimSpace(p.Part.Text) != "":
		text := p.Part.Text
		if runes := []rune(text); len(runes) > 100 {
			text = string(runes[:100]) + "..."
		}
		r.logger.Debug("received text part", "message", messageID, "text", text)
	}
	return nil
}

// metadataFor prefers the owning message's metadata and falls back to the
// last metadata seen on the feed.
func (r *Reconciler) metadataFor(messageID string) *conversation.Metadata {
	if m, ok := r.store.Message(messageID); ok && m.Metadata != nil {
		return m.Metadata
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.LastMetadata
}

func (r *Reconciler) onMessageRemoved(ev eventfeed.Event) error {
	var p eventfeed.MessageRemoved
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if !r.inScope(p.SessionID) {
		return nil
	}
	r.markEvent()
	if !r.store.RemoveMessage(p.MessageID) {
		r.logger.Debug("remove of unknown message", "message", p.MessageID)
	}
	return nil
}

func (r *Reconciler) onPartRemoved(ev eventfeed.Event) error {
	var p eventfeed.PartRemoved
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if !r.inScope(p.SessionID) {
		return nil
	}
	r.markEvent()
	if !r.store.RemovePart(p.MessageID, p.PartID) {
		r.logger.Debug("remove of unknown part", "message", p.MessageID, "part", p.PartID)
	}
	return nil
}

func (r *Reconciler) onSessionError(ev eventfeed.Event) error {
	var p eventfeed.SessionError
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if !r.inScope(p.SessionID) {
		return nil
	}
	r.markEvent()

	msg := p.Message()
	r.logger.Error("session error", "session", p.SessionID, "name", p.Error.Name, "message", msg)

	r.mu.Lock()
	r.state.Loading = false
	r.state.TurnError = msg
	r.mu.Unlock()

	r.notifier.Error(msg)
	return nil
}

func (r *Reconciler) onSessionIdle(ev eventfeed.Event) error {
	var p eventfeed.SessionIdle
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if p.SessionID == "" {
		return nil
	}
	r.adoptSession(p.SessionID)
	if p.SessionID != r.session.ID() {
		r.logger.Debug("idle for another session", "session", p.SessionID)
		return nil
	}

	r.mu.Lock()
	r.state.FirstEventReceived = true
	r.state.Loading = false
	r.state.LastStatus = ""
	r.state.Phase = PhaseIdle
	r.mu.Unlock()

	r.session.SetIdle(true)
	r.notifier.RemoveLastStatus()
	return nil
}

// inScope reports whether an event naming sessionID belongs to the active
// conversation. Events without a session identity are always accepted.
func (r *Reconciler) inScope(sessionID string) bool {
	if sessionID == "" {
		return true
	}
	r.adoptSession(sessionID)
	active := r.session.ID()
	if active == "" || active == sessionID {
		return true
	}
	r.logger.Debug("ignoring event for another session", "session", sessionID, "active", active)
	return false
}

func (r *Reconciler) adoptSession(sessionID string) {
	if r.adopt && r.session.ID() == "" {
		r.session.Activate(sessionID)
		r.logger.Info("adopted session", "session", sessionID)
	}
}

// markEvent flips the first-event flag and enters streaming.
func (r *Reconciler) markEvent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.FirstEventReceived = true
	r.state.Phase = PhaseStreaming
}

// --- Turn control, used by the submission path ---------------------------

// BeginTurn starts a new submission cycle: loading, no event seen yet, no
// last status, not idle.
func (r *Reconciler) BeginTurn() {
	r.mu.Lock()
	r.state.Loading = true
	r.state.FirstEventReceived = false
	r.state.LastStatus = ""
	r.state.TurnError = ""
	r.state.Phase = PhaseAwaitingFirstEvent
	r.mu.Unlock()

	r.session.SetIdle(false)
}

// EndTurn clears the loading flag. The phase is left to the feed.
func (r *Reconciler) EndTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Loading = false
}

// Loading reports whether a submission is in flight.
func (r *Reconciler) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Loading
}

// FirstEventReceived reports whether any stream event arrived since the
// turn began.
func (r *Reconciler) FirstEventReceived() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.FirstEventReceived
}

// State returns a copy of the turn state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state
	if s.LastMetadata != nil {
		meta := *s.LastMetadata
		s.LastMetadata = &meta
	}
	return s
}

// Status surfaces text unless it is empty or equal to the last surfaced
// status.
func (r *Reconciler) Status(text string) {
	if text == "" {
		return
	}
	r.mu.Lock()
	if text == r.state.LastStatus {
		r.mu.Unlock()
		return
	}
	r.state.LastStatus = text
	r.mu.Unlock()

	r.notifier.Status(text)
}

// Error surfaces a failure for the current turn.
func (r *Reconciler) Error(text string) {
	r.mu.Lock()
	r.state.TurnError = text
	r.mu.Unlock()

	r.notifier.Error(text)
}
