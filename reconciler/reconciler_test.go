package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sheikhcoders/opensheikh/conversation"
	"github.com/sheikhcoders/opensheikh/eventfeed"
	"github.com/sheikhcoders/opensheikh/notice"
	"github.com/sheikhcoders/opensheikh/session"
	"github.com/sheikhcoders/opensheikh/status"
	"github.com/sheikhcoders/opensheikh/store"
)

type recorder struct {
	mu       sync.Mutex
	statuses []string
	errors   []string
	removed  int
}

func (r *recorder) Status(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, text)
}

func (r *recorder) Error(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, text)
}

func (r *recorder) RemoveLastStatus() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed++
}

type fixture struct {
	store   *store.Store
	session *session.Context
	notes   *recorder
	rec     *Reconciler
}

func newFixture(sessionID string) *fixture {
	f := &fixture{
		store:   store.New(nil),
		session: session.NewContext(),
		notes:   &recorder{},
	}
	if sessionID != "" {
		f.session.Activate(sessionID)
	}
	f.rec = New(f.store, f.session, Options{Notifier: f.notes})
	return f
}

func assistant(id string, parts ...conversation.Part) conversation.Message {
	return conversation.Message{
		ID:       id,
		Role:     conversation.RoleAssistant,
		Parts:    parts,
		Metadata: &conversation.Metadata{SessionID: "s1", Time: conversation.TimeInfo{Created: 1000}},
	}
}

func tool(id string, st conversation.ToolStatus, args map[string]interface{}) conversation.Part {
	return conversation.Part{
		ID:    id,
		Type:  conversation.PartTypeTool,
		Tool:  "search",
		State: &conversation.ToolState{Status: st, Args: args},
	}
}

func messageUpdated(m conversation.Message) eventfeed.Event {
	return eventfeed.MustEvent(eventfeed.TypeMessageUpdated, eventfeed.MessageUpdated{Info: m})
}

func partUpdated(messageID string, p conversation.Part) eventfeed.Event {
	return eventfeed.MustEvent(eventfeed.TypePartUpdated, eventfeed.PartUpdated{MessageID: messageID, Part: p})
}

func idle(sessionID string) eventfeed.Event {
	return eventfeed.MustEvent(eventfeed.TypeSessionIdle, eventfeed.SessionIdle{SessionID: sessionID})
}

func TestToolLifecycleThroughEvents(t *testing.T) {
	f := newFixture("s1")
	f.rec.BeginTurn()
	assert.Equal(t, PhaseAwaitingFirstEvent, f.rec.State().Phase)

	require.NoError(t, f.rec.Handle(messageUpdated(assistant("m1"))))
	assert.True(t, f.rec.FirstEventReceived())
	assert.Equal(t, PhaseStreaming, f.rec.State().Phase)

	args := map[string]interface{}{"q": "x"}
	require.NoError(t, f.rec.Handle(partUpdated("m1", tool("p2", conversation.ToolStatusPending, nil))))
	require.NoError(t, f.rec.Handle(partUpdated("m1", tool("p2", conversation.ToolStatusRunning, args))))
	done := tool("p2", conversation.ToolStatusCompleted, args)
	done.State.Result = "done"
	require.NoError(t, f.rec.Handle(partUpdated("m1", done)))

	m, ok := f.store.Message("m1")
	require.True(t, ok)
	require.Len(t, m.Parts, 1)
	assert.Equal(t, conversation.ToolStatusCompleted, m.Parts[0].State.Status)
	assert.Equal(t, "done", m.Parts[0].State.Result)
	assert.False(t, status.HasActiveToolExecution(m))

	assert.Equal(t, []string{
		"Preparing search...",
		"Running search: x...",
		"✓ search: x completed",
	}, f.notes.statuses)
	assert.True(t, f.rec.Loading(), "part events never end the turn")
}

func TestPartRegressionIsRejected(t *testing.T) {
	f := newFixture("s1")
	require.NoError(t, f.rec.Handle(messageUpdated(assistant("m1"))))
	require.NoError(t, f.rec.Handle(partUpdated("m1", tool("p1", conversation.ToolStatusCompleted, nil))))

	err := f.rec.Handle(partUpdated("m1", tool("p1", conversation.ToolStatusRunning, nil)))
	var te *conversation.TransitionError
	require.True(t, errors.As(err, &te))

	m, _ := f.store.Message("m1")
	assert.Equal(t, conversation.ToolStatusCompleted, m.Parts[0].Status())
	assert.Equal(t, []string{"✓ search completed"}, f.notes.statuses)
}

func TestPartForUnknownMessageIsDropped(t *testing.T) {
	f := newFixture("s1")
	err := f.rec.Handle(partUpdated("ghost", conversation.Part{ID: "p1", Type: conversation.PartTypeText, Text: "hi"}))
	assert.ErrorIs(t, err, store.ErrUnknownMessage)
	assert.Equal(t, 0, f.store.Len())
	assert.True(t, f.rec.FirstEventReceived())
}

func TestTextPartsDoNotChangeStatus(t *testing.T) {
	f := newFixture("s1")
	require.NoError(t, f.rec.Handle(messageUpdated(assistant("m1"))))
	require.NoError(t, f.rec.Handle(partUpdated("m1", conversation.Part{ID: "p1", Type: conversation.PartTypeText, Text: "Hi"})))
	require.NoError(t, f.rec.Handle(partUpdated("m1", conversation.Part{ID: "p1", Type: conversation.PartTypeText, Text: "Hi there"})))

	m, _ := f.store.Message("m1")
	require.Len(t, m.Parts, 1)
	assert.Equal(t, "Hi there", m.Parts[0].Text)
	assert.Empty(t, f.notes.statuses)
}

func TestMessageUpdatedStatus(t *testing.T) {
	f := newFixture("s1")
	f.rec.BeginTurn()

	running := assistant("m1",
		tool("a", conversation.ToolStatusCompleted, nil),
		tool("b", conversation.ToolStatusRunning, nil))
	require.NoError(t, f.rec.Handle(messageUpdated(running)))
	require.NoError(t, f.rec.Handle(messageUpdated(running)))

	finished := assistant("m1",
		tool("a", conversation.ToolStatusCompleted, nil),
		tool("b", conversation.ToolStatusCompleted, nil))
	require.NoError(t, f.rec.Handle(messageUpdated(finished)))

	assert.Equal(t, []string{
		"Running search... (1/2 done)",
		"✓ Completed 2 tools",
	}, f.notes.statuses, "repeated status is surfaced once")
	assert.True(t, f.rec.Loading())
}

func TestMessageCompletionClearsLoadingButKeepsStreaming(t *testing.T) {
	f := newFixture("s1")
	f.rec.BeginTurn()

	m := assistant("m1", tool("a", conversation.ToolStatusRunning, nil))
	m.Metadata.Time.Completed = 2000
	require.NoError(t, f.rec.Handle(messageUpdated(m)))

	st := f.rec.State()
	assert.False(t, st.Loading)
	assert.Equal(t, PhaseStreaming, st.Phase)
	require.NotNil(t, st.LastMetadata)
	assert.Equal(t, int64(2000), st.LastMetadata.Time.Completed)
	assert.Empty(t, f.notes.statuses, "completed messages surface no status")
	assert.False(t, f.session.IsIdle())
}

func TestSessionIdle(t *testing.T) {
	t.Run("matching session ends the turn", func(t *testing.T) {
		f := newFixture("s1")
		f.rec.BeginTurn()
		f.rec.Status("Running search...")

		require.NoError(t, f.rec.Handle(idle("s1")))
		st := f.rec.State()
		assert.False(t, st.Loading)
		assert.Equal(t, PhaseIdle, st.Phase)
		assert.Empty(t, st.LastStatus)
		assert.True(t, f.session.IsIdle())
		assert.Equal(t, 1, f.notes.removed)
	})

	t.Run("other session leaves state unchanged", func(t *testing.T) {
		f := newFixture("s1")
		f.rec.BeginTurn()
		f.rec.Status("Running search...")
		before := f.rec.State()

		require.NoError(t, f.rec.Handle(idle("s2")))
		assert.Equal(t, before, f.rec.State())
		assert.False(t, f.session.IsIdle())
		assert.Equal(t, 0, f.notes.removed)
	})

	t.Run("no active session never matches", func(t *testing.T) {
		f := newFixture("")
		f.rec.BeginTurn()
		require.NoError(t, f.rec.Handle(idle("s1")))
		assert.True(t, f.rec.Loading())
	})
}

func TestSessionError(t *testing.T) {
	f := newFixture("s1")
	f.rec.BeginTurn()
	require.NoError(t, f.rec.Handle(messageUpdated(assistant("m1", conversation.Part{ID: "t", Type: conversation.PartTypeText, Text: "partial"}))))

	ev := eventfeed.MustEvent(eventfeed.TypeSessionError, eventfeed.SessionError{
		SessionID: "s1",
		Error:     eventfeed.ErrorInfo{Data: eventfeed.ErrorData{Message: "rate limited"}},
	})
	require.NoError(t, f.rec.Handle(ev))

	st := f.rec.State()
	assert.False(t, st.Loading)
	assert.Equal(t, "rate limited", st.TurnError)
	assert.Equal(t, PhaseStreaming, st.Phase)
	assert.Equal(t, []string{"rate limited"}, f.notes.errors)
	assert.Equal(t, 1, f.store.Len(), "accumulated content is kept")
}

func TestSessionScoping(t *testing.T) {
	f := newFixture("s1")
	other := assistant("m9")
	other.Metadata.SessionID = "s2"
	require.NoError(t, f.rec.Handle(messageUpdated(other)))
	assert.Equal(t, 0, f.store.Len())
	assert.False(t, f.rec.FirstEventReceived())

	ev := eventfeed.MustEvent(eventfeed.TypeSessionError, eventfeed.SessionError{SessionID: "s2"})
	require.NoError(t, f.rec.Handle(ev))
	assert.Empty(t, f.notes.errors)
}

func TestAdoptSession(t *testing.T) {
	sess := session.NewContext()
	rec := New(store.New(nil), sess, Options{AdoptSession: true})
	require.NoError(t, rec.Handle(messageUpdated(assistant("m1"))))
	assert.Equal(t, "s1", sess.ID())

	require.NoError(t, rec.Handle(idle("s1")))
	assert.Equal(t, PhaseIdle, rec.State().Phase)
}

func TestRemovals(t *testing.T) {
	f := newFixture("s1")
	require.NoError(t, f.rec.Handle(messageUpdated(assistant("m1",
		conversation.Part{ID: "a", Type: conversation.PartTypeText, Text: "a"},
		conversation.Part{ID: "b", Type: conversation.PartTypeText, Text: "b"}))))
	require.NoError(t, f.rec.Handle(messageUpdated(assistant("m2"))))

	require.NoError(t, f.rec.Handle(eventfeed.MustEvent(eventfeed.TypePartRemoved,
		eventfeed.PartRemoved{SessionID: "s1", MessageID: "m1", PartID: "a"})))
	m, _ := f.store.Message("m1")
	require.Len(t, m.Parts, 1)
	assert.Equal(t, "b", m.Parts[0].ID)

	require.NoError(t, f.rec.Handle(eventfeed.MustEvent(eventfeed.TypeMessageRemoved,
		eventfeed.MessageRemoved{SessionID: "s1", MessageID: "m2"})))
	require.NoError(t, f.rec.Handle(eventfeed.MustEvent(eventfeed.TypeMessageRemoved,
		eventfeed.MessageRemoved{MessageID: "absent"})))
	assert.Equal(t, 1, f.store.Len())
}

func TestUndecodableAndUnknownEvents(t *testing.T) {
	f := newFixture("s1")
	err := f.rec.Handle(eventfeed.Event{Type: eventfeed.TypeMessageUpdated})
	var de *eventfeed.DecodeError
	assert.True(t, errors.As(err, &de))

	assert.NoError(t, f.rec.Handle(eventfeed.Event{Type: "server.connected"}))
	assert.False(t, f.rec.FirstEventReceived())
}

func TestConnectDisconnectOverBus(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := eventfeed.NewBus(16, nil)
	st := store.New(nil)
	sess := session.NewContext()
	sess.Activate("s1")
	overlay := notice.NewOverlay(nil)
	rec := New(st, sess, Options{Notifier: overlay})
	rec.Connect(bus)
	rec.Connect(bus) // reconnect replaces the subscription

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()

	rec.BeginTurn()
	require.NoError(t, bus.Publish(ctx, messageUpdated(assistant("m1"))))
	require.NoError(t, bus.Publish(ctx, partUpdated("m1", tool("p1", conversation.ToolStatusRunning, nil))))
	require.NoError(t, bus.Publish(ctx, idle("s1")))
	require.Eventually(t, func() bool { return rec.State().Phase == PhaseIdle }, time.Second, 5*time.Millisecond)

	m, ok := st.Message("m1")
	require.True(t, ok)
	require.Len(t, m.Parts, 1, "a single subscription merges each event once")
	assert.Empty(t, overlay.Notices(), "the idle turn's status notice is removed")

	rec.Disconnect()
	require.NoError(t, bus.Publish(ctx, messageUpdated(assistant("m2"))))
	require.Eventually(t, func() bool { return bus.Pending() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, st.Len(), "no merges after disconnect")

	cancel()
	<-done
}

func runBus(bus *eventfeed.Bus) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestReconnectSkipsEventsQueuedBefore(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := eventfeed.NewBus(16, nil)
	f := newFixture("s1")
	f.rec.Connect(bus)
	require.NoError(t, bus.Publish(context.Background(), messageUpdated(assistant("m1"))))
	f.rec.Disconnect()
	f.rec.Connect(bus)
	require.NoError(t, bus.Publish(context.Background(), messageUpdated(assistant("m2"))))

	stop := runBus(bus)
	defer stop()
	require.Eventually(t, func() bool {
		_, ok := f.store.Message("m2")
		return ok
	}, time.Second, 5*time.Millisecond)
	_, ok := f.store.Message("m1")
	assert.False(t, ok, "event queued before the reconnect is not applied")
	assert.Equal(t, 1, f.store.Len())
}

func TestNoMergeAfterDisconnect(t *testing.T) {
	t.Run("event already being dispatched", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		bus := eventfeed.NewBus(16, nil)
		f := newFixture("s1")
		entered := make(chan struct{})
		release := make(chan struct{})
		bus.Subscribe(eventfeed.TypeMessageUpdated, func(eventfeed.Event) {
			close(entered)
			<-release
		})
		f.rec.Connect(bus)
		finished := make(chan struct{})
		bus.Subscribe(eventfeed.TypeMessageUpdated, func(eventfeed.Event) { close(finished) })

		stop := runBus(bus)
		defer stop()
		require.NoError(t, bus.Publish(context.Background(), messageUpdated(assistant("m1"))))
		<-entered
		f.rec.Disconnect()
		close(release)
		<-finished

		assert.Equal(t, 0, f.store.Len())
	})

	t.Run("waits for the handler in progress", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		bus := eventfeed.NewBus(16, nil)
		f := newFixture("s1")
		entered := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		f.store.AddObserver(store.ObserverFunc(func(store.Event) {
			once.Do(func() {
				close(entered)
				<-release
			})
		}))
		f.rec.Connect(bus)

		stop := runBus(bus)
		defer stop()
		require.NoError(t, bus.Publish(context.Background(), messageUpdated(assistant("m1"))))
		<-entered

		disconnected := make(chan struct{})
		go func() {
			f.rec.Disconnect()
			close(disconnected)
		}()
		select {
		case <-disconnected:
			t.Fatal("Disconnect returned while an event was being applied")
		case <-time.After(50 * time.Millisecond):
		}
		close(release)
		<-disconnected

		require.NoError(t, bus.Publish(context.Background(), messageUpdated(assistant("m2"))))
		require.Eventually(t, func() bool { return bus.Pending() == 0 }, time.Second, 5*time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, 1, f.store.Len())
	})
}
