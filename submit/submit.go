// Package submit sends user turns. It inserts the authored message into the
// store before the remote call so it shows immediately, then folds the
// server's synchronous reply through the same merge path the event feed
// uses.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sheikhcoders/opensheikh/conversation"
	"github.com/sheikhcoders/opensheikh/session"
	"github.com/sheikhcoders/opensheikh/store"
)

// Rejection reasons. A rejected submission changes nothing.
var (
	ErrEmptyInput   = errors.New("input is empty")
	ErrNoSession    = errors.New("no active session")
	ErrInFlight     = errors.New("a submission is already in flight")
	ErrInitializing = errors.New("session is still initializing")
)

// ProcessingStatus is surfaced when the reply already holds tool parts but
// no stream event has arrived for the turn.
const ProcessingStatus = "Processing tools..."

// Request is the outbound turn.
type Request struct {
	MessageID  string              `json:"messageID"`
	ProviderID string              `json:"providerID"`
	ModelID    string              `json:"modelID"`
	Mode       string              `json:"mode,omitempty"`
	Parts      []conversation.Part `json:"parts"`
}

// Sender performs the remote submission call.
type Sender interface {
	SendMessage(ctx context.Context, sessionID string, req Request) (conversation.Message, error)
}

// Turn is the per-turn state owned by the event reconciler.
type Turn interface {
	BeginTurn()
	EndTurn()
	Loading() bool
	FirstEventReceived() bool
	Status(text string)
	Error(text string)
}

// Config wires a Coordinator.
type Config struct {
	Store   *store.Store
	Session *session.Context
	Models  *session.Models
	Turn    Turn
	Sender  Sender
	Logger  *slog.Logger

	// DefaultMode is used when Submit is called without a mode.
	DefaultMode string

	// Clock and NewID default to time.Now and a "msg_" prefixed UUID.
	Clock func() time.Time
	NewID func() string
}

// Coordinator accepts user input and runs one submission at a time.
type Coordinator struct {
	cfg      Config
	logger   *slog.Logger
	mu       sync.Mutex
	inFlight bool
}

// New creates a coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return "msg_" + uuid.NewString() }
	}
	return &Coordinator{cfg: cfg, logger: cfg.Logger.With("component", "submit")}
}

// Submit sends input as a new user turn in mode. It returns the server's
// reply, or a rejection error without side effects, or the send error
// after surfacing it as a notice. The loading flag is always cleared on
// return from an accepted submission.
func (c *Coordinator) Submit(ctx context.Context, input, mode string) (conversation.Message, error) {
	sessionID, err := c.acquire(input)
	if err != nil {
		return conversation.Message{}, err
	}
	defer c.release()

	turn := c.cfg.Turn
	turn.BeginTurn()
	defer turn.EndTurn()

	req := c.buildRequest(sessionID, input, mode)
	if err := c.cfg.Store.AppendUserMessage(c.optimisticMessage(sessionID, req)); err != nil {
		return conversation.Message{}, fmt.Errorf("insert user message: %w", err)
	}

	resp, err := c.cfg.Sender.SendMessage(ctx, sessionID, req)
	if err != nil {
		c.logger.Error("failed to send message", "session", sessionID, "message", req.MessageID, "error", err)
		turn.Error(fmt.Sprintf("Failed to send message - %v", err))
		return conversation.Message{}, fmt.Errorf("send message: %w", err)
	}

	if resp.ID != "" {
		if err := c.cfg.Store.MergeMessage(resp); err != nil {
			c.logger.Warn("could not merge reply", "message", resp.ID, "error", err)
		}
	}
	if !turn.FirstEventReceived() && hasToolPart(resp) {
		turn.Status(ProcessingStatus)
	}
	return resp, nil
}

// acquire checks the guards and marks a submission in flight.
func (c *Coordinator) acquire(input string) (string, error) {
	if input == "" {
		return "", ErrEmptyInput
	}
	sessionID := c.cfg.Session.ID()
	if sessionID == "" {
		return "", ErrNoSession
	}
	if c.cfg.Session.IsInitializing() {
		return "", ErrInitializing
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight || c.cfg.Turn.Loading() {
		return "", ErrInFlight
	}
	c.inFlight = true
	return sessionID, nil
}

func (c *Coordinator) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
}

func (c *Coordinator) buildRequest(sessionID, input, mode string) Request {
	if mode == "" {
		mode = c.cfg.DefaultMode
	}
	model := c.cfg.Models.Selected()
	id := c.cfg.NewID()
	return Request{
		MessageID:  id,
		ProviderID: c.cfg.Models.ProviderFor(model),
		ModelID:    model,
		Mode:       mode,
		Parts: []conversation.Part{{
			Type:      conversation.PartTypeText,
			Text:      input,
			MessageID: id,
			SessionID: sessionID,
		}},
	}
}

func (c *Coordinator) optimisticMessage(sessionID string, req Request) conversation.Message {
	return conversation.Message{
		ID:    req.MessageID,
		Role:  conversation.RoleUser,
		Parts: req.Parts,
		Metadata: &conversation.Metadata{
			Time:       conversation.TimeInfo{Created: c.cfg.Clock().UnixMilli()},
			SessionID:  sessionID,
			ProviderID: req.ProviderID,
			ModelID:    req.ModelID,
			Mode:       req.Mode,
			Tool:       map[string]conversation.ToolSummary{},
		},
	}
}

func hasToolPart(m conversation.Message) bool {
	for _, p := range m.Parts {
		if p.Type == conversation.PartTypeTool {
			return true
		}
	}
	return false
}
