// Package store owns the canonical, ordered message collection of the
// active conversation. All mutation goes through the Store's methods; each
// one builds the next collection off to the side and publishes it in a
// single swap, so readers never observe a half-applied update.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sheikhcoders/opensheikh/conversation"
)

var (
	// ErrUnknownMessage is returned when an update targets a message the
	// store does not hold. The update is dropped.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrMissingID is returned for a message update without identity.
	ErrMissingID = errors.New("message id is required")
)

// Store is the single source of truth for the conversation's messages.
// The write API is called by the reconciler and the submission
// coordinator; the read API by presentation.
type Store struct {
	logger    *slog.Logger
	messages  []conversation.Message
	observers []Observer
	version   uint64
	mu        sync.RWMutex
}

// New creates an empty store. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger.With("component", "store")}
}

// --- Write API --------------------------------------------------------------

// Hydrate replaces the entire collection with msgs. No merge is performed.
func (s *Store) Hydrate(msgs []conversation.Message) {
	next := conversation.CloneMessages(msgs)
	for i := range next {
		conversation.EnsurePartIDs(&next[i])
	}
	s.mu.Lock()
	s.publishLocked(next)
	s.mu.Unlock()
	s.notify(Hydrated{Count: len(next)})
}

// MergeMessage applies a whole-message update. An existing message with the
// same id is replaced in place, keeping its parts when the update carries
// none and its metadata when the update carries none; otherwise the message
// is appended. Tool parts that would regress keep their stored state.
func (s *Store) MergeMessage(update conversation.Message) error {
	if update.ID == "" {
		return ErrMissingID
	}
	incoming := update.Clone()
	conversation.EnsurePartIDs(&incoming)

	s.mu.Lock()
	idx := s.indexLocked(incoming.ID)
	created := idx < 0
	next := make([]conversation.Message, len(s.messages), len(s.messages)+1)
	copy(next, s.messages)
	if created {
		next = append(next, incoming)
	} else {
		next[idx] = s.mergeLocked(next[idx], incoming)
	}
	s.publishLocked(next)
	s.mu.Unlock()

	s.notify(MessageMerged{ID: incoming.ID, Created: created})
	return nil
}

// mergeLocked folds incoming over existing. Caller holds s.mu.
func (s *Store) mergeLocked(existing, incoming conversation.Message) conversation.Message {
	if len(incoming.Parts) == 0 {
		incoming.Parts = existing.Parts
	} else {
		for i, part := range incoming.Parts {
			j := existing.PartIndex(part.ID)
			if j < 0 {
				continue
			}
			if err := conversation.CheckPartTransition(existing.Parts[j], part); err != nil {
				s.logger.Warn("keeping stored tool state", "message", existing.ID, "error", err)
				incoming.Parts[i] = existing.Parts[j]
			}
		}
	}
	if incoming.Metadata == nil {
		incoming.Metadata = existing.Metadata
	}
	if incoming.Role == "" {
		incoming.Role = existing.Role
	}
	return incoming
}

// MergePart applies a single-part update to the message messageID. A part
// whose identity is already present is replaced at its position; any other
// part is appended. A part without identity is a redelivery only when it
// matches the message's final part; otherwise it is a new occurrence with
// its own synthetic id. Returns ErrUnknownMessage (wrapped) when the
// message is absent and a *conversation.TransitionError when a tool part would regress; in both
// cases the store is unchanged.
func (s *Store) MergePart(part conversation.Part, messageID string) error {
	incoming := part.Clone()

	s.mu.Lock()
	idx := s.indexLocked(messageID)
	if idx < 0 {
		s.mu.Unlock()
		ref := incoming.ID
		if ref == "" {
			ref = string(incoming.Type)
		}
		s.logger.Debug("dropping part for unknown message", "message", messageID, "part", ref)
		return fmt.Errorf("merge part %s: %w: %s", ref, ErrUnknownMessage, messageID)
	}

	msg := s.messages[idx]
	incoming = conversation.AssignPartID(msg.Parts, incoming)
	parts := make([]conversation.Part, len(msg.Parts), len(msg.Parts)+1)
	copy(parts, msg.Parts)

	pi := msg.PartIndex(incoming.ID)
	created := pi < 0
	if created {
		parts = append(parts, incoming)
	} else {
		if err := conversation.CheckPartTransition(parts[pi], incoming); err != nil {
			s.mu.Unlock()
			s.logger.Warn("rejecting tool state regression", "message", messageID, "error", err)
			return err
		}
		parts[pi] = incoming
	}
	msg.Parts = parts

	next := make([]conversation.Message, len(s.messages))
	copy(next, s.messages)
	next[idx] = msg
	s.publishLocked(next)
	s.mu.Unlock()

	s.notify(PartMerged{MessageID: messageID, PartID: incoming.ID, Created: created})
	return nil
}

// AppendUserMessage appends a locally authored message. If a message with
// the same id is already present (its server echo won the race), the call
// is folded into MergeMessage so ids stay unique.
func (s *Store) AppendUserMessage(msg conversation.Message) error {
	if msg.ID == "" {
		return ErrMissingID
	}
	incoming := msg.Clone()
	conversation.EnsurePartIDs(&incoming)

	s.mu.Lock()
	if s.indexLocked(incoming.ID) >= 0 {
		s.mu.Unlock()
		return s.MergeMessage(msg)
	}
	next := make([]conversation.Message, len(s.messages), len(s.messages)+1)
	copy(next, s.messages)
	next = append(next, incoming)
	s.publishLocked(next)
	s.mu.Unlock()

	s.notify(MessageMerged{ID: incoming.ID, Created: true})
	return nil
}

// RemoveMessage filters out the message id. Returns false if absent.
func (s *Store) RemoveMessage(id string) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	next := make([]conversation.Message, 0, len(s.messages)-1)
	next = append(next, s.messages[:idx]...)
	next = append(next, s.messages[idx+1:]...)
	s.publishLocked(next)
	s.mu.Unlock()

	s.notify(MessageRemoved{ID: id})
	return true
}

// RemovePart removes partID from message messageID. Returns false if
// either is absent.
func (s *Store) RemovePart(messageID, partID string) bool {
	s.mu.Lock()
	idx := s.indexLocked(messageID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	msg := s.messages[idx]
	pi := msg.PartIndex(partID)
	if pi < 0 {
		s.mu.Unlock()
		return false
	}
	parts := make([]conversation.Part, 0, len(msg.Parts)-1)
	parts = append(parts, msg.Parts[:pi]...)
	parts = append(parts, msg.Parts[pi+1:]...)
	msg.Parts = parts

	next := make([]conversation.Message, len(s.messages))
	copy(next, s.messages)
	next[idx] = msg
	s.publishLocked(next)
	s.mu.Unlock()

	s.notify(PartRemoved{MessageID: messageID, PartID: partID})
	return true
}

// Reset empties the collection.
func (s *Store) Reset() {
	s.mu.Lock()
	s.publishLocked(nil)
	s.mu.Unlock()
	s.notify(Cleared{})
}

// publishLocked swaps in the next collection. Published slices are never
// written again. Caller holds s.mu.
func (s *Store) publishLocked(next []conversation.Message) {
	s.messages = next
	s.version++
}

// indexLocked returns the position of message id, or -1. Caller holds s.mu.
func (s *Store) indexLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// --- Read API ---------------------------------------------------------------

// Messages returns a deep-copied snapshot of the collection in insertion
// order.
func (s *Store) Messages() []conversation.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conversation.CloneMessages(s.messages)
}

// Message returns a copy of message id.
func (s *Store) Message(id string) (conversation.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return conversation.Message{}, false
	}
	return s.messages[idx].Clone(), true
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Version increases on every mutation; presentation can compare it to
// skip redundant redraws.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// --- Observer management ----------------------------------------------------

// AddObserver registers an observer notified after each mutation.
func (s *Store) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// notify is called without s.mu held so observers may read the store.
// Observers are called synchronously; keep handlers fast.
func (s *Store) notify(event Event) {
	s.mu.RLock()
	obs := s.observers
	s.mu.RUnlock()
	for _, o := range obs {
		o.OnStoreEvent(event)
	}
}
