package store

// Observer receives notifications when the store mutates.
type Observer interface {
	OnStoreEvent(event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnStoreEvent calls f.
func (f ObserverFunc) OnStoreEvent(event Event) { f(event) }

// Event is the interface for store mutation notifications.
type Event interface {
	storeEvent() // sealed marker
}

// Hydrated fires when the collection is replaced wholesale.
type Hydrated struct {
	Count int
}

func (Hydrated) storeEvent() {}

// MessageMerged fires when a whole-message update is applied. Created is
// true when the message was appended rather than replaced.
type MessageMerged struct {
	ID      string
	Created bool
}

func (MessageMerged) storeEvent() {}

// PartMerged fires when a single part is replaced in place or appended.
type PartMerged struct {
	MessageID string
	PartID    string
	Created   bool
}

func (PartMerged) storeEvent() {}

// MessageRemoved fires when a message is filtered out.
type MessageRemoved struct {
	ID string
}

func (MessageRemoved) storeEvent() {}

// PartRemoved fires when a part is removed from a message.
type PartRemoved struct {
	MessageID string
	PartID    string
}

func (PartRemoved) storeEvent() {}

// Cleared fires when the store is reset.
type Cleared struct{}

func (Cleared) storeEvent() {}
