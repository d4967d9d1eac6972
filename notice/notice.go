// Package notice holds transient status and error notices derived while a
// turn streams in. Notices are never merged into the message store; they
// are an overlay that presentation interleaves with messages by time.
package notice

import (
	"fmt"
	"sync"
	"time"
)

// Kind distinguishes progress notices from failures.
type Kind string

const (
	KindStatus Kind = "status"
	KindError  Kind = "error"
)

// Notice is one transient entry.
type Notice struct {
	Time time.Time `json:"time"`
	ID   string    `json:"id"`
	Kind Kind      `json:"kind"`
	Text string    `json:"text"`
}

// Overlay is the ordered, thread-safe notice list.
type Overlay struct {
	clock   func() time.Time
	notices []Notice
	subs    []func(Notice)
	seq     int
	mu      sync.RWMutex
}

// NewOverlay creates an empty overlay. A nil clock uses time.Now.
func NewOverlay(clock func() time.Time) *Overlay {
	if clock == nil {
		clock = time.Now
	}
	return &Overlay{clock: clock}
}

// Status appends a status notice. Empty text is ignored.
func (o *Overlay) Status(text string) {
	o.add(KindStatus, text)
}

// Error appends an error notice. Empty text is ignored.
func (o *Overlay) Error(text string) {
	o.add(KindError, text)
}

func (o *Overlay) add(kind Kind, text string) {
	if text == "" {
		return
	}
	o.mu.Lock()
	o.seq++
	n := Notice{ID: fmt.Sprintf("n%d", o.seq), Kind: kind, Text: text, Time: o.clock()}
	o.notices = append(o.notices, n)
	subs := o.subs
	o.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
}

// RemoveLastStatus drops the most recent status notice, if any. Error
// notices stay.
func (o *Overlay) RemoveLastStatus() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.notices) - 1; i >= 0; i-- {
		if o.notices[i].Kind == KindStatus {
			next := make([]Notice, 0, len(o.notices)-1)
			next = append(next, o.notices[:i]...)
			o.notices = append(next, o.notices[i+1:]...)
			return
		}
	}
}

// Clear removes every notice.
func (o *Overlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notices = nil
}

// Notices returns a copy of the notices in insertion order.
func (o *Overlay) Notices() []Notice {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Notice, len(o.notices))
	copy(out, o.notices)
	return out
}

// Last returns the most recent notice.
func (o *Overlay) Last() (Notice, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.notices) == 0 {
		return Notice{}, false
	}
	return o.notices[len(o.notices)-1], true
}

// Subscribe registers fn to be called, outside the lock, for every added
// notice.
func (o *Overlay) Subscribe(fn func(Notice)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subs = append(o.subs, fn)
}
