package notice

import (
	"sort"
	"time"

	"github.com/sheikhcoders/opensheikh/conversation"
)

// Entry is one row of the conversation timeline: either a message or a
// notice.
type Entry struct {
	Time    time.Time
	Message *conversation.Message
	Notice  *Notice
}

// Timeline interleaves messages and notices on a single time axis. Messages
// are keyed by their creation time; a message without one inherits the key
// of the message before it so store order is kept. Ties keep messages
// before notices and otherwise preserve input order.
func Timeline(messages []conversation.Message, notices []Notice) []Entry {
	entries := make([]Entry, 0, len(messages)+len(notices))

	var carry time.Time
	for i := range messages {
		m := messages[i]
		key := m.CreatedAt()
		if key.IsZero() {
			key = carry
		} else {
			carry = key
		}
		entries = append(entries, Entry{Time: key, Message: &m})
	}
	for i := range notices {
		n := notices[i]
		entries = append(entries, Entry{Time: n.Time, Notice: &n})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries
}
