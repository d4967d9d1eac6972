package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// SyntheticIDPrefix marks identities assigned locally to parts that arrived
// without one.
const SyntheticIDPrefix = "syn_"

// IsSynthetic reports whether id was assigned by EnsurePartIDs or
// AssignPartID.
func IsSynthetic(id string) bool {
	return strings.HasPrefix(id, SyntheticIDPrefix)
}

// syntheticBase returns the identity shared by every part with p's content.
// Tool parts with a call id are keyed by it alone, so their state updates
// land on the same part; indexed is false for those. Everything else is
// keyed by a hash of its content and needs an occurrence index, since a
// message may legitimately hold identical parts (one step-start per step).
func syntheticBase(p Part) (base string, indexed bool) {
	if p.Type == PartTypeTool && p.CallID != "" {
		return SyntheticIDPrefix + "call_" + p.CallID, false
	}
	return SyntheticIDPrefix + string(p.Type) + "_" + contentHash(p), true
}

// EnsurePartIDs gives every identity-less part of m a synthetic id in
// place. The n-th part with the same content gets "<base>_<n>", counting
// from zero, so redelivering the whole message yields the same ids while
// repeated identical parts stay distinct.
func EnsurePartIDs(m *Message) {
	seen := map[string]int{}
	for i := range m.Parts {
		p := &m.Parts[i]
		if p.ID != "" {
			continue
		}
		base, indexed := syntheticBase(*p)
		if !indexed {
			p.ID = base
			continue
		}
		p.ID = occurrenceID(base, seen[base])
		seen[base]++
	}
}

// AssignPartID returns p with the identity it takes when appended on its
// own to a message holding parts. An identity-less part equal to the final
// part is a redelivery and takes its id; otherwise it is a new occurrence
// numbered after the highest one already present.
func AssignPartID(parts []Part, p Part) Part {
	if p.ID != "" {
		return p
	}
	base, indexed := syntheticBase(p)
	if !indexed {
		p.ID = base
		return p
	}
	if n := len(parts); n > 0 {
		if _, ok := occurrence(parts[n-1].ID, base); ok {
			p.ID = parts[n-1].ID
			return p
		}
	}
	next := 0
	for _, q := range parts {
		if k, ok := occurrence(q.ID, base); ok && k >= next {
			next = k + 1
		}
	}
	p.ID = occurrenceID(base, next)
	return p
}

func occurrenceID(base string, n int) string {
	return base + "_" + strconv.Itoa(n)
}

// occurrence parses the index out of an id built by occurrenceID.
func occurrence(id, base string) (int, bool) {
	rest, ok := strings.CutPrefix(id, base+"_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func contentHash(p Part) string {
	// Routing fields do not identify content.
	p.MessageID = ""
	p.SessionID = ""
	data, err := json.Marshal(p)
	if err != nil {
		// Args holding unmarshalable values; fall back to the visible fields.
		data = []byte(string(p.Type) + "\x00" + p.Text + "\x00" + p.Tool)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6])
}
