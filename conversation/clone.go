package conversation

// Clone returns a deep copy of m so the caller's copy is independent of the
// store's.
func (m Message) Clone() Message {
	if m.Metadata != nil {
		meta := *m.Metadata
		if meta.Tool != nil {
			tools := make(map[string]ToolSummary, len(meta.Tool))
			for k, v := range meta.Tool {
				tools[k] = v
			}
			meta.Tool = tools
		}
		m.Metadata = &meta
	}
	if m.Parts != nil {
		parts := make([]Part, len(m.Parts))
		for i := range m.Parts {
			parts[i] = m.Parts[i].Clone()
		}
		m.Parts = parts
	}
	return m
}

// Clone returns a deep copy of p.
func (p Part) Clone() Part {
	if p.State != nil {
		st := *p.State
		if st.Args != nil {
			st.Args = deepCopyInterface(st.Args).(map[string]interface{})
		}
		p.State = &st
	}
	return p
}

// CloneMessages deep-copies a slice of messages.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].Clone()
	}
	return out
}

// deepCopyInterface clones the container types JSON decoding produces.
// Scalars are immutable and returned as-is.
func deepCopyInterface(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		cp := make(map[string]interface{}, len(val))
		for k, v := range val {
			cp[k] = deepCopyInterface(v)
		}
		return cp
	case []interface{}:
		cp := make([]interface{}, len(val))
		for i, v := range val {
			cp[i] = deepCopyInterface(v)
		}
		return cp
	default:
		return v
	}
}
