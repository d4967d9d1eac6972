// Package conversation defines the data model shared by the store, the
// status deriver and the event reconciler: messages, their ordered parts,
// and the tool execution state machine carried by tool parts.
package conversation

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType discriminates the Part variant.
type PartType string

const (
	PartTypeText       PartType = "text"
	PartTypeTool       PartType = "tool"
	PartTypeReasoning  PartType = "reasoning"
	PartTypeStepStart  PartType = "step-start"
	PartTypeStepFinish PartType = "step-finish"
)

// ToolStatus is the execution state of a tool part.
type ToolStatus string

const (
	ToolStatusPending   ToolStatus = "pending"
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusError     ToolStatus = "error"
)

// IsTerminal returns true for completed and error.
func (s ToolStatus) IsTerminal() bool {
	return s == ToolStatusCompleted || s == ToolStatusError
}

// ToolState is the tagged state of a tool invocation. Args is set from
// running onwards, Result only when completed, Error only when errored.
type ToolState struct {
	Args   map[string]interface{} `json:"args,omitempty"`
	Result string                 `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
	Title  string                 `json:"title,omitempty"`
	Status ToolStatus             `json:"status"`
}

// Part is one fragment of a message. Text-like parts carry Text; tool parts
// carry Tool and State. ID is optional on the wire.
type Part struct {
	State     *ToolState `json:"state,omitempty"`
	ID        string     `json:"id,omitempty"`
	MessageID string     `json:"messageID,omitempty"`
	SessionID string     `json:"sessionID,omitempty"`
	Type      PartType   `json:"type"`
	Text      string     `json:"text,omitempty"`
	Tool      string     `json:"tool,omitempty"`
	CallID    string     `json:"callID,omitempty"`
}

// IsTool reports whether p is a tool part with a state.
func (p Part) IsTool() bool {
	return p.Type == PartTypeTool && p.State != nil
}

// Status returns the tool status, or "" for non-tool parts.
func (p Part) Status() ToolStatus {
	if !p.IsTool() {
		return ""
	}
	return p.State.Status
}

// TimeInfo holds epoch-millisecond timestamps as sent on the wire.
type TimeInfo struct {
	Created   int64 `json:"created,omitempty"`
	Completed int64 `json:"completed,omitempty"`
}

// ToolSummary is the per-call entry of Metadata.Tool.
type ToolSummary struct {
	Title string `json:"title,omitempty"`
}

// Metadata is the optional envelope information attached to a message.
type Metadata struct {
	Tool       map[string]ToolSummary `json:"tool,omitempty"`
	Time       TimeInfo               `json:"time"`
	SessionID  string                 `json:"sessionID,omitempty"`
	ProviderID string                 `json:"providerID,omitempty"`
	ModelID    string                 `json:"modelID,omitempty"`
	Mode       string                 `json:"mode,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// IsCompleted reports whether the completion timestamp is set.
func (m *Metadata) IsCompleted() bool {
	return m != nil && m.Time.Completed != 0
}

// Message is one turn in the conversation.
type Message struct {
	Metadata *Metadata `json:"metadata,omitempty"`
	ID       string    `json:"id"`
	Role     Role      `json:"role"`
	Parts    []Part    `json:"parts,omitempty"`
}

// CreatedAt returns the creation time, or the zero time when unknown.
func (m Message) CreatedAt() time.Time {
	if m.Metadata == nil || m.Metadata.Time.Created == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.Metadata.Time.Created)
}

// SessionID returns the owning session identity, or "".
func (m Message) SessionID() string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata.SessionID
}

// PartIndex returns the index of the part with the given id, or -1.
func (m Message) PartIndex(id string) int {
	if id == "" {
		return -1
	}
	for i := range m.Parts {
		if m.Parts[i].ID == id {
			return i
		}
	}
	return -1
}

// ToolParts returns the tool parts of m in order.
func (m Message) ToolParts() []Part {
	var tools []Part
	for _, p := range m.Parts {
		if p.IsTool() {
			tools = append(tools, p)
		}
	}
	return tools
}
