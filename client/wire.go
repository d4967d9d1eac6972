package client

import "github.com/sheikhcoders/opensheikh/conversation"

// wireMessage is the server's {info, parts} message shape. Older servers
// nest envelope fields under info.metadata; newer ones flatten them. Some
// servers reply with a bare message (id, role, parts, metadata at the top
// level), which is decoded when info carries no id.
type wireMessage struct {
	Metadata *conversation.Metadata `json:"metadata,omitempty"`
	Info     wireInfo               `json:"info"`
	ID       string                 `json:"id,omitempty"`
	Role     conversation.Role      `json:"role,omitempty"`
	Parts    []conversation.Part    `json:"parts"`
}

type wireInfo struct {
	Metadata   *conversation.Metadata `json:"metadata,omitempty"`
	ID         string                 `json:"id"`
	Role       conversation.Role      `json:"role"`
	SessionID  string                 `json:"sessionID,omitempty"`
	ProviderID string                 `json:"providerID,omitempty"`
	ModelID    string                 `json:"modelID,omitempty"`
	Mode       string                 `json:"mode,omitempty"`
	Time       conversation.TimeInfo  `json:"time"`
}

func (w wireMessage) toMessage() conversation.Message {
	if w.Info.ID == "" {
		return conversation.Message{
			ID:       w.ID,
			Role:     w.Role,
			Parts:    w.Parts,
			Metadata: w.Metadata,
		}
	}
	meta := w.Info.Metadata
	if meta == nil {
		meta = &conversation.Metadata{
			Time:       w.Info.Time,
			SessionID:  w.Info.SessionID,
			ProviderID: w.Info.ProviderID,
			ModelID:    w.Info.ModelID,
			Mode:       w.Info.Mode,
		}
	}
	return conversation.Message{
		ID:       w.Info.ID,
		Role:     w.Info.Role,
		Parts:    w.Parts,
		Metadata: meta,
	}
}
