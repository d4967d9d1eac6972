package eventfeed

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// catalog lists every payload by event name for schema generation.
type catalog struct {
	Envelope       Event          `json:"envelope" jsonschema:"description=Wire envelope; properties holds one of the payloads below"`
	MessageUpdated MessageUpdated `json:"message.updated"`
	PartUpdated    PartUpdated    `json:"message.part.updated"`
	MessageRemoved MessageRemoved `json:"message.removed"`
	PartRemoved    PartRemoved    `json:"message.part.removed"`
	SessionError   SessionError   `json:"session.error"`
	SessionIdle    SessionIdle    `json:"session.idle"`
}

// Schema returns the JSON Schema describing the envelope and every payload.
func Schema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&catalog{})
	schema.Title = "opensheikh event feed"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
