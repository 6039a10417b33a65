package oracle

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of oracle conversation context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// StructuredResult is the raw outcome of a structured generation call.
// Data is nil when the provider could not produce a parseable object;
// RawText always carries the provider's unprocessed completion.
type StructuredResult struct {
	Data    json.RawMessage
	RawText string
}

// Generator is the external text-generation contract. Implementations are
// provider-specific; the client and the engine only ever see this interface.
type Generator interface {
	// GenerateStructured requests a completion constrained to the given JSON
	// schema. Data in the result is nil if the response did not validate.
	GenerateStructured(ctx context.Context, schema string, systemPrompt string, messages []Message) (*StructuredResult, error)

	// GenerateText requests a plain completion.
	GenerateText(ctx context.Context, systemPrompt string, messages []Message) (string, error)
}
