package models

import "encoding/json"

// ChatRequest is the payload for the conversational endpoint.
type ChatRequest struct {
	Message  string         `json:"message"`
	History  []HistoryEntry `json:"history"`
	Language string         `json:"language"`
}

// ChatResponse carries the assistant reply. Tool calls are opaque to the
// client and reproduced as raw JSON.
type ChatResponse struct {
	Response  string            `json:"response"`
	ToolCalls []json.RawMessage `json:"tool_calls,omitempty"`
}

// HealthResponse is the remote service health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
