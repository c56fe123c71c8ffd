package chat

import (
	"modelbridge/internal/backend"
)

// WireEvent is the JSON envelope sent server->client.
// Every event has a monotonic Seq for catchup replay.
type WireEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// session_ready
	SessionID string               `json:"session_id,omitempty"`
	Backends  []backend.Descriptor `json:"backends,omitempty"`
	Samples   []string             `json:"samples,omitempty"`
	History   []HistoryItem        `json:"history,omitempty"`

	// catchup
	Events []WireEvent `json:"events,omitempty"`

	// text_delta / error
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`

	// message_done
	Backend string `json:"backend,omitempty"`
}

type HistoryItem struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ClientEvent is the JSON envelope sent client->server.
type ClientEvent struct {
	Type string `json:"type"`

	// message
	Text    string `json:"text,omitempty"`
	Backend string `json:"backend,omitempty"`
}

func historyItems(conv backend.Conversation) []HistoryItem {
	items := make([]HistoryItem, 0, len(conv))
	for _, msg := range conv {
		items = append(items, HistoryItem{Role: string(msg.Role), Text: msg.Content})
	}
	return items
}
