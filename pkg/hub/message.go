// Package hub fans messages out to websocket clients. Each client has its
// own buffered queue and a single writer goroutine; the hub decides what
// happens when a client falls behind.
package hub

import "encoding/json"

// Kind is the websocket frame type a message is written as.
type Kind int

const (
	// Text frames carry JSON.
	Text Kind = iota
	// Binary frames carry raw bytes such as JPEG previews.
	Binary
)

// Message is one frame queued for clients.
type Message struct {
	Kind Kind
	Data []byte
}

// NewText wraps pre-encoded JSON.
func NewText(data []byte) Message {
	return Message{Kind: Text, Data: data}
}

// NewBinary wraps raw bytes.
func NewBinary(data []byte) Message {
	return Message{Kind: Binary, Data: data}
}

// EncodeJSON marshals v into a text message.
func EncodeJSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return NewText(data), nil
}
