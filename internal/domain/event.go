package domain

import (
	"context"
	"time"
)

// Message is a single post delivered by a stream.
type Message struct {
	ID         string    `json:"id"`
	Account    string    `json:"account"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewMessage builds a Message stamped with the current time.
func NewMessage(id, account, text string) Message {
	return Message{
		ID:         id,
		Account:    account,
		Text:       text,
		ReceivedAt: clock.Now().UTC(),
	}
}

// Result is the outcome of classifying a message.
type Result struct {
	Publisher Publisher `json:"publisher"`
	Location  string    `json:"location,omitempty"`
	Tier      int       `json:"tier"`
	// Message is the text to speak. Empty means no spoken notification.
	Message string `json:"message,omitempty"`
}

// Notify reports whether the result carries a message to speak.
func (r Result) Notify() bool {
	return r.Message != ""
}

// LifecycleEvent is a stream connection state transition.
type LifecycleEvent string

const (
	LifecycleConnected        LifecycleEvent = "connected"
	LifecycleReconnectAttempt LifecycleEvent = "reconnect_attempt"
	LifecycleReconnected      LifecycleEvent = "reconnected"
	LifecycleDisconnected     LifecycleEvent = "disconnected"
	LifecycleError            LifecycleEvent = "error"
)

// StreamHandler receives stream deliveries. HandleMessage is called once per
// post, never concurrently. HandleLifecycle reports connection transitions;
// err is set for LifecycleError and LifecycleDisconnected.
type StreamHandler interface {
	HandleMessage(ctx context.Context, msg Message)
	HandleLifecycle(event LifecycleEvent, err error)
}
