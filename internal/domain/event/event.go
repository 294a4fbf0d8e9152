package event

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type classifies engine events.
type Type string

const (
	// TypeLedgerRecorded mirrors every committed ledger transaction for
	// downstream reporting.
	TypeLedgerRecorded Type = "LEDGER_TX_RECORDED"
	// TypeLowBalanceWarning fires when a deposit leaves the payer within
	// one bucket cost of an empty wallet.
	TypeLowBalanceWarning Type = "LOW_BALANCE_WARNING"
	// TypeSessionClosed fires when a session reaches its terminal state.
	TypeSessionClosed Type = "SESSION_CLOSED"
)

var (
	ErrClientNotFound = errors.New("event client not found")
	ErrChannelFull    = errors.New("event client channel full")
)

// Event is one engine occurrence published to subscribers. Emission is
// fire-and-forget: a slow subscriber never blocks or fails the ledger
// operation that produced the event.
type Event struct {
	EventID   uuid.UUID       `json:"eventId"`
	Type      Type            `json:"type"`
	UserID    *uuid.UUID      `json:"userId,omitempty"`
	SessionID *uuid.UUID      `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// New builds an event with a fresh ID and timestamp. The payload is
// marshalled best-effort; a payload that cannot marshal is dropped rather
// than failing the caller.
func New(t Type, userID, sessionID *uuid.UUID, payload interface{}) *Event {
	e := &Event{
		EventID:   uuid.New(),
		Type:      t,
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			e.Payload = raw
		}
	}
	return e
}

// Client is one subscriber connection (SSE or in-process).
type Client struct {
	ClientID    string
	UserID      *string
	MessageChan chan *Event
	done        chan struct{}
}

// NewClient creates a subscriber with a bounded buffer.
func NewClient(clientID string, userID *string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{
		ClientID:    clientID,
		UserID:      userID,
		MessageChan: make(chan *Event, buffer),
		done:        make(chan struct{}),
	}
}

// Done is closed when the client is shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close releases the client. Safe to call once.
func (c *Client) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
