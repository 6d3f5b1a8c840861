// Package audit defines the structured security-event contract and the
// asynchronous dispatch pipeline that feeds events to a sink.
//
// One event is emitted per security-relevant transition (login attempt,
// logout, refresh, registration, password change, access denial, token
// rejection, lockout). Emission never blocks the request path: the
// Dispatcher buffers events and forwards them on its own goroutine.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the engine.
const (
	EventRegister        = "register"
	EventLogin           = "login"
	EventLogout          = "logout"
	EventRefresh         = "refresh"
	EventPasswordChange  = "password_change"
	EventAccessDenied    = "access_denied"
	EventInvalidToken    = "invalid_token"
	EventTokenRevoked    = "token_revoked"
	EventAccountLocked   = "account_locked"
	EventAccountUnlocked = "account_unlocked"
	EventLoginThrottled  = "login_throttled"
)

// Event is the canonical audit record. The audit trail keeps the true
// failure reason even where the caller-facing error has been collapsed to
// a generic unauthorized signal.
type Event struct {
	ID        string            `json:"id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Subject   string            `json:"subject,omitempty"`
	Email     string            `json:"email,omitempty"`
	TokenID   string            `json:"token_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
