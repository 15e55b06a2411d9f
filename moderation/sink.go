package moderation

import (
	"maps"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// Sink receives action failures for out-of-band reporting
type Sink interface {
	CaptureMessage(msg string, extra map[string]any)
}

// SentrySink reports to Sentry through its own hub so it never touches the
// global one
type SentrySink struct {
	hub *sentry.Hub
}

// NewSentrySink creates a sink with its own client. An empty Dsn yields a
// client that drops every event.
func NewSentrySink(options sentry.ClientOptions) (*SentrySink, error) {
	client, err := sentry.NewClient(options)
	if err != nil {
		return nil, err
	}
	return &SentrySink{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (s *SentrySink) CaptureMessage(msg string, extra map[string]any) {
	s.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range extra {
			scope.SetExtra(k, v)
		}
		s.hub.CaptureMessage(msg)
	})
}

// Flush waits for buffered events to be sent
func (s *SentrySink) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

// NopSink discards every message
type NopSink struct{}

func (NopSink) CaptureMessage(string, map[string]any) {}

// CapturedMessage is one message kept by a RecordingSink
type CapturedMessage struct {
	Message string
	Extra   map[string]any
}

// RecordingSink keeps captured messages in memory
type RecordingSink struct {
	mu       sync.Mutex
	messages []CapturedMessage
}

func (s *RecordingSink) CaptureMessage(msg string, extra map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, CapturedMessage{Message: msg, Extra: maps.Clone(extra)})
}

// Messages returns a copy of everything captured so far
func (s *RecordingSink) Messages() []CapturedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CapturedMessage(nil), s.messages...)
}
