package notify

import (
	"log"
	"sync"
)

// Level classifies a user-facing notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a short, user-facing message emitted after a mutation.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Sink receives user-facing notifications. The synchronizers report mutation
// outcomes through it without knowing how they are surfaced.
type Sink interface {
	Success(message string)
	Error(message string)
}

// LogSink writes notifications to the application log.
type LogSink struct{}

func (LogSink) Success(message string) {
	log.Printf("[notify] success: %s", message)
}

func (LogSink) Error(message string) {
	log.Printf("[notify] error: %s", message)
}

// Feed buffers recent notifications so HTTP clients can poll and drain them.
// It also satisfies Sink.
type Feed struct {
	mu      sync.Mutex
	pending []Notification
	max     int
}

// NewFeed creates a feed that retains at most max undelivered notifications,
// dropping the oldest when full.
func NewFeed(max int) *Feed {
	if max <= 0 {
		max = 100
	}
	return &Feed{max: max}
}

func (f *Feed) Success(message string) {
	f.push(Notification{Level: LevelSuccess, Message: message})
}

func (f *Feed) Error(message string) {
	f.push(Notification{Level: LevelError, Message: message})
}

func (f *Feed) push(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, n)
	if len(f.pending) > f.max {
		f.pending = f.pending[len(f.pending)-f.max:]
	}
}

// Drain returns all undelivered notifications and clears the buffer.
func (f *Feed) Drain() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

// Fanout delivers each notification to every sink.
type Fanout []Sink

func (s Fanout) Success(message string) {
	for _, sink := range s {
		sink.Success(message)
	}
}

func (s Fanout) Error(message string) {
	for _, sink := range s {
		sink.Error(message)
	}
}
