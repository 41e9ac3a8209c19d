// package testing contains shared testing utilities
package testing

import (
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/scrob/internal/models"
)

// MemoryStore is an in-memory test double for the pending queue store.
type MemoryStore struct {
	mu       sync.Mutex
	events   []models.QueuedEvent
	sequence int64
	Saves    int
	FailSave error
	FailAdd  error
}

// NewMemoryStore returns a store preloaded with events.
func NewMemoryStore(events ...models.QueuedEvent) *MemoryStore {
	s := &MemoryStore{}
	for _, ev := range events {
		s.sequence++
		if ev.Sequence == 0 {
			ev.Sequence = s.sequence
		}
		s.events = append(s.events, ev)
	}
	return s
}

func (s *MemoryStore) LoadEvents() ([]models.QueuedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.QueuedEvent(nil), s.events...), nil
}

func (s *MemoryStore) SaveEvents(events []models.QueuedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSave != nil {
		return s.FailSave
	}
	s.Saves++
	s.events = append([]models.QueuedEvent(nil), events...)
	return nil
}

func (s *MemoryStore) Append(ev *models.QueuedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAdd != nil {
		return s.FailAdd
	}
	s.sequence++
	ev.Sequence = s.sequence
	s.events = append(s.events, *ev)
	return nil
}

// Stored returns what a fresh Load would see.
func (s *MemoryStore) Stored() []models.QueuedEvent {
	events, _ := s.LoadEvents()
	return events
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
