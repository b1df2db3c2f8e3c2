package speech

import (
	"context"
	"sync"
)

// MockRecognizer is a Recognizer for testing. Tests feed events through Emit.
type MockRecognizer struct {
	mu         sync.Mutex
	startCount int
	stopCount  int
	startErr   error
	events     chan TranscriptEvent
}

// NewMockRecognizer creates a mock recognizer with a buffered event stream.
func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{
		events: make(chan TranscriptEvent, 16),
	}
}

func (m *MockRecognizer) Start(_ context.Context) (<-chan TranscriptEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.startCount++
	return m.events, nil
}

func (m *MockRecognizer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCount++
	return nil
}

// Emit delivers a transcript event to the active listening session.
func (m *MockRecognizer) Emit(event TranscriptEvent) {
	m.events <- event
}

// SetStartError makes subsequent Start calls fail.
func (m *MockRecognizer) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

func (m *MockRecognizer) StartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCount
}

func (m *MockRecognizer) StopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCount
}

// MockSynthesizer is a Synthesizer for testing. It records spoken text and
// cancellations.
type MockSynthesizer struct {
	mu          sync.Mutex
	spoken      []string
	cancelCount int
}

// NewMockSynthesizer creates a mock synthesizer.
func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

func (m *MockSynthesizer) Speak(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = append(m.spoken, text)
	return nil
}

func (m *MockSynthesizer) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCount++
}

func (m *MockSynthesizer) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.spoken))
	copy(out, m.spoken)
	return out
}

func (m *MockSynthesizer) CancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelCount
}

var (
	_ Recognizer  = (*MockRecognizer)(nil)
	_ Synthesizer = (*MockSynthesizer)(nil)
)
