package speech

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
)

// ErrAlreadyListening is returned when Listen is called while a listening
// session is active.
var ErrAlreadyListening = errors.New("a listening session is already active")

// Coordinator serializes capture and playback so they are never both active,
// and relays at most one final transcript per listening session. Any overlap
// between capture and playback is a bug in this component, never in its
// caller.
type Coordinator struct {
	recognizer  Recognizer
	synthesizer Synthesizer

	mu           sync.Mutex
	listening    bool
	listenCancel context.CancelFunc
}

// NewCoordinator creates a coordinator over the given providers.
func NewCoordinator(recognizer Recognizer, synthesizer Synthesizer) *Coordinator {
	return &Coordinator{
		recognizer:  recognizer,
		synthesizer: synthesizer,
	}
}

// Speak plays text aloud, force-stopping any active capture first. It blocks
// until playback finishes or ctx is cancelled.
func (c *Coordinator) Speak(ctx context.Context, text string) error {
	c.StopListening()
	return c.synthesizer.Speak(ctx, text)
}

// Listen cancels any in-flight playback, starts capture, and returns a
// channel that yields at most one final transcript before closing. Capture is
// stopped before the transcript is delivered, so the consumer never observes
// an active microphone while handling the result. The channel closes without
// a value when the session is stopped or ctx expires first.
func (c *Coordinator) Listen(ctx context.Context) (<-chan string, error) {
	c.synthesizer.Cancel()

	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return nil, ErrAlreadyListening
	}

	listenCtx, cancel := context.WithCancel(ctx)
	events, err := c.recognizer.Start(listenCtx)
	if err != nil {
		cancel()
		c.mu.Unlock()
		return nil, errors.Wrap(err, "failed to start capture")
	}
	c.listening = true
	c.listenCancel = cancel
	c.mu.Unlock()

	result := make(chan string, 1)
	go func() {
		defer close(result)
		for {
			select {
			case <-listenCtx.Done():
				c.StopListening()
				return
			case event, ok := <-events:
				if !ok {
					c.StopListening()
					return
				}
				if event.Kind != TranscriptFinal {
					continue
				}
				// Capture stops before the final transcript is handed over.
				c.StopListening()
				result <- event.Text
				return
			}
		}
	}()

	return result, nil
}

// StopListening halts any active capture. Idempotent.
func (c *Coordinator) StopListening() {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return
	}
	c.listening = false
	cancel := c.listenCancel
	c.listenCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := c.recognizer.Stop(); err != nil {
		slog.Warn("failed to stop capture", "error", err)
	}
}

// Close stops capture and playback. The coordinator must not be used after.
func (c *Coordinator) Close() {
	c.StopListening()
	c.synthesizer.Cancel()
}
