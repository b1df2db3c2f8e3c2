package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/voxmate/voxmate/plugin/llm"
	"github.com/voxmate/voxmate/plugin/match"
	"github.com/voxmate/voxmate/plugin/reply"
	"github.com/voxmate/voxmate/plugin/speech"
)

var (
	// ErrTurnInFlight is returned when an operation arrives while a previous
	// turn is still being produced. The new input is dropped, never queued.
	ErrTurnInFlight = errors.New("a turn is already in flight")

	// ErrSessionNotActive is returned for operations on a session that has not
	// started or has already ended.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrEmptyScript is returned when a scenario has no script to fall back to.
	ErrEmptyScript = errors.New("scenario has no script steps")
)

const (
	defaultTurnLimit = 10

	// participationScore is awarded for finishing an open-ended session, where
	// there is no per-step right answer to grade against.
	participationScore = 80

	retryPromptText   = "Hmm, that's not quite what I expected. Give it another try!"
	generationDownMsg = "Sorry, I didn't catch that. Could you say it again?"
)

// Orchestrator runs one session from start to completion. All mutable session
// state lives behind its mutex; at most one turn is ever outstanding.
type Orchestrator struct {
	scenario   *Scenario
	generator  llm.Generator
	speech     *speech.Coordinator
	onComplete CompletionListener
	turnLimit  int

	inFlight atomic.Bool

	mu         sync.Mutex
	session    Session
	turns      []Turn
	conv       *llm.Conversation
	exited     bool
	cancelTurn context.CancelFunc
}

// Option configures an orchestrator.
type Option func(*Orchestrator)

// WithSpeech attaches a speech coordinator. NPC turns are spoken aloud and
// Exit tears capture and playback down.
func WithSpeech(coordinator *speech.Coordinator) Option {
	return func(o *Orchestrator) { o.speech = coordinator }
}

// WithCompletionListener registers the listener invoked when the session ends.
func WithCompletionListener(listener CompletionListener) Option {
	return func(o *Orchestrator) { o.onComplete = listener }
}

// WithTurnLimit sets the instance-wide NPC turn budget for open-ended
// sessions. A scenario carrying its own limit takes precedence.
func WithTurnLimit(limit int) Option {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.turnLimit = limit
		}
	}
}

// NewOrchestrator creates an orchestrator for one playthrough of scenario.
// A nil generator forces scripted mode from the first turn.
func NewOrchestrator(scenario *Scenario, generator llm.Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		scenario:  scenario,
		generator: generator,
		turnLimit: defaultTurnLimit,
		conv:      llm.NewConversation(),
		session: Session{
			UID:         shortuuid.New(),
			ScenarioUID: scenario.UID,
			Mode:        ModeAIDriven,
			Status:      StatusNotStarted,
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	// A scenario's own limit beats any instance-wide option.
	if scenario.TurnLimit > 0 {
		o.turnLimit = scenario.TurnLimit
	}
	return o
}

// Start opens the session and produces the first NPC turn. If the generation
// backend is unavailable the session silently falls back to scripted mode and
// renders the first script step instead; the learner never sees the failure.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.exited {
		o.mu.Unlock()
		return ErrSessionNotActive
	}
	if o.session.Status != StatusNotStarted {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.mu.Unlock()

	if !o.inFlight.CompareAndSwap(false, true) {
		return ErrTurnInFlight
	}
	defer o.inFlight.Store(false)

	if o.generator == nil {
		return o.startScripted()
	}

	turnCtx := o.beginTurn(ctx)
	defer o.endTurn()

	raw, err := o.generator.Send(turnCtx, o.conv, o.scenario.SystemPrompt)
	if err != nil {
		slog.Warn("generation unavailable at session start, falling back to script",
			slog.String("session", o.session.UID),
			slog.String("scenario", o.scenario.UID),
			slog.Any("error", err))
		return o.startScripted()
	}

	parsed := reply.Parse(raw)

	o.mu.Lock()
	if o.exited {
		// The session was torn down while the opening call was outstanding.
		o.mu.Unlock()
		return ErrSessionNotActive
	}
	o.session.Status = StatusInProgress
	o.session.Mode = ModeAIDriven
	o.session.TurnCount = 1
	o.appendNPCLocked(parsed.MessageText, parsed.Suggestions)
	o.mu.Unlock()

	o.speak(ctx, parsed.MessageText)
	return nil
}

func (o *Orchestrator) startScripted() error {
	if len(o.scenario.Script) == 0 {
		return ErrEmptyScript
	}

	o.mu.Lock()
	if o.exited {
		o.mu.Unlock()
		return ErrSessionNotActive
	}
	o.session.Status = StatusInProgress
	o.session.Mode = ModeScripted
	o.session.StepIndex = 0
	step := o.scenario.Script[0]
	o.appendNPCLocked(step.NPCText, step.ExpectedReplies)
	o.mu.Unlock()

	o.speak(context.Background(), step.NPCText)
	return nil
}

// UserResponded records the learner's utterance and produces the next NPC
// turn. Input arriving while a turn is outstanding is rejected with
// ErrTurnInFlight and dropped.
func (o *Orchestrator) UserResponded(ctx context.Context, text string) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		return ErrTurnInFlight
	}
	defer o.inFlight.Store(false)

	o.mu.Lock()
	if o.exited || o.session.Status != StatusInProgress {
		o.mu.Unlock()
		return ErrSessionNotActive
	}
	mode := o.session.Mode
	o.appendTurnLocked(Turn{Sender: SenderUser, Text: text})
	o.mu.Unlock()

	if mode == ModeAIDriven {
		return o.aiTurn(ctx, text)
	}
	return o.scriptedTurn(ctx, text)
}

// CaptureUserTurn listens for the learner's next utterance and feeds the final
// transcript into the session as the next user turn. It returns without a turn
// when listening ends before a final transcript arrives.
func (o *Orchestrator) CaptureUserTurn(ctx context.Context) error {
	if o.speech == nil {
		return errors.New("no speech coordinator attached")
	}
	result, err := o.speech.Listen(ctx)
	if err != nil {
		return err
	}
	text, ok := <-result
	if !ok {
		return nil
	}
	return o.UserResponded(ctx, text)
}

func (o *Orchestrator) aiTurn(ctx context.Context, text string) error {
	turnCtx := o.beginTurn(ctx)
	defer o.endTurn()

	raw, err := o.generator.Send(turnCtx, o.conv, text)

	o.mu.Lock()
	if o.exited || o.session.Status != StatusInProgress {
		// The session ended while the call was outstanding. Discard the result.
		o.mu.Unlock()
		return nil
	}

	if err != nil {
		// Mid-session failures do not switch modes: the script cannot pick up
		// a conversation it did not produce. The character just asks again.
		slog.Warn("generation failed mid-session",
			slog.String("session", o.session.UID),
			slog.String("model", llm.ModelOf(err)),
			slog.Any("error", err))
		o.appendTurnLocked(Turn{Sender: SenderNPC, Text: generationDownMsg})
		o.mu.Unlock()
		o.speak(ctx, generationDownMsg)
		return nil
	}

	parsed := reply.Parse(raw)
	o.session.TurnCount++
	o.appendNPCLocked(parsed.MessageText, parsed.Suggestions)

	var event *CompletionEvent
	if o.session.TurnCount >= o.turnLimit {
		event = o.completeLocked()
	}
	o.mu.Unlock()

	o.speak(ctx, parsed.MessageText)
	o.emit(event)
	return nil
}

func (o *Orchestrator) scriptedTurn(ctx context.Context, text string) error {
	o.mu.Lock()
	step := o.scenario.Script[o.session.StepIndex]

	if !match.IsCorrect(text, step.ExpectedReplies) {
		// The step does not advance on a wrong attempt; retries are unlimited.
		o.session.WrongStreak++
		o.session.TotalWrongAttempts++
		o.appendNPCLocked(retryPromptText, step.ExpectedReplies)
		o.mu.Unlock()

		o.speak(ctx, retryPromptText)
		return nil
	}

	o.session.WrongStreak = 0
	o.session.StepIndex++
	o.session.TurnCount++

	if o.session.StepIndex >= len(o.scenario.Script) {
		event := o.completeLocked()
		o.mu.Unlock()
		o.emit(event)
		return nil
	}

	next := o.scenario.Script[o.session.StepIndex]
	o.appendNPCLocked(next.NPCText, next.ExpectedReplies)
	o.mu.Unlock()

	o.speak(ctx, next.NPCText)
	return nil
}

// Exit ends the session early. An outstanding generation call is cancelled and
// its result discarded. With saveForLater the session is marked paused and its
// progress handed to the completion listener; otherwise it is abandoned.
func (o *Orchestrator) Exit(saveForLater bool) {
	o.mu.Lock()
	if o.exited {
		o.mu.Unlock()
		return
	}
	o.exited = true
	if o.cancelTurn != nil {
		o.cancelTurn()
		o.cancelTurn = nil
	}

	var event *CompletionEvent
	if o.session.Status == StatusInProgress {
		if saveForLater {
			o.session.Status = StatusPaused
			ev := o.eventLocked()
			ev.Score = 0
			event = &ev
		} else {
			o.session.Status = StatusAbandoned
		}
	}
	o.mu.Unlock()

	if o.speech != nil {
		o.speech.Close()
	}
	o.emit(event)
}

// Session returns a snapshot of the session state.
func (o *Orchestrator) Session() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Turns returns a copy of the conversation so far.
func (o *Orchestrator) Turns() []Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Turn, len(o.turns))
	copy(out, o.turns)
	return out
}

func (o *Orchestrator) beginTurn(ctx context.Context) context.Context {
	turnCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancelTurn = cancel
	o.mu.Unlock()
	return turnCtx
}

func (o *Orchestrator) endTurn() {
	o.mu.Lock()
	if o.cancelTurn != nil {
		o.cancelTurn()
		o.cancelTurn = nil
	}
	o.mu.Unlock()
}

func (o *Orchestrator) appendNPCLocked(text string, suggestions []string) {
	o.appendTurnLocked(Turn{Sender: SenderNPC, Text: text})
	if len(suggestions) > 0 {
		o.appendTurnLocked(Turn{Sender: SenderSuggestions, Suggestions: suggestions})
	}
}

func (o *Orchestrator) appendTurnLocked(turn Turn) {
	turn.ID = uuid.NewString()
	turn.CreatedTs = time.Now().Unix()
	o.turns = append(o.turns, turn)
}

func (o *Orchestrator) completeLocked() *CompletionEvent {
	o.session.Status = StatusCompleted
	event := o.eventLocked()
	event.Score = o.scoreLocked()
	return &event
}

func (o *Orchestrator) eventLocked() CompletionEvent {
	return CompletionEvent{
		SessionUID:         o.session.UID,
		ScenarioUID:        o.session.ScenarioUID,
		Mode:               o.session.Mode,
		Status:             o.session.Status,
		TurnCount:          o.session.TurnCount,
		TotalWrongAttempts: o.session.TotalWrongAttempts,
	}
}

// scoreLocked grades a finished session. Scripted runs start at 100 and lose
// five points per wrong attempt, floored at 60. Open-ended runs earn a flat
// participation score.
func (o *Orchestrator) scoreLocked() int {
	if o.session.Mode != ModeScripted {
		return participationScore
	}
	score := 100 - 5*o.session.TotalWrongAttempts
	if score < 60 {
		score = 60
	}
	return score
}

func (o *Orchestrator) speak(ctx context.Context, text string) {
	if o.speech == nil || text == "" {
		return
	}
	if err := o.speech.Speak(ctx, text); err != nil {
		slog.Warn("failed to speak turn", slog.String("session", o.session.UID), slog.Any("error", err))
	}
}

// emit invokes the completion listener outside any lock.
func (o *Orchestrator) emit(event *CompletionEvent) {
	if event == nil || o.onComplete == nil {
		return
	}
	o.onComplete(*event)
}
