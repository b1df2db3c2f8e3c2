package dialogue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/voxmate/voxmate/plugin/llm"
	"github.com/voxmate/voxmate/plugin/speech"
)

type generatorFunc func(ctx context.Context, conv *llm.Conversation, text string) (string, error)

func (f generatorFunc) Send(ctx context.Context, conv *llm.Conversation, text string) (string, error) {
	return f(ctx, conv, text)
}

func cafeScenario() *Scenario {
	return &Scenario{
		UID:          "cafe",
		Title:        "Ordering at a cafe",
		SystemPrompt: "You are a friendly waiter.",
		Script: []ScriptStep{
			{NPCText: "Welcome! What can I get you?", ExpectedReplies: []string{"I would like the pasta"}},
			{NPCText: "Anything to drink?", ExpectedReplies: []string{"Just water please", "A coffee please"}},
		},
	}
}

func TestStartAIDriven(t *testing.T) {
	generator := generatorFunc(func(_ context.Context, _ *llm.Conversation, text string) (string, error) {
		require.Equal(t, "You are a friendly waiter.", text)
		return "Welcome to our cafe!\nSUGGESTIONS: [\"Hello!\", \"A table for two\"]", nil
	})
	o := NewOrchestrator(cafeScenario(), generator)

	require.NoError(t, o.Start(context.Background()))

	session := o.Session()
	require.Equal(t, ModeAIDriven, session.Mode)
	require.Equal(t, StatusInProgress, session.Status)
	require.Equal(t, 1, session.TurnCount)

	turns := o.Turns()
	require.Len(t, turns, 2)
	require.Equal(t, SenderNPC, turns[0].Sender)
	require.Equal(t, "Welcome to our cafe!", turns[0].Text)
	require.Equal(t, SenderSuggestions, turns[1].Sender)
	require.Equal(t, []string{"Hello!", "A table for two"}, turns[1].Suggestions)
}

func TestStartFallsBackToScript(t *testing.T) {
	generator := generatorFunc(func(_ context.Context, _ *llm.Conversation, _ string) (string, error) {
		return "", &llm.GenerateError{Kind: llm.KindAllCandidatesExhausted}
	})
	o := NewOrchestrator(cafeScenario(), generator)

	// Backend failure at start is invisible to the caller.
	require.NoError(t, o.Start(context.Background()))

	session := o.Session()
	require.Equal(t, ModeScripted, session.Mode)
	require.Equal(t, StatusInProgress, session.Status)

	turns := o.Turns()
	require.Len(t, turns, 2)
	require.Equal(t, "Welcome! What can I get you?", turns[0].Text)
	require.Equal(t, []string{"I would like the pasta"}, turns[1].Suggestions)
}

func TestStartWithoutGeneratorIsScripted(t *testing.T) {
	o := NewOrchestrator(cafeScenario(), nil)
	require.NoError(t, o.Start(context.Background()))
	require.Equal(t, ModeScripted, o.Session().Mode)
}

func TestStartFallbackNeedsScript(t *testing.T) {
	scenario := &Scenario{UID: "empty", SystemPrompt: "prompt"}
	o := NewOrchestrator(scenario, nil)
	require.ErrorIs(t, o.Start(context.Background()), ErrEmptyScript)
}

func TestStartTwice(t *testing.T) {
	o := NewOrchestrator(cafeScenario(), nil)
	require.NoError(t, o.Start(context.Background()))
	require.ErrorIs(t, o.Start(context.Background()), ErrAlreadyStarted)
}

func TestScriptedSessionCompletes(t *testing.T) {
	var event *CompletionEvent
	o := NewOrchestrator(cafeScenario(), nil, WithCompletionListener(func(ev CompletionEvent) {
		event = &ev
	}))
	require.NoError(t, o.Start(context.Background()))

	require.NoError(t, o.UserResponded(context.Background(), "I would like the pasta"))
	require.Equal(t, 1, o.Session().StepIndex)

	require.NoError(t, o.UserResponded(context.Background(), "just water please"))

	require.Equal(t, StatusCompleted, o.Session().Status)
	require.NotNil(t, event)
	require.Equal(t, 100, event.Score)
	require.Equal(t, ModeScripted, event.Mode)

	require.ErrorIs(t, o.UserResponded(context.Background(), "hello?"), ErrSessionNotActive)
}

func TestScriptedWrongAttempts(t *testing.T) {
	var event *CompletionEvent
	o := NewOrchestrator(cafeScenario(), nil, WithCompletionListener(func(ev CompletionEvent) {
		event = &ev
	}))
	require.NoError(t, o.Start(context.Background()))

	require.NoError(t, o.UserResponded(context.Background(), "give me a burger"))
	session := o.Session()
	require.Equal(t, 0, session.StepIndex)
	require.Equal(t, 1, session.WrongStreak)
	require.Equal(t, 1, session.TotalWrongAttempts)

	// The retry prompt re-offers the same expected replies.
	turns := o.Turns()
	require.Equal(t, retryPromptText, turns[len(turns)-2].Text)
	require.Equal(t, []string{"I would like the pasta"}, turns[len(turns)-1].Suggestions)

	require.NoError(t, o.UserResponded(context.Background(), "I WOULD like the pasta!!"))
	require.Equal(t, 0, o.Session().WrongStreak)
	require.Equal(t, 1, o.Session().StepIndex)

	require.NoError(t, o.UserResponded(context.Background(), "a coffee please"))
	require.NotNil(t, event)
	require.Equal(t, 95, event.Score)
	require.Equal(t, 1, event.TotalWrongAttempts)
}

func TestAIDrivenTurnBudget(t *testing.T) {
	generator := generatorFunc(func(_ context.Context, _ *llm.Conversation, _ string) (string, error) {
		return "Mm-hm, tell me more.", nil
	})
	var event *CompletionEvent
	o := NewOrchestrator(cafeScenario(), generator,
		WithTurnLimit(3),
		WithCompletionListener(func(ev CompletionEvent) { event = &ev }))

	require.NoError(t, o.Start(context.Background()))
	require.NoError(t, o.UserResponded(context.Background(), "hello"))
	require.Nil(t, event)

	require.NoError(t, o.UserResponded(context.Background(), "the pasta looks nice"))
	require.Equal(t, StatusCompleted, o.Session().Status)
	require.NotNil(t, event)
	require.Equal(t, participationScore, event.Score)
	require.Equal(t, 3, event.TurnCount)
}

func TestMidSessionFailureStaysAIDriven(t *testing.T) {
	var calls atomic.Int32
	generator := generatorFunc(func(_ context.Context, _ *llm.Conversation, _ string) (string, error) {
		if calls.Add(1) == 1 {
			return "Welcome!", nil
		}
		return "", &llm.GenerateError{Kind: llm.KindAllCandidatesExhausted}
	})
	o := NewOrchestrator(cafeScenario(), generator)
	require.NoError(t, o.Start(context.Background()))

	require.NoError(t, o.UserResponded(context.Background(), "hi there"))

	session := o.Session()
	require.Equal(t, ModeAIDriven, session.Mode)
	require.Equal(t, StatusInProgress, session.Status)
	turns := o.Turns()
	require.Equal(t, generationDownMsg, turns[len(turns)-1].Text)
}

func TestTurnInFlightDropsInput(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	generator := generatorFunc(func(_ context.Context, _ *llm.Conversation, _ string) (string, error) {
		if calls.Add(1) == 1 {
			return "Welcome!", nil
		}
		close(entered)
		<-release
		return "Sounds good.", nil
	})
	o := NewOrchestrator(cafeScenario(), generator)
	require.NoError(t, o.Start(context.Background()))

	done := make(chan error, 1)
	go func() {
		done <- o.UserResponded(context.Background(), "hello")
	}()
	<-entered

	// The second utterance arrives while the first is outstanding.
	require.ErrorIs(t, o.UserResponded(context.Background(), "hello again"), ErrTurnInFlight)

	close(release)
	require.NoError(t, <-done)

	// Only the first utterance made it into the transcript.
	var userTurns int
	for _, turn := range o.Turns() {
		if turn.Sender == SenderUser {
			userTurns++
		}
	}
	require.Equal(t, 1, userTurns)
}

func TestExitCancelsOutstandingTurn(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	generator := generatorFunc(func(ctx context.Context, _ *llm.Conversation, _ string) (string, error) {
		if calls.Add(1) == 1 {
			return "Welcome!", nil
		}
		close(entered)
		<-ctx.Done()
		return "", errors.Wrap(ctx.Err(), "request aborted")
	})
	var events atomic.Int32
	o := NewOrchestrator(cafeScenario(), generator,
		WithCompletionListener(func(CompletionEvent) { events.Add(1) }))
	require.NoError(t, o.Start(context.Background()))
	before := len(o.Turns())

	done := make(chan error, 1)
	go func() {
		done <- o.UserResponded(context.Background(), "hello")
	}()
	<-entered

	o.Exit(false)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("outstanding turn was not cancelled")
	}

	// The late result is discarded: the user turn stays, nothing after it.
	require.Len(t, o.Turns(), before+1)
	require.Equal(t, int32(0), events.Load())
	require.Equal(t, StatusAbandoned, o.Session().Status)
}

func TestExitDuringStartDiscardsOpeningTurn(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	generator := generatorFunc(func(_ context.Context, _ *llm.Conversation, _ string) (string, error) {
		close(entered)
		<-release
		return "Welcome to our cafe!", nil
	})
	o := NewOrchestrator(cafeScenario(), generator)

	done := make(chan error, 1)
	go func() {
		done <- o.Start(context.Background())
	}()
	<-entered

	o.Exit(false)
	close(release)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrSessionNotActive)
	case <-time.After(time.Second):
		t.Fatal("start did not return")
	}

	// The late opening reply never reaches the session.
	require.Empty(t, o.Turns())
	require.NotEqual(t, StatusInProgress, o.Session().Status)
}

func TestExitDuringStartSkipsScriptFallback(t *testing.T) {
	entered := make(chan struct{})
	generator := generatorFunc(func(ctx context.Context, _ *llm.Conversation, _ string) (string, error) {
		close(entered)
		<-ctx.Done()
		return "", &llm.GenerateError{Kind: llm.KindNetworkFailure, Err: ctx.Err()}
	})
	synthesizer := speech.NewMockSynthesizer()
	coordinator := speech.NewCoordinator(speech.NewMockRecognizer(), synthesizer)
	o := NewOrchestrator(cafeScenario(), generator, WithSpeech(coordinator))

	done := make(chan error, 1)
	go func() {
		done <- o.Start(context.Background())
	}()
	<-entered

	o.Exit(false)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrSessionNotActive)
	case <-time.After(time.Second):
		t.Fatal("start did not return after exit")
	}

	// The scripted fallback must not revive the torn-down session.
	require.Empty(t, o.Turns())
	require.NotEqual(t, StatusInProgress, o.Session().Status)
	require.Empty(t, synthesizer.Spoken())
}

func TestExitWithoutSavingAbandons(t *testing.T) {
	var events atomic.Int32
	o := NewOrchestrator(cafeScenario(), nil,
		WithCompletionListener(func(CompletionEvent) { events.Add(1) }))
	require.NoError(t, o.Start(context.Background()))

	o.Exit(false)

	require.Equal(t, StatusAbandoned, o.Session().Status)
	require.Equal(t, int32(0), events.Load())
	require.ErrorIs(t, o.UserResponded(context.Background(), "hello?"), ErrSessionNotActive)
	require.ErrorIs(t, o.Start(context.Background()), ErrSessionNotActive)
}

func TestExitSaveForLater(t *testing.T) {
	var event *CompletionEvent
	o := NewOrchestrator(cafeScenario(), nil, WithCompletionListener(func(ev CompletionEvent) {
		event = &ev
	}))
	require.NoError(t, o.Start(context.Background()))
	require.NoError(t, o.UserResponded(context.Background(), "not the right answer"))

	o.Exit(true)

	require.Equal(t, StatusPaused, o.Session().Status)
	require.NotNil(t, event)
	require.Equal(t, StatusPaused, event.Status)
	require.Equal(t, 0, event.Score)
	require.Equal(t, 1, event.TotalWrongAttempts)

	require.ErrorIs(t, o.UserResponded(context.Background(), "hello?"), ErrSessionNotActive)
}
