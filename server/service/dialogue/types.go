// Package dialogue drives a multi-turn roleplay session between a learner and
// either a remote model acting as a scripted character or a deterministic
// offline script.
package dialogue

// Mode identifies how a session produces NPC turns.
type Mode string

const (
	// ModeAIDriven sessions round-trip every turn through the generation backend.
	ModeAIDriven Mode = "AI_DRIVEN"
	// ModeScripted sessions follow the scenario script and judge correctness by
	// word-overlap matching.
	ModeScripted Mode = "SCRIPTED"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusPaused     Status = "PAUSED"
	StatusCompleted  Status = "COMPLETED"
	// StatusAbandoned marks a started session the learner left without saving.
	StatusAbandoned Status = "ABANDONED"
)

// TurnSender identifies who produced a conversation turn.
type TurnSender string

const (
	SenderNPC         TurnSender = "NPC"
	SenderUser        TurnSender = "USER"
	SenderSuggestions TurnSender = "SUGGESTION_SET"
)

// Turn is one message in the session. Turns are immutable once appended and
// render top-to-bottom in insertion order.
type Turn struct {
	ID          string     `json:"id"`
	Sender      TurnSender `json:"sender"`
	Text        string     `json:"text,omitempty"`
	Suggestions []string   `json:"suggestions,omitempty"`
	CreatedTs   int64      `json:"createdTs"`
}

// ScriptStep is one exchange of a scenario script: the NPC line plus the
// phrasings accepted as a correct learner reply.
type ScriptStep struct {
	NPCText         string
	ExpectedReplies []string
}

// Scenario is the immutable content a session plays out. Supplied by the
// content store; read by index, never mutated.
type Scenario struct {
	UID          string
	Title        string
	SystemPrompt string
	TurnLimit    int
	Script       []ScriptStep
}

// Session is the mutable state of one roleplay. Owned exclusively by its
// orchestrator and mutated only through orchestrator operations.
type Session struct {
	UID                string `json:"uid"`
	ScenarioUID        string `json:"scenarioUid"`
	Mode               Mode   `json:"mode"`
	Status             Status `json:"status"`
	TurnCount          int    `json:"turnCount"`
	StepIndex          int    `json:"stepIndex"`
	WrongStreak        int    `json:"wrongStreak"`
	TotalWrongAttempts int    `json:"totalWrongAttempts"`
}

// CompletionEvent is handed to the persistence collaborator when a session
// reaches a terminal state.
type CompletionEvent struct {
	SessionUID         string
	ScenarioUID        string
	Mode               Mode
	Status             Status
	TurnCount          int
	TotalWrongAttempts int
	Score              int
}

// CompletionListener receives completion events.
type CompletionListener func(CompletionEvent)
