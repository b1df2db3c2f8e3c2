package store

import "encoding/json"

// ScriptStepPayload is the JSON shape of one script step inside
// Scenario.Script.
type ScriptStepPayload struct {
	NPCText         string   `json:"npcText"`
	ExpectedReplies []string `json:"expectedReplies"`
}

// MarshalScript encodes script steps for storage.
func MarshalScript(steps []ScriptStepPayload) (string, error) {
	raw, err := json.Marshal(steps)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// UnmarshalScript decodes a stored script column.
func UnmarshalScript(raw string) ([]ScriptStepPayload, error) {
	if raw == "" {
		return nil, nil
	}
	var steps []ScriptStepPayload
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// Scenario is a stored roleplay scenario. Script holds the scripted exchanges
// as a JSON array so scenario content stays a single row.
type Scenario struct {
	ID           int32
	UID          string
	Title        string
	SystemPrompt string
	TurnLimit    int
	Script       string // JSON array of script steps
	CreatedTs    int64
	UpdatedTs    int64
}

type FindScenario struct {
	ID    *int32
	UID   *string
	Limit *int
}

type UpdateScenario struct {
	ID           int32
	Title        *string
	SystemPrompt *string
	TurnLimit    *int
	Script       *string
	UpdatedTs    *int64
}

type DeleteScenario struct {
	ID int32
}
