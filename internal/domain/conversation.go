package domain

import "time"

// Stage is a step of the fee-query dialogue.
type Stage string

const (
	StageIdle          Stage = "idle"
	StageAwaitingPlate Stage = "awaiting_plate"
	StageAwaitingType  Stage = "awaiting_type"
)

// ParseStage accepts a persisted stage value. Unknown values map to idle.
func ParseStage(s string) Stage {
	switch Stage(s) {
	case StageAwaitingPlate:
		return StageAwaitingPlate
	case StageAwaitingType:
		return StageAwaitingType
	default:
		return StageIdle
	}
}

// Session is the per-user dialogue record. An idle session is never stored.
type Session struct {
	UserID    string
	Stage     Stage
	Plate     Plate
	UpdatedAt time.Time
}

// EventKind distinguishes the two normalized inbound shapes.
type EventKind string

const (
	EventText      EventKind = "text"
	EventSelection EventKind = "selection"
)

// Event is one inbound message already stripped of transport framing.
type Event struct {
	UserID string
	Kind   EventKind
	Text   string
	Choice string
}

// ReplyKind distinguishes plain text replies from choice prompts.
type ReplyKind string

const (
	ReplyText   ReplyKind = "text"
	ReplyChoice ReplyKind = "choice"
)

// Choice is one selectable option of a choice prompt.
type Choice struct {
	Label string `json:"label"`
	Code  string `json:"code"`
}

// Reply is what the controller asks the transport adapter to send back.
type Reply struct {
	Kind    ReplyKind
	Text    string
	Choices []Choice
}

// TextReply builds a plain text reply.
func TextReply(text string) Reply {
	return Reply{Kind: ReplyText, Text: text}
}

// ChoicePrompt builds a reply offering mutually exclusive choices.
func ChoicePrompt(text string, choices []Choice) Reply {
	return Reply{Kind: ReplyChoice, Text: text, Choices: choices}
}
