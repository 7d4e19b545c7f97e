package model

import "strings"

// ProviderAngel is the only provider the desk accepts link messages from.
const ProviderAngel = "angel"

// Tokens is the bundle produced by the broker authorization step. TokenID is a
// handle to a bundle held server-side; Completed means the popup already
// finished linking on the backend.
type Tokens struct {
	AuthToken    string `json:"authToken,omitempty"`
	RequestToken string `json:"requestToken,omitempty"`
	FeedToken    string `json:"feedToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenID      string `json:"tokenId,omitempty"`
	Completed    bool   `json:"completed,omitempty"`
}

// HasDirect reports whether the bundle can be sent to the completion endpoint as is.
func (t *Tokens) HasDirect() bool {
	return t != nil && (t.AuthToken != "" || t.RequestToken != "")
}

// Empty reports whether the bundle carries no usable evidence at all.
func (t *Tokens) Empty() bool {
	return t == nil || (!t.HasDirect() && t.TokenID == "" && !t.Completed)
}

// LinkMessage is the message the authorization popup sends to the desk.
type LinkMessage struct {
	Provider string  `json:"provider"`
	OK       bool    `json:"ok"`
	Message  string  `json:"message,omitempty"`
	Tokens   *Tokens `json:"tokens,omitempty"`
}

// FromAngel reports whether the message was sent by the Angel popup.
func (m LinkMessage) FromAngel() bool {
	return strings.EqualFold(strings.TrimSpace(m.Provider), ProviderAngel)
}

// LinkChannel names the evidence that completed a linking attempt.
type LinkChannel string

const (
	ChannelDirect    LinkChannel = "message_direct"
	ChannelCompleted LinkChannel = "message_completed"
	ChannelTokenID   LinkChannel = "message_token_id"
	ChannelOK        LinkChannel = "message_ok"
	ChannelPoll      LinkChannel = "poll"
	ChannelCarryover LinkChannel = "carryover"
)

// LinkOutcome is the terminal result of a linking attempt.
type LinkOutcome string

const (
	OutcomeStarted   LinkOutcome = "STARTED"
	OutcomeLinked    LinkOutcome = "LINKED"
	OutcomeFailed    LinkOutcome = "FAILED"
	OutcomeAbandoned LinkOutcome = "ABANDONED"
	OutcomeBlocked   LinkOutcome = "POPUP_BLOCKED"
)
