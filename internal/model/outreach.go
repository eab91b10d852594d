package model

import "time"

// Channel identifies an outbound communication medium.
type Channel string

const (
	ChannelLinkedIn Channel = "linkedin"
	ChannelTelegram Channel = "telegram"
)

// ActionKind is a channel-level action the scheduler can ask an adapter to
// perform.
type ActionKind string

const (
	ActionSendConnection ActionKind = "send_connection"
	ActionLikePosts      ActionKind = "like_posts"
	ActionComment        ActionKind = "comment"
	ActionSendMessage    ActionKind = "send_message"

	// Observations and manual dispositions. Not dispatched to adapters but
	// recorded in the ledger and fed through the state machine.
	ActionObserveAccept ActionKind = "acceptance_observed"
	ActionObserveReply  ActionKind = "reply_observed"
	ActionQualify       ActionKind = "qualify"
	ActionDisqualify    ActionKind = "disqualify"
)

// AttemptStatus is the recorded outcome of one scheduling decision for one
// contact.
type AttemptStatus string

const (
	AttemptSent                AttemptStatus = "sent"
	AttemptFailed              AttemptStatus = "failed"
	AttemptSkippedNoIdentity   AttemptStatus = "skipped_no_channel_identity"
	AttemptSkippedRateLimited  AttemptStatus = "skipped_rate_limited"
	AttemptSkippedDeadline     AttemptStatus = "skipped_deadline_exceeded"
)

// OutreachAttempt is an immutable ledger entry. The ledger is the audit
// trail and the source of truth for rate-counter reconstruction on restart.
type OutreachAttempt struct {
	ID          string        `json:"id"`
	Fingerprint string        `json:"fingerprint"`
	Channel     Channel       `json:"channel"`
	AccountID   string        `json:"account_id"`
	Action      ActionKind    `json:"action"`
	FromStage   Stage         `json:"from_stage"`
	ToStage     Stage         `json:"to_stage"`
	Status      AttemptStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	AttemptedAt time.Time     `json:"attempted_at"`
}

// ChannelAccount is one connected outbound identity with its rolling send
// counters. Counter mutation goes through the rate gate only.
type ChannelAccount struct {
	ID              string     `json:"id"`
	Channel         Channel    `json:"channel"`
	DisplayName     string     `json:"display_name,omitempty"`
	SentInDay       int        `json:"sent_in_current_day"`
	SentInHour      int        `json:"sent_in_current_hour"`
	WindowDayStart  time.Time  `json:"window_day_start"`
	WindowHourStart time.Time  `json:"window_hour_start"`
	BlockedUntil    *time.Time `json:"blocked_until,omitempty"` // set on provider throttling
	UpdatedAt       time.Time  `json:"updated_at"`
}

// BatchResult summarizes one scheduler invocation over a contact batch.
type BatchResult struct {
	Attempted  int               `json:"attempted"`
	Sent       int               `json:"sent"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	PerContact []OutreachAttempt `json:"per_contact"`
}
