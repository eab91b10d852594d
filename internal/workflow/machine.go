// Package workflow holds the pure transition logic for a contact's outreach
// stage and the per-channel action tables the scheduler consults.
package workflow

import (
	"time"

	"github.com/leadon/outreach-cli/internal/model"
)

// Outcome is the result of an attempted action.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

type transitionKey struct {
	stage  model.Stage
	action model.ActionKind
}

// transitions maps (stage, action) to the stage reached on a successful
// outcome. Every pair not present is a no-op.
var transitions = map[transitionKey]model.Stage{
	{model.StageNew, model.ActionSendConnection}:        model.StageConnectSent,
	{model.StageConnectSent, model.ActionObserveAccept}: model.StageConnected,
	{model.StageConnected, model.ActionLikePosts}:       model.StageLiked,
	{model.StageLiked, model.ActionComment}:             model.StageCommented,
	{model.StageCommented, model.ActionSendMessage}:     model.StageMessaged,
	{model.StageMessaged, model.ActionObserveReply}:     model.StageReplied,
	{model.StageReplied, model.ActionQualify}:           model.StageQualified,

	// Direct-DM channels skip the connection sequence entirely.
	{model.StageNew, model.ActionSendMessage}: model.StageMessaged,
}

// Next computes the stage a contact reaches after an action with the given
// outcome. Total: every (stage, action, outcome) triple maps to exactly one
// stage, defaulting to the current one. Failures never regress or skip
// stages, and disqualification overrides everything.
func Next(stage model.Stage, action model.ActionKind, outcome Outcome) model.Stage {
	if action == model.ActionDisqualify {
		return model.StageDisqualified
	}
	if stage.Terminal() || outcome != OutcomeSuccess {
		return stage
	}
	if next, ok := transitions[transitionKey{stage, action}]; ok {
		return next
	}
	return stage
}

// actionTables maps each channel's current stage to the single automated
// action the scheduler should take next. Stages absent from a channel's
// table are waiting on an observation or a manual disposition.
var actionTables = map[model.Channel]map[model.Stage]model.ActionKind{
	model.ChannelLinkedIn: {
		model.StageNew:       model.ActionSendConnection,
		model.StageConnected: model.ActionLikePosts,
		model.StageLiked:     model.ActionComment,
		model.StageCommented: model.ActionSendMessage,
	},
	model.ChannelTelegram: {
		model.StageNew: model.ActionSendMessage,
	},
}

// NextAction returns the automated action for a contact at the given stage
// on the given channel. ok is false when nothing is due: terminal stages,
// stages awaiting observation, or unknown channels.
func NextAction(channel model.Channel, stage model.Stage) (model.ActionKind, bool) {
	table, ok := actionTables[channel]
	if !ok {
		return "", false
	}
	action, ok := table[stage]
	return action, ok
}

// ActionableStages lists the stages on which a channel has an automated
// action pending, in sequence order. Used to select due contacts.
func ActionableStages(channel model.Channel) []model.Stage {
	table, ok := actionTables[channel]
	if !ok {
		return nil
	}
	out := make([]model.Stage, 0, len(table))
	for _, stage := range []model.Stage{
		model.StageNew, model.StageConnected, model.StageLiked, model.StageCommented,
	} {
		if _, has := table[stage]; has {
			out = append(out, stage)
		}
	}
	return out
}

// advisoryDelays suggests when the follow-up action after reaching a stage
// should run. Purely advisory; the rate gate remains the hard constraint.
var advisoryDelays = map[model.Stage]time.Duration{
	model.StageConnectSent: 24 * time.Hour,
	model.StageConnected:   24 * time.Hour,
	model.StageLiked:       24 * time.Hour,
	model.StageCommented:   48 * time.Hour,
	model.StageMessaged:    72 * time.Hour,
}

// Advisory returns the next automated action and its suggested scheduling
// delay for a contact that has just reached stage on channel. ok is false
// when no further automated action exists.
func Advisory(channel model.Channel, stage model.Stage) (model.ActionKind, time.Duration, bool) {
	delay, hasDelay := advisoryDelays[stage]
	if !hasDelay {
		delay = 24 * time.Hour
	}

	// Stages waiting on an observation still advertise the observation as
	// the next step so operators can see what the sequence is blocked on.
	switch stage {
	case model.StageConnectSent:
		return model.ActionObserveAccept, delay, true
	case model.StageMessaged:
		return model.ActionObserveReply, delay, true
	}

	action, ok := NextAction(channel, stage)
	if !ok {
		return "", 0, false
	}
	return action, delay, true
}
