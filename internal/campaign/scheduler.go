package campaign

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadon/outreach-cli/internal/channel"
	"github.com/leadon/outreach-cli/internal/config"
	"github.com/leadon/outreach-cli/internal/model"
	"github.com/leadon/outreach-cli/internal/rategate"
	"github.com/leadon/outreach-cli/internal/workflow"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	UpsertContact(ctx context.Context, contact model.Contact) error
	AppendAttempt(ctx context.Context, attempt model.OutreachAttempt) error
}

// Batch is one scheduler invocation: a set of contacts to advance through
// one account on one channel, in the caller's order.
type Batch struct {
	AccountID string
	Channel   model.Channel
	Contacts  []model.Contact
	// Deadline, when set, bounds the batch. Contacts not reached in time
	// are recorded as skipped rather than silently dropped.
	Deadline time.Time
}

// Scheduler advances contacts through their outreach sequence. Each contact
// gets at most one action per invocation; pacing beyond the rate gate's
// hard ceilings comes from the advisory delays on the workflow tables.
type Scheduler struct {
	gate     *rategate.Gate
	adapters *channel.Registry
	store    Store
	policies map[model.Channel]channel.Policy
	template string
	timeout  time.Duration
	nowFunc  func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.nowFunc = now }
}

// NewScheduler creates a scheduler over the given gate, adapters, and store.
func NewScheduler(gate *rategate.Gate, adapters *channel.Registry, store Store,
	policies map[model.Channel]channel.Policy, cfg config.CampaignConfig, opts ...SchedulerOption) *Scheduler {

	if policies == nil {
		policies = channel.DefaultPolicies()
	}
	timeout := time.Duration(cfg.ChannelTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	s := &Scheduler{
		gate:     gate,
		adapters: adapters,
		store:    store,
		policies: policies,
		template: cfg.MessageTemplate,
		timeout:  timeout,
		nowFunc:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RunBatch processes one batch. Contacts are visited strictly in the given
// order; a denied or failed contact never blocks the ones after it, but a
// provider throttle signal stops the whole batch since every further send
// on the account would hit the same pause.
func (s *Scheduler) RunBatch(ctx context.Context, batch Batch) (*model.BatchResult, error) {
	adapter := s.adapters.Get(batch.Channel)
	if adapter == nil {
		return nil, eris.Errorf("campaign: no adapter registered for channel %s", batch.Channel)
	}

	result := &model.BatchResult{}

	for i, contact := range batch.Contacts {
		if err := ctx.Err(); err != nil {
			return result, eris.Wrap(err, "campaign: batch cancelled")
		}

		action, due := workflow.NextAction(batch.Channel, contact.Stage)
		if !due {
			continue
		}

		if !batch.Deadline.IsZero() && !s.nowFunc().Before(batch.Deadline) {
			s.skipRemainder(ctx, batch, batch.Contacts[i:], result)
			break
		}

		attempt := s.newAttempt(batch, contact, action)

		identity, reachable := adapter.Identity(contact)
		if !reachable {
			attempt.Status = model.AttemptSkippedNoIdentity
			s.record(ctx, attempt, result)
			continue
		}

		decision, err := s.gate.TryAcquire(ctx, batch.AccountID)
		if err != nil {
			return result, err
		}
		if !decision.Allowed() {
			attempt.Status = model.AttemptSkippedRateLimited
			attempt.Error = decision.String()
			s.record(ctx, attempt, result)
			continue
		}

		outcome, stop := s.perform(ctx, adapter, batch, contact, action, identity, &attempt)
		if outcome == workflow.OutcomeSuccess {
			if err := s.advance(ctx, &contact, batch.Channel, action); err != nil {
				return result, err
			}
			attempt.ToStage = contact.Stage
		}
		s.record(ctx, attempt, result)
		if stop {
			break
		}
	}

	result.Attempted = result.Sent + result.Failed + result.Skipped
	zap.L().Info("batch complete",
		zap.String("account", batch.AccountID),
		zap.String("channel", string(batch.Channel)),
		zap.Int("attempted", result.Attempted),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// perform dispatches one action and classifies its result into the attempt.
// stop is true when the account must pause for the rest of the batch.
func (s *Scheduler) perform(ctx context.Context, adapter channel.Adapter, batch Batch,
	contact model.Contact, action model.ActionKind, identity string, attempt *model.OutreachAttempt) (workflow.Outcome, bool) {

	payload := channel.Payload{}
	switch action {
	case model.ActionLikePosts:
		payload.LikeCount = s.policies[batch.Channel].LikeCount
	default:
		payload.Message = Personalize(s.template, contact)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := adapter.Perform(callCtx, identity, action, payload)
	if err != nil {
		// Per-call timeouts count as a failed attempt for this contact
		// only; anything else here is a caller-side fault.
		attempt.Status = model.AttemptFailed
		attempt.Error = err.Error()
		return workflow.OutcomeFailure, ctx.Err() != nil
	}

	switch res.Status {
	case channel.StatusSent:
		attempt.Status = model.AttemptSent
		return workflow.OutcomeSuccess, false
	case channel.StatusThrottled:
		// A throttle after the gate granted is a channel fault, not a
		// gate denial, so it lands in the ledger as failed.
		attempt.Status = model.AttemptFailed
		attempt.Error = "provider throttled: " + res.Reason
		if err := s.gate.ReportThrottled(ctx, batch.AccountID, res.RetryAfter); err != nil {
			zap.L().Error("failed to record throttle pause",
				zap.String("account", batch.AccountID), zap.Error(err))
		}
		return workflow.OutcomeFailure, true
	default:
		attempt.Status = model.AttemptFailed
		attempt.Error = res.Reason
		return workflow.OutcomeFailure, false
	}
}

// advance moves the contact to its post-action stage and refreshes the
// advisory next-action hint.
func (s *Scheduler) advance(ctx context.Context, contact *model.Contact, ch model.Channel, action model.ActionKind) error {
	now := s.nowFunc()
	contact.Stage = workflow.Next(contact.Stage, action, workflow.OutcomeSuccess)
	contact.LastAction = string(action)
	contact.LastActionAt = &now
	contact.UpdatedAt = now

	if next, delay, ok := workflow.Advisory(ch, contact.Stage); ok {
		at := now.Add(delay)
		contact.NextAction = string(next)
		contact.NextActionAt = &at
	} else {
		contact.NextAction = ""
		contact.NextActionAt = nil
	}

	return eris.Wrapf(s.store.UpsertContact(ctx, *contact), "campaign: update contact %s", contact.Fingerprint)
}

// Observe applies a non-dispatched action, an acceptance or reply
// observation or a manual disposition, and records it in the ledger.
func (s *Scheduler) Observe(ctx context.Context, contact model.Contact, ch model.Channel, action model.ActionKind) (model.Contact, error) {
	switch action {
	case model.ActionObserveAccept, model.ActionObserveReply, model.ActionQualify, model.ActionDisqualify:
	default:
		return contact, eris.Errorf("campaign: %s is not an observation or disposition", action)
	}

	from := contact.Stage
	if err := s.advance(ctx, &contact, ch, action); err != nil {
		return contact, err
	}

	attempt := model.OutreachAttempt{
		ID:          uuid.NewString(),
		Fingerprint: contact.Fingerprint,
		Channel:     ch,
		Action:      action,
		FromStage:   from,
		ToStage:     contact.Stage,
		Status:      model.AttemptSent,
		AttemptedAt: s.nowFunc(),
	}
	if err := s.store.AppendAttempt(ctx, attempt); err != nil {
		return contact, eris.Wrap(err, "campaign: record observation")
	}
	return contact, nil
}

// RunAccounts runs one batch per account concurrently. Each account stays
// strictly sequential internally so its pacing is preserved.
func (s *Scheduler) RunAccounts(ctx context.Context, batches []Batch) (map[string]*model.BatchResult, error) {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	results := make(map[string]*model.BatchResult, len(batches))

	for _, batch := range batches {
		g.Go(func() error {
			res, err := s.RunBatch(ctx, batch)
			if res != nil {
				mu.Lock()
				results[batch.AccountID] = res
				mu.Unlock()
			}
			return err
		})
	}

	return results, g.Wait()
}

func (s *Scheduler) newAttempt(batch Batch, contact model.Contact, action model.ActionKind) model.OutreachAttempt {
	return model.OutreachAttempt{
		ID:          uuid.NewString(),
		Fingerprint: contact.Fingerprint,
		Channel:     batch.Channel,
		AccountID:   batch.AccountID,
		Action:      action,
		FromStage:   contact.Stage,
		ToStage:     contact.Stage,
		AttemptedAt: s.nowFunc(),
	}
}

// skipRemainder ledgers the contacts the deadline cut off.
func (s *Scheduler) skipRemainder(ctx context.Context, batch Batch, remaining []model.Contact, result *model.BatchResult) {
	for _, contact := range remaining {
		action, due := workflow.NextAction(batch.Channel, contact.Stage)
		if !due {
			continue
		}
		attempt := s.newAttempt(batch, contact, action)
		attempt.Status = model.AttemptSkippedDeadline
		s.record(ctx, attempt, result)
	}
}

func (s *Scheduler) record(ctx context.Context, attempt model.OutreachAttempt, result *model.BatchResult) {
	switch attempt.Status {
	case model.AttemptSent:
		result.Sent++
	case model.AttemptFailed:
		result.Failed++
	default:
		result.Skipped++
	}
	result.PerContact = append(result.PerContact, attempt)

	if err := s.store.AppendAttempt(ctx, attempt); err != nil {
		zap.L().Error("failed to append attempt to ledger",
			zap.String("fingerprint", attempt.Fingerprint),
			zap.String("action", string(attempt.Action)),
			zap.Error(err),
		)
	}
}
