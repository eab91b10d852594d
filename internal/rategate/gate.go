// Package rategate enforces per-channel-account send ceilings over rolling
// day and hour windows, plus provider-imposed flood pauses.
package rategate

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadon/outreach-cli/internal/channel"
	"github.com/leadon/outreach-cli/internal/model"
)

// Decision is the outcome of a TryAcquire call.
type Decision int

const (
	Granted Decision = iota
	DeniedDaily
	DeniedHourly
	DeniedBlocked
)

func (d Decision) String() string {
	switch d {
	case Granted:
		return "granted"
	case DeniedDaily:
		return "denied_daily_cap"
	case DeniedHourly:
		return "denied_hourly_cap"
	case DeniedBlocked:
		return "denied_blocked"
	default:
		return "unknown"
	}
}

// Allowed reports whether the send may proceed.
func (d Decision) Allowed() bool {
	return d == Granted
}

// Store is the persistence surface the gate needs.
type Store interface {
	GetAccount(ctx context.Context, id string) (*model.ChannelAccount, error)
	SaveAccount(ctx context.Context, acct *model.ChannelAccount) error
	CountSentAttempts(ctx context.Context, accountID string, since time.Time) (int, error)
}

// Gate serializes counter updates per account. Check-and-increment is a
// single step under the account's lock, so concurrent workers sharing one
// account can never jointly exceed a cap.
type Gate struct {
	store    Store
	policies map[model.Channel]channel.Policy

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a Gate with the given store and per-channel policies.
func New(store Store, policies map[model.Channel]channel.Policy) *Gate {
	if policies == nil {
		policies = channel.DefaultPolicies()
	}
	return &Gate{
		store:    store,
		policies: policies,
		locks:    make(map[string]*sync.Mutex),
		nowFunc:  time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (g *Gate) WithNow(now func() time.Time) *Gate {
	g.nowFunc = now
	return g
}

func (g *Gate) accountLock(id string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[id]
	if !ok {
		l = &sync.Mutex{}
		g.locks[id] = l
	}
	return l
}

// TryAcquire checks the account's windows and caps and, if the send is
// allowed, increments both counters as part of the same decision.
func (g *Gate) TryAcquire(ctx context.Context, accountID string) (Decision, error) {
	lock := g.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	acct, err := g.store.GetAccount(ctx, accountID)
	if err != nil {
		return DeniedBlocked, eris.Wrapf(err, "rategate: load account %s", accountID)
	}

	now := g.nowFunc()
	rolled := rollWindows(acct, now)

	if acct.BlockedUntil != nil && acct.BlockedUntil.After(now) {
		if rolled {
			if err := g.store.SaveAccount(ctx, acct); err != nil {
				return DeniedBlocked, eris.Wrap(err, "rategate: save account")
			}
		}
		return DeniedBlocked, nil
	}

	policy := g.policyFor(acct.Channel)
	decision := Granted
	switch {
	case acct.SentInDay >= policy.DailyCap:
		decision = DeniedDaily
	case acct.SentInHour >= policy.HourlyCap:
		decision = DeniedHourly
	default:
		acct.SentInDay++
		acct.SentInHour++
	}

	acct.UpdatedAt = now
	if err := g.store.SaveAccount(ctx, acct); err != nil {
		return DeniedBlocked, eris.Wrap(err, "rategate: save account")
	}
	return decision, nil
}

// ReportThrottled records a provider flood signal: the account stops
// sending until now+retryAfter regardless of remaining counter headroom.
func (g *Gate) ReportThrottled(ctx context.Context, accountID string, retryAfter time.Duration) error {
	lock := g.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	acct, err := g.store.GetAccount(ctx, accountID)
	if err != nil {
		return eris.Wrapf(err, "rategate: load account %s", accountID)
	}

	now := g.nowFunc()
	until := now.Add(retryAfter)
	acct.BlockedUntil = &until
	acct.UpdatedAt = now

	zap.L().Warn("account throttled by provider",
		zap.String("account", accountID),
		zap.String("channel", string(acct.Channel)),
		zap.Duration("retry_after", retryAfter),
	)

	return eris.Wrap(g.store.SaveAccount(ctx, acct), "rategate: save account")
}

// Rebuild reconstructs the account's counters from the attempt ledger.
// Used on restart so counters survive process loss; only attempts recorded
// as sent count against the caps.
func (g *Gate) Rebuild(ctx context.Context, accountID string) error {
	lock := g.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	acct, err := g.store.GetAccount(ctx, accountID)
	if err != nil {
		return eris.Wrapf(err, "rategate: load account %s", accountID)
	}

	now := g.nowFunc()
	rollWindows(acct, now)

	day, err := g.store.CountSentAttempts(ctx, accountID, acct.WindowDayStart)
	if err != nil {
		return eris.Wrap(err, "rategate: count day attempts")
	}
	hour, err := g.store.CountSentAttempts(ctx, accountID, acct.WindowHourStart)
	if err != nil {
		return eris.Wrap(err, "rategate: count hour attempts")
	}

	acct.SentInDay = day
	acct.SentInHour = hour
	acct.UpdatedAt = now
	return eris.Wrap(g.store.SaveAccount(ctx, acct), "rategate: save account")
}

// Status returns a read-only snapshot of the account's current windows.
func (g *Gate) Status(ctx context.Context, accountID string) (*model.ChannelAccount, channel.Policy, error) {
	lock := g.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	acct, err := g.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, channel.Policy{}, eris.Wrapf(err, "rategate: load account %s", accountID)
	}
	rollWindows(acct, g.nowFunc())
	return acct, g.policyFor(acct.Channel), nil
}

func (g *Gate) policyFor(ch model.Channel) channel.Policy {
	if p, ok := g.policies[ch]; ok {
		return p
	}
	// Unknown channels get the tightest built-in ceilings.
	return channel.Policy{DailyCap: 10, HourlyCap: 1}
}

// rollWindows resets counters whose rolling window has elapsed and moves
// the window starts forward. Returns true when anything changed.
func rollWindows(acct *model.ChannelAccount, now time.Time) bool {
	changed := false
	if acct.WindowDayStart.IsZero() || now.Sub(acct.WindowDayStart) >= 24*time.Hour {
		acct.WindowDayStart = now
		acct.SentInDay = 0
		changed = true
	}
	if acct.WindowHourStart.IsZero() || now.Sub(acct.WindowHourStart) >= time.Hour {
		acct.WindowHourStart = now
		acct.SentInHour = 0
		changed = true
	}
	if acct.BlockedUntil != nil && !acct.BlockedUntil.After(now) {
		acct.BlockedUntil = nil
		changed = true
	}
	return changed
}
