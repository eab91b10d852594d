package rategate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadon/outreach-cli/internal/channel"
	"github.com/leadon/outreach-cli/internal/model"
)

// fakeStore keeps accounts in memory and counts ledger rows by timestamp.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]model.ChannelAccount
	sentAt   map[string][]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]model.ChannelAccount),
		sentAt:   make(map[string][]time.Time),
	}
}

func (s *fakeStore) GetAccount(_ context.Context, id string) (*model.ChannelAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, assert.AnError
	}
	copied := acct
	return &copied, nil
}

func (s *fakeStore) SaveAccount(_ context.Context, acct *model.ChannelAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.ID] = *acct
	return nil
}

func (s *fakeStore) CountSentAttempts(_ context.Context, accountID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, at := range s.sentAt[accountID] {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func testPolicies() map[model.Channel]channel.Policy {
	return map[model.Channel]channel.Policy{
		model.ChannelTelegram: {DailyCap: 10, HourlyCap: 1},
		model.ChannelLinkedIn: {DailyCap: 25, HourlyCap: 8},
	}
}

func seedAccount(s *fakeStore, id string, ch model.Channel, at time.Time) {
	s.accounts[id] = model.ChannelAccount{
		ID:              id,
		Channel:         ch,
		WindowDayStart:  at,
		WindowHourStart: at,
	}
}

func TestTryAcquire_GrantsAndIncrements(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := newFakeStore()
	seedAccount(s, "acct-1", model.ChannelLinkedIn, now)
	g := New(s, testPolicies()).WithNow(func() time.Time { return now })

	d, err := g.TryAcquire(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, Granted, d)
	assert.True(t, d.Allowed())

	acct, _ := s.GetAccount(ctx, "acct-1")
	assert.Equal(t, 1, acct.SentInDay)
	assert.Equal(t, 1, acct.SentInHour)
}

func TestTryAcquire_HourlyCap(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := newFakeStore()
	seedAccount(s, "tg", model.ChannelTelegram, now)
	g := New(s, testPolicies()).WithNow(func() time.Time { return now })

	d, err := g.TryAcquire(ctx, "tg")
	require.NoError(t, err)
	assert.Equal(t, Granted, d)

	d, err = g.TryAcquire(ctx, "tg")
	require.NoError(t, err)
	assert.Equal(t, DeniedHourly, d)
	assert.False(t, d.Allowed())

	// Next hour: hourly window rolls, daily counter stays.
	now = now.Add(61 * time.Minute)
	d, err = g.TryAcquire(ctx, "tg")
	require.NoError(t, err)
	assert.Equal(t, Granted, d)

	acct, _ := s.GetAccount(ctx, "tg")
	assert.Equal(t, 2, acct.SentInDay)
	assert.Equal(t, 1, acct.SentInHour)
}

func TestTryAcquire_DailyCapNeverExceeded(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s := newFakeStore()
	seedAccount(s, "tg", model.ChannelTelegram, now)
	g := New(s, testPolicies()).WithNow(func() time.Time { return now })

	granted := 0
	// One attempt each hour for two days' worth of hours.
	for i := 0; i < 48; i++ {
		d, err := g.TryAcquire(ctx, "tg")
		require.NoError(t, err)
		if d.Allowed() {
			granted++
		}
		now = now.Add(time.Hour)
	}

	// 10/day cap over two day windows.
	assert.Equal(t, 20, granted)
}

func TestTryAcquire_DayWindowRollsForward(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := newFakeStore()
	seedAccount(s, "tg", model.ChannelTelegram, now)
	acct := s.accounts["tg"]
	acct.SentInDay = 10
	s.accounts["tg"] = acct
	g := New(s, testPolicies()).WithNow(func() time.Time { return now })

	d, err := g.TryAcquire(ctx, "tg")
	require.NoError(t, err)
	assert.Equal(t, DeniedDaily, d)

	now = now.Add(24 * time.Hour)
	d, err = g.TryAcquire(ctx, "tg")
	require.NoError(t, err)
	assert.Equal(t, Granted, d)
}

func TestReportThrottled_BlocksUnconditionally(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := newFakeStore()
	seedAccount(s, "li", model.ChannelLinkedIn, now)
	g := New(s, testPolicies()).WithNow(func() time.Time { return now })

	require.NoError(t, g.ReportThrottled(ctx, "li", 30*time.Minute))

	d, err := g.TryAcquire(ctx, "li")
	require.NoError(t, err)
	assert.Equal(t, DeniedBlocked, d)

	// Block expires.
	now = now.Add(31 * time.Minute)
	d, err = g.TryAcquire(ctx, "li")
	require.NoError(t, err)
	assert.Equal(t, Granted, d)
}

func TestTryAcquire_ConcurrentWorkersShareOneAccount(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := newFakeStore()
	seedAccount(s, "li", model.ChannelLinkedIn, now)
	g := New(s, testPolicies()).WithNow(func() time.Time { return now })

	var mu sync.Mutex
	granted := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.TryAcquire(ctx, "li")
			if err == nil && d.Allowed() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Hourly cap is the binding constraint.
	assert.Equal(t, 8, granted)
	acct, _ := s.GetAccount(ctx, "li")
	assert.Equal(t, 8, acct.SentInHour)
}

func TestRebuild_FromLedger(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	s := newFakeStore()
	seedAccount(s, "tg", model.ChannelTelegram, now.Add(-2*time.Hour))
	acct := s.accounts["tg"]
	acct.WindowDayStart = now.Add(-6 * time.Hour)
	acct.WindowHourStart = now.Add(-30 * time.Minute)
	s.accounts["tg"] = acct

	// Three sends inside the day window, one of them inside the hour window.
	s.sentAt["tg"] = []time.Time{
		now.Add(-5 * time.Hour),
		now.Add(-3 * time.Hour),
		now.Add(-10 * time.Minute),
	}

	g := New(s, testPolicies()).WithNow(func() time.Time { return now })
	require.NoError(t, g.Rebuild(ctx, "tg"))

	got, _ := s.GetAccount(ctx, "tg")
	assert.Equal(t, 3, got.SentInDay)
	assert.Equal(t, 1, got.SentInHour)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := newFakeStore()
	seedAccount(s, "tg", model.ChannelTelegram, now)
	g := New(s, testPolicies()).WithNow(func() time.Time { return now })

	acct, policy, err := g.Status(ctx, "tg")
	require.NoError(t, err)
	assert.Equal(t, "tg", acct.ID)
	assert.Equal(t, 10, policy.DailyCap)
	assert.Equal(t, 1, policy.HourlyCap)
}
