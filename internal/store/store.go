// Package store persists contacts, the outreach attempt ledger, channel
// accounts, and search runs behind a backend-neutral interface.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadon/outreach-cli/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = eris.New("store: not found")

// ContactFilter specifies criteria for listing contacts.
type ContactFilter struct {
	Stage  model.Stage `json:"stage,omitempty"`
	Source string      `json:"source,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

// Store defines the persistence interface for the outreach pipeline.
type Store interface {
	// Contacts
	UpsertContact(ctx context.Context, contact model.Contact) error
	BulkUpsertContacts(ctx context.Context, contacts []model.Contact) (int64, error)
	GetContactByFingerprint(ctx context.Context, fp string) (*model.Contact, error)
	HasFingerprint(ctx context.Context, fp string) (bool, error)
	ListContacts(ctx context.Context, filter ContactFilter) ([]model.Contact, error)
	// ListDueContacts returns contacts at one of the given stages whose
	// advisory next-action time has arrived (or was never set), soonest
	// first.
	ListDueContacts(ctx context.Context, stages []model.Stage, now time.Time, limit int) ([]model.Contact, error)

	// Attempt ledger (append-only)
	AppendAttempt(ctx context.Context, attempt model.OutreachAttempt) error
	ListAttempts(ctx context.Context, fingerprint string, limit int) ([]model.OutreachAttempt, error)
	CountSentAttempts(ctx context.Context, accountID string, since time.Time) (int, error)

	// Channel accounts
	GetAccount(ctx context.Context, id string) (*model.ChannelAccount, error)
	SaveAccount(ctx context.Context, acct *model.ChannelAccount) error
	ListAccounts(ctx context.Context) ([]model.ChannelAccount, error)

	// Search runs
	CreateSearchRun(ctx context.Context, run *model.SearchRun) error
	AppendSearchRound(ctx context.Context, runID string, round model.SearchRound) error
	CompleteSearchRun(ctx context.Context, runID string, partial bool) error
	GetSearchRun(ctx context.Context, runID string) (*model.SearchRun, error)
	ListSearchRuns(ctx context.Context, limit int) ([]model.SearchRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
