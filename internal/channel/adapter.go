// Package channel defines the outbound channel adapter interface and the
// concrete adapters that perform outreach actions.
package channel

import (
	"context"
	"sync"
	"time"

	"github.com/leadon/outreach-cli/internal/model"
)

// ResultStatus classifies the outcome of a performed action.
type ResultStatus int

const (
	// StatusSent means the action was carried out.
	StatusSent ResultStatus = iota
	// StatusFailed means the action could not be carried out for this
	// contact. Does not halt the rest of a batch.
	StatusFailed
	// StatusThrottled means the provider signalled a flood/backoff pause.
	// The account must stop sending for RetryAfter.
	StatusThrottled
)

func (s ResultStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	case StatusThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// Result is the typed outcome of an adapter call. Adapters convert every
// transport fault into one of these; they never leak raw provider errors.
type Result struct {
	Status     ResultStatus
	Reason     string        // failure detail, empty on success
	RetryAfter time.Duration // set when Status is StatusThrottled
}

// Payload carries the action-specific inputs.
type Payload struct {
	Message   string // for send_connection, comment, send_message
	LikeCount int    // for like_posts
}

// Adapter performs outreach actions on a single channel.
type Adapter interface {
	// Channel returns the channel this adapter serves.
	Channel() model.Channel
	// Identity extracts the contact's reachable identity on this channel.
	// ok is false when the contact cannot be reached here.
	Identity(contact model.Contact) (string, bool)
	// Perform executes one action against one contact identity. The
	// returned error is reserved for caller-side faults (cancelled
	// context, bad action kind); provider-side failures come back as a
	// Result.
	Perform(ctx context.Context, identity string, action model.ActionKind, payload Payload) (*Result, error)
}

// Registry manages available channel adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.Channel]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.Channel]Adapter)}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Channel()] = a
}

// Get returns the adapter for a channel, or nil if not registered.
func (r *Registry) Get(ch model.Channel) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[ch]
}

// List returns all registered channels.
func (r *Registry) List() []model.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channels := make([]model.Channel, 0, len(r.adapters))
	for ch := range r.adapters {
		channels = append(channels, ch)
	}
	return channels
}
