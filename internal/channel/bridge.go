package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/leadon/outreach-cli/internal/model"
)

// defaultThrottlePause is used when a throttling response carries no
// Retry-After header.
const defaultThrottlePause = 15 * time.Minute

// bridgeAdapter talks to the automation bridge sidecar, which owns the
// authenticated browser/API session for a channel. One adapter per channel;
// the bridge routes on the URL path.
type bridgeAdapter struct {
	channel  model.Channel
	baseURL  string
	http     *http.Client
	identity func(model.Contact) (string, bool)
}

// BridgeOption configures a bridge adapter.
type BridgeOption func(*bridgeAdapter)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) BridgeOption {
	return func(a *bridgeAdapter) {
		a.http = hc
	}
}

// WithTimeout sets the per-action timeout. A stalled bridge must never
// stall the scheduler.
func WithTimeout(d time.Duration) BridgeOption {
	return func(a *bridgeAdapter) {
		a.http.Timeout = d
	}
}

func newBridgeAdapter(ch model.Channel, baseURL string, identity func(model.Contact) (string, bool), opts ...BridgeOption) *bridgeAdapter {
	a := &bridgeAdapter{
		channel:  ch,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		identity: identity,
		http: &http.Client{
			Timeout: 45 * time.Second,
		},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// NewLinkedIn creates the LinkedIn adapter. Contacts are reachable when
// they carry a profile URL.
func NewLinkedIn(baseURL string, opts ...BridgeOption) Adapter {
	return newBridgeAdapter(model.ChannelLinkedIn, baseURL, func(c model.Contact) (string, bool) {
		return c.ProfileURL, c.ProfileURL != ""
	}, opts...)
}

// NewTelegram creates the Telegram adapter. Contacts are reachable when
// they carry a phone number.
func NewTelegram(baseURL string, opts ...BridgeOption) Adapter {
	return newBridgeAdapter(model.ChannelTelegram, baseURL, func(c model.Contact) (string, bool) {
		return c.Phone, c.Phone != ""
	}, opts...)
}

func (a *bridgeAdapter) Channel() model.Channel {
	return a.channel
}

func (a *bridgeAdapter) Identity(contact model.Contact) (string, bool) {
	return a.identity(contact)
}

type bridgeRequest struct {
	Identity string `json:"identity"`
	Message  string `json:"message,omitempty"`
	Count    int    `json:"count,omitempty"`
}

type bridgeResponse struct {
	Status string `json:"status"` // "ok" or "error"
	Error  string `json:"error,omitempty"`
}

func (a *bridgeAdapter) Perform(ctx context.Context, identity string, action model.ActionKind, payload Payload) (*Result, error) {
	if identity == "" {
		return nil, eris.New("channel: empty identity")
	}
	switch action {
	case model.ActionSendConnection, model.ActionLikePosts, model.ActionComment, model.ActionSendMessage:
	default:
		return nil, eris.Errorf("channel: action %s is not dispatchable", action)
	}

	body, err := json.Marshal(bridgeRequest{
		Identity: identity,
		Message:  payload.Message,
		Count:    payload.LikeCount,
	})
	if err != nil {
		return nil, eris.Wrap(err, "channel: marshal request")
	}

	url := fmt.Sprintf("%s/%s/%s", a.baseURL, a.channel, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "channel: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "channel: perform")
		}
		// Transport faults are per-contact failures, not batch faults.
		return &Result{Status: StatusFailed, Reason: err.Error()}, nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusOK:
		return &Result{Status: StatusSent}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &Result{
			Status:     StatusThrottled,
			Reason:     fmt.Sprintf("%s flood control", a.channel),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}, nil
	default:
		reason := strings.TrimSpace(string(respBody))
		var br bridgeResponse
		if json.Unmarshal(respBody, &br) == nil && br.Error != "" {
			reason = br.Error
		}
		if reason == "" {
			reason = fmt.Sprintf("bridge returned %d", resp.StatusCode)
		}
		return &Result{Status: StatusFailed, Reason: reason}, nil
	}
}

func parseRetryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultThrottlePause
}
