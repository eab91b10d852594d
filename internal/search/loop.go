package search

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadon/outreach-cli/internal/config"
	"github.com/leadon/outreach-cli/internal/fingerprint"
	"github.com/leadon/outreach-cli/internal/model"
	"github.com/leadon/outreach-cli/internal/resilience"
	"github.com/leadon/outreach-cli/pkg/apollo"
)

// Store is the persistence surface the loop needs. Dedup consults stored
// fingerprints so repeated runs never re-discover known contacts.
type Store interface {
	HasFingerprint(ctx context.Context, fp string) (bool, error)
	UpsertContact(ctx context.Context, contact model.Contact) error
	CreateSearchRun(ctx context.Context, run *model.SearchRun) error
	AppendSearchRound(ctx context.Context, runID string, round model.SearchRound) error
	CompleteSearchRun(ctx context.Context, runID string, partial bool) error
}

// Loop runs bounded rounds of plan, query, score, dedup, and criteria
// loosening until the target is met or no round can make progress.
type Loop struct {
	provider apollo.Client
	store    Store
	planner  Planner
	cfg      config.SearchConfig
	retry    resilience.RetryConfig
	nowFunc  func() time.Time
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) LoopOption {
	return func(l *Loop) { l.nowFunc = now }
}

// WithRetry overrides the per-round provider retry policy.
func WithRetry(cfg resilience.RetryConfig) LoopOption {
	return func(l *Loop) { l.retry = cfg }
}

// NewLoop creates a search loop over the given provider and store.
func NewLoop(provider apollo.Client, store Store, cfg config.SearchConfig, opts ...LoopOption) *Loop {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 4
	}
	if cfg.RelevanceThreshold <= 0 {
		cfg.RelevanceThreshold = 50
	}
	if cfg.DupRateStop <= 0 {
		cfg.DupRateStop = 0.9
	}

	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("apollo", "search_people")

	l := &Loop{
		provider: provider,
		store:    store,
		planner:  Planner{Oversample: cfg.Oversample},
		cfg:      cfg,
		retry:    retry,
		nowFunc:  time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run executes the loop for one natural-language query. Candidates are
// scored against the original intent even on loosened rounds, so relaxation
// widens the pool without diluting what counts as a match. Accepted contacts
// are persisted at stage new as they are found.
//
// Partial is true only when a provider fault ended the run early; running
// out of rounds or of criteria to loosen returns a normal short result.
func (l *Loop) Run(ctx context.Context, query string, criteria model.SearchCriteria, target int) (*model.SearchResult, error) {
	if target <= 0 {
		return nil, eris.New("search: target must be positive")
	}

	intent := criteria.Clone()
	current := criteria.Clone()
	now := l.nowFunc()

	run := &model.SearchRun{
		ID:        uuid.NewString(),
		Query:     query,
		Target:    target,
		CreatedAt: now,
	}
	if err := l.store.CreateSearchRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "search: create run")
	}

	seen := make(map[fingerprint.Fingerprint]struct{}, target*2)
	var accepted []model.CandidateContact
	partial := false
	roundsUsed := 0

	for round := 1; round <= l.cfg.MaxRounds; round++ {
		roundsUsed = round
		params := l.planner.Plan(current, target-len(accepted))

		page, err := resilience.DoVal(ctx, l.retry, func(ctx context.Context) (*apollo.SearchPage, error) {
			return l.provider.SearchPeople(ctx, params)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "search: provider query")
			}
			// Quota exhaustion and unrecoverable provider faults end the
			// run with whatever was gathered so far.
			partial = true
			l.recordRound(ctx, run.ID, model.SearchRound{
				Number:           round,
				Criteria:         current.Clone(),
				CumulativeUnique: len(accepted),
				ExecutedAt:       l.nowFunc(),
			})
			if eris.Is(err, apollo.ErrQuotaExceeded) {
				zap.L().Warn("search quota exhausted, stopping run",
					zap.String("run_id", run.ID), zap.Int("round", round))
			} else {
				zap.L().Warn("provider fault ended search run",
					zap.String("run_id", run.ID), zap.Int("round", round), zap.Error(err))
			}
			break
		}

		qualifying, dups, newUnique, upsertErr := l.absorb(ctx, page.People, intent, query, seen, &accepted)
		if upsertErr != nil {
			return nil, upsertErr
		}

		l.recordRound(ctx, run.ID, model.SearchRound{
			Number:           round,
			Criteria:         current.Clone(),
			RawCount:         len(page.People),
			QualifyingCount:  qualifying,
			NewUniqueCount:   newUnique,
			CumulativeUnique: len(accepted),
			ExecutedAt:       l.nowFunc(),
		})

		zap.L().Info("search round complete",
			zap.String("run_id", run.ID),
			zap.Int("round", round),
			zap.Int("raw", len(page.People)),
			zap.Int("qualifying", qualifying),
			zap.Int("new_unique", newUnique),
			zap.Int("cumulative", len(accepted)),
		)

		if len(accepted) >= target {
			break
		}
		if newUnique == 0 {
			// The round contributed nothing new: either the pool is
			// exhausted or we are re-reading the same results.
			break
		}
		if qualifying > 0 && float64(dups)/float64(qualifying) > l.cfg.DupRateStop {
			break
		}
		if round == l.cfg.MaxRounds {
			break
		}

		next, change, ok := Refine(current)
		if !ok {
			break
		}
		zap.L().Info("loosening search criteria",
			zap.String("run_id", run.ID), zap.String("change", change))
		current = next
	}

	if err := l.store.CompleteSearchRun(ctx, run.ID, partial); err != nil {
		zap.L().Warn("failed to finalize search run",
			zap.String("run_id", run.ID), zap.Error(err))
	}

	return &model.SearchResult{
		Contacts:   accepted,
		RoundsUsed: roundsUsed,
		Partial:    partial,
	}, nil
}

// absorb scores, dedups, and persists one round's raw candidates. It returns
// the qualifying count, the number of qualifying duplicates, and the number
// of new unique contacts accepted.
func (l *Loop) absorb(ctx context.Context, people []apollo.Person, intent model.SearchCriteria,
	query string, seen map[fingerprint.Fingerprint]struct{}, accepted *[]model.CandidateContact) (qualifying, dups, newUnique int, err error) {

	for _, person := range people {
		score := Score(person, intent)
		if score < l.cfg.RelevanceThreshold {
			continue
		}
		qualifying++

		fp := fingerprint.Resolve(fingerprint.Attributes{
			Email:      person.Email,
			ProfileURL: person.LinkedInURL,
			Name:       person.Name,
			Company:    companyName(person),
			Title:      person.Title,
		})
		if _, dup := seen[fp]; dup {
			dups++
			continue
		}
		known, err := l.store.HasFingerprint(ctx, string(fp))
		if err != nil {
			return 0, 0, 0, eris.Wrap(err, "search: fingerprint lookup")
		}
		if known {
			seen[fp] = struct{}{}
			dups++
			continue
		}

		seen[fp] = struct{}{}
		cand := candidateFromPerson(person, fp, score)
		if err := l.store.UpsertContact(ctx, cand.ToContact(query, l.nowFunc())); err != nil {
			return 0, 0, 0, eris.Wrap(err, "search: persist contact")
		}
		*accepted = append(*accepted, cand)
		newUnique++
	}
	return qualifying, dups, newUnique, nil
}

func (l *Loop) recordRound(ctx context.Context, runID string, round model.SearchRound) {
	if err := l.store.AppendSearchRound(ctx, runID, round); err != nil {
		zap.L().Warn("failed to record search round",
			zap.String("run_id", runID), zap.Int("round", round.Number), zap.Error(err))
	}
}

func candidateFromPerson(person apollo.Person, fp fingerprint.Fingerprint, score int) model.CandidateContact {
	email := person.Email
	if fingerprint.IsPlaceholderEmail(email) {
		email = ""
	}
	industry := ""
	if person.Organization != nil {
		industry = person.Organization.Industry
	}
	return model.CandidateContact{
		Fingerprint:    string(fp),
		Name:           person.Name,
		Email:          email,
		Title:          person.Title,
		Company:        companyName(person),
		Location:       joinLocation(person.City, person.State, person.Country),
		ProfileURL:     person.LinkedInURL,
		Phone:          person.PhoneNumber,
		Seniority:      person.Seniority,
		Industry:       industry,
		RelevanceScore: score,
	}
}

func companyName(person apollo.Person) string {
	if person.Organization == nil {
		return ""
	}
	return person.Organization.Name
}

func joinLocation(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
