package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/leadon/outreach-cli/internal/db"
	"github.com/leadon/outreach-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations: the scheduler's ledger
// writes and the search loop's dedup probe.
var preparedStatements = map[string]string{
	"has_fingerprint":     `SELECT 1 FROM contacts WHERE fingerprint = $1`,
	"append_attempt":      `INSERT INTO attempts (id, fingerprint, channel, account_id, action, from_stage, to_stage, status, error, attempted_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"get_account":         `SELECT id, channel, display_name, sent_in_day, sent_in_hour, window_day_start, window_hour_start, blocked_until, updated_at FROM accounts WHERE id = $1`,
	"count_sent_attempts": `SELECT COUNT(*) FROM attempts WHERE account_id = $1 AND status = $2 AND attempted_at >= $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	fingerprint     TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	email           TEXT,
	title           TEXT,
	company         TEXT,
	location        TEXT,
	profile_url     TEXT,
	phone           TEXT,
	seniority       TEXT,
	industry        TEXT,
	relevance_score INTEGER NOT NULL DEFAULT 0,
	source          TEXT,
	search_query    TEXT,
	tags            JSONB,
	stage           TEXT NOT NULL DEFAULT 'new',
	last_action     TEXT,
	last_action_at  TIMESTAMPTZ,
	next_action     TEXT,
	next_action_at  TIMESTAMPTZ,
	notes           TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attempts (
	id           TEXT PRIMARY KEY,
	fingerprint  TEXT NOT NULL,
	channel      TEXT NOT NULL,
	account_id   TEXT,
	action       TEXT NOT NULL,
	from_stage   TEXT NOT NULL,
	to_stage     TEXT NOT NULL,
	status       TEXT NOT NULL,
	error        TEXT,
	attempted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS accounts (
	id                TEXT PRIMARY KEY,
	channel           TEXT NOT NULL,
	display_name      TEXT,
	sent_in_day       INTEGER NOT NULL DEFAULT 0,
	sent_in_hour      INTEGER NOT NULL DEFAULT 0,
	window_day_start  TIMESTAMPTZ,
	window_hour_start TIMESTAMPTZ,
	blocked_until     TIMESTAMPTZ,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_runs (
	id         TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	target     INTEGER NOT NULL,
	partial    BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_rounds (
	run_id            TEXT NOT NULL REFERENCES search_runs(id),
	number            INTEGER NOT NULL,
	criteria          JSONB NOT NULL,
	raw_count         INTEGER NOT NULL,
	qualifying_count  INTEGER NOT NULL,
	new_unique_count  INTEGER NOT NULL,
	cumulative_unique INTEGER NOT NULL,
	executed_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, number)
);

CREATE INDEX IF NOT EXISTS idx_contacts_stage ON contacts(stage);
CREATE INDEX IF NOT EXISTS idx_contacts_next_action_at ON contacts(next_action_at);
CREATE INDEX IF NOT EXISTS idx_attempts_fingerprint ON attempts(fingerprint);
CREATE INDEX IF NOT EXISTS idx_attempts_account_status ON attempts(account_id, status, attempted_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// contactColumnList orders columns for both single and bulk upserts.
var contactColumnList = []string{
	"fingerprint", "name", "email", "title", "company", "location", "profile_url", "phone",
	"seniority", "industry", "relevance_score", "source", "search_query", "tags", "stage",
	"last_action", "last_action_at", "next_action", "next_action_at", "notes",
	"created_at", "updated_at",
}

// contactUpdateList is contactColumnList minus the conflict key and created_at,
// which is fixed at first insert.
var contactUpdateList = []string{
	"name", "email", "title", "company", "location", "profile_url", "phone",
	"seniority", "industry", "relevance_score", "source", "search_query", "tags", "stage",
	"last_action", "last_action_at", "next_action", "next_action_at", "notes", "updated_at",
}

func contactRow(c model.Contact) ([]any, error) {
	var tagsJSON any
	if len(c.Tags) > 0 {
		b, err := json.Marshal(c.Tags)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal tags")
		}
		tagsJSON = b
	}
	return []any{
		c.Fingerprint, c.Name, c.Email, c.Title, c.Company, c.Location, c.ProfileURL, c.Phone,
		c.Seniority, c.Industry, c.RelevanceScore, c.Source, c.SearchQuery, tagsJSON, string(c.Stage),
		c.LastAction, c.LastActionAt, c.NextAction, c.NextActionAt, c.Notes,
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	}, nil
}

func (s *PostgresStore) UpsertContact(ctx context.Context, c model.Contact) error {
	row, err := contactRow(c)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO contacts (fingerprint, name, email, title, company, location, profile_url, phone,
			seniority, industry, relevance_score, source, search_query, tags, stage,
			last_action, last_action_at, next_action, next_action_at, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (fingerprint) DO UPDATE SET
			name = $2, email = $3, title = $4, company = $5, location = $6,
			profile_url = $7, phone = $8, seniority = $9, industry = $10,
			relevance_score = $11, source = $12, search_query = $13, tags = $14,
			stage = $15, last_action = $16, last_action_at = $17,
			next_action = $18, next_action_at = $19, notes = $20, updated_at = $22`,
		row...,
	)
	return eris.Wrapf(err, "postgres: upsert contact %s", c.Fingerprint)
}

func (s *PostgresStore) BulkUpsertContacts(ctx context.Context, contacts []model.Contact) (int64, error) {
	rows := make([][]any, 0, len(contacts))
	for _, c := range contacts {
		row, err := contactRow(c)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "contacts",
		Columns:      contactColumnList,
		ConflictKeys: []string{"fingerprint"},
		UpdateCols:   contactUpdateList,
	}, rows)
}

const selectContact = `SELECT fingerprint, name, email, title, company, location, profile_url, phone,
	seniority, industry, relevance_score, source, search_query, tags, stage,
	last_action, last_action_at, next_action, next_action_at, notes, created_at, updated_at
	FROM contacts`

func (s *PostgresStore) GetContactByFingerprint(ctx context.Context, fp string) (*model.Contact, error) {
	c, err := scanPgContact(s.pool.QueryRow(ctx, selectContact+` WHERE fingerprint = $1`, fp))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "contact %s", fp)
		}
		return nil, eris.Wrapf(err, "postgres: get contact %s", fp)
	}
	return c, nil
}

func (s *PostgresStore) HasFingerprint(ctx context.Context, fp string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM contacts WHERE fingerprint = $1`, fp).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: has fingerprint")
	}
	return true, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, filter ContactFilter) ([]model.Contact, error) {
	query := selectContact + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Stage != "" {
		query += fmt.Sprintf(` AND stage = $%d`, argIdx)
		args = append(args, string(filter.Stage))
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, filter.Source)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()

	return collectContacts(rows, "postgres: list contacts iterate")
}

func (s *PostgresStore) ListDueContacts(ctx context.Context, stages []model.Stage, now time.Time, limit int) ([]model.Contact, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	stageNames := make([]string, len(stages))
	for i, st := range stages {
		stageNames[i] = string(st)
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, selectContact+`
		WHERE stage = ANY($1)
		  AND (next_action_at IS NULL OR next_action_at <= $2)
		ORDER BY next_action_at ASC NULLS FIRST
		LIMIT $3`,
		stageNames, now.UTC(), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list due contacts")
	}
	defer rows.Close()

	return collectContacts(rows, "postgres: list due contacts iterate")
}

func (s *PostgresStore) AppendAttempt(ctx context.Context, a model.OutreachAttempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attempts (id, fingerprint, channel, account_id, action, from_stage, to_stage, status, error, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.Fingerprint, string(a.Channel), a.AccountID, string(a.Action),
		string(a.FromStage), string(a.ToStage), string(a.Status), a.Error, a.AttemptedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: append attempt for %s", a.Fingerprint)
}

func (s *PostgresStore) ListAttempts(ctx context.Context, fingerprint string, limit int) ([]model.OutreachAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, fingerprint, channel, account_id, action, from_stage, to_stage, status, error, attempted_at
		FROM attempts WHERE fingerprint = $1
		ORDER BY attempted_at DESC LIMIT $2`,
		fingerprint, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list attempts")
	}
	defer rows.Close()

	var attempts []model.OutreachAttempt
	for rows.Next() {
		var a model.OutreachAttempt
		var errText *string
		if err := rows.Scan(&a.ID, &a.Fingerprint, &a.Channel, &a.AccountID, &a.Action,
			&a.FromStage, &a.ToStage, &a.Status, &errText, &a.AttemptedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attempt")
		}
		if errText != nil {
			a.Error = *errText
		}
		attempts = append(attempts, a)
	}
	return attempts, eris.Wrap(rows.Err(), "postgres: list attempts iterate")
}

func (s *PostgresStore) CountSentAttempts(ctx context.Context, accountID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM attempts
		WHERE account_id = $1 AND status = $2 AND attempted_at >= $3`,
		accountID, string(model.AttemptSent), since.UTC()).Scan(&n)
	return n, eris.Wrap(err, "postgres: count sent attempts")
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.ChannelAccount, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `
		SELECT id, channel, display_name, sent_in_day, sent_in_hour,
		       window_day_start, window_hour_start, blocked_until, updated_at
		FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "account %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get account %s", id)
	}
	return a, nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, acct *model.ChannelAccount) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, channel, display_name, sent_in_day, sent_in_hour,
			window_day_start, window_hour_start, blocked_until, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			channel = $2, display_name = $3, sent_in_day = $4, sent_in_hour = $5,
			window_day_start = $6, window_hour_start = $7, blocked_until = $8, updated_at = $9`,
		acct.ID, string(acct.Channel), acct.DisplayName, acct.SentInDay, acct.SentInHour,
		pgZeroableTime(acct.WindowDayStart), pgZeroableTime(acct.WindowHourStart),
		acct.BlockedUntil, acct.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save account %s", acct.ID)
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.ChannelAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, channel, display_name, sent_in_day, sent_in_hour,
		       window_day_start, window_hour_start, blocked_until, updated_at
		FROM accounts ORDER BY channel, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list accounts")
	}
	defer rows.Close()

	var accounts []model.ChannelAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan account")
		}
		accounts = append(accounts, *a)
	}
	return accounts, eris.Wrap(rows.Err(), "postgres: list accounts iterate")
}

func (s *PostgresStore) CreateSearchRun(ctx context.Context, run *model.SearchRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_runs (id, query, target, partial, created_at) VALUES ($1, $2, $3, false, $4)`,
		run.ID, run.Query, run.Target, run.CreatedAt.UTC())
	return eris.Wrapf(err, "postgres: create search run %s", run.ID)
}

func (s *PostgresStore) AppendSearchRound(ctx context.Context, runID string, round model.SearchRound) error {
	criteriaJSON, err := json.Marshal(round.Criteria)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal round criteria")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO search_rounds (run_id, number, criteria, raw_count, qualifying_count, new_unique_count, cumulative_unique, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		runID, round.Number, criteriaJSON, round.RawCount, round.QualifyingCount,
		round.NewUniqueCount, round.CumulativeUnique, round.ExecutedAt.UTC())
	return eris.Wrapf(err, "postgres: append round %d to run %s", round.Number, runID)
}

func (s *PostgresStore) CompleteSearchRun(ctx context.Context, runID string, partial bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE search_runs SET partial = $1 WHERE id = $2`, partial, runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete search run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("search_run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetSearchRun(ctx context.Context, runID string) (*model.SearchRun, error) {
	var r model.SearchRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, query, target, partial, created_at FROM search_runs WHERE id = $1`, runID).
		Scan(&r.ID, &r.Query, &r.Target, &r.Partial, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "search run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get search run %s", runID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT number, criteria, raw_count, qualifying_count, new_unique_count, cumulative_unique, executed_at
		FROM search_rounds WHERE run_id = $1 ORDER BY number`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get search rounds")
	}
	defer rows.Close()

	for rows.Next() {
		var round model.SearchRound
		var criteriaJSON []byte
		if err := rows.Scan(&round.Number, &criteriaJSON, &round.RawCount, &round.QualifyingCount,
			&round.NewUniqueCount, &round.CumulativeUnique, &round.ExecutedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan search round")
		}
		if err := json.Unmarshal(criteriaJSON, &round.Criteria); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal round criteria")
		}
		r.Rounds = append(r.Rounds, round)
	}
	return &r, eris.Wrap(rows.Err(), "postgres: get search rounds iterate")
}

func (s *PostgresStore) ListSearchRuns(ctx context.Context, limit int) ([]model.SearchRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, query, target, partial, created_at FROM search_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list search runs")
	}
	defer rows.Close()

	var runs []model.SearchRun
	for rows.Next() {
		var r model.SearchRun
		if err := rows.Scan(&r.ID, &r.Query, &r.Target, &r.Partial, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan search run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list search runs iterate")
}

// scanners

func scanPgContact(row pgx.Row) (*model.Contact, error) {
	var c model.Contact
	var email, title, company, location, profileURL, phone, seniority, industry *string
	var source, searchQuery, lastAction, nextAction, notes *string
	var tagsJSON []byte

	err := row.Scan(&c.Fingerprint, &c.Name, &email, &title, &company, &location,
		&profileURL, &phone, &seniority, &industry, &c.RelevanceScore,
		&source, &searchQuery, &tagsJSON, &c.Stage,
		&lastAction, &c.LastActionAt, &nextAction, &c.NextActionAt, &notes,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.Email = deref(email)
	c.Title = deref(title)
	c.Company = deref(company)
	c.Location = deref(location)
	c.ProfileURL = deref(profileURL)
	c.Phone = deref(phone)
	c.Seniority = deref(seniority)
	c.Industry = deref(industry)
	c.Source = deref(source)
	c.SearchQuery = deref(searchQuery)
	c.LastAction = deref(lastAction)
	c.NextAction = deref(nextAction)
	c.Notes = deref(notes)
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &c.Tags); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal contact tags")
		}
	}
	return &c, nil
}

func collectContacts(rows pgx.Rows, iterMsg string) ([]model.Contact, error) {
	var contacts []model.Contact
	for rows.Next() {
		c, err := scanPgContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		contacts = append(contacts, *c)
	}
	return contacts, eris.Wrap(rows.Err(), iterMsg)
}

func scanAccount(row pgx.Row) (*model.ChannelAccount, error) {
	var a model.ChannelAccount
	var displayName *string
	var dayStart, hourStart *time.Time

	err := row.Scan(&a.ID, &a.Channel, &displayName, &a.SentInDay, &a.SentInHour,
		&dayStart, &hourStart, &a.BlockedUntil, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.DisplayName = deref(displayName)
	if dayStart != nil {
		a.WindowDayStart = *dayStart
	}
	if hourStart != nil {
		a.WindowHourStart = *hourStart
	}
	return &a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func pgZeroableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
