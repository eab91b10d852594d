package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/leadon/outreach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	tags            TEXT,
	stage           TEXT NOT NULL DEFAULT 'new',
	last_action     TEXT,
	last_action_at  DATETIME,
	next_action     TEXT,
	next_action_at  DATETIME,
	notes           TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
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
	attempted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id                TEXT PRIMARY KEY,
	channel           TEXT NOT NULL,
	display_name      TEXT,
	sent_in_day       INTEGER NOT NULL DEFAULT 0,
	sent_in_hour      INTEGER NOT NULL DEFAULT 0,
	window_day_start  DATETIME,
	window_hour_start DATETIME,
	blocked_until     DATETIME,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS search_runs (
	id         TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	target     INTEGER NOT NULL,
	partial    INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS search_rounds (
	run_id            TEXT NOT NULL REFERENCES search_runs(id),
	number            INTEGER NOT NULL,
	criteria          TEXT NOT NULL,
	raw_count         INTEGER NOT NULL,
	qualifying_count  INTEGER NOT NULL,
	new_unique_count  INTEGER NOT NULL,
	cumulative_unique INTEGER NOT NULL,
	executed_at       DATETIME NOT NULL,
	PRIMARY KEY (run_id, number)
);

CREATE INDEX IF NOT EXISTS idx_contacts_stage ON contacts(stage);
CREATE INDEX IF NOT EXISTS idx_contacts_next_action_at ON contacts(next_action_at);
CREATE INDEX IF NOT EXISTS idx_attempts_fingerprint ON attempts(fingerprint);
CREATE INDEX IF NOT EXISTS idx_attempts_account_status ON attempts(account_id, status, attempted_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const contactColumns = `fingerprint, name, email, title, company, location, profile_url, phone,
	seniority, industry, relevance_score, source, search_query, tags, stage,
	last_action, last_action_at, next_action, next_action_at, notes, created_at, updated_at`

func (s *SQLiteStore) UpsertContact(ctx context.Context, c model.Contact) error {
	tagsJSON, err := marshalTags(c.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			name = excluded.name, email = excluded.email, title = excluded.title,
			company = excluded.company, location = excluded.location,
			profile_url = excluded.profile_url, phone = excluded.phone,
			seniority = excluded.seniority, industry = excluded.industry,
			relevance_score = excluded.relevance_score, source = excluded.source,
			search_query = excluded.search_query, tags = excluded.tags,
			stage = excluded.stage, last_action = excluded.last_action,
			last_action_at = excluded.last_action_at, next_action = excluded.next_action,
			next_action_at = excluded.next_action_at, notes = excluded.notes,
			updated_at = excluded.updated_at`,
		c.Fingerprint, c.Name, c.Email, c.Title, c.Company, c.Location, c.ProfileURL, c.Phone,
		c.Seniority, c.Industry, c.RelevanceScore, c.Source, c.SearchQuery, tagsJSON, string(c.Stage),
		c.LastAction, nullTime(c.LastActionAt), c.NextAction, nullTime(c.NextActionAt), c.Notes,
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert contact %s", c.Fingerprint)
}

func (s *SQLiteStore) BulkUpsertContacts(ctx context.Context, contacts []model.Contact) (int64, error) {
	if len(contacts) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin bulk upsert")
	}
	defer tx.Rollback()

	for _, c := range contacts {
		tagsJSON, err := marshalTags(c.Tags)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO contacts (`+contactColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (fingerprint) DO UPDATE SET
				name = excluded.name, email = excluded.email, title = excluded.title,
				company = excluded.company, location = excluded.location,
				profile_url = excluded.profile_url, phone = excluded.phone,
				seniority = excluded.seniority, industry = excluded.industry,
				relevance_score = excluded.relevance_score, source = excluded.source,
				search_query = excluded.search_query, tags = excluded.tags,
				stage = excluded.stage, last_action = excluded.last_action,
				last_action_at = excluded.last_action_at, next_action = excluded.next_action,
				next_action_at = excluded.next_action_at, notes = excluded.notes,
				updated_at = excluded.updated_at`,
			c.Fingerprint, c.Name, c.Email, c.Title, c.Company, c.Location, c.ProfileURL, c.Phone,
			c.Seniority, c.Industry, c.RelevanceScore, c.Source, c.SearchQuery, tagsJSON, string(c.Stage),
			c.LastAction, nullTime(c.LastActionAt), c.NextAction, nullTime(c.NextActionAt), c.Notes,
			c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: bulk upsert contact %s", c.Fingerprint)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit bulk upsert")
	}
	return int64(len(contacts)), nil
}

func (s *SQLiteStore) GetContactByFingerprint(ctx context.Context, fp string) (*model.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE fingerprint = ?`, fp)
	return scanContact(row)
}

func (s *SQLiteStore) HasFingerprint(ctx context.Context, fp string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM contacts WHERE fingerprint = ?`, fp).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: has fingerprint")
	}
	return true, nil
}

func (s *SQLiteStore) ListContacts(ctx context.Context, filter ContactFilter) ([]model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contacts")
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, eris.Wrap(rows.Err(), "sqlite: list contacts iterate")
}

func (s *SQLiteStore) ListDueContacts(ctx context.Context, stages []model.Stage, now time.Time, limit int) ([]model.Contact, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(stages)), ", ")
	args := make([]any, 0, len(stages)+2)
	for _, st := range stages {
		args = append(args, string(st))
	}
	args = append(args, now.UTC())

	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contactColumns+` FROM contacts
		WHERE stage IN (`+placeholders+`)
		  AND (next_action_at IS NULL OR next_action_at <= ?)
		ORDER BY next_action_at IS NOT NULL, next_action_at ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list due contacts")
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, eris.Wrap(rows.Err(), "sqlite: list due contacts iterate")
}

func (s *SQLiteStore) AppendAttempt(ctx context.Context, a model.OutreachAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (id, fingerprint, channel, account_id, action, from_stage, to_stage, status, error, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Fingerprint, string(a.Channel), a.AccountID, string(a.Action),
		string(a.FromStage), string(a.ToStage), string(a.Status), a.Error, a.AttemptedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: append attempt for %s", a.Fingerprint)
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, fingerprint string, limit int) ([]model.OutreachAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fingerprint, channel, account_id, action, from_stage, to_stage, status, error, attempted_at
		FROM attempts WHERE fingerprint = ?
		ORDER BY attempted_at DESC LIMIT ?`,
		fingerprint, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list attempts")
	}
	defer rows.Close()

	var attempts []model.OutreachAttempt
	for rows.Next() {
		var a model.OutreachAttempt
		var errText sql.NullString
		if err := rows.Scan(&a.ID, &a.Fingerprint, &a.Channel, &a.AccountID, &a.Action,
			&a.FromStage, &a.ToStage, &a.Status, &errText, &a.AttemptedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attempt")
		}
		a.Error = errText.String
		attempts = append(attempts, a)
	}
	return attempts, eris.Wrap(rows.Err(), "sqlite: list attempts iterate")
}

func (s *SQLiteStore) CountSentAttempts(ctx context.Context, accountID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attempts
		WHERE account_id = ? AND status = ? AND attempted_at >= ?`,
		accountID, string(model.AttemptSent), since.UTC()).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count sent attempts")
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*model.ChannelAccount, error) {
	var a model.ChannelAccount
	var displayName sql.NullString
	var dayStart, hourStart, blocked sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, channel, display_name, sent_in_day, sent_in_hour,
		       window_day_start, window_hour_start, blocked_until, updated_at
		FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Channel, &displayName, &a.SentInDay, &a.SentInHour,
			&dayStart, &hourStart, &blocked, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "account %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get account %s", id)
	}

	a.DisplayName = displayName.String
	a.WindowDayStart = dayStart.Time
	a.WindowHourStart = hourStart.Time
	if blocked.Valid {
		t := blocked.Time
		a.BlockedUntil = &t
	}
	return &a, nil
}

func (s *SQLiteStore) SaveAccount(ctx context.Context, acct *model.ChannelAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, channel, display_name, sent_in_day, sent_in_hour,
			window_day_start, window_hour_start, blocked_until, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			channel = excluded.channel, display_name = excluded.display_name,
			sent_in_day = excluded.sent_in_day, sent_in_hour = excluded.sent_in_hour,
			window_day_start = excluded.window_day_start,
			window_hour_start = excluded.window_hour_start,
			blocked_until = excluded.blocked_until, updated_at = excluded.updated_at`,
		acct.ID, string(acct.Channel), acct.DisplayName, acct.SentInDay, acct.SentInHour,
		zeroableTime(acct.WindowDayStart), zeroableTime(acct.WindowHourStart),
		nullTime(acct.BlockedUntil), acct.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save account %s", acct.ID)
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]model.ChannelAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, display_name, sent_in_day, sent_in_hour,
		       window_day_start, window_hour_start, blocked_until, updated_at
		FROM accounts ORDER BY channel, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list accounts")
	}
	defer rows.Close()

	var accounts []model.ChannelAccount
	for rows.Next() {
		var a model.ChannelAccount
		var displayName sql.NullString
		var dayStart, hourStart, blocked sql.NullTime
		if err := rows.Scan(&a.ID, &a.Channel, &displayName, &a.SentInDay, &a.SentInHour,
			&dayStart, &hourStart, &blocked, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan account")
		}
		a.DisplayName = displayName.String
		a.WindowDayStart = dayStart.Time
		a.WindowHourStart = hourStart.Time
		if blocked.Valid {
			t := blocked.Time
			a.BlockedUntil = &t
		}
		accounts = append(accounts, a)
	}
	return accounts, eris.Wrap(rows.Err(), "sqlite: list accounts iterate")
}

func (s *SQLiteStore) CreateSearchRun(ctx context.Context, run *model.SearchRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_runs (id, query, target, partial, created_at) VALUES (?, ?, ?, 0, ?)`,
		run.ID, run.Query, run.Target, run.CreatedAt.UTC())
	return eris.Wrapf(err, "sqlite: create search run %s", run.ID)
}

func (s *SQLiteStore) AppendSearchRound(ctx context.Context, runID string, round model.SearchRound) error {
	criteriaJSON, err := json.Marshal(round.Criteria)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal round criteria")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO search_rounds (run_id, number, criteria, raw_count, qualifying_count, new_unique_count, cumulative_unique, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, round.Number, string(criteriaJSON), round.RawCount, round.QualifyingCount,
		round.NewUniqueCount, round.CumulativeUnique, round.ExecutedAt.UTC())
	return eris.Wrapf(err, "sqlite: append round %d to run %s", round.Number, runID)
}

func (s *SQLiteStore) CompleteSearchRun(ctx context.Context, runID string, partial bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE search_runs SET partial = ? WHERE id = ?`, boolToInt(partial), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete search run %s", runID)
	}
	return checkRowsAffected(res, "search_run", runID)
}

func (s *SQLiteStore) GetSearchRun(ctx context.Context, runID string) (*model.SearchRun, error) {
	var r model.SearchRun
	var partial int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, query, target, partial, created_at FROM search_runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.Query, &r.Target, &partial, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "search run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get search run %s", runID)
	}
	r.Partial = partial != 0

	rows, err := s.db.QueryContext(ctx, `
		SELECT number, criteria, raw_count, qualifying_count, new_unique_count, cumulative_unique, executed_at
		FROM search_rounds WHERE run_id = ? ORDER BY number`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get search rounds")
	}
	defer rows.Close()

	for rows.Next() {
		var round model.SearchRound
		var criteriaJSON string
		if err := rows.Scan(&round.Number, &criteriaJSON, &round.RawCount, &round.QualifyingCount,
			&round.NewUniqueCount, &round.CumulativeUnique, &round.ExecutedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search round")
		}
		if err := json.Unmarshal([]byte(criteriaJSON), &round.Criteria); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal round criteria")
		}
		r.Rounds = append(r.Rounds, round)
	}
	return &r, eris.Wrap(rows.Err(), "sqlite: get search rounds iterate")
}

func (s *SQLiteStore) ListSearchRuns(ctx context.Context, limit int) ([]model.SearchRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, target, partial, created_at FROM search_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list search runs")
	}
	defer rows.Close()

	var runs []model.SearchRun
	for rows.Next() {
		var r model.SearchRun
		var partial int
		if err := rows.Scan(&r.ID, &r.Query, &r.Target, &partial, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search run")
		}
		r.Partial = partial != 0
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list search runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanContact(row scannable) (*model.Contact, error) {
	var c model.Contact
	var email, title, company, location, profileURL, phone, seniority, industry sql.NullString
	var source, searchQuery, tagsJSON, lastAction, nextAction, notes sql.NullString
	var lastActionAt, nextActionAt sql.NullTime

	err := row.Scan(&c.Fingerprint, &c.Name, &email, &title, &company, &location,
		&profileURL, &phone, &seniority, &industry, &c.RelevanceScore,
		&source, &searchQuery, &tagsJSON, &c.Stage,
		&lastAction, &lastActionAt, &nextAction, &nextActionAt, &notes,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "contact")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan contact")
	}

	c.Email = email.String
	c.Title = title.String
	c.Company = company.String
	c.Location = location.String
	c.ProfileURL = profileURL.String
	c.Phone = phone.String
	c.Seniority = seniority.String
	c.Industry = industry.String
	c.Source = source.String
	c.SearchQuery = searchQuery.String
	c.LastAction = lastAction.String
	c.NextAction = nextAction.String
	c.Notes = notes.String
	if lastActionAt.Valid {
		t := lastActionAt.Time
		c.LastActionAt = &t
	}
	if nextActionAt.Valid {
		t := nextActionAt.Time
		c.NextActionAt = &t
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &c.Tags); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal contact tags")
		}
	}
	return &c, nil
}

func marshalTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, eris.Wrap(err, "marshal tags")
	}
	return string(b), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func zeroableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
