/*
Package sqlite provides a SQLite-backed implementation of scoring.Store.

PURPOSE:
  Durable document store for activities, goals, leaderboard snapshots,
  aggregation runs and daily summaries. In production the same patterns
  apply to PostgreSQL with minor dialect differences.

APPEND-ONLY ENFORCEMENT:
  The activities table is never updated or deleted from. A duplicate ID is
  rejected with scoring.ErrDuplicateActivity.

KEY TABLES:
  activities:          Immutable activity log with frozen scoring fields
  users:               Known users and their display fields
  goals:               Goal header (owner, name, status)
  goal_progress:       One row per (goal, key); exact decimal text
  goal_targets:        Optional completion targets, same encoding
  goal_markers:        (activity, goal) pairs already applied
  leaderboard_entries: One JSON document per user, overwritten per cycle
  aggregation_runs:    Aggregator cycle log
  daily_summaries:     One JSON document per (user, date)

GOAL INCREMENTS:
  ApplyGoalIncrements runs in one SQL transaction. Goals that are no longer
  active are skipped without a marker. Each remaining goal claims its marker
  with INSERT .. ON CONFLICT DO NOTHING; zero rows affected means a previous
  delivery already applied it. Each progress key is then read, added to
  with decimal arithmetic and written back in the same transaction, so
  values keep full precision and never overflow a SQL integer.

TIMESTAMPS:
  Stored as fixed-width UTC text (timeLayout) so lexical order is
  chronological and range predicates can use the indexes.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite allows one writer at a time
  anyway; with PostgreSQL, row-level locking handles this instead.

USAGE:
  store, err := sqlite.New("./data/performance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - scoring/store.go: Interface definitions
  - scoring/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/performance-engine/scoring"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"


// Store implements scoring.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ scoring.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Activities (append-only)
	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		occurred_at TEXT,
		scheduled_for TEXT,
		points INTEGER NOT NULL,
		api_value TEXT,
		minutes INTEGER NOT NULL DEFAULT 0,
		summary_key TEXT NOT NULL,
		measure TEXT NOT NULL,
		category TEXT NOT NULL,
		related_to TEXT,
		rule_version TEXT NOT NULL,
		created_at TEXT NOT NULL,
		CHECK ((occurred_at IS NULL) <> (scheduled_for IS NULL))
	);

	-- Aggregator scan (all users since the window start)
	CREATE INDEX IF NOT EXISTS idx_activities_occurred
		ON activities(occurred_at) WHERE occurred_at IS NOT NULL;
	-- Clock-out and period bonus reads
	CREATE INDEX IF NOT EXISTS idx_activities_user_occurred
		ON activities(user_id, occurred_at) WHERE occurred_at IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_activities_user_scheduled
		ON activities(user_id, scheduled_for) WHERE scheduled_for IS NOT NULL;

	-- Users
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		photo_url TEXT,
		role TEXT,
		updated_at TEXT NOT NULL
	);

	-- Goals
	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_goals_user_status
		ON goals(user_id, status);

	CREATE TABLE IF NOT EXISTS goal_progress (
		goal_id TEXT NOT NULL REFERENCES goals(id),
		key TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (goal_id, key)
	);

	CREATE TABLE IF NOT EXISTS goal_targets (
		goal_id TEXT NOT NULL REFERENCES goals(id),
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (goal_id, key)
	);

	-- Idempotency markers for goal fan-out
	CREATE TABLE IF NOT EXISTS goal_markers (
		activity_id TEXT NOT NULL,
		goal_id TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		PRIMARY KEY (activity_id, goal_id)
	);

	-- Leaderboard snapshots
	CREATE TABLE IF NOT EXISTS leaderboard_entries (
		user_id TEXT PRIMARY KEY,
		entry_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Aggregation Runs (one row per aggregator cycle)
	CREATE TABLE IF NOT EXISTS aggregation_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'running',
		users INTEGER DEFAULT 0,
		activities INTEGER DEFAULT 0,
		written INTEGER DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_aggregation_runs_started
		ON aggregation_runs(started_at DESC);

	-- Daily summaries (create-once, explicit resubmission bumps revision)
	CREATE TABLE IF NOT EXISTS daily_summaries (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		revision INTEGER NOT NULL,
		summary_json TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		PRIMARY KEY (user_id, date)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ACTIVITIES
// =============================================================================

const activityColumns = `id, user_id, type, occurred_at, scheduled_for, points, api_value, minutes,
	summary_key, measure, category, related_to, rule_version, created_at`

// AppendActivity adds an activity to the log.
func (s *Store) AppendActivity(ctx context.Context, a scoring.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT INTO activities (` + activityColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var apiValue sql.NullString
	if a.APIValue != nil {
		apiValue = sql.NullString{String: a.APIValue.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.UserID,
		a.Type,
		nullTime(a.OccurredAt),
		nullTime(a.ScheduledFor),
		a.Points,
		apiValue,
		a.Minutes,
		a.SummaryKey,
		a.Measure,
		a.Category,
		nullString(a.RelatedTo),
		a.RuleVersion,
		formatTime(a.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return scoring.ErrDuplicateActivity
		}
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// GetActivity retrieves a single activity.
func (s *Store) GetActivity(ctx context.Context, id scoring.ActivityID) (scoring.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acts, err := s.queryActivities(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	if err != nil {
		return scoring.Activity{}, err
	}
	if len(acts) == 0 {
		return scoring.Activity{}, scoring.ErrNotFound
	}
	return acts[0], nil
}

// LoggedSince returns every user's logged activities from the given instant.
func (s *Store) LoggedSince(ctx context.Context, from time.Time) ([]scoring.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + activityColumns + ` FROM activities
		WHERE occurred_at IS NOT NULL AND occurred_at >= ?
		ORDER BY occurred_at ASC, id ASC`
	return s.queryActivities(ctx, query, formatTime(from))
}

// LoggedBetween returns one user's logged activities in [from, to).
func (s *Store) LoggedBetween(ctx context.Context, userID scoring.UserID, from, to time.Time) ([]scoring.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + activityColumns + ` FROM activities
		WHERE user_id = ? AND occurred_at IS NOT NULL
		  AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at ASC, id ASC`
	return s.queryActivities(ctx, query, userID, formatTime(from), formatTime(to))
}

// ScheduledBetween returns one user's planned activities in [from, to).
func (s *Store) ScheduledBetween(ctx context.Context, userID scoring.UserID, from, to time.Time) ([]scoring.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + activityColumns + ` FROM activities
		WHERE user_id = ? AND scheduled_for IS NOT NULL
		  AND scheduled_for >= ? AND scheduled_for < ?
		ORDER BY scheduled_for ASC, id ASC`
	return s.queryActivities(ctx, query, userID, formatTime(from), formatTime(to))
}

func (s *Store) queryActivities(ctx context.Context, query string, args ...any) ([]scoring.Activity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var acts []scoring.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	return acts, rows.Err()
}

func scanActivity(rows *sql.Rows) (scoring.Activity, error) {
	var a scoring.Activity
	var occurredAt, scheduledFor, apiValue, relatedTo sql.NullString
	var createdAt string

	err := rows.Scan(
		&a.ID, &a.UserID, &a.Type, &occurredAt, &scheduledFor, &a.Points, &apiValue, &a.Minutes,
		&a.SummaryKey, &a.Measure, &a.Category, &relatedTo, &a.RuleVersion, &createdAt,
	)
	if err != nil {
		return a, err
	}

	a.OccurredAt = parseNullTime(occurredAt)
	a.ScheduledFor = parseNullTime(scheduledFor)
	a.RelatedTo = relatedTo.String
	a.CreatedAt = parseTime(createdAt)
	if apiValue.Valid {
		v, err := decimal.NewFromString(apiValue.String)
		if err != nil {
			return a, fmt.Errorf("activity %s: bad api value %q: %w", a.ID, apiValue.String, err)
		}
		a.APIValue = &v
	}
	return a, nil
}

// =============================================================================
// USERS
// =============================================================================

// SaveUser creates or updates a user.
func (s *Store) SaveUser(ctx context.Context, u scoring.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (id, name, photo_url, role, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			photo_url = excluded.photo_url,
			role = excluded.role,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Name, nullString(u.PhotoURL), nullString(u.Role), formatTime(time.Now()))
	return err
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id scoring.UserID) (scoring.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u scoring.User
	var photo, role sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, photo_url, role FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &photo, &role)
	if err == sql.ErrNoRows {
		return scoring.User{}, scoring.ErrNotFound
	}
	if err != nil {
		return scoring.User{}, err
	}
	u.PhotoURL = photo.String
	u.Role = role.String
	return u, nil
}

// ListUsers returns all users ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]scoring.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, photo_url, role FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []scoring.User
	for rows.Next() {
		var u scoring.User
		var photo, role sql.NullString
		if err := rows.Scan(&u.ID, &u.Name, &photo, &role); err != nil {
			return nil, err
		}
		u.PhotoURL = photo.String
		u.Role = role.String
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// GOALS
// =============================================================================

// SaveGoal creates or replaces a goal including its progress and targets.
func (s *Store) SaveGoal(ctx context.Context, g scoring.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO goals (id, user_id, name, status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			status = excluded.status
	`
	if _, err := tx.ExecContext(ctx, query, g.ID, g.UserID, g.Name, g.Status, formatTime(g.CreatedAt)); err != nil {
		return err
	}

	for _, table := range []string{"goal_progress", "goal_targets"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE goal_id = ?`, g.ID); err != nil {
			return err
		}
	}
	for key, v := range g.Progress {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO goal_progress (goal_id, key, value) VALUES (?, ?, ?)`,
			g.ID, key, v.String()); err != nil {
			return err
		}
	}
	for key, v := range g.Targets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO goal_targets (goal_id, key, value) VALUES (?, ?, ?)`,
			g.ID, key, v.String()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetGoal retrieves a goal with its progress and targets.
func (s *Store) GetGoal(ctx context.Context, id scoring.GoalID) (scoring.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goals, err := s.queryGoals(ctx, `SELECT id, user_id, name, status, created_at FROM goals WHERE id = ?`, id)
	if err != nil {
		return scoring.Goal{}, err
	}
	if len(goals) == 0 {
		return scoring.Goal{}, scoring.ErrNotFound
	}
	return goals[0], nil
}

// ListGoals returns all of a user's goals.
func (s *Store) ListGoals(ctx context.Context, userID scoring.UserID) ([]scoring.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryGoals(ctx,
		`SELECT id, user_id, name, status, created_at FROM goals WHERE user_id = ? ORDER BY id`, userID)
}

// ActiveGoals returns the user's goals with status active.
func (s *Store) ActiveGoals(ctx context.Context, userID scoring.UserID) ([]scoring.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryGoals(ctx,
		`SELECT id, user_id, name, status, created_at FROM goals WHERE user_id = ? AND status = ? ORDER BY id`,
		userID, scoring.GoalActive)
}

func (s *Store) queryGoals(ctx context.Context, query string, args ...any) ([]scoring.Goal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var goals []scoring.Goal
	for rows.Next() {
		var g scoring.Goal
		var createdAt string
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.Status, &createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		g.CreatedAt = parseTime(createdAt)
		goals = append(goals, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range goals {
		if goals[i].Progress, err = loadDecimals(ctx, s.db, "goal_progress", goals[i].ID); err != nil {
			return nil, err
		}
		targets, err := loadDecimals(ctx, s.db, "goal_targets", goals[i].ID)
		if err != nil {
			return nil, err
		}
		if len(targets) > 0 {
			goals[i].Targets = targets
		}
	}
	return goals, nil
}

func loadDecimals(ctx context.Context, q queryer, table string, goalID scoring.GoalID) (map[string]decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM `+table+` WHERE goal_id = ?`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var key, v string
		if err := rows.Scan(&key, &v); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("%s %s/%s: %w", table, goalID, key, err)
		}
		out[key] = d
	}
	return out, rows.Err()
}

// SetGoalStatus changes a goal's status.
func (s *Store) SetGoalStatus(ctx context.Context, id scoring.GoalID, status scoring.GoalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE goals SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scoring.ErrNotFound
	}
	return nil
}

// ApplyGoalIncrements applies one activity's fan-out in a single transaction.
func (s *Store) ApplyGoalIncrements(ctx context.Context, activityID scoring.ActivityID, incs []scoring.GoalIncrement) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	applied := 0
	for _, inc := range incs {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM goals WHERE id = ?`, inc.GoalID).Scan(&status)
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("goal %s: %w", inc.GoalID, scoring.ErrNotFound)
		}
		if err != nil {
			return 0, err
		}
		if scoring.GoalStatus(status) != scoring.GoalActive {
			continue
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO goal_markers (activity_id, goal_id, applied_at) VALUES (?, ?, ?)
			ON CONFLICT(activity_id, goal_id) DO NOTHING
		`, activityID, inc.GoalID, now)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		progress, err := loadDecimals(ctx, tx, "goal_progress", inc.GoalID)
		if err != nil {
			return 0, err
		}
		for key, delta := range inc.Deltas {
			progress[key] = progress[key].Add(delta)
			_, err := tx.ExecContext(ctx, `
				INSERT INTO goal_progress (goal_id, key, value) VALUES (?, ?, ?)
				ON CONFLICT(goal_id, key) DO UPDATE SET value = excluded.value
			`, inc.GoalID, key, progress[key].String())
			if err != nil {
				return 0, err
			}
		}

		if err := completeIfMet(ctx, tx, inc.GoalID, progress); err != nil {
			return 0, err
		}
		applied++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return applied, nil
}

// completeIfMet flips an active goal to completed when every target is reached.
func completeIfMet(ctx context.Context, tx *sql.Tx, goalID scoring.GoalID, progress map[string]decimal.Decimal) error {
	targets, err := loadDecimals(ctx, tx, "goal_targets", goalID)
	if err != nil {
		return err
	}
	g := scoring.Goal{Progress: progress, Targets: targets}
	if !g.TargetsMet() {
		return nil
	}
	_, err = tx.ExecContext(ctx, `UPDATE goals SET status = ? WHERE id = ? AND status = ?`,
		scoring.GoalCompleted, goalID, scoring.GoalActive)
	return err
}

// =============================================================================
// LEADERBOARD
// =============================================================================

// PutLeaderboardEntry overwrites a user's snapshot.
func (s *Store) PutLeaderboardEntry(ctx context.Context, e scoring.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leaderboard_entries (user_id, entry_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			entry_json = excluded.entry_json,
			updated_at = excluded.updated_at
	`, e.UserID, string(doc), formatTime(time.Now()))
	return err
}

// GetLeaderboardEntry returns one user's snapshot.
func (s *Store) GetLeaderboardEntry(ctx context.Context, userID scoring.UserID) (scoring.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT entry_json FROM leaderboard_entries WHERE user_id = ?`, userID).Scan(&doc)
	if err == sql.ErrNoRows {
		return scoring.LeaderboardEntry{}, scoring.ErrNotFound
	}
	if err != nil {
		return scoring.LeaderboardEntry{}, err
	}

	var e scoring.LeaderboardEntry
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return scoring.LeaderboardEntry{}, err
	}
	return e, nil
}

// ListLeaderboard returns every snapshot ordered by user ID.
func (s *Store) ListLeaderboard(ctx context.Context) ([]scoring.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT entry_json FROM leaderboard_entries ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []scoring.LeaderboardEntry
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var e scoring.LeaderboardEntry
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LeaderboardDocument returns the raw stored JSON for a user's entry.
func (s *Store) LeaderboardDocument(ctx context.Context, userID scoring.UserID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT entry_json FROM leaderboard_entries WHERE user_id = ?`, userID).Scan(&doc)
	if err == sql.ErrNoRows {
		return "", scoring.ErrNotFound
	}
	return doc, err
}

// =============================================================================
// AGGREGATION RUNS
// =============================================================================

// SaveAggregationRun creates or updates a run record.
func (s *Store) SaveAggregationRun(ctx context.Context, r scoring.AggregationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO aggregation_runs
		(id, status, users, activities, written, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			users = excluded.users,
			activities = excluded.activities,
			written = excluded.written,
			error = excluded.error,
			completed_at = excluded.completed_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Status, r.Users, r.Activities, r.Written,
		nullString(r.Error), formatTime(r.StartedAt), nullTime(r.CompletedAt),
	)
	return err
}

// ListAggregationRuns returns the most recent runs first.
func (s *Store) ListAggregationRuns(ctx context.Context, limit int) ([]scoring.AggregationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, users, activities, written, error, started_at, completed_at
		FROM aggregation_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []scoring.AggregationRun
	for rows.Next() {
		var r scoring.AggregationRun
		var errText, completedAt sql.NullString
		var startedAt string
		if err := rows.Scan(
			&r.ID, &r.Status, &r.Users, &r.Activities, &r.Written, &errText, &startedAt, &completedAt,
		); err != nil {
			return nil, err
		}
		r.Error = errText.String
		r.StartedAt = parseTime(startedAt)
		r.CompletedAt = parseNullTime(completedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// DAILY SUMMARIES
// =============================================================================

// SaveDailySummary creates a summary, or replaces it when resubmit is set.
func (s *Store) SaveDailySummary(ctx context.Context, sum scoring.DailySummary, resubmit bool) (scoring.DailySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return scoring.DailySummary{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prev int
	err = tx.QueryRowContext(ctx,
		`SELECT revision FROM daily_summaries WHERE user_id = ? AND date = ?`,
		sum.UserID, sum.Date).Scan(&prev)
	switch {
	case err == sql.ErrNoRows:
		sum.Revision = 1
	case err != nil:
		return scoring.DailySummary{}, err
	case !resubmit:
		return scoring.DailySummary{}, scoring.ErrSummaryExists
	default:
		sum.Revision = prev + 1
	}

	doc, err := json.Marshal(sum)
	if err != nil {
		return scoring.DailySummary{}, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_summaries (user_id, date, revision, summary_json, submitted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			revision = excluded.revision,
			summary_json = excluded.summary_json,
			submitted_at = excluded.submitted_at
	`, sum.UserID, sum.Date, sum.Revision, string(doc), formatTime(sum.SubmittedAt))
	if err != nil {
		return scoring.DailySummary{}, err
	}

	if err := tx.Commit(); err != nil {
		return scoring.DailySummary{}, err
	}
	return sum, nil
}

// GetDailySummary returns the summary for a user and YYYY-MM-DD date.
func (s *Store) GetDailySummary(ctx context.Context, userID scoring.UserID, date string) (scoring.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary_json FROM daily_summaries WHERE user_id = ? AND date = ?`,
		userID, date).Scan(&doc)
	if err == sql.ErrNoRows {
		return scoring.DailySummary{}, scoring.ErrNotFound
	}
	if err != nil {
		return scoring.DailySummary{}, err
	}

	var sum scoring.DailySummary
	if err := json.Unmarshal([]byte(doc), &sum); err != nil {
		return scoring.DailySummary{}, err
	}
	return sum, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
