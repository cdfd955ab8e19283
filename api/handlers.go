/*
handlers.go - HTTP API handlers for the performance engine

PURPOSE:
  Exposes activity scoring, goals, leaderboards and daily summaries via
  REST. Handles HTTP request/response, JSON serialization and payload
  validation, and delegates to the scoring package.

ENDPOINTS:
  Rules:
    GET    /api/rules                          Rule table and bonus rules

  Users:
    GET    /api/users                          List known users
    POST   /api/users                          Register/update user
    GET    /api/users/{id}/goals               List user goals
    GET    /api/users/{id}/bonuses?period=     Bonuses earned so far
    POST   /api/users/{id}/clock-out           Submit daily summary
    GET    /api/users/{id}/summaries/{date}    Read daily summary

  Activities:
    POST   /api/activities                     Create activity
    GET    /api/activities/{id}                Get activity
    POST   /api/activities/{id}/replay         Re-run goal fan-out

  Goals:
    POST   /api/goals                          Create goal
    POST   /api/goals/{id}/archive             Archive goal

  Leaderboard:
    GET    /api/leaderboard?period=            Ranked entries
    GET    /api/leaderboard/{userId}           Single entry
    POST   /api/leaderboard/recompute          Run a cycle now
    GET    /api/leaderboard/runs               Recent cycles

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate payload shape (validator tags)
  3. Call scoring logic
  4. Serialize response
  5. Map errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unknown activity type, empty clock-out
  - 404: Resource not found
  - 409: Duplicate activity ID, summary already submitted
  - 503: Transient store failure, safe to retry
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Callers are trusted collaborators.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/performance-engine/sales"
	"github.com/warp/performance-engine/scoring"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// LeaderboardReader is the optional read cache in front of the store.
type LeaderboardReader interface {
	Entries(ctx context.Context) ([]scoring.LeaderboardEntry, bool, error)
	Entry(ctx context.Context, userID scoring.UserID) (scoring.LeaderboardEntry, bool, error)
}

// Options configures the scoring services a Handler builds.
type Options struct {
	Location  *time.Location
	WeekStart time.Weekday
	Tiers     scoring.TierThresholds

	// Dispatcher delivers ActivityCreated. Nil runs the goal fan-out inline.
	Dispatcher scoring.Dispatcher
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      scoring.Store
	Rules      *scoring.RuleTable
	Bonuses    *scoring.BonusEvaluator
	Recorder   *scoring.Recorder
	Goals      *scoring.GoalUpdater
	Aggregator *scoring.Aggregator
	Summaries  *scoring.SummaryService

	// Optional
	Cache     LeaderboardReader
	Scheduler *AggregationScheduler

	Log      logrus.FieldLogger
	Location *time.Location
	validate *validator.Validate
}

// NewHandler wires the sales scoring domain over store.
func NewHandler(store scoring.Store, log logrus.FieldLogger, opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Tiers == (scoring.TierThresholds{}) {
		opts.Tiers = scoring.DefaultTiers
	}

	rules := sales.Rules()
	goals := scoring.NewGoalUpdater(store, log)
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = scoring.InlineDispatcher{Goals: goals}
	}

	return &Handler{
		Store:      store,
		Rules:      rules,
		Bonuses:    sales.Evaluator(),
		Recorder:   scoring.NewRecorder(rules, store, dispatcher, log),
		Goals:      goals,
		Aggregator: scoring.NewAggregator(store, opts.Location, opts.WeekStart, log),
		Summaries: &scoring.SummaryService{
			Store:     store,
			Compiler:  sales.NewCompiler(opts.Tiers),
			Location:  opts.Location,
			WeekStart: opts.WeekStart,
			Log:       log,
			Now:       time.Now,
		},
		Log:      log,
		Location: opts.Location,
		validate: newValidator(),
	}
}

// SetClock replaces the wall clock of every time-dependent service.
func (h *Handler) SetClock(now func() time.Time) {
	h.Recorder.Now = now
	h.Aggregator.Now = now
	h.Summaries.Now = now
}

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names in field errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// pinger is implemented by stores with a live connection to check.
type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Log.WithError(err).Warn("health check: store unreachable")
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RULES
// =============================================================================

// ListRules returns the rule table and bonus rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	resp := RulesResponse{
		Version:    h.Rules.Version(),
		Categories: h.Rules.Categories(),
		Rules:      h.Rules.Rules(),
		Bonuses:    []BonusRuleDTO{},
	}
	for _, b := range h.Bonuses.Rules() {
		resp.Bonuses = append(resp.Bonuses, BonusRuleDTO{Name: b.Name, Points: b.Points})
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// USERS
// =============================================================================

// ListUsers returns all known users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list users", scoring.WrapStore("list users", err))
		return
	}
	if users == nil {
		users = []scoring.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// CreateUser registers or updates a known user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	u := scoring.User{
		ID:       scoring.UserID(req.ID),
		Name:     req.Name,
		PhotoURL: req.PhotoURL,
		Role:     req.Role,
	}
	if err := h.Store.SaveUser(r.Context(), u); err != nil {
		h.writeDomainError(w, "Failed to save user", scoring.WrapStore("save user", err))
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// =============================================================================
// ACTIVITIES
// =============================================================================

// CreateActivity scores and records an activity.
func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req CreateActivityRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	a, err := h.Recorder.Record(r.Context(), scoring.NewActivity{
		ID:           scoring.ActivityID(req.ID),
		UserID:       scoring.UserID(req.UserID),
		Type:         req.Type,
		OccurredAt:   req.OccurredAt,
		ScheduledFor: req.ScheduledFor,
		APIValue:     req.APIValue,
		Minutes:      req.Minutes,
		RelatedTo:    req.RelatedTo,
		Points:       req.Points,
		SummaryKey:   req.SummaryKey,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to record activity", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetActivity returns one activity.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	id := scoring.ActivityID(chi.URLParam(r, "id"))

	a, err := h.Store.GetActivity(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Activity not found", scoring.WrapStore("get activity", err))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ReplayActivity re-runs the goal fan-out. Goals already updated for this
// activity are skipped.
func (h *Handler) ReplayActivity(w http.ResponseWriter, r *http.Request) {
	id := scoring.ActivityID(chi.URLParam(r, "id"))

	a, err := h.Store.GetActivity(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Activity not found", scoring.WrapStore("get activity", err))
		return
	}

	res, err := h.Goals.Apply(r.Context(), a)
	if err != nil {
		h.writeDomainError(w, "Goal fan-out failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// GOALS
// =============================================================================

// CreateGoal creates an active goal with empty progress.
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req CreateGoalRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	for key, target := range req.Targets {
		if strings.TrimSpace(key) == "" || !target.IsPositive() {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "Invalid goal targets",
				Fields: map[string]string{"targets": "positive"},
			})
			return
		}
	}

	ctx := r.Context()
	if _, err := h.Store.GetUser(ctx, scoring.UserID(req.UserID)); err != nil {
		h.writeDomainError(w, "User not found", scoring.WrapStore("get user", err))
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	g := scoring.Goal{
		ID:        scoring.GoalID(id),
		UserID:    scoring.UserID(req.UserID),
		Name:      req.Name,
		Status:    scoring.GoalActive,
		Progress:  map[string]decimal.Decimal{},
		Targets:   req.Targets,
		CreatedAt: h.Recorder.Now().UTC(),
	}
	if err := h.Store.SaveGoal(ctx, g); err != nil {
		h.writeDomainError(w, "Failed to save goal", scoring.WrapStore("save goal", err))
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// ListUserGoals returns every goal of a user.
func (h *Handler) ListUserGoals(w http.ResponseWriter, r *http.Request) {
	userID := scoring.UserID(chi.URLParam(r, "id"))

	goals, err := h.Store.ListGoals(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, "Failed to list goals", scoring.WrapStore("list goals", err))
		return
	}
	if goals == nil {
		goals = []scoring.Goal{}
	}
	writeJSON(w, http.StatusOK, goals)
}

// ArchiveGoal stops a goal from receiving further increments.
func (h *Handler) ArchiveGoal(w http.ResponseWriter, r *http.Request) {
	id := scoring.GoalID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if err := h.Store.SetGoalStatus(ctx, id, scoring.GoalArchived); err != nil {
		h.writeDomainError(w, "Goal not found", scoring.WrapStore("archive goal", err))
		return
	}
	g, err := h.Store.GetGoal(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Goal not found", scoring.WrapStore("get goal", err))
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// =============================================================================
// LEADERBOARD
// =============================================================================

// GetLeaderboard returns entries ranked for the requested window. The read
// cache is used when present; on a miss or cache error the store is read.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	kind, err := leaderboardPeriod(r.URL.Query().Get("period"))
	if err != nil {
		h.writeDomainError(w, "Invalid period", err)
		return
	}

	ctx := r.Context()
	source := "store"
	var entries []scoring.LeaderboardEntry

	if h.Cache != nil {
		cached, ok, err := h.Cache.Entries(ctx)
		if err != nil {
			h.Log.WithError(err).Warn("leaderboard cache read failed; using store")
		} else if ok {
			entries, source = cached, "cache"
		}
	}
	if source == "store" {
		entries, err = h.Store.ListLeaderboard(ctx)
		if err != nil {
			h.writeDomainError(w, "Failed to load leaderboard", scoring.WrapStore("list leaderboard", err))
			return
		}
	}

	writeJSON(w, http.StatusOK, LeaderboardResponse{
		Period:  kind,
		Source:  source,
		Entries: scoring.Rank(entries, kind),
	})
}

// GetLeaderboardEntry returns one user's entry.
func (h *Handler) GetLeaderboardEntry(w http.ResponseWriter, r *http.Request) {
	userID := scoring.UserID(chi.URLParam(r, "userId"))
	ctx := r.Context()

	if h.Cache != nil {
		e, ok, err := h.Cache.Entry(ctx, userID)
		if err == nil && ok {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}

	e, err := h.Store.GetLeaderboardEntry(ctx, userID)
	if err != nil {
		h.writeDomainError(w, "Leaderboard entry not found", scoring.WrapStore("get entry", err))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// RecomputeLeaderboard runs an aggregation cycle immediately.
func (h *Handler) RecomputeLeaderboard(w http.ResponseWriter, r *http.Request) {
	var (
		run scoring.AggregationRun
		err error
	)
	if h.Scheduler != nil {
		run, err = h.Scheduler.RunNow(r.Context())
	} else {
		run, err = h.Aggregator.RunCycle(r.Context())
	}
	if err != nil {
		h.writeDomainError(w, "Aggregation cycle failed", err)
		return
	}

	resp := RecomputeResponse{Run: run}
	if h.Scheduler != nil {
		if next := h.Scheduler.NextRun(); !next.IsZero() {
			resp.NextRun = &next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListAggregationRuns returns recent cycles, newest first.
func (h *Handler) ListAggregationRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListAggregationRuns(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, "Failed to list runs", scoring.WrapStore("list runs", err))
		return
	}
	if runs == nil {
		runs = []scoring.AggregationRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// =============================================================================
// BONUSES AND DAILY SUMMARIES
// =============================================================================

// GetUserBonuses evaluates the bonus rules over the user's current period.
func (h *Handler) GetUserBonuses(w http.ResponseWriter, r *http.Request) {
	userID := scoring.UserID(chi.URLParam(r, "id"))
	ctx := r.Context()

	p := r.URL.Query().Get("period")
	if p == "" {
		p = string(scoring.PeriodWeek)
	}
	kind, err := scoring.ParsePeriodKind(p)
	if err != nil {
		h.writeDomainError(w, "Invalid period", err)
		return
	}

	if _, err := h.Store.GetUser(ctx, userID); err != nil {
		h.writeDomainError(w, "User not found", scoring.WrapStore("get user", err))
		return
	}

	period, awards, err := h.Summaries.PeriodBonuses(ctx, userID, kind)
	if err != nil {
		h.writeDomainError(w, "Failed to evaluate bonuses", err)
		return
	}
	writeJSON(w, http.StatusOK, BonusesResponse{
		UserID: userID,
		Period: period.Kind,
		Start:  period.Start,
		End:    period.End,
		Awards: awards,
		Total:  scoring.TotalBonus(awards),
	})
}

// ClockOut compiles and stores the user's daily summary.
func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	userID := scoring.UserID(chi.URLParam(r, "id"))

	var req ClockOutRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	var date time.Time
	if req.Date != "" {
		d, err := time.ParseInLocation("2006-01-02", req.Date, h.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		date = d
	}

	summary, err := h.Summaries.ClockOut(r.Context(), scoring.ClockOutRequest{
		UserID:   userID,
		Date:     date,
		Notes:    req.Notes,
		Resubmit: req.Resubmit,
	})
	if err != nil {
		h.writeDomainError(w, "Clock-out rejected", err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// GetDailySummary returns a stored summary.
func (h *Handler) GetDailySummary(w http.ResponseWriter, r *http.Request) {
	userID := scoring.UserID(chi.URLParam(r, "id"))
	date := chi.URLParam(r, "date")

	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}

	s, err := h.Store.GetDailySummary(r.Context(), userID, date)
	if err != nil {
		h.writeDomainError(w, "Summary not found", scoring.WrapStore("get summary", err))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// =============================================================================
// HELPERS
// =============================================================================

// leaderboardPeriod parses the period query; only the three stored windows
// are valid. Empty means weekly.
func leaderboardPeriod(v string) (scoring.PeriodKind, error) {
	if v == "" {
		return scoring.PeriodWeek, nil
	}
	kind, err := scoring.ParsePeriodKind(v)
	if err != nil {
		return "", err
	}
	if kind == scoring.PeriodQuarter {
		return "", &scoring.ValidationError{Field: "period", Code: "invalid_period",
			Message: "leaderboards are kept for day, week and month"}
	}
	return kind, nil
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the 400 response itself and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	// an empty body decodes as {} and is left to validation
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: fields})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeDomainError maps scoring errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var (
		status = http.StatusInternalServerError
		resp   = ErrorResponse{Error: message, Details: err.Error()}
		ve     *scoring.ValidationError
	)

	switch {
	case scoring.IsClientError(err):
		status = http.StatusBadRequest
		if errors.As(err, &ve) {
			resp.Fields = map[string]string{ve.Field: ve.Code}
		}
	case scoring.IsNotFound(err):
		status = http.StatusNotFound
	case scoring.IsConflict(err):
		status = http.StatusConflict
	case scoring.IsRetryable(err):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.Log.WithError(err).Error(message)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
