/*
scenarios.go - Demo scenario loaders for development and demonstrations

PURPOSE:

	Seeds the store with a realistic team, goals and a day of activity so
	the leaderboard, goal and clock-out endpoints have something to show.
	Activities go through the Recorder, so goal fan-out, frozen scoring and
	event dispatch behave exactly as for real traffic.

AVAILABLE SCENARIOS:

	sales-team:  Three agents with weekly goals and a mixed day of activity
	bonus-day:   One agent whose day triggers every bonus rule

HOW SCENARIOS WORK:
 1. Upsert the scenario's users
 2. Create goals that do not exist yet (existing progress is kept)
 3. Record activities with IDs derived from scenario, user and date
 4. Run one aggregation cycle

Loading the same scenario twice on the same day is a no-op for activities:
the derived IDs collide and the duplicates are skipped.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "sales-team"}

SEE ALSO:
  - handlers.go: Handler wiring
  - sales/rules.go: Activity type names
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/performance-engine/sales"
	"github.com/warp/performance-engine/scoring"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "sales-team",
		Name:        "Sales Team",
		Description: "Three agents with weekly goals and a mixed day of prospecting",
		Category:    "leaderboard",
	},
	{
		ID:          "bonus-day",
		Name:        "Bonus Day",
		Description: "One agent whose day earns Contact Blitz, Interview Combo and Big Sale",
		Category:    "bonus",
	},
}

// seedActivity is one activity at an offset from the start of the day.
type seedActivity struct {
	user   scoring.UserID
	typ    string
	offset time.Duration
	api    int64
}

type scenario struct {
	users      []scoring.User
	goals      []scoring.Goal
	activities []seedActivity
}

func buildScenario(id string) (scenario, bool) {
	switch id {
	case "sales-team":
		return salesTeamScenario(), true
	case "bonus-day":
		return bonusDayScenario(), true
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario seeds a predefined scenario into the store.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	sc, ok := buildScenario(req.ScenarioID)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Unknown scenario",
			Fields: map[string]string{"scenario_id": "oneof"},
		})
		return
	}

	resp, err := h.loadScenario(r.Context(), req.ScenarioID, sc)
	if err != nil {
		h.writeDomainError(w, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) loadScenario(ctx context.Context, id string, sc scenario) (LoadScenarioResponse, error) {
	resp := LoadScenarioResponse{Scenario: id, Status: "loaded"}
	now := h.Recorder.Now().In(h.Location)
	dayStart := scoring.PeriodFor(scoring.PeriodDay, now, h.Aggregator.WeekStart).Start
	log := h.Log.WithField("scenario", id)

	for _, u := range sc.users {
		if err := h.Store.SaveUser(ctx, u); err != nil {
			return resp, scoring.WrapStore("save user", err)
		}
		resp.Users++
	}

	for _, g := range sc.goals {
		_, err := h.Store.GetGoal(ctx, g.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, scoring.ErrNotFound) {
			return resp, scoring.WrapStore("get goal", err)
		}
		g.Status = scoring.GoalActive
		g.Progress = map[string]decimal.Decimal{}
		g.CreatedAt = now.UTC()
		if err := h.Store.SaveGoal(ctx, g); err != nil {
			return resp, scoring.WrapStore("save goal", err)
		}
		resp.Goals++
	}

	for i, s := range sc.activities {
		at := dayStart.Add(s.offset)
		in := scoring.NewActivity{
			ID:         scoring.ActivityID(fmt.Sprintf("%s-%s-%s-%02d", id, s.user, dayStart.Format("2006-01-02"), i)),
			UserID:     s.user,
			Type:       s.typ,
			OccurredAt: &at,
		}
		if s.api > 0 {
			v := decimal.NewFromInt(s.api)
			in.APIValue = &v
		}
		if _, err := h.Recorder.Record(ctx, in); err != nil {
			if errors.Is(err, scoring.ErrDuplicateActivity) {
				resp.Skipped++
				continue
			}
			return resp, err
		}
		resp.Activities++
	}

	run, err := h.Aggregator.RunCycle(ctx)
	if err != nil {
		// the seed data is in place; the next scheduled cycle picks it up
		log.WithError(err).Warn("post-load aggregation failed")
	}
	resp.Run = &run

	log.WithFields(logrus.Fields{
		"activities": resp.Activities,
		"skipped":    resp.Skipped,
	}).Info("scenario loaded")
	return resp, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func salesTeamScenario() scenario {
	const (
		ada   scoring.UserID = "agent-ada"
		grace scoring.UserID = "agent-grace"
		linus scoring.UserID = "agent-linus"
	)
	h := time.Hour
	return scenario{
		users: []scoring.User{
			{ID: ada, Name: "Ada Lovelace", Role: "Senior Agent"},
			{ID: grace, Name: "Grace Hopper", Role: "Agent"},
			{ID: linus, Name: "Linus Pauling", Role: "Trainee"},
		},
		goals: []scoring.Goal{
			{ID: "sales-team-ada-weekly", UserID: ada, Name: "Weekly sales",
				Targets: map[string]decimal.Decimal{sales.KeySales: decimal.NewFromInt(3)}},
			{ID: "sales-team-grace-weekly", UserID: grace, Name: "Weekly points",
				Targets: map[string]decimal.Decimal{scoring.PointsKey: decimal.NewFromInt(40)}},
		},
		activities: []seedActivity{
			{user: ada, typ: sales.TypePhoneCall, offset: 9 * h},
			{user: ada, typ: sales.TypeNewContact, offset: 9*h + 20*time.Minute},
			{user: ada, typ: sales.TypeConductedFFI, offset: 11 * h},
			{user: ada, typ: sales.TypeSaleClosed, offset: 15 * h, api: 15000},
			{user: grace, typ: sales.TypePhoneCall, offset: 9 * h},
			{user: grace, typ: sales.TypePhoneCall, offset: 9*h + 15*time.Minute},
			{user: grace, typ: "Door Knock", offset: 10 * h},
			{user: grace, typ: sales.TypeConductedClosing, offset: 14 * h},
			{user: linus, typ: sales.TypeNewContact, offset: 10 * h},
		},
	}
}

func bonusDayScenario() scenario {
	const rep scoring.UserID = "agent-margaret"
	sc := scenario{
		users: []scoring.User{{ID: rep, Name: "Margaret Hamilton", Role: "Agent"}},
		goals: []scoring.Goal{
			{ID: "bonus-day-margaret-combo", UserID: rep, Name: "Interview combo",
				Targets: map[string]decimal.Decimal{
					sales.KeyFFIConducted:     decimal.NewFromInt(3),
					sales.KeyClosingConducted: decimal.NewFromInt(2),
				}},
		},
	}
	at := 8 * time.Hour
	next := func() time.Duration {
		at += 10 * time.Minute
		return at
	}
	for i := 0; i < 15; i++ {
		sc.activities = append(sc.activities, seedActivity{user: rep, typ: sales.TypeNewContact, offset: next()})
	}
	for i := 0; i < 3; i++ {
		sc.activities = append(sc.activities, seedActivity{user: rep, typ: sales.TypeConductedFFI, offset: next()})
	}
	for i := 0; i < 2; i++ {
		sc.activities = append(sc.activities, seedActivity{user: rep, typ: sales.TypeConductedClosing, offset: next()})
	}
	sc.activities = append(sc.activities, seedActivity{user: rep, typ: sales.TypeSaleClosed, offset: next(), api: 12500})
	return sc
}
