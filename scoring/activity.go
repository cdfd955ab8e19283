package scoring

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// ACTIVITY CREATION
// =============================================================================

// NewActivity is the activity-create boundary: what collaborators send.
// Points and SummaryKey are accepted for compatibility but the rule table is
// authoritative; mismatches are logged and overwritten.
type NewActivity struct {
	ID           ActivityID
	UserID       UserID
	Type         string
	OccurredAt   *time.Time
	ScheduledFor *time.Time
	APIValue     *decimal.Decimal
	Minutes      int
	RelatedTo    string

	Points     *int
	SummaryKey string
}

// Dispatcher delivers ActivityCreated events to the goal updater, either
// inline or through a message bus with at-least-once delivery.
type Dispatcher interface {
	ActivityCreated(ctx context.Context, a Activity) error
}

// Recorder validates, scores and persists new activities.
type Recorder struct {
	Rules      *RuleTable
	Store      ActivityStore
	Dispatcher Dispatcher
	Log        logrus.FieldLogger
	Now        func() time.Time
}

func NewRecorder(rules *RuleTable, store ActivityStore, dispatcher Dispatcher, log logrus.FieldLogger) *Recorder {
	return &Recorder{Rules: rules, Store: store, Dispatcher: dispatcher, Log: log, Now: time.Now}
}

// Build validates the input and resolves the frozen scoring fields without
// touching the store.
func (r *Recorder) Build(in NewActivity) (Activity, error) {
	if strings.TrimSpace(string(in.UserID)) == "" {
		return Activity{}, &ValidationError{Field: "user_id", Code: "required", Message: "user id is required"}
	}
	if (in.OccurredAt == nil) == (in.ScheduledFor == nil) {
		return Activity{}, &ValidationError{Field: "timestamp", Code: "exactly_one",
			Message: "exactly one of occurred_at or scheduled_for must be set"}
	}

	rule, err := r.Rules.Resolve(in.Type)
	if err != nil {
		return Activity{}, err
	}

	if in.APIValue != nil && in.APIValue.IsNegative() {
		return Activity{}, &ValidationError{Field: "api_value", Code: "negative", Message: "api value must not be negative"}
	}
	if rule.RequiresAPIValue && in.APIValue == nil {
		return Activity{}, &ValidationError{Field: "api_value", Code: "required",
			Message: in.Type + " requires an api value"}
	}
	if in.Minutes < 0 {
		return Activity{}, &ValidationError{Field: "minutes", Code: "negative", Message: "minutes must not be negative"}
	}
	if rule.Measure == MeasureMinutes && in.Minutes == 0 {
		return Activity{}, &ValidationError{Field: "minutes", Code: "required",
			Message: in.Type + " is time-tracked and requires minutes"}
	}

	id := in.ID
	if id == "" {
		id = ActivityID(uuid.NewString())
	}

	a := Activity{
		ID:           id,
		UserID:       in.UserID,
		Type:         rule.Type,
		OccurredAt:   in.OccurredAt,
		ScheduledFor: in.ScheduledFor,
		Points:       rule.Points,
		APIValue:     in.APIValue,
		Minutes:      in.Minutes,
		SummaryKey:   rule.SummaryKey,
		Measure:      rule.Measure,
		Category:     rule.Category,
		RelatedTo:    in.RelatedTo,
		RuleVersion:  r.Rules.Version(),
		CreatedAt:    r.Now().UTC(),
	}

	if (in.Points != nil && *in.Points != rule.Points) || (in.SummaryKey != "" && in.SummaryKey != rule.SummaryKey) {
		r.Log.WithFields(logrus.Fields{
			"activity_id": a.ID,
			"type":        a.Type,
			"sent_key":    in.SummaryKey,
			"rule_key":    rule.SummaryKey,
			"rule_points": rule.Points,
		}).Warn("client-supplied scoring fields ignored")
	}
	return a, nil
}

// Record persists a new activity and dispatches ActivityCreated.
// Validation failures return before anything is written. A dispatch failure
// after the write is logged, not returned: the activity exists and the
// fan-out can be replayed safely.
func (r *Recorder) Record(ctx context.Context, in NewActivity) (Activity, error) {
	a, err := r.Build(in)
	if err != nil {
		return Activity{}, err
	}

	if err := r.Store.AppendActivity(ctx, a); err != nil {
		return Activity{}, WrapStore("append activity", err)
	}

	log := r.Log.WithFields(logrus.Fields{"activity_id": a.ID, "user_id": a.UserID, "type": a.Type})
	log.WithField("points", a.Points).Debug("activity recorded")

	if r.Dispatcher != nil {
		if err := r.Dispatcher.ActivityCreated(ctx, a); err != nil {
			log.WithError(err).Error("activity-created dispatch failed; replay to retry")
		}
	}
	return a, nil
}

// =============================================================================
// INLINE DISPATCH
// =============================================================================

// InlineDispatcher runs the goal updater in the creating request.
type InlineDispatcher struct {
	Goals *GoalUpdater
}

func (d InlineDispatcher) ActivityCreated(ctx context.Context, a Activity) error {
	_, err := d.Goals.Apply(ctx, a)
	return err
}
