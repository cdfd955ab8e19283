package sales_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/performance-engine/sales"
	"github.com/warp/performance-engine/scoring"
)

var day = time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC)

// activities resolves n activities of one type through the rule table.
func activities(t *testing.T, typ string, n int) []scoring.Activity {
	t.Helper()
	r, err := sales.Rules().Resolve(typ)
	require.NoError(t, err)
	out := make([]scoring.Activity, n)
	for i := range out {
		at := day.Add(time.Duration(i) * time.Minute)
		out[i] = scoring.Activity{
			UserID:     "u1",
			Type:       r.Type,
			OccurredAt: &at,
			Points:     r.Points,
			SummaryKey: r.SummaryKey,
			Measure:    r.Measure,
			Category:   r.Category,
		}
	}
	return out
}

func sale(t *testing.T, api int64) scoring.Activity {
	a := activities(t, sales.TypeSaleClosed, 1)[0]
	v := decimal.NewFromInt(api)
	a.APIValue = &v
	return a
}

func names(awards []scoring.BonusAward) []string {
	out := make([]string, 0, len(awards))
	for _, a := range awards {
		out = append(out, a.Name)
	}
	return out
}

func TestContactBlitz_Threshold(t *testing.T) {
	ev := sales.Evaluator()

	// 14 contact-category activities: no bonus
	assert.Empty(t, ev.Evaluate(activities(t, sales.TypeNewContact, 14)))

	// 15, mixing contact types: bonus
	mixed := append(activities(t, sales.TypeNewContact, 10), activities(t, sales.TypePhoneCall, 5)...)
	awards := ev.Evaluate(mixed)
	assert.Equal(t, []string{sales.BonusContactBlitz}, names(awards))
	assert.Equal(t, 10, scoring.TotalBonus(awards))

	// 30 still awards it once
	assert.Len(t, ev.Evaluate(activities(t, sales.TypePhoneCall, 30)), 1)
}

func TestInterviewCombo_NeedsBothCounts(t *testing.T) {
	ev := sales.Evaluator()
	ffi := activities(t, sales.TypeConductedFFI, 3)

	// 3 FFI + 1 closing: no bonus
	assert.Empty(t, ev.Evaluate(append(append([]scoring.Activity{}, ffi...), activities(t, sales.TypeConductedClosing, 1)...)))

	// 3 FFI + 2 closing: +25
	awards := ev.Evaluate(append(append([]scoring.Activity{}, ffi...), activities(t, sales.TypeConductedClosing, 2)...))
	assert.Equal(t, []string{sales.BonusInterviewCombo}, names(awards))
	assert.Equal(t, 25, scoring.TotalBonus(awards))

	// booked interviews do not count
	booked := append(activities(t, "Booked Fact Find Interview", 3), activities(t, "Booked Closing Interview", 2)...)
	assert.Empty(t, ev.Evaluate(booked))
}

func TestBigSale_Boundary(t *testing.T) {
	ev := sales.Evaluator()

	assert.Empty(t, ev.Evaluate([]scoring.Activity{sale(t, 11999)}))
	assert.Equal(t, []string{sales.BonusBigSale}, names(ev.Evaluate([]scoring.Activity{sale(t, 12000)})))

	// two big sales still award once
	assert.Len(t, ev.Evaluate([]scoring.Activity{sale(t, 20000), sale(t, 13000)}), 1)

	// several small sales never add up to a big one
	assert.Empty(t, ev.Evaluate([]scoring.Activity{sale(t, 6000), sale(t, 6000)}))
}

func TestEvaluate_AllRulesInOrder(t *testing.T) {
	var acts []scoring.Activity
	acts = append(acts, activities(t, sales.TypePhoneCall, 15)...)
	acts = append(acts, activities(t, sales.TypeConductedFFI, 3)...)
	acts = append(acts, activities(t, sales.TypeConductedClosing, 2)...)
	acts = append(acts, sale(t, 50000))

	awards := sales.Evaluator().Evaluate(acts)

	assert.Equal(t, []string{sales.BonusContactBlitz, sales.BonusInterviewCombo, sales.BonusBigSale}, names(awards))
	assert.Equal(t, 45, scoring.TotalBonus(awards))
}

func TestEvaluate_NilEvaluator(t *testing.T) {
	var ev *scoring.BonusEvaluator
	assert.NotNil(t, ev.Evaluate(nil))
	assert.Empty(t, ev.Evaluate(nil))
}

func TestDerivedFields(t *testing.T) {
	fields := sales.DerivedFields()
	require.Len(t, fields, 3)
	assert.Equal(t, "appointments_cancelled", fields[0].Key)
	assert.Equal(t, sales.KeyAppointmentsBooked, fields[0].Minuend)
	assert.Equal(t, sales.KeyAppointmentsConducted, fields[0].Subtrahend)
}
