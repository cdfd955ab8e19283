/*
Package sales provides the insurance-sales scoring domain: the fixed rule
table, bonus rules and summary derived fields plugged into the scoring
engine.

CATEGORIES:
  contact:     prospecting touches (calls, messages, new contacts)
  appointment: booked/conducted client appointments
  interview:   fact-find and closing interviews, needs analysis
  sale:        closed business; most rows carry an API (annualized
               premium) value
  development: training, meetings, reviews; some are time-tracked

RULE TABLE VERSIONING:
  RulesVersion is stamped on every activity. Changing any row's points or
  summary key means a new version string; old activities keep the points
  they were created with.

SEE ALSO:
  - bonus.go: Period bonus rules
  - summary.go: Derived fields for the daily summary
  - scoring/rules.go: RuleTable mechanism
*/
package sales

import "github.com/warp/performance-engine/scoring"

// =============================================================================
// CATEGORIES
// =============================================================================

const (
	CategoryContact     scoring.Category = "contact"
	CategoryAppointment scoring.Category = "appointment"
	CategoryInterview   scoring.Category = "interview"
	CategorySale        scoring.Category = "sale"
	CategoryDevelopment scoring.Category = "development"
)

// Summary keys referenced by bonus rules and derived fields.
const (
	KeySales                 = "sales"
	KeyFFIBooked             = "ffi_booked"
	KeyFFIConducted          = "ffi_conducted"
	KeyClosingBooked         = "closing_booked"
	KeyClosingConducted      = "closing_conducted"
	KeyAppointmentsBooked    = "appointments_booked"
	KeyAppointmentsConducted = "appointments_conducted"
)

// Activity type names referenced by callers and tests.
const (
	TypeNewContact       = "New Contact"
	TypeSaleClosed       = "Sale Closed"
	TypeConductedFFI     = "Conducted Fact Find Interview"
	TypeConductedClosing = "Conducted Closing Interview"
	TypePhoneCall        = "Phone Call"
)

const RulesVersion = "2024.1"

// =============================================================================
// RULE TABLE
// =============================================================================

var ruleRows = []scoring.ScoringRule{
	// contact
	{Type: TypeNewContact, Category: CategoryContact, Points: 1, SummaryKey: "new_contacts"},
	{Type: TypePhoneCall, Category: CategoryContact, Points: 1, SummaryKey: "calls"},
	{Type: "Text Message", Category: CategoryContact, Points: 1, SummaryKey: "messages"},
	{Type: "Email Sent", Category: CategoryContact, Points: 1, SummaryKey: "messages"},
	{Type: "Social Media Outreach", Category: CategoryContact, Points: 1, SummaryKey: "messages"},
	{Type: "Door Knock", Category: CategoryContact, Points: 1, SummaryKey: "door_knocks"},
	{Type: "Referral Received", Category: CategoryContact, Points: 2, SummaryKey: "referrals"},

	// appointment
	{Type: "Appointment Booked", Category: CategoryAppointment, Points: 2, SummaryKey: KeyAppointmentsBooked},
	{Type: "Appointment Conducted", Category: CategoryAppointment, Points: 3, SummaryKey: KeyAppointmentsConducted},
	{Type: "Appointment Rescheduled", Category: CategoryAppointment, Points: 0, SummaryKey: "appointments_rescheduled"},
	{Type: "Follow-up Scheduled", Category: CategoryAppointment, Points: 1, SummaryKey: "follow_ups"},
	{Type: "Follow-up Completed", Category: CategoryAppointment, Points: 1, SummaryKey: "follow_ups_completed"},

	// interview
	{Type: "Booked Fact Find Interview", Category: CategoryInterview, Points: 2, SummaryKey: KeyFFIBooked},
	{Type: TypeConductedFFI, Category: CategoryInterview, Points: 3, SummaryKey: KeyFFIConducted},
	{Type: "Booked Closing Interview", Category: CategoryInterview, Points: 2, SummaryKey: KeyClosingBooked},
	{Type: TypeConductedClosing, Category: CategoryInterview, Points: 4, SummaryKey: KeyClosingConducted},
	{Type: "Needs Analysis Completed", Category: CategoryInterview, Points: 2, SummaryKey: "needs_analysis"},
	{Type: "Recruiting Interview", Category: CategoryInterview, Points: 3, SummaryKey: "recruiting_interviews"},

	// sale
	{Type: TypeSaleClosed, Category: CategorySale, Points: 5, SummaryKey: KeySales, RequiresAPIValue: true},
	{Type: "Referral Sale", Category: CategorySale, Points: 6, SummaryKey: KeySales, RequiresAPIValue: true},
	{Type: "Policy Placed", Category: CategorySale, Points: 4, SummaryKey: "policies_placed", RequiresAPIValue: true},
	{Type: "Policy Delivered", Category: CategorySale, Points: 3, SummaryKey: "policies_delivered"},
	{Type: "Premium Deposit", Category: CategorySale, Points: 2, SummaryKey: "premium_deposits",
		Measure: scoring.MeasureCurrency, RequiresAPIValue: true},
	{Type: "Recruit Contracted", Category: CategorySale, Points: 5, SummaryKey: "recruits_contracted"},

	// development
	{Type: "Client Review", Category: CategoryDevelopment, Points: 2, SummaryKey: "client_reviews"},
	{Type: "Training Session", Category: CategoryDevelopment, Points: 1, SummaryKey: "training_minutes",
		Measure: scoring.MeasureMinutes},
	{Type: "Team Meeting", Category: CategoryDevelopment, Points: 1, SummaryKey: "meeting_minutes",
		Measure: scoring.MeasureMinutes},
	{Type: "Licensing Study", Category: CategoryDevelopment, Points: 1, SummaryKey: "study_minutes",
		Measure: scoring.MeasureMinutes},
	{Type: "Field Training", Category: CategoryDevelopment, Points: 2, SummaryKey: "field_training"},
	{Type: "Event Attended", Category: CategoryDevelopment, Points: 2, SummaryKey: "events"},
}

var defaultTable = scoring.NewRuleTable(RulesVersion, ruleRows)

// Rules returns the rule table, built once at process start.
func Rules() *scoring.RuleTable { return defaultTable }
