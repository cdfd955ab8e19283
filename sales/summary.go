package sales

import "github.com/warp/performance-engine/scoring"

// DerivedFields are computed after bucketing. They are not clamped: a
// negative "cancelled" count means more conducted than booked were logged.
func DerivedFields() []scoring.DerivedField {
	return []scoring.DerivedField{
		{Key: "appointments_cancelled", Minuend: KeyAppointmentsBooked, Subtrahend: KeyAppointmentsConducted},
		{Key: "ffi_cancelled", Minuend: KeyFFIBooked, Subtrahend: KeyFFIConducted},
		{Key: "closing_cancelled", Minuend: KeyClosingBooked, Subtrahend: KeyClosingConducted},
	}
}

// NewCompiler wires the sales rules into a summary compiler.
func NewCompiler(tiers scoring.TierThresholds) *scoring.Compiler {
	return &scoring.Compiler{
		Bonuses: Evaluator(),
		Derived: DerivedFields(),
		Tiers:   tiers,
	}
}
