// Package fraud scores payment requests for fraud risk.
//
// Four independent signals (amount, behavior, frequency, method) each
// contribute a bounded amount; the engine sums them, clamps to [0, 1],
// and classifies the result into a tier. Scoring is deterministic for a
// given request, history, and clock reading — there is no hidden state,
// which keeps blocked payments reproducible for audit.
package fraud

import "time"

// Tier classifies a fraud score.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

// Tier boundaries: LOW ≤ 0.2 < MEDIUM ≤ 0.5 < HIGH.
const (
	lowTierMax    = 0.2
	mediumTierMax = 0.5
)

// History entry statuses the signals care about.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Request is the slice of a payment request the engine scores.
type Request struct {
	Amount string // decimal string, e.g. "100.00"
	Method string // payment method tag, case-insensitive
}

// HistoryPayment is a prior payment from the user's ledger history.
type HistoryPayment struct {
	Amount    string
	Status    string
	CreatedAt time.Time
}

// Assessment is the outcome of scoring one request.
type Assessment struct {
	Score   float64            `json:"score"`
	Tier    Tier               `json:"tier"`
	Blocked bool               `json:"blocked"`
	Signals map[string]float64 `json:"signals"`
}

// Config holds the tunable thresholds for the signal calculators and the
// block decision. Passed in at construction so deployments can tune
// without rebuilding and tests can pin values.
type Config struct {
	// BlockThreshold: scores strictly above this are blocked.
	BlockThreshold float64

	// Amount risk boundaries (decimal strings, inclusive).
	VeryHighAmount string
	HighAmount     string
	ElevatedAmount string

	// Frequency risk boundaries (counts, inclusive).
	MaxPerHour      int
	MaxPerDay       int
	ModeratePerHour int
	ModeratePerDay  int

	// Behavior risk: failed payments strictly above this add a surcharge.
	MaxFailedPayments int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		BlockThreshold:    0.5,
		VeryHighAmount:    "15000.00",
		HighAmount:        "5000.00",
		ElevatedAmount:    "1000.00",
		MaxPerHour:        3,
		MaxPerDay:         10,
		ModeratePerHour:   2,
		ModeratePerDay:    5,
		MaxFailedPayments: 3,
	}
}

// TierFor returns the tier for a score.
func TierFor(score float64) Tier {
	switch {
	case score > mediumTierMax:
		return TierHigh
	case score > lowTierMax:
		return TierMedium
	default:
		return TierLow
	}
}
