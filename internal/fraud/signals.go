package fraud

import (
	"math/big"
	"strings"
	"time"

	"github.com/mbd888/paygate/internal/money"
)

// Signal names, used as keys in Assessment.Signals.
const (
	SignalAmount    = "amount"
	SignalBehavior  = "behavior"
	SignalFrequency = "frequency"
	SignalMethod    = "method"
)

// Amount risk contributions.
const (
	amountVeryHighRisk = 0.5
	amountHighRisk     = 0.3
	amountElevatedRisk = 0.1
)

// Behavior risk contributions.
const (
	behaviorNewUserRisk      = 0.2
	behaviorExtremeRisk      = 0.3 // ratio > 10x average
	behaviorHighRisk         = 0.2 // ratio > 5x
	behaviorElevatedRisk     = 0.1 // ratio > 3x
	behaviorFailureSurcharge = 0.1
)

// Frequency risk contributions.
const (
	frequencyBurstRisk    = 0.4
	frequencyDailyMaxRisk = 0.3
	frequencyHourlyRisk   = 0.2
	frequencyDailyRisk    = 0.1
)

// Method risk contributions.
var methodRisks = map[string]float64{
	"CREDIT_CARD":    0.05,
	"DEBIT_CARD":     0.02,
	"BANK_TRANSFER":  0.0,
	"DIGITAL_WALLET": 0.08,
	"CRYPTOCURRENCY": 0.2,
}

const methodUnknownRisk = 0.15

// amountRisk scores the raw size of the requested amount.
func (e *Engine) amountRisk(amount *big.Int) float64 {
	switch {
	case amount.Cmp(e.veryHigh) >= 0:
		return amountVeryHighRisk
	case amount.Cmp(e.high) >= 0:
		return amountHighRisk
	case amount.Cmp(e.elevated) >= 0:
		return amountElevatedRisk
	default:
		return 0
	}
}

// behaviorRisk compares the request against the user's completed-payment
// average. A user with no completed payments gets a flat new-user risk.
// A history of failed payments adds a surcharge either way.
func (e *Engine) behaviorRisk(amount *big.Int, history []HistoryPayment) float64 {
	var risk float64

	total := new(big.Int)
	completed := 0
	failed := 0
	for _, h := range history {
		switch h.Status {
		case StatusCompleted:
			if cents, ok := money.Parse(h.Amount); ok {
				total.Add(total, cents)
			}
			completed++
		case StatusFailed:
			failed++
		}
	}

	if completed == 0 {
		risk = behaviorNewUserRisk
	} else if total.Sign() > 0 {
		avg := new(big.Float).Quo(
			new(big.Float).SetInt(total),
			big.NewFloat(float64(completed)),
		)
		ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), avg).Float64()
		switch {
		case ratio > 10:
			risk = behaviorExtremeRisk
		case ratio > 5:
			risk = behaviorHighRisk
		case ratio > 3:
			risk = behaviorElevatedRisk
		}
	}

	if failed > e.cfg.MaxFailedPayments {
		risk += behaviorFailureSurcharge
	}

	return risk
}

// frequencyRisk scores payment velocity in the hour and day before now.
// Only the single highest matching band applies.
func (e *Engine) frequencyRisk(history []HistoryPayment, now time.Time) float64 {
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	lastHour := 0
	lastDay := 0
	for _, h := range history {
		if h.CreatedAt.After(dayAgo) {
			lastDay++
			if h.CreatedAt.After(hourAgo) {
				lastHour++
			}
		}
	}

	switch {
	case lastHour >= e.cfg.MaxPerHour:
		return frequencyBurstRisk
	case lastDay >= e.cfg.MaxPerDay:
		return frequencyDailyMaxRisk
	case lastHour >= e.cfg.ModeratePerHour:
		return frequencyHourlyRisk
	case lastDay >= e.cfg.ModeratePerDay:
		return frequencyDailyRisk
	default:
		return 0
	}
}

// methodRisk scores the payment method. Unrecognized methods score
// higher than any card or bank rail but below cryptocurrency.
func methodRisk(method string) float64 {
	if risk, ok := methodRisks[strings.ToUpper(method)]; ok {
		return risk
	}
	return methodUnknownRisk
}
