package fraud

import (
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/mbd888/paygate/internal/money"
)

// Engine scores payment requests. Safe for concurrent use; all state is
// read-only after construction.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	// Parsed amount boundaries, in cents.
	veryHigh *big.Int
	high     *big.Int
	elevated *big.Int

	now func() time.Time
}

// NewEngine builds an engine from cfg. Amount boundaries must be valid
// decimal strings.
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	veryHigh, ok := money.Parse(cfg.VeryHighAmount)
	if !ok {
		return nil, fmt.Errorf("fraud: invalid very-high amount threshold %q", cfg.VeryHighAmount)
	}
	high, ok := money.Parse(cfg.HighAmount)
	if !ok {
		return nil, fmt.Errorf("fraud: invalid high amount threshold %q", cfg.HighAmount)
	}
	elevated, ok := money.Parse(cfg.ElevatedAmount)
	if !ok {
		return nil, fmt.Errorf("fraud: invalid elevated amount threshold %q", cfg.ElevatedAmount)
	}

	return &Engine{
		cfg:      cfg,
		logger:   logger,
		veryHigh: veryHigh,
		high:     high,
		elevated: elevated,
		now:      time.Now,
	}, nil
}

// Score evaluates one payment request against the user's history.
// History entries with unparseable amounts are skipped rather than
// failing the whole assessment.
func (e *Engine) Score(req Request, history []HistoryPayment) (Assessment, error) {
	amount, ok := money.Parse(req.Amount)
	if !ok {
		return Assessment{}, fmt.Errorf("fraud: invalid amount %q", req.Amount)
	}

	signals := map[string]float64{
		SignalAmount:    e.amountRisk(amount),
		SignalBehavior:  e.behaviorRisk(amount, history),
		SignalFrequency: e.frequencyRisk(history, e.now()),
		SignalMethod:    methodRisk(req.Method),
	}

	var sum float64
	for _, v := range signals {
		sum += v
	}
	score := round2(math.Min(sum, 1.0))

	assessment := Assessment{
		Score:   score,
		Tier:    TierFor(score),
		Blocked: score > e.cfg.BlockThreshold,
		Signals: signals,
	}

	if assessment.Blocked {
		e.logger.Warn("payment blocked by fraud engine",
			"score", assessment.Score,
			"tier", assessment.Tier,
			"amount", req.Amount,
			"method", req.Method)
	}

	return assessment, nil
}

// round2 rounds half-up to two decimal places.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
