package fraud

import (
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/mbd888/paygate/internal/logging"
	"github.com/mbd888/paygate/internal/money"
)

func mustCents(t *testing.T, s string) *big.Int {
	t.Helper()
	cents, ok := money.Parse(s)
	if !ok {
		t.Fatalf("money.Parse(%q) failed", s)
	}
	return cents
}

func TestAmountRiskBands(t *testing.T) {
	e := testEngine(t)

	cases := []struct {
		amount string
		want   float64
	}{
		{"999.99", 0},
		{"1000.00", 0.1},
		{"4999.99", 0.1},
		{"5000.00", 0.3},
		{"14999.99", 0.3},
		{"15000.00", 0.5},
		{"75000.00", 0.5},
	}
	for _, tc := range cases {
		if got := e.amountRisk(mustCents(t, tc.amount)); got != tc.want {
			t.Errorf("amountRisk(%s) = %v, want %v", tc.amount, got, tc.want)
		}
	}
}

func TestBehaviorRiskNewUser(t *testing.T) {
	e := testEngine(t)

	if got := e.behaviorRisk(mustCents(t, "100.00"), nil); got != behaviorNewUserRisk {
		t.Errorf("behaviorRisk(new user) = %v, want %v", got, behaviorNewUserRisk)
	}

	// Failed-only history still counts as no completed payments.
	history := []HistoryPayment{
		{Amount: "50.00", Status: StatusFailed},
	}
	if got := e.behaviorRisk(mustCents(t, "100.00"), history); got != behaviorNewUserRisk {
		t.Errorf("behaviorRisk(failed-only) = %v, want %v", got, behaviorNewUserRisk)
	}
}

func TestBehaviorRiskRatioBands(t *testing.T) {
	e := testEngine(t)

	// Three completed payments averaging 100.00.
	history := []HistoryPayment{
		{Amount: "80.00", Status: StatusCompleted},
		{Amount: "100.00", Status: StatusCompleted},
		{Amount: "120.00", Status: StatusCompleted},
	}

	cases := []struct {
		amount string
		want   float64
	}{
		{"100.00", 0},    // 1x
		{"300.00", 0},    // exactly 3x, band requires strictly above
		{"350.00", 0.1},  // 3.5x
		{"550.00", 0.2},  // 5.5x
		{"1500.00", 0.3}, // 15x
	}
	for _, tc := range cases {
		if got := e.behaviorRisk(mustCents(t, tc.amount), history); got != tc.want {
			t.Errorf("behaviorRisk(%s vs avg 100.00) = %v, want %v", tc.amount, got, tc.want)
		}
	}
}

func TestBehaviorRiskFailureSurcharge(t *testing.T) {
	e := testEngine(t)

	history := []HistoryPayment{
		{Amount: "100.00", Status: StatusCompleted},
		{Amount: "10.00", Status: StatusFailed},
		{Amount: "10.00", Status: StatusFailed},
		{Amount: "10.00", Status: StatusFailed},
		{Amount: "10.00", Status: StatusFailed},
	}

	// Ratio 1x contributes nothing; four failures exceed the limit of three.
	if got := e.behaviorRisk(mustCents(t, "100.00"), history); got != behaviorFailureSurcharge {
		t.Errorf("behaviorRisk = %v, want %v", got, behaviorFailureSurcharge)
	}

	// Exactly three failures: no surcharge.
	if got := e.behaviorRisk(mustCents(t, "100.00"), history[:4]); got != 0 {
		t.Errorf("behaviorRisk with 3 failures = %v, want 0", got)
	}
}

func TestFrequencyRiskBands(t *testing.T) {
	e := testEngine(t)
	now := e.now()

	at := func(ago time.Duration) HistoryPayment {
		return HistoryPayment{Amount: "10.00", Status: StatusCompleted, CreatedAt: now.Add(-ago)}
	}

	cases := []struct {
		name    string
		history []HistoryPayment
		want    float64
	}{
		{"empty", nil, 0},
		{"one recent", []HistoryPayment{at(10 * time.Minute)}, 0},
		{"two in hour", []HistoryPayment{at(10 * time.Minute), at(40 * time.Minute)}, frequencyHourlyRisk},
		{"three in hour", []HistoryPayment{at(10 * time.Minute), at(30 * time.Minute), at(50 * time.Minute)}, frequencyBurstRisk},
		{"five in day", []HistoryPayment{
			at(2 * time.Hour), at(5 * time.Hour), at(8 * time.Hour), at(12 * time.Hour), at(20 * time.Hour),
		}, frequencyDailyRisk},
		{"ten in day", []HistoryPayment{
			at(2 * time.Hour), at(3 * time.Hour), at(4 * time.Hour), at(5 * time.Hour), at(6 * time.Hour),
			at(7 * time.Hour), at(8 * time.Hour), at(9 * time.Hour), at(10 * time.Hour), at(11 * time.Hour),
		}, frequencyDailyMaxRisk},
		{"old history", []HistoryPayment{at(25 * time.Hour), at(48 * time.Hour)}, 0},
	}

	for _, tc := range cases {
		if got := e.frequencyRisk(tc.history, now); got != tc.want {
			t.Errorf("%s: frequencyRisk = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFrequencyRiskOrderIndependent(t *testing.T) {
	e := testEngine(t)
	now := e.now()

	at := func(ago time.Duration) HistoryPayment {
		return HistoryPayment{Amount: "10.00", Status: StatusCompleted, CreatedAt: now.Add(-ago)}
	}

	// Three in the last hour plus older noise: burst band regardless of
	// the order the rows arrive in.
	history := []HistoryPayment{
		at(10 * time.Minute), at(30 * time.Minute), at(50 * time.Minute),
		at(5 * time.Hour), at(20 * time.Hour), at(30 * time.Hour),
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		rng.Shuffle(len(history), func(a, b int) {
			history[a], history[b] = history[b], history[a]
		})
		if got := e.frequencyRisk(history, now); got != frequencyBurstRisk {
			t.Fatalf("shuffle %d: frequencyRisk = %v, want %v", i, got, frequencyBurstRisk)
		}
	}
}

func TestMethodRisk(t *testing.T) {
	cases := []struct {
		method string
		want   float64
	}{
		{"BANK_TRANSFER", 0},
		{"DEBIT_CARD", 0.02},
		{"CREDIT_CARD", 0.05},
		{"credit_card", 0.05},
		{"Digital_Wallet", 0.08},
		{"CRYPTOCURRENCY", 0.2},
		{"CARRIER_PIGEON", 0.15},
		{"", 0.15},
	}
	for _, tc := range cases {
		if got := methodRisk(tc.method); got != tc.want {
			t.Errorf("methodRisk(%q) = %v, want %v", tc.method, got, tc.want)
		}
	}
}

func TestBehaviorRiskSkipsUnparseableAmounts(t *testing.T) {
	e, err := NewEngine(DefaultConfig(), logging.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	history := []HistoryPayment{
		{Amount: "100.00", Status: StatusCompleted},
		{Amount: "garbage", Status: StatusCompleted},
	}

	// Average over 2 completed = 50.00; 600.00 is 12x -> extreme band.
	if got := e.behaviorRisk(mustCents(t, "600.00"), history); got != behaviorExtremeRisk {
		t.Errorf("behaviorRisk = %v, want %v", got, behaviorExtremeRisk)
	}
}
