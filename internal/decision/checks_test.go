package decision

import (
	"testing"
	"time"
)

func testLimits(t *testing.T) *limits {
	t.Helper()
	l, err := parseLimits(Limits{
		MaxOrderAmount:   "1.00",
		DailySpendLimit:  "10.00",
		BalanceBuffer:    "0.10",
		MaxOrdersPerHour: 10,
		BulkQuantity:     10,
		AllowedStartHour: 0,
		AllowedEndHour:   24,
	})
	if err != nil {
		t.Fatalf("parseLimits: %v", err)
	}
	return l
}

func baseContext() *OrderContext {
	return &OrderContext{
		Intent:      IntentPurchase,
		Item:        "api-credits",
		Price:       "0.50",
		Quantity:    1,
		Identity:    "0x2222222222222222222222222222222222222222",
		WindowSpent: "0.000000",
		Balance:     "20.000000",
		Now:         time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestCheckIntent(t *testing.T) {
	l := testLimits(t)

	oc := baseContext()
	if s := checkIntent(oc, l); s.Outcome != OutcomePass {
		t.Errorf("purchase intent = %s, want pass", s.Outcome)
	}

	oc.Intent = IntentCancel
	if s := checkIntent(oc, l); s.Outcome != OutcomeFail {
		t.Errorf("cancel intent = %s, want fail", s.Outcome)
	}

	oc = baseContext()
	oc.Quantity = 10
	if s := checkIntent(oc, l); s.Outcome != OutcomeWarn {
		t.Errorf("bulk quantity = %s, want warn", s.Outcome)
	}
}

func TestCheckAmount(t *testing.T) {
	l := testLimits(t)

	cases := []struct {
		price string
		want  Outcome
	}{
		{"0", OutcomeFail},
		{"-1.00", OutcomeFail},
		{"not-a-number", OutcomeFail},
		{"1.50", OutcomeFail}, // above 1.00 ceiling
		{"0.90", OutcomeWarn}, // above 80% of ceiling
		{"0.50", OutcomePass},
		{"1.00", OutcomeWarn}, // exactly at ceiling, above the 80% line
	}
	for _, tc := range cases {
		t.Run(tc.price, func(t *testing.T) {
			oc := baseContext()
			oc.Price = tc.price
			if s := checkAmount(oc, l); s.Outcome != tc.want {
				t.Errorf("price %s outcome = %s, want %s (%s)", tc.price, s.Outcome, tc.want, s.Detail)
			}
		})
	}
}

func TestCheckDaily(t *testing.T) {
	l := testLimits(t)

	cases := []struct {
		spent, price string
		want         Outcome
	}{
		{"9.500000", "1.00", OutcomeFail}, // projected 10.50 over limit
		{"8.500000", "0.60", OutcomeWarn}, // projected 9.10 above 90%
		{"1.000000", "0.50", OutcomePass},
		{"9.000000", "1.00", OutcomeWarn}, // exactly at limit is allowed, but warned
	}
	for _, tc := range cases {
		oc := baseContext()
		oc.WindowSpent = tc.spent
		oc.Price = tc.price
		if s := checkDaily(oc, l); s.Outcome != tc.want {
			t.Errorf("spent %s + price %s outcome = %s, want %s", tc.spent, tc.price, s.Outcome, tc.want)
		}
	}
}

func TestCheckBalance(t *testing.T) {
	l := testLimits(t)

	cases := []struct {
		balance, price string
		want           Outcome
	}{
		{"0.400000", "0.50", OutcomeFail},  // cannot cover price
		{"0.550000", "0.50", OutcomeWarn},  // remaining 0.05 below buffer
		{"20.000000", "0.50", OutcomePass},
	}
	for _, tc := range cases {
		oc := baseContext()
		oc.Balance = tc.balance
		oc.Price = tc.price
		if s := checkBalance(oc, l); s.Outcome != tc.want {
			t.Errorf("balance %s price %s outcome = %s, want %s", tc.balance, tc.price, s.Outcome, tc.want)
		}
	}
}

func TestCheckFrequency(t *testing.T) {
	l := testLimits(t)

	cases := []struct {
		recent int
		want   Outcome
	}{
		{10, OutcomeFail}, // at cap
		{15, OutcomeFail},
		{7, OutcomeWarn}, // 70% of cap
		{3, OutcomePass},
		{0, OutcomePass},
	}
	for _, tc := range cases {
		oc := baseContext()
		oc.RecentOrders = tc.recent
		if s := checkFrequency(oc, l); s.Outcome != tc.want {
			t.Errorf("recent %d outcome = %s, want %s", tc.recent, s.Outcome, tc.want)
		}
	}
}

func TestCheckTemporal(t *testing.T) {
	business, err := parseLimits(Limits{
		MaxOrderAmount:   "1.00",
		DailySpendLimit:  "10.00",
		BalanceBuffer:    "0.10",
		MaxOrdersPerHour: 10,
		AllowedStartHour: 9,
		AllowedEndHour:   17,
	})
	if err != nil {
		t.Fatal(err)
	}

	oc := baseContext()
	oc.Now = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	if s := checkTemporal(oc, business); s.Outcome != OutcomePass {
		t.Errorf("10:00 in 09-17 = %s, want pass", s.Outcome)
	}
	oc.Now = time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	if s := checkTemporal(oc, business); s.Outcome != OutcomeWarn {
		t.Errorf("20:00 in 09-17 = %s, want warn", s.Outcome)
	}

	// Range wrapping midnight.
	night, err := parseLimits(Limits{
		MaxOrderAmount:   "1.00",
		DailySpendLimit:  "10.00",
		BalanceBuffer:    "0.10",
		MaxOrdersPerHour: 10,
		AllowedStartHour: 22,
		AllowedEndHour:   6,
	})
	if err != nil {
		t.Fatal(err)
	}
	oc.Now = time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	if s := checkTemporal(oc, night); s.Outcome != OutcomePass {
		t.Errorf("23:00 in 22-06 = %s, want pass", s.Outcome)
	}
	oc.Now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if s := checkTemporal(oc, night); s.Outcome != OutcomeWarn {
		t.Errorf("12:00 in 22-06 = %s, want warn", s.Outcome)
	}
}

func TestParseLimits_Invalid(t *testing.T) {
	cases := []Limits{
		{MaxOrderAmount: "", DailySpendLimit: "10.00", BalanceBuffer: "0.10", MaxOrdersPerHour: 10},
		{MaxOrderAmount: "1.00", DailySpendLimit: "-5", BalanceBuffer: "0.10", MaxOrdersPerHour: 10},
		{MaxOrderAmount: "1.00", DailySpendLimit: "10.00", BalanceBuffer: "abc", MaxOrdersPerHour: 10},
		{MaxOrderAmount: "1.00", DailySpendLimit: "10.00", BalanceBuffer: "0.10", MaxOrdersPerHour: 0},
	}
	for i, l := range cases {
		if _, err := parseLimits(l); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
