package decision

import (
	"fmt"
	"math/big"

	"github.com/mbd888/spendgate/internal/money"
)

// Check weights. A failing check with weight >= criticalWeight rejects the
// order outright regardless of aggregate confidence.
const (
	weightIntent    = 1.0
	weightAmount    = 1.0
	weightDaily     = 0.9
	weightBalance   = 1.0
	weightFrequency = 0.7
	weightTemporal  = 0.3

	criticalWeight = 0.9
)

// Limits is the policy configuration the checks evaluate against.
type Limits struct {
	MaxOrderAmount   string // single-transaction ceiling, decimal
	DailySpendLimit  string // rolling-window ceiling, decimal
	BalanceBuffer    string // warn when remaining balance would drop below this
	MaxOrdersPerHour int
	BulkQuantity     int // quantity at or above which a purchase is flagged bulk
	AllowedStartHour int // permitted ordering hours [start, end)
	AllowedEndHour   int
}

// limits is the parsed form used by the checks.
type limits struct {
	maxOrder  *big.Int
	daily     *big.Int
	buffer    *big.Int
	orderCap  int
	bulkQty   int
	startHour int
	endHour   int
}

func parseLimits(l Limits) (*limits, error) {
	maxOrder, ok := money.ParsePositive(l.MaxOrderAmount)
	if !ok {
		return nil, fmt.Errorf("decision: invalid max order amount %q", l.MaxOrderAmount)
	}
	daily, ok := money.ParsePositive(l.DailySpendLimit)
	if !ok {
		return nil, fmt.Errorf("decision: invalid daily spend limit %q", l.DailySpendLimit)
	}
	buffer, ok := money.Parse(l.BalanceBuffer)
	if !ok {
		return nil, fmt.Errorf("decision: invalid balance buffer %q", l.BalanceBuffer)
	}
	if l.MaxOrdersPerHour <= 0 {
		return nil, fmt.Errorf("decision: order cap must be positive")
	}
	return &limits{
		maxOrder:  maxOrder,
		daily:     daily,
		buffer:    buffer,
		orderCap:  l.MaxOrdersPerHour,
		bulkQty:   l.BulkQuantity,
		startHour: l.AllowedStartHour,
		endHour:   l.AllowedEndHour,
	}, nil
}

// checkFunc is a pure policy check. Checks never mutate shared state; they
// see only the caller's snapshot.
type checkFunc func(oc *OrderContext, l *limits) Step

// checks run in a fixed order; the order is part of the audit contract.
var checks = []checkFunc{
	checkIntent,
	checkAmount,
	checkDaily,
	checkBalance,
	checkFrequency,
	checkTemporal,
}

// checkIntent rejects intents that can never proceed to payment and flags
// bulk quantities for confirmation.
func checkIntent(oc *OrderContext, l *limits) Step {
	if oc.Intent == IntentCancel {
		return Step{
			Check:   CheckIntent,
			Outcome: OutcomeFail,
			Detail:  "cancellation intents cannot proceed to payment",
			Weight:  weightIntent,
		}
	}
	if l.bulkQty > 0 && oc.Quantity >= l.bulkQty {
		return Step{
			Check:   CheckIntent,
			Outcome: OutcomeWarn,
			Detail:  fmt.Sprintf("bulk quantity %d at or above threshold %d", oc.Quantity, l.bulkQty),
			Weight:  weightIntent,
		}
	}
	return Step{
		Check:   CheckIntent,
		Outcome: OutcomePass,
		Detail:  "intent is eligible for payment",
		Weight:  weightIntent,
	}
}

// checkAmount enforces the single-transaction ceiling.
func checkAmount(oc *OrderContext, l *limits) Step {
	price, ok := money.Parse(oc.Price)
	if !ok || price.Sign() <= 0 {
		return Step{
			Check:   CheckAmount,
			Outcome: OutcomeFail,
			Detail:  fmt.Sprintf("price %q must be a positive amount", oc.Price),
			Weight:  weightAmount,
		}
	}
	if price.Cmp(l.maxOrder) > 0 {
		return Step{
			Check:   CheckAmount,
			Outcome: OutcomeFail,
			Detail: fmt.Sprintf("price %s exceeds single-transaction ceiling %s",
				money.Format(price), money.Format(l.maxOrder)),
			Weight: weightAmount,
		}
	}
	// Warn above 80% of the ceiling.
	if price.Cmp(money.Fraction(l.maxOrder, 80, 100)) > 0 {
		return Step{
			Check:   CheckAmount,
			Outcome: OutcomeWarn,
			Detail: fmt.Sprintf("price %s is above 80%% of ceiling %s",
				money.Format(price), money.Format(l.maxOrder)),
			Weight: weightAmount,
		}
	}
	return Step{
		Check:   CheckAmount,
		Outcome: OutcomePass,
		Detail:  "price within single-transaction ceiling",
		Weight:  weightAmount,
	}
}

// checkDaily enforces the rolling-window spend ceiling against the
// caller's ledger snapshot.
func checkDaily(oc *OrderContext, l *limits) Step {
	spent, ok := money.Parse(oc.WindowSpent)
	if !ok {
		spent = new(big.Int)
	}
	price, ok := money.Parse(oc.Price)
	if !ok {
		price = new(big.Int)
	}
	projected := money.Add(spent, price)

	if projected.Cmp(l.daily) > 0 {
		return Step{
			Check:   CheckDaily,
			Outcome: OutcomeFail,
			Detail: fmt.Sprintf("projected spend %s exceeds rolling daily limit %s",
				money.Format(projected), money.Format(l.daily)),
			Weight: weightDaily,
		}
	}
	if projected.Cmp(money.Fraction(l.daily, 90, 100)) > 0 {
		return Step{
			Check:   CheckDaily,
			Outcome: OutcomeWarn,
			Detail: fmt.Sprintf("projected spend %s is above 90%% of daily limit %s",
				money.Format(projected), money.Format(l.daily)),
			Weight: weightDaily,
		}
	}
	return Step{
		Check:   CheckDaily,
		Outcome: OutcomePass,
		Detail:  "projected spend within rolling daily limit",
		Weight:  weightDaily,
	}
}

// checkBalance verifies the settlement balance covers the order.
func checkBalance(oc *OrderContext, l *limits) Step {
	balance, ok := money.Parse(oc.Balance)
	if !ok {
		balance = new(big.Int)
	}
	price, ok := money.Parse(oc.Price)
	if !ok {
		price = new(big.Int)
	}

	if balance.Cmp(price) < 0 {
		return Step{
			Check:   CheckBalance,
			Outcome: OutcomeFail,
			Detail: fmt.Sprintf("available balance %s is below price %s",
				money.Format(balance), money.Format(price)),
			Weight: weightBalance,
		}
	}
	remaining := money.Sub(balance, price)
	if remaining.Cmp(l.buffer) < 0 {
		return Step{
			Check:   CheckBalance,
			Outcome: OutcomeWarn,
			Detail: fmt.Sprintf("remaining balance %s would fall below buffer %s",
				money.Format(remaining), money.Format(l.buffer)),
			Weight: weightBalance,
		}
	}
	return Step{
		Check:   CheckBalance,
		Outcome: OutcomePass,
		Detail:  "settlement balance covers the order",
		Weight:  weightBalance,
	}
}

// checkFrequency enforces the per-window order cap.
func checkFrequency(oc *OrderContext, l *limits) Step {
	if oc.RecentOrders >= l.orderCap {
		return Step{
			Check:   CheckFrequency,
			Outcome: OutcomeFail,
			Detail: fmt.Sprintf("%d recent orders at or above cap %d",
				oc.RecentOrders, l.orderCap),
			Weight: weightFrequency,
		}
	}
	if oc.RecentOrders*10 >= l.orderCap*7 { // 70% of cap
		return Step{
			Check:   CheckFrequency,
			Outcome: OutcomeWarn,
			Detail: fmt.Sprintf("%d recent orders approaching cap %d",
				oc.RecentOrders, l.orderCap),
			Weight: weightFrequency,
		}
	}
	return Step{
		Check:   CheckFrequency,
		Outcome: OutcomePass,
		Detail:  "order frequency within cap",
		Weight:  weightFrequency,
	}
}

// checkTemporal warns on orders outside the permitted hours. [start, end)
// may wrap midnight.
func checkTemporal(oc *OrderContext, l *limits) Step {
	hour := oc.Now.Hour()
	allowed := false
	if l.startHour <= l.endHour {
		allowed = hour >= l.startHour && hour < l.endHour
	} else {
		allowed = hour >= l.startHour || hour < l.endHour
	}
	if !allowed {
		return Step{
			Check:   CheckTemporal,
			Outcome: OutcomeWarn,
			Detail: fmt.Sprintf("order placed at hour %02d outside permitted range %02d-%02d",
				hour, l.startHour, l.endHour),
			Weight: weightTemporal,
		}
	}
	return Step{
		Check:   CheckTemporal,
		Outcome: OutcomePass,
		Detail:  "order within permitted hours",
		Weight:  weightTemporal,
	}
}

// Remediation suggestions per failing check category.
var suggestions = map[string]string{
	CheckAmount:    "reduce the order amount below the single-transaction ceiling",
	CheckDaily:     "wait for the spending window to reset before ordering again",
	CheckBalance:   "top up the settlement balance before retrying",
	CheckFrequency: "slow down order submissions and retry after the window clears",
}
