// Package ledger provides pure funds validation and credit-delta plan
// fragments for commerce-style transactions.
//
// Nothing here touches the store: every function is a pure computation over
// the entity snapshot passed in, so the coordinator can call it once for
// early validation and again for the late re-check before apply.
package ledger

import (
	"fmt"

	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/plan"
	apperrors "github.com/emberwake/warden/internal/platform/errors"
)

var (
	// ErrInvalidCost indicates a negative cost.
	ErrInvalidCost = apperrors.New(apperrors.CodeLedgerInvalidCost, "cost must be non-negative")
	// ErrInvalidBalance indicates the currency field is missing or non-numeric.
	ErrInvalidBalance = apperrors.New(apperrors.CodeLedgerInvalidBalance, "currency balance is missing or not numeric")
	// ErrInsufficientFunds indicates the purchaser cannot cover the cost.
	ErrInsufficientFunds = apperrors.New(apperrors.CodeLedgerInsufficientFunds, "insufficient funds")
)

// FundsCheck is the result of validating a purchaser's funds against a cost.
type FundsCheck struct {
	OK       bool
	Current  float64
	Required float64
	Reason   string
}

// LineItem is a priced unit in a cart.
type LineItem struct {
	// Kind selects the factory that compiles this item.
	Kind string
	// Cost is the item's price in credits.
	Cost float64
	// Quantity defaults to 1 when zero.
	Quantity int
	// Spec carries factory-specific construction data.
	Spec map[string]any
}

// CalculateTotal sums a cart's line item costs, treating a zero quantity as one.
func CalculateTotal(items []LineItem) float64 {
	var total float64
	for _, item := range items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		total += item.Cost * float64(quantity)
	}
	return total
}

// ValidateFunds checks whether the entity's current balance covers the cost.
func ValidateFunds(e entity.Entity, cost float64) (FundsCheck, error) {
	if cost < 0 {
		return FundsCheck{}, ErrInvalidCost
	}
	current, ok := entity.NumberField(e.Fields, entity.CreditsPath)
	if !ok {
		return FundsCheck{}, ErrInvalidBalance
	}
	check := FundsCheck{Current: current, Required: cost}
	if current < cost {
		check.Reason = fmt.Sprintf("balance %v below cost %v", current, cost)
		return check, nil
	}
	check.OK = true
	return check, nil
}

// BuildCreditDelta produces the set-bucket plan fragment that deducts cost
// from the entity's current balance.
func BuildCreditDelta(e entity.Entity, cost float64) (plan.Plan, error) {
	check, err := ValidateFunds(e, cost)
	if err != nil {
		return plan.Plan{}, err
	}
	if !check.OK {
		return plan.Plan{}, apperrors.WithMetadata(apperrors.CodeLedgerInsufficientFunds,
			"insufficient funds", map[string]string{
				"current":  fmt.Sprintf("%v", check.Current),
				"required": fmt.Sprintf("%v", check.Required),
			})
	}
	return plan.SetFields(map[string]any{
		entity.CreditsPath: check.Current - cost,
	}), nil
}
