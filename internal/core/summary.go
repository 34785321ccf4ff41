package core

import "github.com/shopspring/decimal"

// Summary holds the aggregate figures shown on the dashboard. Expenses is a
// non-negative magnitude. Skipped counts transactions whose amount was not
// finite and therefore left out of every total.
type Summary struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
	Skipped  int             `json:"skipped,omitempty"`
}

// Summarize reduces txs to income, expenses and balance. Balance is the sum
// of all amounts, which equals Income minus Expenses.
func Summarize(txs []Transaction) Summary {
	var s Summary
	negative := decimal.Zero
	for _, t := range txs {
		amt, ok := toDecimal(t.Amount)
		if !ok {
			s.Skipped++
			continue
		}
		switch {
		case amt.IsPositive():
			s.Income = s.Income.Add(amt)
		case amt.IsNegative():
			negative = negative.Add(amt)
		}
		s.Balance = s.Balance.Add(amt)
	}
	s.Expenses = negative.Abs()
	return s
}
