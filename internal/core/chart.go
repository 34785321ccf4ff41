package core

import "github.com/shopspring/decimal"

// Chart groups expenses by category and totals income against expenses.
// Labels lists the keys of CategoryTotals in first-seen order; a category
// with no expense never appears.
type Chart struct {
	Labels         []string                   `json:"labels"`
	CategoryTotals map[string]decimal.Decimal `json:"category_totals"`
	TotalIncome    decimal.Decimal            `json:"total_income"`
	TotalExpenses  decimal.Decimal            `json:"total_expenses"`
	Skipped        int                        `json:"skipped,omitempty"`
}

// Aggregate computes the chart aggregate for txs.
func Aggregate(txs []Transaction) Chart {
	c := Chart{
		Labels:         make([]string, 0),
		CategoryTotals: make(map[string]decimal.Decimal),
	}
	for _, t := range txs {
		amt, ok := toDecimal(t.Amount)
		if !ok {
			c.Skipped++
			continue
		}
		switch {
		case amt.IsNegative():
			mag := amt.Abs()
			c.TotalExpenses = c.TotalExpenses.Add(mag)
			total, exists := c.CategoryTotals[t.Category]
			if !exists {
				c.Labels = append(c.Labels, t.Category)
			}
			c.CategoryTotals[t.Category] = total.Add(mag)
		case amt.IsPositive():
			c.TotalIncome = c.TotalIncome.Add(amt)
		}
	}
	return c
}

// HasExpenses reports whether at least one category carries an expense.
func (c Chart) HasExpenses() bool {
	return len(c.Labels) > 0
}

// Breakdown is the per-category expense projection (a doughnut chart).
type Breakdown struct {
	Label      string    `json:"label"`
	Labels     []string  `json:"labels"`
	Values     []float64 `json:"values"`
	Background []string  `json:"background"`
	Border     []string  `json:"border"`
}

// Series is one named value inside a comparison bucket.
type Series struct {
	Label      string  `json:"label"`
	Value      float64 `json:"value"`
	Background string  `json:"background"`
	Border     string  `json:"border"`
}

// Comparison is the income vs expenses projection (a bar chart with a
// single bucket).
type Comparison struct {
	Bucket string   `json:"bucket"`
	Series []Series `json:"series"`
}

var (
	incomeColor  = Color{R: 75, G: 192, B: 192}
	expenseColor = Color{R: 255, G: 99, B: 132}
)

// Breakdown shapes the category totals for display, colouring each category
// with p. A nil palette falls back to DefaultPalette.
func (c Chart) Breakdown(p Palette) Breakdown {
	if p == nil {
		p = DefaultPalette
	}
	b := Breakdown{
		Label:      "Expenses by Category",
		Labels:     append([]string(nil), c.Labels...),
		Values:     make([]float64, len(c.Labels)),
		Background: make([]string, len(c.Labels)),
		Border:     make([]string, len(c.Labels)),
	}
	for i, name := range c.Labels {
		b.Values[i] = c.CategoryTotals[name].InexactFloat64()
		col := p(name)
		b.Background[i] = col.Background()
		b.Border[i] = col.Border()
	}
	return b
}

// Comparison shapes the overall totals for display.
func (c Chart) Comparison() Comparison {
	return Comparison{
		Bucket: "Financial Flow",
		Series: []Series{
			{
				Label:      "Income",
				Value:      c.TotalIncome.InexactFloat64(),
				Background: incomeColor.rgba(0.5),
				Border:     incomeColor.Border(),
			},
			{
				Label:      "Expenses",
				Value:      c.TotalExpenses.InexactFloat64(),
				Background: expenseColor.rgba(0.5),
				Border:     expenseColor.Border(),
			},
		},
	}
}
