package http

import (
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// formatAmount renders a signed amount with two decimals, e.g. "$1203.75"
// or "$-12.00".
func formatAmount(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// formatMagnitude renders the absolute value of a float amount, the way the
// transaction table shows it.
func formatMagnitude(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "n/a"
	}
	return "$" + decimal.NewFromFloat(amount).Abs().StringFixed(2)
}

// amountClass picks the CSS class for a signed amount.
func amountClass(amount float64) string {
	if amount >= 0 {
		return "text-success"
	}
	return "text-danger"
}

// percentOf returns v as a rounded percentage of top, at least 2 for any
// positive value so tiny bars stay visible.
func percentOf(v, top float64) int {
	if top <= 0 || v <= 0 {
		return 0
	}
	p := int(math.Round(v / top * 100))
	if p < 2 {
		p = 2
	}
	if p > 100 {
		p = 100
	}
	return p
}

// safeCSS marks a colour generated by the palette as trusted CSS.
func safeCSS(s string) template.CSS {
	return template.CSS(s)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"amount":    formatAmount,
		"magnitude": formatMagnitude,
		"class":     amountClass,
		"css":       safeCSS,
		"percent":   percentOf,
		"date": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
		"dict": dict,
	}
}

// dict builds a map from alternating keys and values so a template can pass
// several values to a nested template.
func dict(kv ...any) (map[string]any, error) {
	if len(kv)%2 != 0 {
		return nil, errors.New("dict: odd number of arguments")
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
		}
		m[key] = kv[i+1]
	}
	return m, nil
}

// statusFor maps a service error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}
