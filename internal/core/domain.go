package core

import (
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

type (
	// Transaction is a single signed monetary record. A positive Amount is
	// income, a negative one is an expense and zero counts as neither.
	Transaction struct {
		ID          string    `json:"id"`
		Description string    `json:"description"`
		Amount      float64   `json:"amount"`
		Category    string    `json:"category"`
		Date        time.Time `json:"date"`
	}

	// Draft carries the user-editable fields of a transaction.
	Draft struct {
		Description string  `json:"description"`
		Amount      float64 `json:"amount"`
		Category    string  `json:"category"`
	}
)

// MaxDescriptionLen is counted in characters, not bytes.
const MaxDescriptionLen = 200

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyCategory      = errors.New("empty category")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrNotFound           = errors.New("transaction not found")
)

// IsIncome reports whether the transaction adds to income.
func (t Transaction) IsIncome() bool {
	return t.Amount > 0
}

// IsExpense reports whether the transaction adds to expenses.
func (t Transaction) IsExpense() bool {
	return t.Amount < 0
}

// Draft returns the editable part of t.
func (t Transaction) Draft() Draft {
	return Draft{Description: t.Description, Amount: t.Amount, Category: t.Category}
}

func (d Draft) Validate() error {
	if strings.TrimSpace(d.Description) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(d.Description) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if !isFinite(d.Amount) {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(d.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// Normalize trims surrounding whitespace from the text fields.
func (d Draft) Normalize() Draft {
	d.Description = strings.TrimSpace(d.Description)
	d.Category = strings.TrimSpace(d.Category)
	return d
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// IsValidation reports whether err stems from rejected user input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrEmptyDescription) ||
		errors.Is(err, ErrEmptyCategory) ||
		errors.Is(err, ErrDescriptionTooLong)
}
