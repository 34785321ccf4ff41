// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Form and JSON input both end up as a core.Draft; form input additionally
// reports errors per field so the page can show them next to the inputs.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"bilancio/internal/core"
)

const maxBodyBytes = 1 << 20

// FormErrors holds one message per invalid form field.
type FormErrors struct {
	Description string
	Amount      string
	Category    string
}

// Any reports whether at least one field is invalid.
func (e FormErrors) Any() bool {
	return e.Description != "" || e.Amount != "" || e.Category != ""
}

// FormValues echoes the raw submitted values back into a re-rendered form.
type FormValues struct {
	Description string
	Amount      string
	Category    string
	NewCategory string
}

// ParseDraftForm reads a transaction form. A non-empty new_category takes
// precedence over the category select.
func ParseDraftForm(form url.Values) (core.Draft, FormValues, FormErrors) {
	vals := FormValues{
		Description: sanitizeInput(form.Get("description")),
		Amount:      strings.TrimSpace(form.Get("amount")),
		Category:    sanitizeInput(form.Get("category")),
		NewCategory: sanitizeInput(form.Get("new_category")),
	}

	var errs FormErrors
	d := core.Draft{Description: vals.Description, Category: vals.Category}
	if vals.NewCategory != "" {
		d.Category = vals.NewCategory
	}

	switch {
	case d.Description == "":
		errs.Description = "Description is required"
	case utf8.RuneCountInString(d.Description) > core.MaxDescriptionLen:
		errs.Description = fmt.Sprintf("Description is too long (max %d characters)", core.MaxDescriptionLen)
	}

	if vals.Amount == "" {
		errs.Amount = "Amount is required"
	} else if amt, err := core.ParseAmount(vals.Amount); err != nil {
		errs.Amount = "Amount must be a number"
	} else {
		d.Amount = amt
	}

	if d.Category == "" {
		errs.Category = "Category is required"
	}

	return d, vals, errs
}

// ParseCriteria reads the dashboard filter from the q and category query
// parameters.
func ParseCriteria(query url.Values) core.Criteria {
	return core.Criteria{
		Search:   strings.TrimSpace(query.Get("q")),
		Category: strings.TrimSpace(query.Get("category")),
	}
}

// ParseFilterForm reads the dashboard filter carried along by a posted form,
// so the redirect after a mutation lands on the same filtered view.
func ParseFilterForm(form url.Values) core.Criteria {
	return core.Criteria{
		Search:   strings.TrimSpace(form.Get("filter_q")),
		Category: strings.TrimSpace(form.Get("filter_category")),
	}
}

// draftRequest accepts the amount either as a JSON number or as a string, so
// API clients can send "12,50" the same way the form does.
type draftRequest struct {
	Description string          `json:"description"`
	Amount      json.RawMessage `json:"amount"`
	Category    string          `json:"category"`
}

var errMissingAmount = fmt.Errorf("amount is required: %w", core.ErrInvalidAmount)

// DecodeDraftJSON decodes a transaction draft from a JSON request body.
func DecodeDraftJSON(w http.ResponseWriter, r *http.Request) (core.Draft, error) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var req draftRequest
	if err := dec.Decode(&req); err != nil {
		return core.Draft{}, fmt.Errorf("decode request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return core.Draft{}, errors.New("decode request body: unexpected trailing data")
	}

	amount, err := parseJSONAmount(req.Amount)
	if err != nil {
		return core.Draft{}, err
	}
	return core.Draft{
		Description: sanitizeInput(req.Description),
		Amount:      amount,
		Category:    sanitizeInput(req.Category),
	}, nil
}

func parseJSONAmount(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errMissingAmount
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("amount: %w", core.ErrInvalidAmount)
	}
	v, err := core.ParseAmount(s)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	return v, nil
}
