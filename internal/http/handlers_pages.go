package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

type dashboardPage struct {
	View    services.DashboardView
	Form    FormValues
	Errors  FormErrors
	Message string
}

type editPage struct {
	Transaction core.Transaction
	Categories  []string
	Criteria    core.Criteria
	Form        FormValues
	Errors      FormErrors
	Message     string
}

// bar is one row of a server-rendered bar chart.
type bar struct {
	Label      string
	Value      float64
	Background string
	Border     string
	Width      int
}

type statsPage struct {
	View      services.StatsView
	Breakdown []bar
	Flow      []bar
}

// dashboardURL rebuilds the dashboard location, keeping the active filter.
func dashboardURL(c core.Criteria) string {
	q := url.Values{}
	if c.Search != "" {
		q.Set("q", c.Search)
	}
	if c.Category != "" {
		q.Set("category", c.Category)
	}
	if len(q) == 0 {
		return "/"
	}
	return "/?" + q.Encode()
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view := s.svc.Dashboard(r.Context(), ParseCriteria(r.URL.Query()))
	s.render(w, r, http.StatusOK, "dashboard.html", dashboardPage{View: view})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Parse form error", applog.FieldError, err)
		ErrorResponse(http.StatusBadRequest, "Invalid request format").Write(w)
		return
	}
	criteria := ParseFilterForm(r.PostForm)

	draft, vals, errs := ParseDraftForm(r.PostForm)
	if errs.Any() {
		s.render(w, r, http.StatusUnprocessableEntity, "dashboard.html", dashboardPage{
			View:   s.svc.Dashboard(ctx, criteria),
			Form:   vals,
			Errors: errs,
		})
		return
	}

	if _, err := s.svc.Create(ctx, draft); err != nil {
		s.logMutationError(r, applog.OpCreate, err)
		s.render(w, r, statusFor(err), "dashboard.html", dashboardPage{
			View:    s.svc.Dashboard(ctx, criteria),
			Form:    vals,
			Message: "Could not add transaction: " + err.Error(),
		})
		return
	}

	NewResponse().SeeOther(dashboardURL(criteria)).Write(w)
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.svc.Get(ctx, r.PathValue("id"))
	if err != nil {
		s.writePageError(w, r, err)
		return
	}

	s.render(w, r, http.StatusOK, "edit.html", editPage{
		Transaction: t,
		Categories:  s.svc.Dashboard(ctx, core.Criteria{}).Categories,
		Criteria:    ParseCriteria(r.URL.Query()),
		Form: FormValues{
			Description: t.Description,
			Amount:      strconv.FormatFloat(t.Amount, 'f', -1, 64),
			Category:    t.Category,
		},
	})
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "Invalid request format").Write(w)
		return
	}
	criteria := ParseFilterForm(r.PostForm)

	t, err := s.svc.Get(ctx, id)
	if err != nil {
		s.writePageError(w, r, err)
		return
	}

	page := editPage{
		Transaction: t,
		Categories:  s.svc.Dashboard(ctx, core.Criteria{}).Categories,
		Criteria:    criteria,
	}

	draft, vals, errs := ParseDraftForm(r.PostForm)
	page.Form = vals
	if errs.Any() {
		page.Errors = errs
		s.render(w, r, http.StatusUnprocessableEntity, "edit.html", page)
		return
	}

	if _, err := s.svc.Update(ctx, id, draft); err != nil {
		s.logMutationError(r, applog.OpUpdate, err)
		if errors.Is(err, core.ErrNotFound) {
			s.writePageError(w, r, err)
			return
		}
		page.Message = "Could not update transaction: " + err.Error()
		s.render(w, r, statusFor(err), "edit.html", page)
		return
	}

	NewResponse().SeeOther(dashboardURL(criteria)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "Invalid request format").Write(w)
		return
	}

	if err := s.svc.Delete(ctx, r.PathValue("id")); err != nil {
		s.logMutationError(r, applog.OpDelete, err)
		s.writePageError(w, r, err)
		return
	}

	NewResponse().SeeOther(dashboardURL(ParseFilterForm(r.PostForm))).Write(w)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	view := s.svc.Stats(r.Context())
	s.render(w, r, http.StatusOK, "stats.html", statsPage{
		View:      view,
		Breakdown: breakdownBars(view.Breakdown),
		Flow:      comparisonBars(view.Comparison),
	})
}

func breakdownBars(b core.Breakdown) []bar {
	top := 0.0
	for _, v := range b.Values {
		if v > top {
			top = v
		}
	}
	bars := make([]bar, len(b.Labels))
	for i, label := range b.Labels {
		bars[i] = bar{
			Label:      label,
			Value:      b.Values[i],
			Background: b.Background[i],
			Border:     b.Border[i],
			Width:      percentOf(b.Values[i], top),
		}
	}
	return bars
}

func comparisonBars(c core.Comparison) []bar {
	top := 0.0
	for _, s := range c.Series {
		if s.Value > top {
			top = s.Value
		}
	}
	bars := make([]bar, len(c.Series))
	for i, s := range c.Series {
		bars[i] = bar{
			Label:      s.Label,
			Value:      s.Value,
			Background: s.Background,
			Border:     s.Border,
			Width:      percentOf(s.Value, top),
		}
	}
	return bars
}

func (s *Server) writePageError(w http.ResponseWriter, r *http.Request, err error) {
	switch statusFor(err) {
	case http.StatusNotFound:
		NotFoundError("Transaction not found").Write(w)
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", applog.FieldError, err)
		InternalServerError("Something went wrong").Write(w)
	}
}

func (s *Server) logMutationError(r *http.Request, op string, err error) {
	logger := applog.FromContext(r.Context())
	fields := applog.NewFields().WithOperation(op).WithError(err).ToSlice()
	if statusFor(err) >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Transaction mutation failed", fields...)
		return
	}
	logger.WarnContext(r.Context(), "Transaction mutation rejected", fields...)
}
