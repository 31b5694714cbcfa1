package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
	"github.com/pesio-ai/be-timesheet-approvals/internal/logger"
	"github.com/pesio-ai/be-timesheet-approvals/internal/service"
)

// UserIDHeader carries the authenticated user, set by the gateway.
const UserIDHeader = "X-User-ID"

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	approvals *service.ApprovalService
	entries   *service.TimeEntryService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(approvals *service.ApprovalService, entries *service.TimeEntryService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		approvals: approvals,
		entries:   entries,
		log:       log.Component("http"),
	}
}

// RegisterRoutes mounts every route on mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)

	// Email-link pages
	mux.HandleFunc("/approvals/callback", h.ApprovalCallback)
	mux.HandleFunc("/approvals/reject", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.RejectForm(w, r)
		case http.MethodPost:
			h.RejectSubmit(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Approval API
	mux.HandleFunc("/api/v1/approvals", h.ListApprovals)
	mux.HandleFunc("/api/v1/approvals/get", h.GetApproval)
	mux.HandleFunc("/api/v1/approvals/submit", h.SubmitForApproval)
	mux.HandleFunc("/api/v1/approvals/withdraw", h.Withdraw)
	mux.HandleFunc("/api/v1/approvals/status", h.GetApprovalStatus)
	mux.HandleFunc("/api/v1/approvals/history", h.History)

	// Entry API
	mux.HandleFunc("/api/v1/entries", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.CreateEntry(w, r)
		case http.MethodPut:
			h.UpdateEntry(w, r)
		case http.MethodDelete:
			h.DeleteEntry(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/entries/locks", h.EntryLocks)
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ── Email-link pages ──────────────────────────────────────────────────────────

// ApprovalCallback handles GET /approvals/callback?id&action=approve&token.
func (h *HTTPHandler) ApprovalCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	id, token := q.Get("id"), q.Get("token")
	if id == "" || token == "" {
		h.renderPage(w, http.StatusBadRequest, "result", resultPage{Title: "Link incomplete", Message: service.LinkInvalidMessage})
		return
	}

	switch q.Get("action") {
	case "approve":
	case "reject":
		http.Redirect(w, r, "/approvals/reject?"+url.Values{"id": {id}, "token": {token}}.Encode(), http.StatusSeeOther)
		return
	default:
		h.renderPage(w, http.StatusBadRequest, "result", resultPage{Title: "Unknown action", Message: service.LinkInvalidMessage})
		return
	}

	a, err := h.approvals.ApproveViaLink(r.Context(), id, token)
	if err != nil {
		h.renderPage(w, httpStatus(err), "result", resultPage{Title: "Timesheet not approved", Message: service.UserMessage(err)})
		return
	}
	h.renderPage(w, http.StatusOK, "result", resultPage{
		Title:   "Timesheet approved",
		Message: "You approved " + a.TotalHours.StringFixed(2) + " hours on " + a.Project.Name + " for " + periodText(a.Period) + ".",
	})
}

// RejectForm handles GET /approvals/reject?id&token and asks for a reason.
func (h *HTTPHandler) RejectForm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, token := q.Get("id"), q.Get("token")
	if id == "" || token == "" {
		h.renderPage(w, http.StatusBadRequest, "result", resultPage{Title: "Link incomplete", Message: service.LinkInvalidMessage})
		return
	}

	a, err := h.approvals.RejectFormFor(r.Context(), id, token)
	switch {
	case errors.Is(err, approval.ErrInvalidTransition):
		h.renderPage(w, http.StatusConflict, "result", resultPage{Title: "Already processed", Message: service.UserMessage(err)})
		return
	case err != nil:
		h.renderPage(w, httpStatus(err), "result", resultPage{Title: "Link not valid", Message: service.UserMessage(err)})
		return
	}

	submitter := a.SubmitterEmail
	if submitter == "" {
		submitter = "the submitter"
	}
	h.renderPage(w, http.StatusOK, "reject-form", rejectFormPage{
		Title:     "Reject timesheet",
		Action:    "/approvals/reject",
		ID:        id,
		Token:     token,
		Submitter: submitter,
		Project:   a.Project.Name,
		Start:     a.Period.Start.Format(approval.DateLayout),
		End:       a.Period.End.Format(approval.DateLayout),
	})
}

// RejectSubmit handles the POSTed reject form.
func (h *HTTPHandler) RejectSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderPage(w, http.StatusBadRequest, "result", resultPage{Title: "Invalid form", Message: "The form could not be read."})
		return
	}

	id, token, reason := r.PostForm.Get("id"), r.PostForm.Get("token"), r.PostForm.Get("reason")
	a, err := h.approvals.RejectViaLink(r.Context(), id, token, reason)
	if err != nil {
		h.renderPage(w, httpStatus(err), "result", resultPage{Title: "Timesheet not rejected", Message: service.UserMessage(err)})
		return
	}
	h.renderPage(w, http.StatusOK, "result", resultPage{
		Title:   "Timesheet rejected",
		Message: "The timesheet for " + a.Project.Name + ", " + periodText(a.Period) + ", was sent back with your reason.",
	})
}

// ── Approval API ──────────────────────────────────────────────────────────────

type submitRequest struct {
	Project        approval.ProjectSnapshot `json:"project"`
	Client         approval.ClientSnapshot  `json:"client"`
	StartDate      string                   `json:"start_date"`
	EndDate        string                   `json:"end_date"`
	SubmitterEmail string                   `json:"submitter_email"`
}

// SubmitForApproval handles POST /api/v1/approvals/submit.
func (h *HTTPHandler) SubmitForApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	period, err := approval.ParsePeriod(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, err)
		return
	}

	a, err := h.approvals.SubmitForApproval(r.Context(), service.SubmitRequest{
		Project:        req.Project,
		Client:         req.Client,
		Period:         period,
		UserID:         userID,
		SubmitterEmail: req.SubmitterEmail,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// Withdraw handles POST /api/v1/approvals/withdraw.
func (h *HTTPHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		ApprovalID string `json:"approval_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ApprovalID == "" {
		writeError(w, errors.InvalidInput("approval_id", "approval_id is required"))
		return
	}

	a, err := h.approvals.Withdraw(r.Context(), req.ApprovalID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GetApprovalStatus handles GET /api/v1/approvals/status?key= or
// ?project_id&user_id&start&end.
func (h *HTTPHandler) GetApprovalStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	var (
		view approval.StatusView
		err  error
	)
	if key := q.Get("key"); key != "" {
		view, err = h.approvals.GetApprovalStatus(r.Context(), key)
	} else {
		var period approval.Period
		period, err = approval.ParsePeriod(q.Get("start"), q.Get("end"))
		if err == nil {
			view, err = h.approvals.StatusFor(r.Context(), q.Get("project_id"), period, q.Get("user_id"))
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetApproval handles GET /api/v1/approvals/get?id=.
func (h *HTTPHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.InvalidInput("id", "id is required"))
		return
	}
	a, err := h.approvals.GetApproval(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListApprovals handles GET /api/v1/approvals for the authenticated user.
func (h *HTTPHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireSelf(w, r)
	if !ok {
		return
	}

	list, err := h.approvals.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": list, "total": len(list)})
}

// History handles GET /api/v1/approvals/history?id=.
func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, errors.InvalidInput("id", "id is required"))
		return
	}
	events, err := h.approvals.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ── Entry API ─────────────────────────────────────────────────────────────────

type entryRequest struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"client_id"`
	ProjectID   string          `json:"project_id"`
	TaskID      string          `json:"task_id"`
	Date        string          `json:"date"`
	Hours       decimal.Decimal `json:"hours"`
	Description string          `json:"description"`
}

func (req entryRequest) toEntry(userID string) (*approval.TimeEntry, error) {
	date, err := approval.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	return &approval.TimeEntry{
		ID:          req.ID,
		UserID:      userID,
		ClientID:    req.ClientID,
		ProjectID:   req.ProjectID,
		TaskID:      req.TaskID,
		Date:        date,
		Hours:       req.Hours,
		Description: req.Description,
	}, nil
}

// CreateEntry handles POST /api/v1/entries.
func (h *HTTPHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	req.ID = ""
	e, err := req.toEntry(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.entries.CreateEntry(r.Context(), e); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// UpdateEntry handles PUT /api/v1/entries.
func (h *HTTPHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	e, err := req.toEntry(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.entries.UpdateEntry(r.Context(), userID, e); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteEntry handles DELETE /api/v1/entries?id=.
func (h *HTTPHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.entries.DeleteEntry(r.Context(), userID, r.URL.Query().Get("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EntryLocks handles GET /api/v1/entries/locks?project_id&user_id&from&to.
func (h *HTTPHandler) EntryLocks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireSelf(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	period, err := approval.ParsePeriod(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, err)
		return
	}

	rows, err := h.entries.LockStatus(r.Context(), q.Get("project_id"), userID, period.Start, period.End)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": rows})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if userID == "" {
		writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing "+UserIDHeader+" header"))
		return "", false
	}
	return userID, true
}

// requireSelf is requireUser for reads that also accept a user_id query
// parameter, which must name the authenticated user.
func requireSelf(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return "", false
	}
	if q := strings.TrimSpace(r.URL.Query().Get("user_id")); q != "" && q != userID {
		writeError(w, errors.New(errors.ErrCodeForbidden, "user_id does not match the authenticated user"))
		return "", false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code       errors.Code `json:"code"`
	Message    string      `json:"message"`
	Field      string      `json:"field,omitempty"`
	ApprovalID string      `json:"approval_id,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Code: errors.CodeOf(err), Message: service.UserMessage(err)}

	var coded *errors.Error
	if errors.As(err, &coded) {
		body.Field = coded.Field
		if coded.Code == errors.ErrCodeUnauthorized && !errors.Is(err, approval.ErrInvalidToken) && !errors.Is(err, approval.ErrTokenExpired) {
			body.Message = coded.Message
		}
	}
	var conflict *approval.ConflictError
	if errors.As(err, &conflict) {
		body.ApprovalID = conflict.ApprovalID
	}

	writeJSON(w, httpStatus(err), map[string]errorBody{"error": body})
}

func httpStatus(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeLocked:
		return http.StatusLocked
	}
	return http.StatusInternalServerError
}

func periodText(p approval.Period) string {
	return p.Start.Format(approval.DateLayout) + " to " + p.End.Format(approval.DateLayout)
}
