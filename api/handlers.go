/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain services.

ENDPOINTS:
  Leave years:
    GET    /api/years                   List leave years
    POST   /api/years                   Register a leave year
    GET    /api/years/current           The current leave year
    GET    /api/years/{id}              Get a leave year
    GET    /api/years/{id}/policies     Policies in the year

  Employees:
    GET    /api/employees               List employees
    POST   /api/employees               Create/update employee
    GET    /api/employees/{id}          Get employee
    GET    /api/employees/{id}/summary  Balance summary for a year
    GET    /api/employees/{id}/policy   Entitlement policy for a year
    POST   /api/employees/{id}/policy   Seed or correct the policy

  Entries:
    GET    /api/entries                 List entries (filterable)
    POST   /api/entries                 Submit a leave request
    GET    /api/entries/{id}            Get an entry
    POST   /api/entries/{id}/approve    Approve
    POST   /api/entries/{id}/reject     Reject
    POST   /api/entries/{id}/discuss    Park as needs_discussion
    POST   /api/entries/{id}/cancel     Request/confirm cancellation
    POST   /api/entries/{id}/cancel/confirm  Confirm pending cancellation
    POST   /api/entries/{id}/cancel/deny     Deny pending cancellation

  Time in lieu:
    GET    /api/lieu                    List adjustments for (employee, year)
    POST   /api/lieu                    Grant or correct

  Admin:
    POST   /api/admin/rollover          Trigger year-end rollover
    GET    /api/admin/rollover/runs     Rollover attempt history
    POST   /api/admin/entries/{id}/cancel  Override cancel
    GET    /api/admin/audit/{target}    Audit trail for a record

ACTOR IDENTITY:
  The acting user is read from the X-Actor-ID header. Authentication is
  out of scope here; an upstream gateway is expected to set the header.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, illegal transitions
  - 404: Record not found
  - 409: Lost concurrency race (retryable after re-fetch)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ledgerline/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    leave.TxStore
	Years    *leave.YearRegistry
	Policies *leave.PolicyService
	Entries  *leave.EntryService
	Ledger   *leave.Ledger
	Lieu     *leave.LieuService
	Rollover *leave.RolloverEngine
}

// NewHandler wires the domain services around one store.
func NewHandler(store leave.TxStore, approver leave.ApproverLookup, events leave.EventSink) *Handler {
	return &Handler{
		Store:    store,
		Years:    leave.NewYearRegistry(store),
		Policies: leave.NewPolicyService(store),
		Entries:  leave.NewEntryService(store, store, approver, events),
		Ledger:   leave.NewLedger(store),
		Lieu:     leave.NewLieuService(store),
		Rollover: leave.NewRolloverEngine(store, events),
	}
}

// actor reads the acting user from the request.
func actor(r *http.Request) leave.EmployeeID {
	return leave.EmployeeID(r.Header.Get("X-Actor-ID"))
}

// =============================================================================
// LEAVE YEAR HANDLERS
// =============================================================================

// ListYears returns all leave years, most recent first.
func (h *Handler) ListYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.Years.ListYears(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list leave years", err)
		return
	}
	dtos := make([]LeaveYearDTO, len(years))
	for i, y := range years {
		dtos[i] = toYearDTO(y)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateYear registers a new leave year.
func (h *Handler) CreateYear(w http.ResponseWriter, r *http.Request) {
	var req CreateYearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	year, err := h.Years.CreateYear(r.Context(), start, end)
	if err != nil {
		writeDomainError(w, "Failed to create leave year", err)
		return
	}
	writeJSON(w, http.StatusCreated, toYearDTO(*year))
}

// CurrentYear returns the leave year containing today.
func (h *Handler) CurrentYear(w http.ResponseWriter, r *http.Request) {
	year, err := h.Years.CurrentYear(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to resolve current year", err)
		return
	}
	dto := toYearDTO(*year)
	dto.Current = true
	writeJSON(w, http.StatusOK, dto)
}

// GetYear returns one leave year.
func (h *Handler) GetYear(w http.ResponseWriter, r *http.Request) {
	year, err := h.Years.GetYear(r.Context(), leave.LeaveYearID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get leave year", err)
		return
	}
	writeJSON(w, http.StatusOK, toYearDTO(*year))
}

// ListYearPolicies returns every entitlement policy in the year.
func (h *Handler) ListYearPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Store.ListPoliciesForYear(r.Context(), leave.LeaveYearID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to list policies", err)
		return
	}
	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = toPolicyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = EmployeeDTO{
			ID:        string(e.ID),
			Name:      e.Name,
			Email:     e.Email,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee creates or updates an employee record.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	emp := leave.Employee{
		ID:        leave.EmployeeID(req.ID),
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeDomainError(w, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, EmployeeDTO{
		ID:    string(emp.ID),
		Name:  emp.Name,
		Email: emp.Email,
	})
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.GetEmployee(r.Context(), leave.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, EmployeeDTO{
		ID:        string(emp.ID),
		Name:      emp.Name,
		Email:     emp.Email,
		CreatedAt: emp.CreatedAt.Format(time.RFC3339),
	})
}

// GetSummary returns the computed leave balance for the employee in a
// year. The year query parameter defaults to the current year.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	emp := leave.EmployeeID(chi.URLParam(r, "id"))
	yearID, ok := h.resolveYear(w, r)
	if !ok {
		return
	}

	summary, err := h.Ledger.Summarize(r.Context(), emp, yearID)
	if err != nil {
		writeDomainError(w, "Failed to compute summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(*summary))
}

// GetPolicy returns the employee's entitlement policy for a year.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	emp := leave.EmployeeID(chi.URLParam(r, "id"))
	yearID, ok := h.resolveYear(w, r)
	if !ok {
		return
	}
	policy, err := h.Policies.Get(r.Context(), emp, yearID)
	if err != nil {
		writeDomainError(w, "Failed to get policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(*policy))
}

// UpsertPolicy seeds or corrects the employee's policy for a year.
// Corrections are audited with the actor and prior values.
func (h *Handler) UpsertPolicy(w http.ResponseWriter, r *http.Request) {
	emp := leave.EmployeeID(chi.URLParam(r, "id"))
	yearID, ok := h.resolveYear(w, r)
	if !ok {
		return
	}

	var req CorrectPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	correction := leave.PolicyCorrection{Notes: req.Notes}
	var parseErr error
	correction.AllowanceDays, parseErr = parseDaysPtr(req.AllowanceDays, parseErr)
	correction.CarriedOver, parseErr = parseDaysPtr(req.CarriedOver, parseErr)
	correction.AdjustmentDays, parseErr = parseDaysPtr(req.AdjustmentDays, parseErr)
	if parseErr != nil {
		writeError(w, http.StatusBadRequest, "Invalid day amount", parseErr)
		return
	}

	policy, err := h.Policies.Correct(r.Context(), emp, yearID, correction, actor(r))
	if err != nil {
		writeDomainError(w, "Failed to update policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(*policy))
}

// resolveYear reads the year query parameter, defaulting to the current
// year. Writes the error response itself when resolution fails.
func (h *Handler) resolveYear(w http.ResponseWriter, r *http.Request) (leave.LeaveYearID, bool) {
	if yearID := r.URL.Query().Get("year"); yearID != "" {
		return leave.LeaveYearID(yearID), true
	}
	year, err := h.Years.CurrentYear(r.Context())
	if err != nil {
		writeDomainError(w, "No current leave year", err)
		return "", false
	}
	return year.ID, true
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// ListEntries returns entries matching the query filters.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.Entries.List(r.Context(), leave.EntryFilter{
		EmployeeID:  leave.EmployeeID(q.Get("employee")),
		LeaveYearID: leave.LeaveYearID(q.Get("year")),
		Type:        leave.LeaveType(q.Get("type")),
		Status:      leave.EntryStatus(q.Get("status")),
	})
	if err != nil {
		writeDomainError(w, "Failed to list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// CreateEntry submits a new leave request.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	who := actor(r)
	empID := leave.EmployeeID(req.EmployeeID)
	if empID == "" {
		empID = who
	}

	entry, err := h.Entries.Create(r.Context(), leave.CreateInput{
		EmployeeID:  empID,
		LeaveYearID: leave.LeaveYearID(req.LeaveYearID),
		Type:        leave.LeaveType(req.Type),
		StartDate:   start,
		EndDate:     end,
		DayPart:     leave.DayPart(req.DayPart),
		Reason:      req.Reason,
		CreatedBy:   who,
	})
	if err != nil {
		writeDomainError(w, "Failed to create entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// GetEntry returns one entry.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Entries.Get(r.Context(), leave.EntryID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// ApproveEntry approves a pending entry.
func (h *Handler) ApproveEntry(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Entries.Approve)
}

// RejectEntry rejects a pending entry.
func (h *Handler) RejectEntry(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Entries.Reject)
}

// DiscussEntry parks a request in needs_discussion with a manager note.
func (h *Handler) DiscussEntry(w http.ResponseWriter, r *http.Request) {
	var req DiscussionRequest
	// Body is optional.
	json.NewDecoder(r.Body).Decode(&req)

	entry, err := h.Entries.MarkNeedsDiscussion(r.Context(), leave.EntryID(chi.URLParam(r, "id")), actor(r), req.Notes)
	if err != nil {
		writeDomainError(w, "Failed to update entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// CancelEntry requests cancellation. Pending requests cancel
// immediately; approved entries move to pending_cancellation.
func (h *Handler) CancelEntry(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Entries.Cancel)
}

// ConfirmCancellation completes a pending cancellation.
func (h *Handler) ConfirmCancellation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Entries.ConfirmCancellation)
}

// DenyCancellation rejects a pending cancellation, restoring the entry.
func (h *Handler) DenyCancellation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Entries.DenyCancellation)
}

// AdminCancelEntry cancels directly, bypassing counter-approval.
func (h *Handler) AdminCancelEntry(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Entries.AdminCancel)
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id leave.EntryID, actor leave.EmployeeID) (*leave.LeaveEntry, error),
) {
	entry, err := op(r.Context(), leave.EntryID(chi.URLParam(r, "id")), actor(r))
	if err != nil {
		writeDomainError(w, "Failed to update entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// =============================================================================
// TIME-IN-LIEU HANDLERS
// =============================================================================

// ListAdjustments returns the lieu history for (employee, year).
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	emp := leave.EmployeeID(r.URL.Query().Get("employee"))
	if emp == "" {
		writeError(w, http.StatusBadRequest, "employee query parameter is required", nil)
		return
	}
	yearID, ok := h.resolveYear(w, r)
	if !ok {
		return
	}
	adjustments, err := h.Lieu.List(r.Context(), emp, yearID)
	if err != nil {
		writeDomainError(w, "Failed to list adjustments", err)
		return
	}
	dtos := make([]AdjustmentDTO, len(adjustments))
	for i, a := range adjustments {
		dtos[i] = toAdjustmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GrantLieu appends a time-in-lieu grant or correction.
func (h *Handler) GrantLieu(w http.ResponseWriter, r *http.Request) {
	var req GrantLieuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	days := leave.ParseDays(req.Days)

	var adj *leave.LieuAdjustment
	var err error
	if req.Correction {
		adj, err = h.Lieu.Correct(r.Context(), leave.EmployeeID(req.EmployeeID), leave.LeaveYearID(req.LeaveYearID), days, req.Reason, actor(r))
	} else {
		adj, err = h.Lieu.Grant(r.Context(), leave.EmployeeID(req.EmployeeID), leave.LeaveYearID(req.LeaveYearID), days, req.Reason, actor(r))
	}
	if err != nil {
		writeDomainError(w, "Failed to add adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(*adj))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerRollover runs the year-end rollover.
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := leave.RolloverInput{
		FromYearID: leave.LeaveYearID(req.FromYearID),
		Basis:      leave.AllowanceBasis(req.Basis),
		Actor:      actor(r),
	}
	if req.MaxCarryOver != nil {
		d := leave.ParseDays(*req.MaxCarryOver)
		in.MaxCarryOver = &d
	}

	result, err := h.Rollover.Run(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Rollover failed", err)
		return
	}

	carried := make(map[string]string, len(result.Carried))
	for emp, days := range result.Carried {
		carried[string(emp)] = days.String()
	}
	writeJSON(w, http.StatusOK, RolloverResultDTO{
		RunID:     result.RunID,
		FromYear:  toYearDTO(result.FromYear),
		ToYear:    toYearDTO(result.ToYear),
		Employees: result.Employees,
		MaxCarry:  result.MaxCarry.String(),
		Carried:   carried,
	})
}

// ListRolloverRuns returns the rollover attempt history.
func (h *Handler) ListRolloverRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Rollover.Runs(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list rollover runs", err)
		return
	}
	dtos := make([]RolloverRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = RolloverRunDTO{
			ID:          run.ID,
			FromYearID:  string(run.FromYearID),
			ToYearID:    string(run.ToYearID),
			Status:      run.Status,
			Employees:   run.Employees,
			MaxCarry:    run.MaxCarry.String(),
			Error:       run.Error,
			CompletedAt: run.CompletedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAudit returns the audit trail for a target record.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListAudit(r.Context(), chi.URLParam(r, "target"))
	if err != nil {
		writeDomainError(w, "Failed to list audit records", err)
		return
	}
	dtos := make([]AuditRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = AuditRecordDTO{
			ID:        rec.ID,
			Action:    rec.Action,
			ActorID:   string(rec.ActorID),
			TargetID:  rec.TargetID,
			Detail:    rec.Detail,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns all company holidays.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list holidays", err)
		return
	}
	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = HolidayDTO{
			ID:        hol.ID,
			Date:      hol.Date.Format("2006-01-02"),
			Name:      hol.Name,
			Recurring: hol.Recurring,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday adds a company holiday.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	hol := leave.Holiday{ID: req.ID, Date: date, Name: req.Name, Recurring: req.Recurring}
	if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
		writeDomainError(w, "Failed to save holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP statuses: missing records
// to 404, caller mistakes to 400, lost races to 409, everything else 500.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case leave.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, leave.ErrConcurrencyConflict), errors.Is(err, leave.ErrRolloverInProgress):
		writeError(w, http.StatusConflict, message, err)
	case leave.IsClientError(err), errors.Is(err, leave.ErrRolloverFailed):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func parseDaysPtr(s *string, carried error) (*leave.Days, error) {
	if carried != nil || s == nil {
		return nil, carried
	}
	d := leave.ParseDays(*s)
	return &d, nil
}
