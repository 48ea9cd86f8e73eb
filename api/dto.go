/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Day quantities cross the wire as decimal strings ("2.5"), never as
  floats, so the client renders exactly what the ledger computed.

VALIDATION:
  Validation is done in handlers and domain services, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/ledgerline/leave-engine/leave"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateEmployeeRequest is the request to create an employee.
type CreateEmployeeRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LeaveYearDTO represents a leave year.
type LeaveYearDTO struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Current   bool   `json:"current,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateYearRequest is the request to register a leave year.
type CreateYearRequest struct {
	StartDate string `json:"start_date"` // ISO date
	EndDate   string `json:"end_date"`
}

// PolicyDTO represents an entitlement policy.
type PolicyDTO struct {
	EmployeeID     string `json:"employee_id"`
	LeaveYearID    string `json:"leave_year_id"`
	AllowanceDays  string `json:"allowance_days"`
	CarriedOver    string `json:"carried_over"`
	AdjustmentDays string `json:"adjustment_days"`
	Notes          string `json:"notes,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

// SeedPolicyRequest opens a year for an employee.
type SeedPolicyRequest struct {
	EmployeeID    string  `json:"employee_id"`
	AllowanceDays *string `json:"allowance_days,omitempty"` // default 25
	CarriedOver   *string `json:"carried_over,omitempty"`   // default 0
}

// CorrectPolicyRequest is an audited administrative correction.
// Omitted fields are left unchanged.
type CorrectPolicyRequest struct {
	AllowanceDays  *string `json:"allowance_days,omitempty"`
	CarriedOver    *string `json:"carried_over,omitempty"`
	AdjustmentDays *string `json:"adjustment_days,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// EntryDTO represents a leave entry.
type EntryDTO struct {
	ID           string `json:"id"`
	EmployeeID   string `json:"employee_id"`
	LeaveYearID  string `json:"leave_year_id"`
	Type         string `json:"type"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	DurationDays string `json:"duration_days"`
	Status       string `json:"status"`
	DayPart      string `json:"day_part,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ManagerID    string `json:"manager_id,omitempty"`
	ManagerName  string `json:"manager_name,omitempty"`
	ManagerNotes string `json:"manager_notes,omitempty"`
	DecidedBy    string `json:"decided_by,omitempty"`
	DecidedAt    string `json:"decided_at,omitempty"`
	Version      int    `json:"version"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// CreateEntryRequest submits a leave request.
type CreateEntryRequest struct {
	EmployeeID  string `json:"employee_id"`
	LeaveYearID string `json:"leave_year_id"`
	Type        string `json:"type"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	DayPart     string `json:"day_part,omitempty"` // AM or PM for a half day
	Reason      string `json:"reason,omitempty"`
}

// DiscussionRequest carries the manager's note when parking a request.
type DiscussionRequest struct {
	Notes string `json:"notes,omitempty"`
}

// SummaryDTO is the computed balance for one employee in one year.
type SummaryDTO struct {
	EmployeeID    string `json:"employee_id"`
	LeaveYearID   string `json:"leave_year_id"`
	Allowance     string `json:"allowance"`
	CarriedOver   string `json:"carried_over"`
	TimeInLieu    string `json:"time_in_lieu"`
	Used          string `json:"used"`
	Remaining     string `json:"remaining"`
	SickDays      string `json:"sick_days"`
	VolunteerDays string `json:"volunteer_days"`
	VolunteerCap  string `json:"volunteer_cap"`
	OverAllocated bool   `json:"over_allocated"`
}

// AdjustmentDTO represents a time-in-lieu adjustment.
type AdjustmentDTO struct {
	ID          string `json:"id"`
	EmployeeID  string `json:"employee_id"`
	LeaveYearID string `json:"leave_year_id"`
	Days        string `json:"days"`
	Reason      string `json:"reason,omitempty"`
	Correction  bool   `json:"correction,omitempty"`
	AddedBy     string `json:"added_by"`
	AddedByName string `json:"added_by_name,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// GrantLieuRequest adds time-in-lieu days.
type GrantLieuRequest struct {
	EmployeeID  string `json:"employee_id"`
	LeaveYearID string `json:"leave_year_id"`
	Days        string `json:"days"`
	Reason      string `json:"reason,omitempty"`
	Correction  bool   `json:"correction,omitempty"` // negates days, requires reason
}

// RolloverRequest triggers a year-end rollover.
type RolloverRequest struct {
	FromYearID   string  `json:"from_year_id"`
	MaxCarryOver *string `json:"max_carry_over,omitempty"` // default 5, clamped to [0, 23]
	Basis        string  `json:"basis,omitempty"`          // reset_to_default or copy_previous
}

// RolloverResultDTO is the result of a completed rollover.
type RolloverResultDTO struct {
	RunID     string            `json:"run_id"`
	FromYear  LeaveYearDTO      `json:"from_year"`
	ToYear    LeaveYearDTO      `json:"to_year"`
	Employees int               `json:"employees"`
	MaxCarry  string            `json:"max_carry"`
	Carried   map[string]string `json:"carried"`
}

// RolloverRunDTO is one row of the rollover attempt history.
type RolloverRunDTO struct {
	ID          string `json:"id"`
	FromYearID  string `json:"from_year_id"`
	ToYearID    string `json:"to_year_id,omitempty"`
	Status      string `json:"status"`
	Employees   int    `json:"employees"`
	MaxCarry    string `json:"max_carry"`
	Error       string `json:"error,omitempty"`
	CompletedAt string `json:"completed_at"`
}

// HolidayDTO represents a company holiday.
type HolidayDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring,omitempty"`
}

// AuditRecordDTO is one row of the audit trail.
type AuditRecordDTO struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	ActorID   string `json:"actor_id"`
	TargetID  string `json:"target_id"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toYearDTO(y leave.LeaveYear) LeaveYearDTO {
	return LeaveYearDTO{
		ID:        string(y.ID),
		Label:     y.Label(),
		StartDate: y.StartDate.Format("2006-01-02"),
		EndDate:   y.EndDate.Format("2006-01-02"),
		CreatedAt: y.CreatedAt.Format(time.RFC3339),
	}
}

func toPolicyDTO(p leave.EntitlementPolicy) PolicyDTO {
	return PolicyDTO{
		EmployeeID:     string(p.EmployeeID),
		LeaveYearID:    string(p.LeaveYearID),
		AllowanceDays:  p.AllowanceDays.String(),
		CarriedOver:    p.CarriedOver.String(),
		AdjustmentDays: p.AdjustmentDays.String(),
		Notes:          p.Notes,
		UpdatedAt:      p.UpdatedAt.Format(time.RFC3339),
	}
}

func toEntryDTO(e leave.LeaveEntry) EntryDTO {
	dto := EntryDTO{
		ID:           string(e.ID),
		EmployeeID:   string(e.EmployeeID),
		LeaveYearID:  string(e.LeaveYearID),
		Type:         string(e.Type),
		StartDate:    e.StartDate.Format("2006-01-02"),
		EndDate:      e.EndDate.Format("2006-01-02"),
		DurationDays: e.DurationDays.String(),
		Status:       string(e.Status),
		DayPart:      string(e.DayPart),
		Reason:       e.Reason,
		ManagerID:    string(e.ManagerID),
		ManagerName:  e.ManagerName,
		ManagerNotes: e.ManagerNotes,
		DecidedBy:    string(e.DecidedByID),
		Version:      e.Version,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    e.UpdatedAt.Format(time.RFC3339),
	}
	if e.DecidedAt != nil {
		dto.DecidedAt = e.DecidedAt.Format(time.RFC3339)
	}
	return dto
}

func toEntryDTOs(entries []leave.LeaveEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toSummaryDTO(s leave.Summary) SummaryDTO {
	return SummaryDTO{
		EmployeeID:    string(s.EmployeeID),
		LeaveYearID:   string(s.LeaveYearID),
		Allowance:     s.Allowance.String(),
		CarriedOver:   s.CarriedOver.String(),
		TimeInLieu:    s.TimeInLieu.String(),
		Used:          s.Used.String(),
		Remaining:     s.Remaining.String(),
		SickDays:      s.SickDays.String(),
		VolunteerDays: s.VolunteerDays.String(),
		VolunteerCap:  s.VolunteerCap.String(),
		OverAllocated: s.OverAllocated,
	}
}

func toAdjustmentDTO(a leave.LieuAdjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:          string(a.ID),
		EmployeeID:  string(a.EmployeeID),
		LeaveYearID: string(a.LeaveYearID),
		Days:        a.Days.String(),
		Reason:      a.Reason,
		Correction:  a.Correction,
		AddedBy:     string(a.AddedByID),
		AddedByName: a.AddedByName,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
}
