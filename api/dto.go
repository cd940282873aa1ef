/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the shift engine's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TIMESTAMPS:
  Request timestamps are RFC3339 with an explicit offset. Response
  timestamps are RFC3339 in the server's configured time zone. Dates
  (until, contract start/end) are YYYY-MM-DD.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/clock/shift"
)

// =============================================================================
// SHIFTS
// =============================================================================

// ShiftDTO represents a shift in API responses.
type ShiftDTO struct {
	ID                   string   `json:"id"`
	EmployeeID           string   `json:"employee_id"`
	ContractID           *string  `json:"contract_id"`
	Started              string   `json:"started"`
	Finished             *string  `json:"finished"`
	DurationSeconds      int64    `json:"duration_seconds"`
	PauseStarted         *string  `json:"pause_started,omitempty"`
	PauseDurationSeconds int64    `json:"pause_duration_seconds"`
	Tags                 []string `json:"tags"`
	Note                 string   `json:"note,omitempty"`
	Key                  string   `json:"key,omitempty"`
	State                string   `json:"state"`
	CreatedAt            string   `json:"created_at,omitempty"`
}

// ClockInRequest is the body of a clock-in. The contract is optional.
type ClockInRequest struct {
	ContractID *string `json:"contract_id"`
}

// ClockOutRequest is the body of a clock-out. Finished defaults to now.
type ClockOutRequest struct {
	Finished *string `json:"finished"`
}

// ClockOutResponse reports the finished shift and an optional carry-over.
type ClockOutResponse struct {
	Shift   *ShiftDTO `json:"shift"`
	Carry   *ShiftDTO `json:"carry,omitempty"`
	Deleted bool      `json:"deleted"`
	Warning string    `json:"warning,omitempty"`
}

// RunningResponse is the clock state of an employee.
type RunningResponse struct {
	State  string    `json:"state"`
	Shift  *ShiftDTO `json:"shift"`
	Paused int64     `json:"pause_seconds"`
}

// ShiftRequest creates or updates a shift by hand.
type ShiftRequest struct {
	ContractID           *string  `json:"contract_id"`
	Started              string   `json:"started" validate:"required"`
	Finished             string   `json:"finished" validate:"required"`
	PauseDurationSeconds int64    `json:"pause_duration_seconds" validate:"min=0"`
	Frequency            string   `json:"frequency"`
	Until                *string  `json:"until"`
	Atomic               bool     `json:"atomic"`
	Tags                 []string `json:"tags" validate:"max=20,dive,required,max=64"`
	Note                 string   `json:"note" validate:"max=2000"`
	Key                  string   `json:"key"`
}

// SkippedDTO is an occurrence that could not be created.
type SkippedDTO struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

// BatchResponse is the result of a (recurring) create.
type BatchResponse struct {
	Created []ShiftDTO   `json:"created"`
	Skipped []SkippedDTO `json:"skipped"`
}

// IntervalDTO is a start/finish pair.
type IntervalDTO struct {
	Started  string `json:"started"`
	Finished string `json:"finished"`
}

// BlockedDTO is an occurrence that collides with existing shifts.
type BlockedDTO struct {
	Occurrence IntervalDTO `json:"occurrence"`
	Conflicts  []ShiftDTO  `json:"conflicts"`
}

// PreviewResponse splits the occurrences of a request by overlap.
type PreviewResponse struct {
	WithoutOverlap []IntervalDTO `json:"without_overlap"`
	WithOverlap    []BlockedDTO  `json:"with_overlap"`
}

// ConflictDTO is one existing shift blocking a request.
type ConflictDTO struct {
	ShiftID    string  `json:"shift_id"`
	ContractID *string `json:"contract_id"`
	Started    string  `json:"started"`
	Finished   string  `json:"finished"`
	Duration   string  `json:"duration"`
}

// =============================================================================
// CONTRACTS
// =============================================================================

// ContractDTO represents a contract in API responses.
type ContractDTO struct {
	ID              string  `json:"id"`
	EmployeeID      string  `json:"employee_id"`
	Department      string  `json:"department"`
	DepartmentShort string  `json:"department_short,omitempty"`
	Hours           string  `json:"hours"`
	Minutes         int     `json:"minutes"`
	StartDate       *string `json:"start_date"`
	EndDate         *string `json:"end_date"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// CreateContractRequest is the request to create a contract. Hours is
// HH:MM, HH.MM or whole hours.
type CreateContractRequest struct {
	Department      string  `json:"department"`
	DepartmentShort string  `json:"department_short" validate:"max=16"`
	Hours           string  `json:"hours" validate:"required"`
	StartDate       *string `json:"start_date"`
	EndDate         *string `json:"end_date"`
}

// =============================================================================
// SUMMARY
// =============================================================================

// DaySummaryDTO is the work booked on one day.
type DaySummaryDTO struct {
	Date    string `json:"date"`
	Worked  string `json:"worked"`
	TooLong bool   `json:"too_long"`
	Holiday string `json:"holiday,omitempty"`
}

// SummaryDTO is the monthly overview of an employee.
type SummaryDTO struct {
	EmployeeID  string            `json:"employee_id"`
	ContractID  *string           `json:"contract_id"`
	PeriodStart string            `json:"period_start"`
	PeriodEnd   string            `json:"period_end"`
	Worked      string            `json:"worked"`
	WorkedHours string            `json:"worked_hours"`
	Quota       string            `json:"quota"`
	Percentage  string            `json:"percentage"`
	Workdays    int               `json:"workdays"`
	ShiftCount  int               `json:"shift_count"`
	Days        []DaySummaryDTO   `json:"days"`
	ByKey       map[string]string `json:"by_key"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION
// =============================================================================

func formatTimestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.RFC3339)
}

func formatOptional(t *time.Time, loc *time.Location) *string {
	if t == nil {
		return nil
	}
	s := formatTimestamp(*t, loc)
	return &s
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func contractPtr(id *shift.ContractID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func toShiftDTO(s *shift.Shift, loc *time.Location) ShiftDTO {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	dto := ShiftDTO{
		ID:                   string(s.ID),
		EmployeeID:           string(s.EmployeeID),
		ContractID:           contractPtr(s.ContractID),
		Started:              formatTimestamp(s.Started, loc),
		Finished:             formatOptional(s.Finished, loc),
		DurationSeconds:      int64(s.Duration / time.Second),
		PauseStarted:         formatOptional(s.PauseStarted, loc),
		PauseDurationSeconds: int64(s.PauseDuration / time.Second),
		Tags:                 tags,
		Note:                 s.Note,
		Key:                  string(s.Key),
		State:                string(s.State()),
	}
	if !s.CreatedAt.IsZero() {
		dto.CreatedAt = formatTimestamp(s.CreatedAt, loc)
	}
	return dto
}

func toShiftDTOs(shifts []shift.Shift, loc *time.Location) []ShiftDTO {
	dtos := make([]ShiftDTO, len(shifts))
	for i := range shifts {
		dtos[i] = toShiftDTO(&shifts[i], loc)
	}
	return dtos
}

func toIntervalDTO(iv shift.Interval, loc *time.Location) IntervalDTO {
	return IntervalDTO{Started: formatTimestamp(iv.Start, loc), Finished: formatTimestamp(iv.Finish, loc)}
}

func toConflictDTOs(conflicts []shift.Conflict, loc *time.Location) []ConflictDTO {
	dtos := make([]ConflictDTO, len(conflicts))
	for i, c := range conflicts {
		dtos[i] = ConflictDTO{
			ShiftID:    string(c.ShiftID),
			ContractID: contractPtr(c.ContractID),
			Started:    formatTimestamp(c.Started, loc),
			Finished:   formatTimestamp(c.Finished, loc),
			Duration:   shift.FormatWorkHours(int(c.Duration / time.Minute)),
		}
	}
	return dtos
}

func toContractDTO(c *shift.Contract) ContractDTO {
	dto := ContractDTO{
		ID:              string(c.ID),
		EmployeeID:      string(c.EmployeeID),
		Department:      c.Department,
		DepartmentShort: c.DepartmentShort,
		Hours:           c.Hours(),
		Minutes:         c.Minutes,
		StartDate:       formatDate(c.StartDate),
		EndDate:         formatDate(c.EndDate),
	}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toSummaryDTO(m *shift.MonthSummary) SummaryDTO {
	dto := SummaryDTO{
		EmployeeID:  string(m.EmployeeID),
		PeriodStart: m.Period.Start.Format("2006-01-02"),
		PeriodEnd:   m.Period.End.Format("2006-01-02"),
		Worked:      shift.FormatWorkHours(int(m.Worked / time.Minute)),
		WorkedHours: m.WorkedHours.StringFixed(2),
		Quota:       shift.FormatWorkHours(int(m.Quota / time.Minute)),
		Percentage:  m.Percentage.StringFixed(2),
		Workdays:    m.Workdays,
		ShiftCount:  len(m.Shifts),
		Days:        make([]DaySummaryDTO, len(m.Days)),
		ByKey:       make(map[string]string, len(m.ByKey)),
	}
	if m.Contract != nil {
		id := string(m.Contract.ID)
		dto.ContractID = &id
	}
	for i, d := range m.Days {
		dto.Days[i] = DaySummaryDTO{
			Date:    d.Date.Format("2006-01-02"),
			Worked:  shift.FormatWorkHours(int(d.Worked / time.Minute)),
			TooLong: d.TooLong,
			Holiday: d.Holiday,
		}
	}
	for k, d := range m.ByKey {
		name := string(k)
		if name == "" {
			name = "work"
		}
		dto.ByKey[name] = shift.FormatWorkHours(int(d / time.Minute))
	}
	return dto
}
