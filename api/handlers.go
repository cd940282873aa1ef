/*
handlers.go - HTTP API handlers for the time clock

PURPOSE:
  Exposes the shift engine via REST API. Handles HTTP request/response,
  JSON serialization and timestamp parsing, and delegates to the engine.

ENDPOINTS:
  Clock:
    POST   /api/employees/{id}/clock-in          Start a shift
    POST   /api/employees/{id}/pause             Toggle pause
    POST   /api/employees/{id}/clock-out         Finish (and split) the shift
    GET    /api/employees/{id}/shifts/running    Clock state

  Shifts:
    GET    /api/employees/{id}/shifts            List shifts
    POST   /api/employees/{id}/shifts            Manual or recurring create
    POST   /api/employees/{id}/shifts/preview    Recurrence overlap preview
    PUT    /api/employees/{id}/shifts/{shiftID}  Edit a finished shift
    DELETE /api/employees/{id}/shifts/{shiftID}  Delete a shift

  Contracts:
    GET    /api/employees/{id}/contracts
    POST   /api/employees/{id}/contracts
    DELETE /api/employees/{id}/contracts/{contractID}

  Summary:
    GET    /api/employees/{id}/summary           Monthly overview
    GET    /api/employees/{id}/days/{date}       Work time of one day

TIMESTAMPS:
  Inputs must be RFC3339 with an explicit offset. Naive timestamps are
  rejected instead of being interpreted in some default zone. Accepted
  values are converted into the configured location, which decides what
  "the same day" and "midnight" mean.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input, naive timestamps
  - 404: Shift or contract not found
  - 409: Overlap, already running, no active shift
  - 422: Rule violations (interval, midnight, contract window, recurrence)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The employee comes from the URL.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	cal "github.com/rickar/cal/v2"
	"github.com/warp/clock/shift"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

var validate = validator.New()

// Store is the persistence the API needs: shifts and contracts.
type Store interface {
	shift.Store
	shift.ContractStore
}

// Options configures a Handler. Zero values fall back to defaults.
type Options struct {
	Clock    shift.Clock
	Policy   shift.Policy
	Calendar *cal.BusinessCalendar
	Location *time.Location
	Log      *zap.SugaredLogger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      Store
	Lifecycle  *shift.Lifecycle
	Validator  *shift.Validator
	Summarizer *shift.Summarizer
	Clock      shift.Clock
	Location   *time.Location
	Log        *zap.SugaredLogger
}

// NewHandler creates a new handler with the given store.
func NewHandler(store Store, opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = shift.SystemClock{Location: opts.Location}
	}
	if opts.Policy == (shift.Policy{}) {
		opts.Policy = shift.DefaultPolicy()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	return &Handler{
		Store:     store,
		Lifecycle: shift.NewLifecycle(store, store, opts.Clock, opts.Policy, opts.Log.Named("lifecycle")),
		Validator: shift.NewValidator(store, store, opts.Clock, opts.Policy, opts.Log.Named("validator")),
		Summarizer: &shift.Summarizer{
			Store:     store,
			Contracts: store,
			Calendar:  opts.Calendar,
			Policy:    opts.Policy,
		},
		Clock:    opts.Clock,
		Location: opts.Location,
		Log:      opts.Log,
	}
}

// =============================================================================
// CLOCK HANDLERS
// =============================================================================

// ClockIn starts a shift for the employee.
// POST /api/employees/{id}/clock-in
func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	var req ClockInRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, err := h.Lifecycle.ClockIn(r.Context(), employeeID(r), contractID(req.ContractID))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toShiftDTO(s, h.Location))
}

// TogglePause pauses or resumes the running shift.
// POST /api/employees/{id}/pause
func (h *Handler) TogglePause(w http.ResponseWriter, r *http.Request) {
	s, err := h.Lifecycle.TogglePause(r.Context(), employeeID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toShiftDTO(s, h.Location))
}

// ClockOut finishes the running shift, splitting it at midnight if needed.
// POST /api/employees/{id}/clock-out
func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	var req ClockOutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var finished time.Time
	if req.Finished != nil {
		t, err := h.parseTimestamp("finished", *req.Finished)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		finished = t
	}

	result, err := h.Lifecycle.ClockOut(r.Context(), employeeID(r), finished)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := ClockOutResponse{Deleted: result.Deleted}
	if result.Shift != nil {
		dto := toShiftDTO(result.Shift, h.Location)
		resp.Shift = &dto
	}
	if result.Carry != nil {
		dto := toShiftDTO(result.Carry, h.Location)
		resp.Carry = &dto
	}
	if result.Warning != nil {
		resp.Warning = warningMessage(result.Warning)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRunning returns the clock state of the employee.
// GET /api/employees/{id}/shifts/running
func (h *Handler) GetRunning(w http.ResponseWriter, r *http.Request) {
	s, state, err := h.Lifecycle.Running(r.Context(), employeeID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := RunningResponse{State: string(state)}
	if s != nil {
		dto := toShiftDTO(s, h.Location)
		resp.Shift = &dto
		resp.Paused = int64(s.TotalPause(h.Clock.Now()) / time.Second)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

// ListShifts returns shifts of the employee.
// GET /api/employees/{id}/shifts?from=YYYY-MM-DD&to=YYYY-MM-DD&contract=ID|none
func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := shift.ShiftFilter{EmployeeID: employeeID(r)}

	if v := q.Get("from"); v != "" {
		from, err := h.parseDate("from", v)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := h.parseDate("to", v)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		filter.To = shift.NextDay(to)
	}
	switch v := q.Get("contract"); v {
	case "":
	case "none":
		filter.Unassigned = true
	default:
		id := shift.ContractID(v)
		filter.ContractID = &id
	}

	shifts, err := h.Store.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list shifts", err)
		return
	}

	writeJSON(w, http.StatusOK, toShiftDTOs(shifts, h.Location))
}

// CreateShift validates and stores a manual or recurring shift.
// POST /api/employees/{id}/shifts
func (h *Handler) CreateShift(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readShiftInput(w, r)
	if !ok {
		return
	}

	result, err := h.Validator.Create(r.Context(), in)
	if err != nil {
		if result != nil {
			h.Log.Warnw("recurring shifts partially saved", "employee", in.EmployeeID, "created", len(result.Created()), "error", err)
		}
		h.writeDomainError(w, err)
		return
	}

	resp := BatchResponse{
		Created: toShiftDTOs(result.Created(), h.Location),
		Skipped: []SkippedDTO{},
	}
	for _, o := range result.Skipped() {
		resp.Skipped = append(resp.Skipped, SkippedDTO{
			Date:  o.Date.Format("2006-01-02"),
			Error: o.Err.Error(),
		})
	}
	writeJSON(w, http.StatusCreated, resp)
}

// PreviewShifts reports which occurrences of a request would overlap.
// POST /api/employees/{id}/shifts/preview?exclude=shiftID
func (h *Handler) PreviewShifts(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readShiftInput(w, r)
	if !ok {
		return
	}

	preview, err := h.Validator.Preview(r.Context(), in, shift.ShiftID(r.URL.Query().Get("exclude")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := PreviewResponse{
		WithoutOverlap: make([]IntervalDTO, 0, len(preview.WithoutOverlap)),
		WithOverlap:    make([]BlockedDTO, 0, len(preview.WithOverlap)),
	}
	for _, iv := range preview.WithoutOverlap {
		resp.WithoutOverlap = append(resp.WithoutOverlap, toIntervalDTO(iv, h.Location))
	}
	for _, b := range preview.WithOverlap {
		resp.WithOverlap = append(resp.WithOverlap, BlockedDTO{
			Occurrence: toIntervalDTO(b.Occurrence, h.Location),
			Conflicts:  toShiftDTOs(b.Conflicts, h.Location),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateShift re-validates and stores an edited shift.
// PUT /api/employees/{id}/shifts/{shiftID}
func (h *Handler) UpdateShift(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readShiftInput(w, r)
	if !ok {
		return
	}

	s, err := h.Validator.Update(r.Context(), shift.ShiftID(chi.URLParam(r, "shiftID")), in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toShiftDTO(s, h.Location))
}

// DeleteShift removes a shift.
// DELETE /api/employees/{id}/shifts/{shiftID}
func (h *Handler) DeleteShift(w http.ResponseWriter, r *http.Request) {
	err := h.Validator.Delete(r.Context(), employeeID(r), shift.ShiftID(chi.URLParam(r, "shiftID")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) readShiftInput(w http.ResponseWriter, r *http.Request) (shift.ShiftInput, bool) {
	var req ShiftRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return shift.ShiftInput{}, false
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return shift.ShiftInput{}, false
	}

	in, err := h.toShiftInput(employeeID(r), req)
	if err != nil {
		h.writeDomainError(w, err)
		return shift.ShiftInput{}, false
	}
	return in, true
}

func (h *Handler) toShiftInput(employee shift.EmployeeID, req ShiftRequest) (shift.ShiftInput, error) {
	started, err := h.parseTimestamp("started", req.Started)
	if err != nil {
		return shift.ShiftInput{}, err
	}
	finished, err := h.parseTimestamp("finished", req.Finished)
	if err != nil {
		return shift.ShiftInput{}, err
	}
	freq, err := shift.ParseFrequency(req.Frequency)
	if err != nil {
		return shift.ShiftInput{}, err
	}

	in := shift.ShiftInput{
		EmployeeID:    employee,
		ContractID:    contractID(req.ContractID),
		Started:       started,
		Finished:      finished,
		PauseDuration: time.Duration(req.PauseDurationSeconds) * time.Second,
		Frequency:     freq,
		Tags:          req.Tags,
		Note:          req.Note,
		Key:           shift.ShiftKey(req.Key),
		Atomic:        req.Atomic,
	}
	if req.Until != nil && *req.Until != "" {
		until, err := h.parseDate("until", *req.Until)
		if err != nil {
			return shift.ShiftInput{}, err
		}
		in.Until = &until
	}
	return in, nil
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// ListContracts returns the contracts of the employee.
// GET /api/employees/{id}/contracts
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.Store.ListContracts(r.Context(), employeeID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contracts", err)
		return
	}

	dtos := make([]ContractDTO, len(contracts))
	for i := range contracts {
		dtos[i] = toContractDTO(&contracts[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateContract stores a new contract for the employee.
// POST /api/employees/{id}/contracts
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	minutes, err := shift.ParseWorkHours(req.Hours)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	c := &shift.Contract{
		EmployeeID:      employeeID(r),
		Department:      req.Department,
		DepartmentShort: req.DepartmentShort,
		Minutes:         minutes,
		CreatedAt:       h.Clock.Now(),
	}
	if req.StartDate != nil && *req.StartDate != "" {
		d, err := h.parseDate("start_date", *req.StartDate)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		c.StartDate = &d
	}
	if req.EndDate != nil && *req.EndDate != "" {
		d, err := h.parseDate("end_date", *req.EndDate)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		c.EndDate = &d
	}

	if err := shift.CreateContract(r.Context(), h.Store, c); err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toContractDTO(c))
}

// DeleteContract removes a contract and its shifts.
// DELETE /api/employees/{id}/contracts/{contractID}
func (h *Handler) DeleteContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := shift.ContractID(chi.URLParam(r, "contractID"))

	c, err := h.Store.GetContract(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load contract", err)
		return
	}
	if c == nil || c.EmployeeID != employeeID(r) {
		h.writeDomainError(w, fmt.Errorf("%w: %s", shift.ErrContractNotFound, id))
		return
	}
	if err := h.Store.DeleteContract(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete contract", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SUMMARY HANDLERS
// =============================================================================

// GetSummary returns the monthly summary of the employee.
// GET /api/employees/{id}/summary?year=2024&month=3&contract=ID
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := h.Clock.Now().In(h.Location)
	year, month := now.Year(), now.Month()

	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			writeError(w, http.StatusBadRequest, "Invalid month", fmt.Errorf("month must be 1-12, got %q", v))
			return
		}
		month = time.Month(m)
	}

	var contract *shift.ContractID
	if v := q.Get("contract"); v != "" {
		id := shift.ContractID(v)
		contract = &id
	}

	summary, err := h.Summarizer.Month(r.Context(), employeeID(r), contract, year, month, h.Location)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// GetDay returns the work booked on one day and whether it exceeds the
// daily maximum.
// GET /api/employees/{id}/days/{date}
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	day, err := h.parseDate("date", chi.URLParam(r, "date"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	worked, err := h.Summarizer.WorkTimeOnDay(r.Context(), employeeID(r), day)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DaySummaryDTO{
		Date:    day.Format("2006-01-02"),
		Worked:  shift.FormatWorkHours(int(worked / time.Minute)),
		TooLong: h.Summarizer.IsTooLong(worked),
	})
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the store is reachable.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func employeeID(r *http.Request) shift.EmployeeID {
	return shift.EmployeeID(chi.URLParam(r, "id"))
}

func contractID(s *string) *shift.ContractID {
	if s == nil || *s == "" {
		return nil
	}
	id := shift.ContractID(*s)
	return &id
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// parseTimestamp parses an RFC3339 timestamp with offset and converts it
// into the server's location.
func (h *Handler) parseTimestamp(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return t.In(h.Location), nil
	}
	if _, naiveErr := time.Parse("2006-01-02T15:04:05", value); naiveErr == nil {
		return time.Time{}, &shift.ValidationError{
			Kind:    shift.ErrNaiveTimestamp,
			Field:   field,
			Message: "timestamps must carry a UTC offset, e.g. 2024-03-01T09:00:00+01:00",
		}
	}
	return time.Time{}, &requestError{Field: field, Err: err}
}

// parseDate parses YYYY-MM-DD as midnight in the server's location.
func (h *Handler) parseDate(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(value), h.Location)
	if err != nil {
		return time.Time{}, &requestError{Field: field, Err: err}
	}
	return t, nil
}

// requestError is malformed input that never reached the engine.
type requestError struct {
	Field string
	Err   error
}

func (e *requestError) Error() string { return fmt.Sprintf("invalid %s: %v", e.Field, e.Err) }
func (e *requestError) Unwrap() error { return e.Err }

// writeDomainError maps engine errors to HTTP responses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		overlap *shift.OverlapError
		verr    *shift.ValidationError
		reqErr  *requestError
	)
	switch {
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, shift.ErrNaiveTimestamp):
		writeErrorResponse(w, http.StatusBadRequest, ErrorResponse{
			Error: "Timestamp without timezone", Code: errorCode(err), Details: err.Error(),
		})
	case errors.As(err, &overlap):
		writeErrorResponse(w, http.StatusConflict, ErrorResponse{
			Error: "Shift overlaps existing shifts", Code: errorCode(err),
			Details: toConflictDTOs(overlap.Conflicts, h.Location),
		})
	case shift.IsNotFound(err):
		writeErrorResponse(w, http.StatusNotFound, ErrorResponse{Error: "Not found", Code: errorCode(err), Details: err.Error()})
	case shift.IsConflict(err):
		writeErrorResponse(w, http.StatusConflict, ErrorResponse{Error: "Conflict", Code: errorCode(err), Details: err.Error()})
	case errors.As(err, &verr):
		writeErrorResponse(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: verr.Message, Code: errorCode(err),
			Details: map[string]string{"field": verr.Field},
		})
	case shift.IsClientError(err):
		writeErrorResponse(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "Validation failed", Code: errorCode(err), Details: err.Error()})
	default:
		h.Log.Errorw("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

var errorCodes = []struct {
	err  error
	code string
}{
	{shift.ErrAlreadyRunning, "already_running"},
	{shift.ErrRunningShiftExists, "already_running"},
	{shift.ErrNoActiveShift, "no_active_shift"},
	{shift.ErrOverlap, "overlap"},
	{shift.ErrSpansMultipleDays, "spans_multiple_days"},
	{shift.ErrContractWindow, "contract_window"},
	{shift.ErrInvalidInterval, "invalid_interval"},
	{shift.ErrInvalidRecurrence, "invalid_recurrence"},
	{shift.ErrInvalidContract, "invalid_contract"},
	{shift.ErrContractNotFound, "contract_not_found"},
	{shift.ErrShiftNotFound, "shift_not_found"},
	{shift.ErrNaiveTimestamp, "naive_timestamp"},
}

func errorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

func warningMessage(err error) string {
	var verr *shift.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return err.Error()
}

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

func writeErrorResponse(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}
