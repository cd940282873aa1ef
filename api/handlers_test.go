/*
handlers_test.go - HTTP tests for the time clock API

Tests for:
- Clock in/out through the router, including the midnight split
- Timestamp handling (naive timestamps rejected) and request validation
- Error mapping (409 overlap with conflicts, 404, 422)
- Recurring creation with skipped occurrences and the preview
- Contracts, the monthly summary and the per-day work time
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clock/shift"
	"github.com/warp/clock/shift/store"
)

var cet = time.FixedZone("CET", 3600)

type testServer struct {
	clock  *shift.FixedClock
	router http.Handler
}

func newTestServer(t *testing.T, now time.Time) *testServer {
	t.Helper()
	clock := shift.NewFixedClock(now)
	h := NewHandler(store.NewTxMemory(), Options{Clock: clock, Location: cet})
	return &testServer{clock: clock, router: NewRouter(h, nil)}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func strPtr(s string) *string { return &s }

// =============================================================================
// CLOCK
// =============================================================================

func TestClockIn_SecondClockInConflicts(t *testing.T) {
	// GIVEN: alice clocked in
	ts := newTestServer(t, time.Date(2024, 3, 1, 8, 0, 0, 0, cet))
	rec := ts.do(t, http.MethodPost, "/api/employees/alice/clock-in", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dto := decode[ShiftDTO](t, rec)
	assert.Equal(t, "running", dto.State)
	assert.Nil(t, dto.Finished)

	// WHEN: clocking in again
	rec = ts.do(t, http.MethodPost, "/api/employees/alice/clock-in", nil)

	// THEN: 409 already_running
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_running", decode[ErrorResponse](t, rec).Code)
}

func TestClockOut_WithoutShift(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 3, 1, 8, 0, 0, 0, cet))

	rec := ts.do(t, http.MethodPost, "/api/employees/alice/clock-out", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_active_shift", decode[ErrorResponse](t, rec).Code)
}

func TestClockOut_SplitsAtMidnight(t *testing.T) {
	// GIVEN: clocked in at 18:00
	ts := newTestServer(t, time.Date(2024, 3, 1, 18, 0, 0, 0, cet))
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/employees/alice/clock-in", nil).Code)

	// WHEN: clocking out at 02:00 the next day
	ts.clock.Set(time.Date(2024, 3, 2, 2, 0, 0, 0, cet))
	rec := ts.do(t, http.MethodPost, "/api/employees/alice/clock-out", nil)

	// THEN: one shift until 23:55 and a carry-over from midnight
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ClockOutResponse](t, rec)
	require.NotNil(t, resp.Shift)
	require.NotNil(t, resp.Carry)
	assert.False(t, resp.Deleted)
	assert.Equal(t, int64(21300), resp.Shift.DurationSeconds)
	assert.Equal(t, "2024-03-01T23:55:00+01:00", *resp.Shift.Finished)
	assert.Equal(t, "2024-03-02T00:00:00+01:00", resp.Carry.Started)
	assert.Equal(t, int64(7200), resp.Carry.DurationSeconds)

	running := decode[RunningResponse](t, ts.do(t, http.MethodGet, "/api/employees/alice/shifts/running", nil))
	assert.Equal(t, "no_active_shift", running.State)
	assert.Nil(t, running.Shift)
}

func TestClockOut_ShortShiftWarning(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 3, 1, 10, 0, 0, 0, cet))
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/employees/alice/clock-in", nil).Code)
	ts.clock.Advance(time.Minute)

	rec := ts.do(t, http.MethodPost, "/api/employees/alice/clock-out", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ClockOutResponse](t, rec)
	assert.True(t, resp.Deleted)
	assert.Nil(t, resp.Shift)
	assert.NotEmpty(t, resp.Warning)
}

func TestTogglePause(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 3, 1, 8, 0, 0, 0, cet))
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/employees/alice/clock-in", nil).Code)

	ts.clock.Advance(time.Hour)
	rec := ts.do(t, http.MethodPost, "/api/employees/alice/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "paused", decode[ShiftDTO](t, rec).State)

	ts.clock.Advance(15 * time.Minute)
	running := decode[RunningResponse](t, ts.do(t, http.MethodGet, "/api/employees/alice/shifts/running", nil))
	assert.Equal(t, "paused", running.State)
	assert.Equal(t, int64(900), running.Paused)

	rec = ts.do(t, http.MethodPost, "/api/employees/alice/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resumed := decode[ShiftDTO](t, rec)
	assert.Equal(t, "running", resumed.State)
	assert.Equal(t, int64(900), resumed.PauseDurationSeconds)
}

// =============================================================================
// SHIFTS
// =============================================================================

func TestCreateShift_NaiveTimestampRejected(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 3, 1, 18, 0, 0, 0, cet))

	rec := ts.do(t, http.MethodPost, "/api/employees/alice/shifts", ShiftRequest{
		Started:  "2024-03-01T09:00:00",
		Finished: "2024-03-01T12:00:00+01:00",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "naive_timestamp", decode[ErrorResponse](t, rec).Code)
}

func TestCreateShift_MalformedTimestamp(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 3, 1, 18, 0, 0, 0, cet))

	rec := ts.do(t, http.MethodPost, "/api/employees/alice/shifts", ShiftRequest{
		Started:  "yesterday",
		Finished: "2024-03-01T12:00:00+01:00",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateShift_RequestValidation(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 3, 1, 18, 0, 0, 0, cet))

	rec := ts.do(t, http.MethodPost, "/api/employees/alice/shifts", ShiftRequest{
		Finished: "2024-03-01T12:00:00+01:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "started is required")

	rec = ts.do(t, http.MethodPost, "/api/employees/alice/shifts", ShiftRequest{
		Started:              "2024-03-01T09:00:00+01:00",
		Finished:             "2024-03-01T12:00:00+01:00",
		PauseDurationSeconds: -60,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "negative pause")

	rec = ts.do(t, http.MethodPost, "/api/employees/alice/contracts", CreateContractRequest{Department: "Library"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "hours are required")
}

func TestCreateShift_OverlapConflict(t *testing.T) {
	// GIVEN: 09:00-12:00 is booked
	ts := newTestServer(t, time.Date(2024, 3, 1, 18, 0, 0, 0, cet))
	rec := ts.do(t, http.MethodPost, "/api/employees/alice/shifts", ShiftRequest{
		Started:              "2024-03-01T09:00:00+01:00",
		Finished:             "2024-03-01T12:00:00+01:00",
		PauseDurationSeconds: 600,
		Tags:                 []string{"desk"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[BatchResponse](t, rec)
	require.Len(t, created.Created, 1)
	assert.Equal(t, int64(3*3600-600), created.Created[0].DurationSeconds)
	assert.Empty(t, created.Skipped)

	// WHEN: booking 10:00-11:00 given in UTC
	rec = ts.do(t, http.MethodPost, "/api/employees/alice/shifts", ShiftRequest{
		Started:  "2024-03-01T09:00:00Z",
		Finished: "2024-03-01T10:00:00Z",
	})

	// THEN: 409 with the conflicting shift
	require.Equal(t, http.StatusConflict, rec.Code)
	var resp struct {
		Code    string        `json:"code"`
		Details []ConflictDTO `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "overlap", resp.Code)
	require.Len(t, resp.Details, 1)
	assert.Equal(t, created.Created[0].ID, resp.Details[0].ShiftID)

	// touching the booked shift is fine
	rec = ts.do(t, http.MethodPost, "/api/employees/alice/shifts", ShiftRequest{
		Started:  "2024-03-01T12:00:00+01:00",
		Finished: "2024-03-01T13:00:00+01:00",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateShift_RuleViolations(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 3, 1, 18, 0, 0, 0, cet))

	tests := []struct {
		name string
		req  ShiftRequest
		code string
	}{
		{"finish before start", ShiftRequest{Started: "2024-03-01T12:00:00+01:00", Finished: "2024-03-01T09:00:00+01:00"}, "invalid_interval"},
		{"crosses midnight", ShiftRequest{Started: "2024-02-28T22:00:00+01:00", Finished: "2024-02-29T02:00:00+01:00"}, "spans_multiple_days"},
		{"in the future", ShiftRequest{Started: "2024-03-01T19:00:00+01:00", Finished: "2024-03-01T20:00:00+01:00"}, "invalid_interval"},
		{"unknown frequency", ShiftRequest{Started: "2024-03-01T09:00:00+01:00", Finished: "2024-03-01T10:00:00+01:00", Frequency: "hourly"}, "invalid_recurrence"},
		{"unknown contract", ShiftRequest{ContractID: strPtr("nope"), Started: "2024-03-01T09:00:00+01:00", Finished: "2024-03-01T10:00:00+01:00"}, "contract_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/employees/alice/shifts", tt.req)
			assert.GreaterOrEqual(t, rec.Code, 400, rec.Body.String())
			assert.Less(t, rec.Code, 500, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestCreateShift_RecurringSkipsConflicts(t *testing.T) {
	// GIVEN: Monday Feb 12 is already booked
	ts := newTestServer(t, time.Date(2024, 3, 1, 18, 0, 0, 0, cet))
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/employees/alice/shifts", ShiftRequest{
		Started:  "2024-02-12T09:30:00+01:00",
		Finished: "2024-02-12T11:00:00+01:00",
	}).Code)

	weekly := ShiftRequest{
		Started:   "2024-02-05T09:00:00+01:00",
		Finished:  "2024-02-05T10:00:00+01:00",
		Frequency: "WEEKLY",
		Until:     strPtr("2024-02-26"),
	}

	// WHEN: previewing the weekly plan
	rec := ts.do(t, http.MethodPost, "/api/employees/alice/shifts/preview", weekly)

	// THEN: Feb 12 is blocked
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[PreviewResponse](t, rec)
	assert.Len(t, preview.WithoutOverlap, 3)
	require.Len(t, preview.WithOverlap, 1)
	assert.Equal(t, "2024-02-12T09:00:00+01:00", preview.WithOverlap[0].Occurrence.Started)
	assert.Len(t, preview.WithOverlap[0].Conflicts, 1)

	// WHEN: creating it
	rec = ts.do(t, http.MethodPost, "/api/employees/alice/shifts", weekly)

	// THEN: three are created, Feb 12 is skipped
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	batch := decode[BatchResponse](t, rec)
	assert.Len(t, batch.Created, 3)
	require.Len(t, batch.Skipped, 1)
	assert.Equal(t, "2024-02-12", batch.Skipped[0].Date)

	// AND: atomic creation of an overlapping plan changes nothing
	weekly.Atomic = true
	rec = ts.do(t, http.MethodPost, "/api/employees/alice/shifts", weekly)
	assert.Equal(t, http.StatusConflict, rec.Code)

	list := decode[[]ShiftDTO](t, ts.do(t, http.MethodGet, "/api/employees/alice/shifts?from=2024-02-01&to=2024-02-29", nil))
	assert.Len(t, list, 4)
}

func TestUpdateAndDeleteShift(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 3, 1, 18, 0, 0, 0, cet))
	rec := ts.do(t, http.MethodPost, "/api/employees/alice/shifts", ShiftRequest{
		Started:  "2024-03-01T09:00:00+01:00",
		Finished: "2024-03-01T12:00:00+01:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[BatchResponse](t, rec).Created[0].ID

	rec = ts.do(t, http.MethodPut, "/api/employees/alice/shifts/"+id, ShiftRequest{
		Started:  "2024-03-01T08:00:00+01:00",
		Finished: "2024-03-01T12:00:00+01:00",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(4*3600), decode[ShiftDTO](t, rec).DurationSeconds)

	rec = ts.do(t, http.MethodDelete, "/api/employees/bob/shifts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other employees cannot delete it")

	rec = ts.do(t, http.MethodDelete, "/api/employees/alice/shifts/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/employees/alice/shifts/"+id, ShiftRequest{
		Started:  "2024-03-01T08:00:00+01:00",
		Finished: "2024-03-01T12:00:00+01:00",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "shift_not_found", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// CONTRACTS AND SUMMARY
// =============================================================================

func TestContracts_CreateListDelete(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 3, 1, 18, 0, 0, 0, cet))

	rec := ts.do(t, http.MethodPost, "/api/employees/alice/contracts", CreateContractRequest{
		Department: "Library",
		Hours:      "10:00",
		StartDate:  strPtr("2024-01-01"),
		EndDate:    strPtr("2024-12-31"),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	contract := decode[ContractDTO](t, rec)
	assert.Equal(t, 600, contract.Minutes)
	assert.Equal(t, "10:00", contract.Hours)

	rec = ts.do(t, http.MethodPost, "/api/employees/alice/contracts", CreateContractRequest{Department: "", Hours: "10:00"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_contract", decode[ErrorResponse](t, rec).Code)

	list := decode[[]ContractDTO](t, ts.do(t, http.MethodGet, "/api/employees/alice/contracts", nil))
	assert.Len(t, list, 1)

	rec = ts.do(t, http.MethodDelete, "/api/employees/bob/contracts/"+contract.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/employees/alice/contracts/"+contract.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSummary(t *testing.T) {
	// GIVEN: a 10h contract with 5h booked in February
	ts := newTestServer(t, time.Date(2024, 3, 1, 18, 0, 0, 0, cet))
	rec := ts.do(t, http.MethodPost, "/api/employees/alice/contracts", CreateContractRequest{Department: "Library", Hours: "10:00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	contractID := decode[ContractDTO](t, rec).ID

	for _, day := range []string{"2024-02-01", "2024-02-02"} {
		finish := "T11:00:00+01:00"
		if day == "2024-02-02" {
			finish = "T12:00:00+01:00"
		}
		rec := ts.do(t, http.MethodPost, "/api/employees/alice/shifts", ShiftRequest{
			ContractID: &contractID,
			Started:    day + "T09:00:00+01:00",
			Finished:   day + finish,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	// WHEN: requesting the February summary
	rec = ts.do(t, http.MethodGet, "/api/employees/alice/summary?year=2024&month=2&contract="+contractID, nil)

	// THEN: 50% of the quota
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[SummaryDTO](t, rec)
	assert.Equal(t, "05:00", summary.Worked)
	assert.Equal(t, "50.00", summary.Percentage)
	assert.Equal(t, 2, summary.ShiftCount)
	assert.Equal(t, "2024-02-01", summary.PeriodStart)

	rec = ts.do(t, http.MethodGet, "/api/employees/alice/summary?month=13", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDay(t *testing.T) {
	// GIVEN: eleven hours booked on March 1
	ts := newTestServer(t, time.Date(2024, 3, 1, 18, 0, 0, 0, cet))
	for _, iv := range [][2]string{{"06:00", "12:00"}, {"12:30", "17:30"}} {
		rec := ts.do(t, http.MethodPost, "/api/employees/alice/shifts", ShiftRequest{
			Started:  "2024-03-01T" + iv[0] + ":00+01:00",
			Finished: "2024-03-01T" + iv[1] + ":00+01:00",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	// WHEN: asking for that day
	rec := ts.do(t, http.MethodGet, "/api/employees/alice/days/2024-03-01", nil)

	// THEN: flagged as above the daily maximum
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	day := decode[DaySummaryDTO](t, rec)
	assert.Equal(t, "2024-03-01", day.Date)
	assert.Equal(t, "11:00", day.Worked)
	assert.True(t, day.TooLong)

	rec = ts.do(t, http.MethodGet, "/api/employees/alice/days/2024-02-29", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	day = decode[DaySummaryDTO](t, rec)
	assert.Equal(t, "00:00", day.Worked)
	assert.False(t, day.TooLong)

	rec = ts.do(t, http.MethodGet, "/api/employees/alice/days/yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 3, 1, 18, 0, 0, 0, cet))

	rec := ts.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}
