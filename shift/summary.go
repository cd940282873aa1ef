package shift

import (
	"context"
	"fmt"
	"sort"
	"time"

	cal "github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CALENDAR
// =============================================================================

// NewCalendar returns the business calendar for the named holiday set.
// Known sets: "us" (federal holidays) and "none" (weekends only).
func NewCalendar(name string) (*cal.BusinessCalendar, error) {
	c := cal.NewBusinessCalendar()
	switch name {
	case "", "none":
	case "us":
		c.AddHoliday(
			us.NewYear,
			us.MlkDay,
			us.PresidentsDay,
			us.MemorialDay,
			us.Juneteenth,
			us.IndependenceDay,
			us.LaborDay,
			us.ThanksgivingDay,
			us.ChristmasDay,
		)
	default:
		return nil, fmt.Errorf("unknown holiday calendar %q", name)
	}
	return c, nil
}

// =============================================================================
// MONTHLY SUMMARY
// =============================================================================

// DaySummary is the work time booked on one day.
type DaySummary struct {
	Date    time.Time
	Worked  time.Duration
	TooLong bool
	Holiday string
}

// MonthSummary aggregates the finished shifts started in a month.
type MonthSummary struct {
	EmployeeID EmployeeID
	Contract   *Contract
	Period     Period

	Worked      time.Duration
	WorkedHours decimal.Decimal
	Quota       time.Duration

	// Percentage of the contract quota reached, 0 without a contract.
	Percentage decimal.Decimal

	Workdays int
	Days     []DaySummary
	ByKey    map[ShiftKey]time.Duration
	Shifts   []Shift
}

type Summarizer struct {
	Store     Store
	Contracts ContractStore
	Calendar  *cal.BusinessCalendar
	Policy    Policy
}

// Month summarizes an employee's month. A nil contract covers all shifts.
func (s *Summarizer) Month(ctx context.Context, employee EmployeeID, contract *ContractID, year int, month time.Month, loc *time.Location) (*MonthSummary, error) {
	period := MonthPeriod(year, month, loc)
	summary := &MonthSummary{
		EmployeeID:  employee,
		Period:      period,
		WorkedHours: decimal.Zero,
		Percentage:  decimal.Zero,
		ByKey:       make(map[ShiftKey]time.Duration),
	}
	if contract != nil {
		c, err := resolveContract(ctx, s.Contracts, employee, *contract)
		if err != nil {
			return nil, err
		}
		summary.Contract = c
		summary.Quota = time.Duration(c.Minutes) * time.Minute
	}

	shifts, err := s.Store.List(ctx, ShiftFilter{
		EmployeeID:   employee,
		ContractID:   contract,
		From:         period.Start,
		To:           NextDay(period.End),
		FinishedOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}
	summary.Shifts = shifts

	perDay := make(map[time.Time]time.Duration)
	for _, sh := range shifts {
		summary.Worked += sh.Duration
		summary.ByKey[sh.Key] += sh.Duration
		perDay[DateOf(sh.Started.In(loc))] += sh.Duration
	}
	for day, worked := range perDay {
		ds := DaySummary{Date: day, Worked: worked, TooLong: s.IsTooLong(worked)}
		if s.Calendar != nil {
			if actual, _, h := s.Calendar.IsHoliday(day); actual && h != nil {
				ds.Holiday = h.Name
			}
		}
		summary.Days = append(summary.Days, ds)
	}
	sort.Slice(summary.Days, func(i, j int) bool { return summary.Days[i].Date.Before(summary.Days[j].Date) })

	if s.Calendar != nil {
		for _, day := range period.Days() {
			if s.Calendar.IsWorkday(day) {
				summary.Workdays++
			}
		}
	}

	minutes := decimal.NewFromInt(int64(summary.Worked / time.Minute))
	summary.WorkedHours = minutes.Div(decimal.NewFromInt(60)).Round(2)
	if summary.Quota > 0 {
		quota := decimal.NewFromInt(int64(summary.Quota / time.Minute))
		summary.Percentage = minutes.Div(quota).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return summary, nil
}

// WorkTimeOnDay sums the finished work of an employee started on day.
func (s *Summarizer) WorkTimeOnDay(ctx context.Context, employee EmployeeID, day time.Time) (time.Duration, error) {
	shifts, err := s.Store.List(ctx, ShiftFilter{
		EmployeeID:   employee,
		From:         DateOf(day),
		To:           NextDay(day),
		FinishedOnly: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list shifts: %w", err)
	}
	var total time.Duration
	for _, sh := range shifts {
		total += sh.Duration
	}
	return total, nil
}

// IsTooLong reports whether worked exceeds the daily maximum.
func (s *Summarizer) IsTooLong(worked time.Duration) bool {
	return s.Policy.MaxDaily > 0 && worked > s.Policy.MaxDaily
}
