/*
validator.go - Manual and recurring shift creation

PURPOSE:
  Validates shifts entered by hand and materializes recurring ones. Every
  candidate goes through the same checks:

    1. finish must lie after start
    2. the shift must last at least the minimum (5 minutes)
    3. start and finish must fall on the same calendar day
    4. the contract must belong to the employee, and the shift (or the
       recurrence's until date) must not lie beyond the contract end
    5. no overlap with existing shifts on the same contract scope

RECURRENCE:
  The first occurrence is the primary shift. Every further date produced by
  Expand is validated on its own; failures are recorded in the BatchResult
  and skipped, the rest of the batch is kept. With ShiftInput.Atomic the
  whole batch runs in one transaction and the first failure aborts it.

FUTURE SHIFTS:
  Single shifts record work already done and must not lie in the future.
  Recurring requests plan ahead and are exempt.

SEE ALSO:
  - overlap.go: FindOverlaps
  - recurrence.go: Expand / Occurrences
*/
package shift

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

// ShiftInput is a manually entered shift, optionally recurring.
type ShiftInput struct {
	EmployeeID    EmployeeID
	ContractID    *ContractID
	Started       time.Time
	Finished      time.Time
	PauseDuration time.Duration

	Frequency Frequency
	Until     *time.Time

	Tags []string
	Note string
	Key  ShiftKey

	// Atomic makes a recurring batch all-or-nothing.
	Atomic bool
}

// OccurrenceResult is the outcome for one recurrence date.
type OccurrenceResult struct {
	Date  time.Time
	Shift *Shift
	Err   error
}

// BatchResult holds the primary shift and the outcome of every further
// occurrence, in date order.
type BatchResult struct {
	Primary     *Shift
	Occurrences []OccurrenceResult
}

// Created returns all persisted shifts including the primary.
func (b *BatchResult) Created() []Shift {
	out := []Shift{*b.Primary}
	for _, o := range b.Occurrences {
		if o.Shift != nil {
			out = append(out, *o.Shift)
		}
	}
	return out
}

// Skipped returns the occurrences that failed validation.
func (b *BatchResult) Skipped() []OccurrenceResult {
	var out []OccurrenceResult
	for _, o := range b.Occurrences {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// =============================================================================
// VALIDATOR
// =============================================================================

type Validator struct {
	Store     Store
	Contracts ContractStore
	Clock     Clock
	Policy    Policy
	Log       *zap.SugaredLogger
}

func NewValidator(store Store, contracts ContractStore, clock Clock, policy Policy, log *zap.SugaredLogger) *Validator {
	return &Validator{Store: store, Contracts: contracts, Clock: clock, Policy: policy, Log: orNop(log)}
}

// Create validates and persists a shift and, for recurring input, one shift
// per further occurrence. When a non-atomic batch fails to persist an
// occurrence, Create returns the error together with the BatchResult of
// everything saved so far.
func (v *Validator) Create(ctx context.Context, in ShiftInput) (*BatchResult, error) {
	in = normalize(in)
	contract, err := v.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	if !in.Atomic || in.Frequency == Once {
		return v.create(ctx, v.Store, in, contract)
	}
	tx, ok := v.Store.(TxStore)
	if !ok {
		return nil, ErrStoreRequired
	}
	var result *BatchResult
	err = tx.WithTx(ctx, func(st Store) error {
		var txErr error
		result, txErr = v.create(ctx, st, in, contract)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (v *Validator) create(ctx context.Context, st Store, in ShiftInput, contract *Contract) (*BatchResult, error) {
	planned := in.Frequency != Once
	primaryIv := Interval{Start: in.Started, Finish: in.Finished}
	if err := v.check(ctx, st, in, contract, primaryIv, "", planned); err != nil {
		return nil, err
	}

	primary := v.build(in, primaryIv)
	if err := st.Save(ctx, primary); err != nil {
		return nil, fmt.Errorf("failed to save shift: %w", err)
	}
	result := &BatchResult{Primary: primary}
	if !planned {
		return result, nil
	}

	for _, iv := range Occurrences(primaryIv, *in.Until, in.Frequency)[1:] {
		occ := OccurrenceResult{Date: DateOf(iv.Start)}
		if err := v.check(ctx, st, in, contract, iv, "", true); err != nil {
			if in.Atomic {
				return nil, fmt.Errorf("occurrence %s: %w", occ.Date.Format("2006-01-02"), err)
			}
			v.log().Infow("skipped recurring shift", "employee", in.EmployeeID, "date", occ.Date.Format("2006-01-02"), "reason", err)
			occ.Err = err
			result.Occurrences = append(result.Occurrences, occ)
			continue
		}
		s := v.build(in, iv)
		if err := st.Save(ctx, s); err != nil {
			return result, fmt.Errorf("failed to save shift on %s: %w", occ.Date.Format("2006-01-02"), err)
		}
		occ.Shift = s
		result.Occurrences = append(result.Occurrences, occ)
	}
	return result, nil
}

// Update re-validates a manual edit of a finished shift.
func (v *Validator) Update(ctx context.Context, id ShiftID, in ShiftInput) (*Shift, error) {
	in = normalize(in)
	if in.Frequency != Once {
		return nil, invalid(ErrInvalidRecurrence, "frequency", "an existing shift cannot be turned into a recurrence")
	}
	existing, err := v.owned(ctx, in.EmployeeID, id)
	if err != nil {
		return nil, err
	}
	if existing.IsRunning() {
		return nil, invalid(ErrInvalidInterval, "finished", "a running shift must be clocked out before editing")
	}
	contract, err := v.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	iv := Interval{Start: in.Started, Finish: in.Finished}
	if err := v.check(ctx, v.Store, in, contract, iv, id, false); err != nil {
		return nil, err
	}

	updated := v.build(in, iv)
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	if err := v.Store.Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to save shift: %w", err)
	}
	return updated, nil
}

// Delete removes a shift of the employee.
func (v *Validator) Delete(ctx context.Context, employee EmployeeID, id ShiftID) error {
	if _, err := v.owned(ctx, employee, id); err != nil {
		return err
	}
	if err := v.Store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete shift: %w", err)
	}
	return nil
}

// =============================================================================
// PREVIEW - Dry run of a recurrence
// =============================================================================

// Blocked is an occurrence that would collide with existing shifts.
type Blocked struct {
	Occurrence Interval
	Conflicts  []Shift
}

// Preview splits the occurrences of a request by whether they overlap.
type Preview struct {
	WithoutOverlap []Interval
	WithOverlap    []Blocked
}

// Preview reports which occurrences of in would be free or blocked without
// persisting anything. Request-level rules (steps 1-4) still apply.
func (v *Validator) Preview(ctx context.Context, in ShiftInput, exclude ShiftID) (*Preview, error) {
	in = normalize(in)
	contract, err := v.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	primaryIv := Interval{Start: in.Started, Finish: in.Finished}
	if err := v.checkRules(in, contract, primaryIv, true); err != nil {
		return nil, err
	}

	until := in.Started
	if in.Until != nil {
		until = *in.Until
	}
	checker := &OverlapChecker{Store: v.Store}
	preview := &Preview{}
	for _, iv := range Occurrences(primaryIv, until, in.Frequency) {
		conflicts, err := checker.Check(ctx, Candidate{
			EmployeeID: in.EmployeeID,
			ContractID: in.ContractID,
			Interval:   iv,
			ExcludeID:  exclude,
		})
		if err != nil {
			return nil, err
		}
		if len(conflicts) == 0 {
			preview.WithoutOverlap = append(preview.WithoutOverlap, iv)
		} else {
			preview.WithOverlap = append(preview.WithOverlap, Blocked{Occurrence: iv, Conflicts: conflicts})
		}
	}
	return preview, nil
}

// =============================================================================
// CHECKS
// =============================================================================

// prepare validates request-level fields and resolves the contract.
func (v *Validator) prepare(ctx context.Context, in ShiftInput) (*Contract, error) {
	if _, err := ParseFrequency(string(in.Frequency)); err != nil {
		return nil, err
	}
	if !in.Key.Valid() {
		return nil, invalid(ErrInvalidInterval, "key", fmt.Sprintf("unknown shift key %q", in.Key))
	}
	if in.Frequency != Once {
		if in.Until == nil {
			return nil, invalid(ErrInvalidRecurrence, "until", "a recurring shift needs an until date")
		}
		if DateOf(in.Until.In(in.Started.Location())).Before(DateOf(in.Started)) {
			return nil, invalid(ErrInvalidRecurrence, "until", "the until date lies before the first shift")
		}
		if limit := v.Policy.MaxOccurrences; limit > 0 {
			if _, more := ExpandLimit(in.Started, *in.Until, in.Frequency, limit); more {
				return nil, invalid(ErrInvalidRecurrence, "until", fmt.Sprintf("a recurrence may not produce more than %d shifts", limit))
			}
		}
	}
	if err := v.checkInterval(in, Interval{Start: in.Started, Finish: in.Finished}); err != nil {
		return nil, err
	}
	if in.ContractID == nil {
		return nil, nil
	}
	contract, err := resolveContract(ctx, v.Contracts, in.EmployeeID, *in.ContractID)
	if err != nil {
		return nil, err
	}
	if end := contract.EndDate; end != nil && in.Frequency != Once &&
		DateOf(in.Until.In(end.Location())).After(DateOf(*end)) {
		return nil, invalid(ErrContractWindow, "until", "cannot plan shifts beyond the contract end")
	}
	return contract, nil
}

// check runs the per-candidate rules and the overlap check.
func (v *Validator) check(ctx context.Context, st Store, in ShiftInput, contract *Contract, iv Interval, exclude ShiftID, planned bool) error {
	if err := v.checkRules(in, contract, iv, planned); err != nil {
		return err
	}
	checker := &OverlapChecker{Store: st}
	conflicts, err := checker.Check(ctx, Candidate{
		EmployeeID: in.EmployeeID,
		ContractID: in.ContractID,
		Interval:   iv,
		ExcludeID:  exclude,
	})
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return newOverlapError(iv, conflicts)
	}
	return nil
}

func (v *Validator) checkRules(in ShiftInput, contract *Contract, iv Interval, planned bool) error {
	if err := v.checkInterval(in, iv); err != nil {
		return err
	}
	if !planned {
		now := v.Clock.Now()
		if iv.Start.After(now) {
			return invalid(ErrInvalidInterval, "started", "a shift must not start in the future")
		}
		if iv.Finish.After(now) {
			return invalid(ErrInvalidInterval, "finished", "a shift must not finish in the future")
		}
	}
	if contract != nil {
		if vErr := checkContractDay(contract, iv.Start); vErr != nil {
			return vErr
		}
	}
	return nil
}

// checkInterval holds the rules that depend on the interval alone.
func (v *Validator) checkInterval(in ShiftInput, iv Interval) error {
	if !iv.Finish.After(iv.Start) {
		return invalid(ErrInvalidInterval, "finished", "the shift cannot end before or at its start")
	}
	if iv.Length() < v.Policy.MinDuration {
		return invalid(ErrInvalidInterval, "finished", "the shift is too short")
	}
	if !SameDay(iv.Start, iv.Finish) {
		return invalid(ErrSpansMultipleDays, "finished", "a shift must start and finish on the same day")
	}
	if in.PauseDuration < 0 || in.PauseDuration > iv.Length() {
		return invalid(ErrInvalidInterval, "pause_duration", "a pause may not be longer than the shift")
	}
	return nil
}

func (v *Validator) build(in ShiftInput, iv Interval) *Shift {
	finished := iv.Finish
	s := &Shift{
		ID:            NewShiftID(),
		EmployeeID:    in.EmployeeID,
		ContractID:    in.ContractID,
		Started:       iv.Start,
		Finished:      &finished,
		PauseDuration: in.PauseDuration,
		Tags:          append([]string(nil), in.Tags...),
		Note:          in.Note,
		Key:           in.Key,
		CreatedAt:     v.Clock.Now(),
	}
	s.Recompute()
	return s
}

func (v *Validator) owned(ctx context.Context, employee EmployeeID, id ShiftID) (*Shift, error) {
	s, err := v.Store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load shift: %w", err)
	}
	if s == nil || s.EmployeeID != employee {
		return nil, fmt.Errorf("%w: %s", ErrShiftNotFound, id)
	}
	return s, nil
}

func (v *Validator) log() *zap.SugaredLogger { return orNop(v.Log) }

func normalize(in ShiftInput) ShiftInput {
	if in.Frequency == "" {
		in.Frequency = Once
	}
	in.Finished = in.Finished.In(in.Started.Location())
	return in
}

// resolveContract loads a contract and makes sure it belongs to employee.
func resolveContract(ctx context.Context, contracts ContractStore, employee EmployeeID, id ContractID) (*Contract, error) {
	if contracts == nil {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, id)
	}
	c, err := contracts.GetContract(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}
	if c == nil || c.EmployeeID != employee {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, id)
	}
	return c, nil
}

// checkContractDay rejects shifts starting outside the contract dates.
func checkContractDay(c *Contract, started time.Time) *ValidationError {
	if c.EndDate != nil && DateOf(started.In(c.EndDate.Location())).After(DateOf(*c.EndDate)) {
		return invalid(ErrContractWindow, "started", "cannot plan shifts beyond the contract end")
	}
	if c.StartDate != nil && DateOf(started.In(c.StartDate.Location())).Before(DateOf(*c.StartDate)) {
		return invalid(ErrContractWindow, "started", "the shift starts before the contract")
	}
	return nil
}
