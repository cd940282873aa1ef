package shift

import (
	"context"
	"fmt"
	"strings"
)

// ValidateContract checks a contract definition. Start and end dates come
// together and the end must lie after the start.
func ValidateContract(c *Contract) error {
	if strings.TrimSpace(c.Department) == "" {
		return invalid(ErrInvalidContract, "department", "a contract needs a department")
	}
	if c.Minutes < 0 {
		return invalid(ErrInvalidContract, "hours", "work hours must not be negative")
	}
	switch {
	case c.StartDate != nil && c.EndDate == nil:
		return invalid(ErrInvalidContract, "end_date", "you need to specify an end date for the contract")
	case c.EndDate != nil && c.StartDate == nil:
		return invalid(ErrInvalidContract, "start_date", "you need to specify a start date for the contract")
	case c.StartDate != nil && !DateOf(*c.EndDate).After(DateOf(*c.StartDate)):
		return invalid(ErrInvalidContract, "end_date", "the end date must lie after the start date")
	}
	return nil
}

// CreateContract validates and stores a new contract.
func CreateContract(ctx context.Context, store ContractStore, c *Contract) error {
	if err := ValidateContract(c); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = NewContractID()
	}
	if err := store.SaveContract(ctx, c); err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}
