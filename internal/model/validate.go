package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput marks structural problems in a placement request.
// It is never used for items that merely cannot be placed.
var ErrInvalidInput = errors.New("invalid placement input")

// InputError lists every structural problem found in a request.
type InputError struct {
	Problems []string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidInput, strings.Join(e.Problems, "; "))
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// ValidateRequest checks items and containers for missing IDs, duplicate IDs,
// non-positive dimensions and negative priorities.
// It returns nil or an *InputError.
func ValidateRequest(items []Item, containers []Container) error {
	var problems []string

	containerIDs := make(map[string]bool, len(containers))
	for i, c := range containers {
		if c.ID == "" {
			problems = append(problems, fmt.Sprintf("container %d: missing containerId", i+1))
		} else if containerIDs[c.ID] {
			problems = append(problems, fmt.Sprintf("container %s: duplicate containerId", c.ID))
		}
		containerIDs[c.ID] = true
		if c.Width <= 0 || c.Depth <= 0 || c.Height <= 0 {
			problems = append(problems, fmt.Sprintf("container %s: dimensions must be positive", c.ID))
		}
	}

	itemIDs := make(map[string]bool, len(items))
	for i, it := range items {
		if it.ID == "" {
			problems = append(problems, fmt.Sprintf("item %d: missing itemId", i+1))
		} else if itemIDs[it.ID] {
			problems = append(problems, fmt.Sprintf("item %s: duplicate itemId", it.ID))
		}
		itemIDs[it.ID] = true
		if it.Width <= 0 || it.Depth <= 0 || it.Height <= 0 {
			problems = append(problems, fmt.Sprintf("item %s: dimensions must be positive", it.ID))
		}
		if it.Priority < 0 {
			problems = append(problems, fmt.Sprintf("item %s: priority must not be negative", it.ID))
		}
	}

	if len(problems) > 0 {
		return &InputError{Problems: problems}
	}
	return nil
}
