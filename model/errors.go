package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrLineNotFound      = errors.New("reconciliation line not found")
	ErrLineNotEditable   = errors.New("reconciliation line cannot be edited")
	ErrAlreadyReconciled = errors.New("statement line is already reconciled")
)

// DuplicateMatchError is returned when an open item is matched twice on the same statement line.
type DuplicateMatchError struct {
	OpenItemID string
}

func (e *DuplicateMatchError) Error() string {
	return fmt.Sprintf("open item %s is already matched on this statement line", e.OpenItemID)
}

// ValidationError is returned by Validate when the line set cannot be posted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "reconciliation is not valid: " + e.Reason
}

// UserError is a recoverable domain failure discovered while posting.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

// DegenerateRateWarning reports a conversion that fell back to identity because no usable rate exists.
type DegenerateRateWarning struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Date time.Time `json:"date"`
}

func (w *DegenerateRateWarning) Error() string {
	return fmt.Sprintf("no usable rate from %s to %s on %s", w.From, w.To, w.Date.Format("2006-01-02"))
}
