package port

import (
	"fmt"
	"time"
)

// RepositoryError reports an unreadable repository or an unresolvable revision.
type RepositoryError struct {
	Path string
	Ref  string
	Err  error
}

func (e *RepositoryError) Error() string {
	msg := "repository " + e.Path
	if e.Ref != "" {
		msg += ": cannot resolve " + e.Ref
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// InvalidScheduleError rejects an explicit scheduling instant in the past.
type InvalidScheduleError struct {
	At  time.Time
	Now time.Time
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("scheduled time %s is in the past (now %s)",
		e.At.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

// NotFoundError signals missing records.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " " + e.Key + " not found"
}

// DuplicateIDError signals an insert for an id that already exists.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return "post " + e.ID + " already exists"
}

// InvalidTransitionError signals a status change the lifecycle does not allow.
type InvalidTransitionError struct {
	ID     string
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := "post " + e.ID + ": cannot move from " + e.From + " to " + e.To
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// PublishError wraps a platform rejection or transport failure.
type PublishError struct {
	Platform string
	Message  string
	Err      error
}

func (e *PublishError) Error() string {
	msg := e.Platform + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PublishError) Unwrap() error { return e.Err }

// ValidationError represents invalid input supplied by clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
