package model

import "fmt"

type Status string

const (
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusOverdue   Status = "Overdue"
	StatusLate      Status = "Late"
)

// statusCodes is the numeric encoding the task service uses on the wire.
var statusCodes = []Status{StatusActive, StatusCompleted, StatusOverdue, StatusLate}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusOverdue, StatusLate:
		return true
	}
	return false
}

// Done is true for Completed and Late: both mean the work was finished.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusLate
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// StatusFromCode maps the service's numeric status to a Status.
func StatusFromCode(code int) (Status, error) {
	if code < 0 || code >= len(statusCodes) {
		return "", fmt.Errorf("unknown status code %d", code)
	}
	return statusCodes[code], nil
}

type Priority string

const (
	PriorityNone     Priority = ""
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ParsePriority accepts the empty string as "no priority".
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if p == PriorityNone || p.Valid() {
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// SortOrder names an ordering the service applies to list results.
type SortOrder string

const (
	SortCreateAsc    SortOrder = "CreateAsc"
	SortCreateDesc   SortOrder = "CreateDesc"
	SortPriorityAsc  SortOrder = "PriorityAsc"
	SortPriorityDesc SortOrder = "PriorityDesc"
	SortDeadlineAsc  SortOrder = "DeadlineAsc"
	SortDeadlineDesc SortOrder = "DeadlineDesc"
)

var SortOrders = []SortOrder{
	SortCreateAsc, SortCreateDesc,
	SortPriorityAsc, SortPriorityDesc,
	SortDeadlineAsc, SortDeadlineDesc,
}

func (s SortOrder) Valid() bool {
	for _, o := range SortOrders {
		if s == o {
			return true
		}
	}
	return false
}

func ParseSortOrder(s string) (SortOrder, error) {
	o := SortOrder(s)
	if !o.Valid() {
		return "", fmt.Errorf("invalid sorting %q", s)
	}
	return o, nil
}
