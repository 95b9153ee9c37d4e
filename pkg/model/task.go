package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UrgentWindow is how close a deadline has to be for an open task to be urgent.
const UrgentWindow = 3 * 24 * time.Hour

type Urgency string

const (
	UrgencyOverdue Urgency = "overdue"
	UrgencyUrgent  Urgency = "urgent"
	UrgencyNormal  Urgency = "normal"
)

// Task is the client-side copy of a task record held by the remote service.
// Values are replaced wholesale when a fresher copy arrives; nothing mutates
// a Task after NewTask returns it.
type Task struct {
	ID          string
	Name        string
	Description *string
	Deadline    *time.Time
	Priority    Priority
	Status      Status
	CreatedAt   time.Time
	ChangedAt   *time.Time
}

// NewTask builds a Task from already-decoded fields. It rejects an empty
// name, an unknown status or priority, and a changedAt that precedes createdAt.
func NewTask(id, name string, priority Priority, status Status, createdAt time.Time,
	changedAt *time.Time, description *string, deadline *time.Time) (Task, error) {
	if strings.TrimSpace(id) == "" {
		return Task{}, fmt.Errorf("task id is required")
	}
	if strings.TrimSpace(name) == "" {
		return Task{}, fmt.Errorf("task %s: name is required", id)
	}
	if !status.Valid() {
		return Task{}, fmt.Errorf("task %s: unknown status %q", id, string(status))
	}
	if priority != PriorityNone && !priority.Valid() {
		return Task{}, fmt.Errorf("task %s: unknown priority %q", id, string(priority))
	}
	if changedAt != nil && changedAt.Before(createdAt) {
		return Task{}, fmt.Errorf("task %s: changedAt %s precedes createdAt %s",
			id, changedAt.Format(time.RFC3339), createdAt.Format(time.RFC3339))
	}

	return Task{
		ID:          id,
		Name:        name,
		Description: cloneString(description),
		Deadline:    cloneTime(deadline),
		Priority:    priority,
		Status:      status,
		CreatedAt:   createdAt,
		ChangedAt:   cloneTime(changedAt),
	}, nil
}

// IsDone reports whether the task has been completed, on time or late.
func (t Task) IsDone() bool {
	return t.Status.Done()
}

// Urgency classifies the task for display at the given instant.
func (t Task) Urgency(now time.Time) Urgency {
	if t.Status == StatusOverdue {
		return UrgencyOverdue
	}
	if t.Deadline != nil && !t.IsDone() && t.Deadline.Sub(now) <= UrgentWindow {
		return UrgencyUrgent
	}
	return UrgencyNormal
}

// HasDeadline reports whether a deadline is set.
func (t Task) HasDeadline() bool {
	return t.Deadline != nil && !t.Deadline.IsZero()
}

// Clone returns a deep copy so callers can hand out snapshots that share no
// pointers with the original.
func (t Task) Clone() Task {
	t.Description = cloneString(t.Description)
	t.Deadline = cloneTime(t.Deadline)
	t.ChangedAt = cloneTime(t.ChangedAt)
	return t
}

// Equal compares every stored field.
func (t Task) Equal(o Task) bool {
	return t.ID == o.ID &&
		t.Name == o.Name &&
		equalString(t.Description, o.Description) &&
		equalTime(t.Deadline, o.Deadline) &&
		t.Priority == o.Priority &&
		t.Status == o.Status &&
		t.CreatedAt.Equal(o.CreatedAt) &&
		equalTime(t.ChangedAt, o.ChangedAt)
}

// ValidID reports whether id looks like an id the service hands out.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
