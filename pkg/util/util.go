package util

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/taskdeck/pkg/colors"
	"github.com/harrisonrobin/taskdeck/pkg/controller"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

// TaskIDProperty is the private extended property linking an event to its task.
const TaskIDProperty = "taskdeck_id"

// EventDuration is the length of the calendar block placed at a deadline.
const EventDuration = 30 * time.Minute

var taskIDRegex = regexp.MustCompile(`ID: ([a-fA-F0-9\-]+)`)

// Prefix is the summary marker for a task's display state.
func Prefix(v controller.TaskView) string {
	switch {
	case v.Done:
		return "✓"
	case v.Urgency == model.UrgencyOverdue:
		return "!"
	case v.Urgency == model.UrgencyUrgent:
		return "‣"
	}
	return ""
}

// EventNeedsUpdate returns a patch holding the fields of target that differ
// from existing, or nil when the event is current.
func EventNeedsUpdate(existing *calendar.Event, target *calendar.Event) (*calendar.Event, error) {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}

	if existing.Start == nil || existing.End == nil {
		patch.Start = target.Start
		patch.End = target.End
		return patch, nil
	}
	existingStart, err := time.Parse(time.RFC3339, existing.Start.DateTime)
	if err != nil {
		return nil, err
	}
	targetStart, err := time.Parse(time.RFC3339, target.Start.DateTime)
	if err != nil {
		return nil, err
	}
	existingEnd, err := time.Parse(time.RFC3339, existing.End.DateTime)
	if err != nil {
		return nil, err
	}
	targetEnd, err := time.Parse(time.RFC3339, target.End.DateTime)
	if err != nil {
		return nil, err
	}
	if !existingStart.Equal(targetStart) || !existingEnd.Equal(targetEnd) {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if needsUpdate {
		return patch, nil
	}
	return nil, nil
}

// ConvertTaskToCalendarEvent builds the event mirroring a task. Only tasks
// with a deadline can be placed on the calendar.
func ConvertTaskToCalendarEvent(v controller.TaskView) (*calendar.Event, error) {
	if v.Deadline == nil {
		return nil, fmt.Errorf("task has no deadline: %s", v.ID)
	}

	summary := v.Name
	if prefix := Prefix(v); prefix != "" {
		summary = fmt.Sprintf("%s %s", prefix, v.Name)
	}

	start := v.Deadline.UTC()
	end := start.Add(EventDuration)

	var desc strings.Builder
	fmt.Fprintf(&desc, "Status: %s\n", v.Status)
	if v.Priority != model.PriorityNone {
		fmt.Fprintf(&desc, "Priority: %s\n", v.Priority)
	}
	fmt.Fprintf(&desc, "ID: %s\n", v.ID)
	if v.Description != nil && *v.Description != "" {
		desc.WriteString("\n")
		desc.WriteString(*v.Description)
		desc.WriteString("\n")
	}

	return &calendar.Event{
		Summary:     summary,
		ColorId:     colors.ColorID(v.Priority, v.Done),
		Description: desc.String(),
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{TaskIDProperty: v.ID},
		},
	}, nil
}

// GetTaskIDFromEvent returns the task an event mirrors, preferring the
// extended property and falling back to the description.
func GetTaskIDFromEvent(e *calendar.Event) (string, bool) {
	if e.ExtendedProperties != nil {
		if id, ok := e.ExtendedProperties.Private[TaskIDProperty]; ok && id != "" {
			return id, true
		}
	}
	matches := taskIDRegex.FindStringSubmatch(e.Description)
	if len(matches) > 1 {
		return matches[1], true
	}
	return "", false
}
