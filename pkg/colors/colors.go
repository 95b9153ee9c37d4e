package colors

import "github.com/harrisonrobin/taskdeck/pkg/model"

// Google Calendar event color ids.
const (
	Lavender  = "1"
	Sage      = "2"
	Banana    = "5"
	Tangerine = "6"
	Graphite  = "8"
	Tomato    = "11"
)

// ColorID returns the event color for a task: finished tasks are greyed out,
// open tasks are colored by priority.
func ColorID(priority model.Priority, done bool) string {
	if done {
		return Graphite
	}
	switch priority {
	case model.PriorityCritical:
		return Tomato
	case model.PriorityHigh:
		return Tangerine
	case model.PriorityMedium:
		return Banana
	case model.PriorityLow:
		return Sage
	}
	return Lavender
}
