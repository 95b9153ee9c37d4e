package view

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/harrisonrobin/taskdeck/pkg/controller"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

const (
	shortIDLen     = 8
	deadlineLayout = "2006-01-02 15:04"
)

// marker is the prefix shown before a task name.
func marker(v controller.TaskView) string {
	switch {
	case v.Done:
		return "✓"
	case v.Urgency == model.UrgencyOverdue:
		return "!"
	case v.Urgency == model.UrgencyUrgent:
		return "‣"
	}
	return " "
}

// ShortID trims an id for display; prefixes are accepted back by Resolve.
func ShortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// RenderTasks writes the list as an aligned table.
func RenderTasks(w io.Writer, views []controller.TaskView, loc *time.Location) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "No tasks.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\t\tNAME\tPRIORITY\tSTATUS\tURGENCY\tDEADLINE")
	for _, v := range views {
		deadline := "-"
		if v.HasDeadline() {
			deadline = v.Deadline.In(loc).Format(deadlineLayout)
		}
		priority := string(v.Priority)
		if priority == "" {
			priority = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ShortID(v.ID), marker(v), v.Name, priority, v.Status, v.Urgency, deadline)
	}
	return tw.Flush()
}

// RenderTask writes one task with all its fields.
func RenderTask(w io.Writer, v controller.TaskView, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", v.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", v.Name)
	if v.Description != nil && *v.Description != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", *v.Description)
	}
	if v.Priority != model.PriorityNone {
		fmt.Fprintf(tw, "Priority:\t%s\n", v.Priority)
	}
	fmt.Fprintf(tw, "Status:\t%s\n", v.Status)
	fmt.Fprintf(tw, "Urgency:\t%s\n", v.Urgency)
	if v.HasDeadline() {
		fmt.Fprintf(tw, "Deadline:\t%s\n", v.Deadline.In(loc).Format(deadlineLayout))
	}
	fmt.Fprintf(tw, "Created:\t%s\n", v.CreatedAt.In(loc).Format(deadlineLayout))
	if v.ChangedAt != nil {
		fmt.Fprintf(tw, "Changed:\t%s\n", v.ChangedAt.In(loc).Format(deadlineLayout))
	}
	return tw.Flush()
}

// Resolve finds the single task whose id equals or starts with ref.
func Resolve(views []controller.TaskView, ref string) (controller.TaskView, error) {
	var match *controller.TaskView
	for i := range views {
		if views[i].ID == ref {
			return views[i], nil
		}
		if len(ref) >= 4 && len(views[i].ID) > len(ref) && views[i].ID[:len(ref)] == ref {
			if match != nil {
				return controller.TaskView{}, fmt.Errorf("task id '%s' is ambiguous", ref)
			}
			match = &views[i]
		}
	}
	if match == nil {
		return controller.TaskView{}, fmt.Errorf("no task with id '%s'", ref)
	}
	return *match, nil
}
