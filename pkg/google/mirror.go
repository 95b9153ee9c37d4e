package google

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/taskdeck/pkg/controller"
	"github.com/harrisonrobin/taskdeck/pkg/index"
	"github.com/harrisonrobin/taskdeck/pkg/util"
)

// Report counts what a Sync did to the calendar.
type Report struct {
	Created   int
	Updated   int
	Unchanged int
	Deleted   int
	Failed    int
}

// Mirror keeps one calendar event per task that has a deadline.
type Mirror struct {
	events Events
	index  *index.EventIndex
	logger log.FieldLogger
}

func NewMirror(events Events, idx *index.EventIndex, logger log.FieldLogger) *Mirror {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Mirror{events: events, index: idx, logger: logger}
}

type outcome int

const (
	created outcome = iota
	updated
	unchanged
)

// Sync brings the calendar in line with views. Events whose task vanished
// or lost its deadline are deleted. A failure on one task does not stop the
// others; all failures are returned joined.
func (m *Mirror) Sync(ctx context.Context, views []controller.TaskView) (Report, error) {
	var report Report
	var errs []error

	live := make(map[string]bool, len(views))
	for _, v := range views {
		if v.Deadline == nil {
			continue
		}
		live[v.ID] = true

		res, err := m.syncOne(ctx, v)
		if err != nil {
			m.logger.WithError(err).WithField("task_id", v.ID).Warn("calendar: sync failed")
			report.Failed++
			errs = append(errs, fmt.Errorf("task %s: %w", v.ID, err))
			continue
		}
		switch res {
		case created:
			report.Created++
		case updated:
			report.Updated++
		default:
			report.Unchanged++
		}
	}

	for taskID, eventID := range m.index.Stale(live) {
		if err := m.events.Delete(ctx, eventID); err != nil && !IsGone(err) {
			m.logger.WithError(err).WithField("event_id", eventID).Warn("calendar: delete failed")
			report.Failed++
			errs = append(errs, fmt.Errorf("event %s: %w", eventID, err))
			continue
		}
		m.index.Remove(taskID)
		report.Deleted++
	}

	if err := m.index.Save(); err != nil {
		errs = append(errs, fmt.Errorf("saving event index: %w", err))
	}

	m.logger.WithFields(log.Fields{
		"created":   report.Created,
		"updated":   report.Updated,
		"unchanged": report.Unchanged,
		"deleted":   report.Deleted,
		"failed":    report.Failed,
	}).Info("calendar: sync finished")
	return report, errors.Join(errs...)
}

func (m *Mirror) syncOne(ctx context.Context, v controller.TaskView) (outcome, error) {
	target, err := util.ConvertTaskToCalendarEvent(v)
	if err != nil {
		return 0, err
	}

	existing, err := m.find(ctx, v.ID)
	if err != nil {
		return 0, fmt.Errorf("error searching for event: %w", err)
	}

	if existing == nil {
		event, err := m.events.Insert(ctx, target)
		if err != nil {
			return 0, err
		}
		m.index.Set(v.ID, event.Id)
		return created, nil
	}

	patch, err := util.EventNeedsUpdate(existing, target)
	if err != nil {
		return 0, fmt.Errorf("could not compare task with its calendar event: %w", err)
	}
	if patch == nil {
		m.index.Set(v.ID, existing.Id)
		return unchanged, nil
	}
	event, err := m.events.Patch(ctx, existing.Id, patch)
	if err != nil {
		return 0, err
	}
	m.index.Set(v.ID, event.Id)
	return updated, nil
}

// find looks the event up through the index first and falls back to a
// search by extended property.
func (m *Mirror) find(ctx context.Context, taskID string) (*calendar.Event, error) {
	if eventID := m.index.Get(taskID); eventID != "" {
		event, err := m.events.Get(ctx, eventID)
		if err == nil && event.Status != "cancelled" {
			return event, nil
		}
		if err != nil && !IsGone(err) {
			m.logger.WithError(err).WithField("event_id", eventID).Debug("calendar: indexed event unavailable, searching")
		}
	}
	return m.events.FindByTaskID(ctx, taskID)
}
