package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/todoapi"
)

// editSession is the single open edit. snapshot is a copy taken when the
// session opened, so reloads never change what the form was seeded from.
type editSession struct {
	taskID   string
	snapshot model.Task
}

// EditForm holds the values of the edit form. The deadline starts out as
// "keep"; use SetDeadline or ClearDeadline to change it.
type EditForm struct {
	TaskID      string
	Name        string
	Description string
	Priority    model.Priority
	// Deadline is the deadline the form was seeded with.
	Deadline *time.Time

	deadline todoapi.DeadlinePatch
}

func (f *EditForm) SetDeadline(t time.Time) { f.deadline = todoapi.SetDeadline(t) }

func (f *EditForm) ClearDeadline() { f.deadline = todoapi.ClearDeadline() }

// KeepDeadline undoes SetDeadline or ClearDeadline.
func (f *EditForm) KeepDeadline() { f.deadline = todoapi.KeepDeadline() }

func (f EditForm) DeadlineChange() todoapi.DeadlinePatch { return f.deadline }

func formFromTask(t model.Task) EditForm {
	f := EditForm{
		TaskID:   t.ID,
		Name:     t.Name,
		Priority: t.Priority,
	}
	if t.Description != nil {
		f.Description = *t.Description
	}
	if t.Deadline != nil {
		d := *t.Deadline
		f.Deadline = &d
	}
	return f
}

// BeginEdit opens an edit session for the task and returns the seeded form.
// The boolean is false, with no state change, when the task is not loaded
// (it may have been deleted meanwhile). While another session is open the
// call is rejected with ErrEditInProgress; cancel or submit it first.
func (c *Controller) BeginEdit(id string) (EditForm, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.editing != nil {
		return EditForm{}, false, ErrEditInProgress
	}
	i := c.indexOf(id)
	if i < 0 {
		c.logger.WithField("task", id).Debug("begin edit on task that is not loaded")
		return EditForm{}, false, nil
	}
	snapshot := c.tasks[i].Clone()
	c.editing = &editSession{taskID: id, snapshot: snapshot}
	return formFromTask(snapshot), true, nil
}

// Editing returns the task being edited, if any.
func (c *Controller) Editing() (model.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == nil {
		return model.Task{}, false
	}
	return c.editing.snapshot.Clone(), true
}

// CancelEdit closes the edit session without contacting the service.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing = nil
}

// SubmitEdit sends the form for the open session. On success the session
// closes and the list is reloaded; on failure the session stays open so the
// user can retry or cancel.
func (c *Controller) SubmitEdit(ctx context.Context, form EditForm) (model.Task, error) {
	c.mu.Lock()
	session := c.editing
	c.mu.Unlock()
	if session == nil {
		return model.Task{}, ErrNotEditing
	}
	if form.TaskID != session.taskID {
		return model.Task{}, fmt.Errorf("submit edit for %s: %w", form.TaskID, ErrEditInProgress)
	}

	name := strings.TrimSpace(form.Name)
	if ferr := validateName(name); ferr != nil {
		c.notify.Notify(Notice{Op: "update", TaskID: session.taskID, Severity: NonBlocking, Message: ferr.Message, Err: ferr})
		return model.Task{}, ferr
	}
	if form.Priority != model.PriorityNone && !form.Priority.Valid() {
		ferr := &FormError{Field: "priority", Message: fmt.Sprintf("Unsupported priority: %s", form.Priority)}
		c.notify.Notify(Notice{Op: "update", TaskID: session.taskID, Severity: NonBlocking, Message: ferr.Message, Err: ferr})
		return model.Task{}, ferr
	}

	if err := c.acquire(session.taskID); err != nil {
		return model.Task{}, err
	}
	defer c.release(session.taskID)

	req := todoapi.UpdateRequest{
		Name:     name,
		Deadline: form.deadline,
		Priority: form.Priority,
	}
	if d := strings.TrimSpace(form.Description); d != "" {
		req.Description = &d
	}

	task, err := c.gw.UpdateTask(ctx, session.taskID, req)
	if err != nil {
		c.notify.Notify(newNotice("update", session.taskID, NonBlocking, err))
		return model.Task{}, fmt.Errorf("update %s: %w", session.taskID, err)
	}

	c.mu.Lock()
	if c.editing == session {
		c.editing = nil
	}
	c.mu.Unlock()

	_ = c.Reload(ctx)
	return task, nil
}
