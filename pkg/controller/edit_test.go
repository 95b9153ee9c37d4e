package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/todoapi"
)

func TestBeginEditSeedsForm(t *testing.T) {
	task := mkTask("a", "Alpha task", model.StatusActive)
	task.Description = ptr("notes")
	task.Deadline = ptr(baseTime.Add(time.Hour))
	task.Priority = model.PriorityHigh
	gw := &fakeGateway{list: []model.Task{task}}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	form, ok, err := c.BeginEdit("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", form.TaskID)
	assert.Equal(t, "Alpha task", form.Name)
	assert.Equal(t, "notes", form.Description)
	assert.Equal(t, model.PriorityHigh, form.Priority)
	require.NotNil(t, form.Deadline)
	assert.True(t, form.Deadline.Equal(*task.Deadline))
	assert.True(t, form.DeadlineChange().IsKeep())

	editing, ok := c.Editing()
	require.True(t, ok)
	assert.Equal(t, "a", editing.ID)
}

func TestBeginEditUnknownIDKeepsState(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive)}}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	form, ok, err := c.BeginEdit("missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, EditForm{}, form)
	_, editing := c.Editing()
	assert.False(t, editing)

	_, ok, err = c.BeginEdit("a")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.BeginEdit("missing")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrEditInProgress)
	editingTask, editing := c.Editing()
	require.True(t, editing)
	assert.Equal(t, "a", editingTask.ID)
}

func TestBeginEditWhileEditingIsRejected(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive), mkTask("b", "Bravo", model.StatusActive)}}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	_, _, err := c.BeginEdit("a")
	require.NoError(t, err)

	_, _, err = c.BeginEdit("b")
	assert.ErrorIs(t, err, ErrEditInProgress)
	_, _, err = c.BeginEdit("a")
	assert.ErrorIs(t, err, ErrEditInProgress)

	c.CancelEdit()
	_, ok, err := c.BeginEdit("b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSnapshotIsolatedFromReload(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive)}}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	_, _, err := c.BeginEdit("a")
	require.NoError(t, err)

	gw.list = []model.Task{mkTask("a", "Alpha renamed elsewhere", model.StatusActive)}
	require.NoError(t, c.Reload(context.Background()))

	editing, ok := c.Editing()
	require.True(t, ok)
	assert.Equal(t, "Alpha", editing.Name)
	assert.Equal(t, "Alpha renamed elsewhere", c.Tasks()[0].Name)
}

func TestSubmitEditSuccess(t *testing.T) {
	task := mkTask("a", "Alpha", model.StatusActive)
	task.Deadline = ptr(baseTime.Add(time.Hour))
	gw := &fakeGateway{list: []model.Task{task}}
	c, notices := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	form, _, err := c.BeginEdit("a")
	require.NoError(t, err)
	form.Name = "Alpha edited"
	form.ClearDeadline()

	updated := mkTask("a", "Alpha edited", model.StatusActive)
	gw.updated = updated
	gw.list = []model.Task{updated}

	got, err := c.SubmitEdit(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, "Alpha edited", got.Name)

	require.Len(t, gw.updateReq, 1)
	assert.True(t, gw.updateReq[0].Deadline.IsClear())
	_, editing := c.Editing()
	assert.False(t, editing)
	assert.Equal(t, "Alpha edited", c.Tasks()[0].Name)
	assert.Len(t, gw.sorts, 2, "submit reloads")
	assert.Empty(t, notices.all())
}

func TestSubmitEditFailureKeepsSession(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive)}}
	c, notices := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	form, _, err := c.BeginEdit("a")
	require.NoError(t, err)

	gw.updateErr = &todoapi.NotFoundError{Op: "update", ID: "a", Message: "Task not found"}
	_, err = c.SubmitEdit(context.Background(), form)
	var nerr *todoapi.NotFoundError
	require.ErrorAs(t, err, &nerr)

	_, editing := c.Editing()
	assert.True(t, editing)
	assert.Equal(t, "Alpha", c.Tasks()[0].Name)
	require.Len(t, notices.all(), 1)
	assert.Equal(t, NonBlocking, notices.all()[0].Severity)

	gw.updateErr = nil
	gw.updated = mkTask("a", "Alpha", model.StatusActive)
	_, err = c.SubmitEdit(context.Background(), form)
	require.NoError(t, err)
	_, editing = c.Editing()
	assert.False(t, editing)
}

func TestSubmitEditRequiresSession(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive), mkTask("b", "Bravo", model.StatusActive)}}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	_, err := c.SubmitEdit(context.Background(), EditForm{TaskID: "a", Name: "Alpha"})
	assert.ErrorIs(t, err, ErrNotEditing)

	_, _, err = c.BeginEdit("a")
	require.NoError(t, err)
	_, err = c.SubmitEdit(context.Background(), EditForm{TaskID: "b", Name: "Bravo"})
	assert.ErrorIs(t, err, ErrEditInProgress)
	assert.Empty(t, gw.updateReq)
}

func TestSubmitEditValidatesName(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive)}}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	form, _, err := c.BeginEdit("a")
	require.NoError(t, err)
	form.Name = "ab"

	_, err = c.SubmitEdit(context.Background(), form)
	var ferr *FormError
	require.ErrorAs(t, err, &ferr)
	assert.Empty(t, gw.updateReq)
	_, editing := c.Editing()
	assert.True(t, editing)
}

func TestCancelEditMakesNoCalls(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive)}}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	_, _, err := c.BeginEdit("a")
	require.NoError(t, err)
	c.CancelEdit()

	_, editing := c.Editing()
	assert.False(t, editing)
	assert.Empty(t, gw.updateReq)
	assert.Len(t, gw.sorts, 1)
}

func TestEditFormDeadlineChanges(t *testing.T) {
	var f EditForm
	assert.True(t, f.DeadlineChange().IsKeep())

	d := baseTime.Add(time.Hour)
	f.SetDeadline(d)
	v, ok := f.DeadlineChange().Value()
	assert.True(t, ok)
	assert.True(t, v.Equal(d))

	f.ClearDeadline()
	assert.True(t, f.DeadlineChange().IsClear())

	f.KeepDeadline()
	assert.True(t, f.DeadlineChange().IsKeep())
}
