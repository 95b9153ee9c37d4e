package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/todoapi"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func mkTask(id, name string, status model.Status) model.Task {
	return model.Task{
		ID:        id,
		Name:      name,
		Priority:  model.PriorityMedium,
		Status:    status,
		CreatedAt: baseTime,
	}
}

// fakeGateway records calls and answers from canned values.
type fakeGateway struct {
	mu sync.Mutex

	list    []model.Task
	listErr error
	sorts   []*model.SortOrder

	created   model.Task
	createErr error
	createReq []todoapi.CreateRequest

	updated   model.Task
	updateErr error
	updateReq []todoapi.UpdateRequest

	deleteErr error
	deleted   []string

	toggled   model.Task
	toggleErr error
	toggleReq []bool

	// block, when set, holds ToggleTask until closed.
	block chan struct{}
	// listGate, when set, holds the next ListTasks until closed. That call
	// answers with the list as it was when the call started, and listStarted
	// is closed once it has taken that copy.
	listGate    chan struct{}
	listStarted chan struct{}
}

func (f *fakeGateway) ListTasks(ctx context.Context, sort *model.SortOrder) ([]model.Task, error) {
	f.mu.Lock()
	f.sorts = append(f.sorts, sort)
	if f.listErr != nil {
		f.mu.Unlock()
		return nil, f.listErr
	}
	out := make([]model.Task, len(f.list))
	copy(out, f.list)
	gate := f.listGate
	f.listGate = nil
	f.mu.Unlock()
	if gate != nil {
		close(f.listStarted)
		<-gate
	}
	return out, nil
}

func (f *fakeGateway) CreateTask(ctx context.Context, req todoapi.CreateRequest) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createReq = append(f.createReq, req)
	if f.createErr != nil {
		return model.Task{}, f.createErr
	}
	f.list = append(f.list, f.created)
	return f.created, nil
}

func (f *fakeGateway) UpdateTask(ctx context.Context, id string, req todoapi.UpdateRequest) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateReq = append(f.updateReq, req)
	if f.updateErr != nil {
		return model.Task{}, f.updateErr
	}
	return f.updated, nil
}

func (f *fakeGateway) DeleteTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeGateway) ToggleTask(ctx context.Context, id string, isDone bool) (model.Task, error) {
	f.mu.Lock()
	block := f.block
	f.toggleReq = append(f.toggleReq, isDone)
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.toggleErr != nil {
		return model.Task{}, f.toggleErr
	}
	return f.toggled, nil
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *noticeLog) Notify(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *noticeLog) all() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}

func newTestController(t *testing.T, gw *fakeGateway, opts ...Option) (*Controller, *noticeLog) {
	t.Helper()
	notices := &noticeLog{}
	opts = append([]Option{WithNotifier(notices), WithClock(func() time.Time { return baseTime })}, opts...)
	return New(gw, opts...), notices
}

func ids(views []TaskView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.ID
	}
	return out
}

func TestReloadReplacesCollection(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive), mkTask("b", "Bravo", model.StatusLate)}}
	c, notices := newTestController(t, gw, WithSort(model.SortDeadlineAsc))

	require.NoError(t, c.Reload(context.Background()))
	views := c.Tasks()
	assert.Equal(t, []string{"a", "b"}, ids(views))
	assert.False(t, views[0].Done)
	assert.True(t, views[1].Done)
	require.Len(t, gw.sorts, 1)
	require.NotNil(t, gw.sorts[0])
	assert.Equal(t, model.SortDeadlineAsc, *gw.sorts[0])
	assert.Empty(t, notices.all())
}

func TestReloadFailureKeepsCollection(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive), mkTask("b", "Bravo", model.StatusOverdue)}}
	c, notices := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))
	before := c.Tasks()

	gw.listErr = &todoapi.TransportError{Op: "list", StatusCode: 503, Message: "Failed to fetch tasks"}
	err := c.Reload(context.Background())

	var terr *todoapi.TransportError
	require.ErrorAs(t, err, &terr)
	after := c.Tasks()
	require.Equal(t, ids(before), ids(after))
	for i := range before {
		assert.True(t, before[i].Task.Equal(after[i].Task))
	}
	got := notices.all()
	require.Len(t, got, 1)
	assert.Equal(t, Blocking, got[0].Severity)
	assert.Equal(t, "Failed to fetch tasks", got[0].Message)
}

func TestSetSortRestoresPreviousOnFailure(t *testing.T) {
	gw := &fakeGateway{}
	c, _ := newTestController(t, gw, WithSort(model.SortCreateAsc))

	gw.listErr = &todoapi.TransportError{Op: "list", Message: "down"}
	require.Error(t, c.SetSort(context.Background(), model.SortPriorityDesc))
	sort, ok := c.ActiveSort()
	require.True(t, ok)
	assert.Equal(t, model.SortCreateAsc, sort)

	gw.listErr = nil
	require.NoError(t, c.SetSort(context.Background(), model.SortPriorityDesc))
	sort, _ = c.ActiveSort()
	assert.Equal(t, model.SortPriorityDesc, sort)

	assert.Error(t, c.SetSort(context.Background(), model.SortOrder("NameAsc")))
}

func TestCreateValidatesNameBeforeCalling(t *testing.T) {
	gw := &fakeGateway{}
	c, notices := newTestController(t, gw)

	for _, name := range []string{"", "   ", "abc", " ab "} {
		_, err := c.Create(context.Background(), CreateForm{Name: name})
		var ferr *FormError
		require.ErrorAs(t, err, &ferr, "name %q", name)
		assert.Equal(t, "name", ferr.Field)
	}
	assert.Empty(t, gw.createReq)
	assert.Len(t, notices.all(), 4)
	assert.Equal(t, Blocking, notices.all()[0].Severity)
}

func TestCreateReloads(t *testing.T) {
	created := mkTask("new", "Task 1: Complete project", model.StatusActive)
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive)}, created: created}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	task, err := c.Create(context.Background(), CreateForm{
		Name:        "  Task 1: Complete project ",
		Description: "  ",
		Priority:    model.PriorityMedium,
	})
	require.NoError(t, err)
	assert.Equal(t, "new", task.ID)

	require.Len(t, gw.createReq, 1)
	assert.Equal(t, "Task 1: Complete project", gw.createReq[0].Name)
	assert.Nil(t, gw.createReq[0].Description)
	assert.Nil(t, gw.createReq[0].Deadline)
	assert.Equal(t, []string{"a", "new"}, ids(c.Tasks()))
	assert.Len(t, gw.sorts, 2)
}

func TestCreateFailureLeavesTasks(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive)}}
	c, notices := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	gw.createErr = &todoapi.ValidationError{Op: "create", StatusCode: 409, Message: "Task with this name already exists"}
	_, err := c.Create(context.Background(), CreateForm{Name: "Alpha"})

	var verr *todoapi.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"a"}, ids(c.Tasks()))
	assert.Len(t, gw.sorts, 1, "no reload after a failed create")
	got := notices.all()
	require.Len(t, got, 1)
	assert.Equal(t, "Task with this name already exists", got[0].Message)
	assert.Equal(t, Blocking, got[0].Severity)
}

func TestRemove(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{
		mkTask("a", "Alpha", model.StatusActive),
		mkTask("b", "Bravo", model.StatusActive),
		mkTask("c", "Charlie", model.StatusActive),
	}}
	c, notices := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	require.NoError(t, c.Remove(context.Background(), "b"))
	assert.Equal(t, []string{"a", "c"}, ids(c.Tasks()))
	assert.Equal(t, []string{"b"}, gw.deleted)

	gw.deleteErr = &todoapi.NotFoundError{Op: "delete", ID: "c", Message: "Task not found"}
	err := c.Remove(context.Background(), "c")
	var nerr *todoapi.NotFoundError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, []string{"a", "c"}, ids(c.Tasks()))

	got := notices.all()
	require.Len(t, got, 1)
	assert.Equal(t, NonBlocking, got[0].Severity)
	assert.Equal(t, "c", got[0].TaskID)
}

func TestRemoveClosesEditOfRemovedTask(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive)}}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	_, ok, err := c.BeginEdit("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, c.Remove(context.Background(), "a"))

	_, editing := c.Editing()
	assert.False(t, editing)
}

func TestToggleReplacesOnlyMatchingEntry(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{
		mkTask("a", "Alpha", model.StatusActive),
		mkTask("b", "Bravo", model.StatusActive),
		mkTask("c", "Charlie", model.StatusOverdue),
	}}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))
	before := c.Tasks()

	returned := mkTask("b", "Bravo", model.StatusCompleted)
	returned.ChangedAt = ptr(baseTime.Add(time.Minute))
	gw.toggled = returned

	task, err := c.ToggleDone(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, task.Status)
	assert.Equal(t, []bool{true}, gw.toggleReq)

	after := c.Tasks()
	require.Equal(t, ids(before), ids(after))
	assert.True(t, after[0].Task.Equal(before[0].Task))
	assert.True(t, after[2].Task.Equal(before[2].Task))
	assert.True(t, after[1].Task.Equal(returned))
	assert.True(t, after[1].Done)
	assert.Len(t, gw.sorts, 1, "toggle does not reload")
}

func TestToggleDesiredState(t *testing.T) {
	cases := map[model.Status]bool{
		model.StatusActive:    true,
		model.StatusOverdue:   true,
		model.StatusCompleted: false,
		model.StatusLate:      false,
	}
	for status, want := range cases {
		gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", status)}, toggled: mkTask("a", "Alpha", status)}
		c, _ := newTestController(t, gw)
		require.NoError(t, c.Reload(context.Background()))
		_, err := c.ToggleDone(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, []bool{want}, gw.toggleReq, "status %s", status)
	}
}

func TestToggleFailureLeavesTasks(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive)}}
	c, notices := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	gw.toggleErr = &todoapi.TransportError{Op: "toggle", StatusCode: 500, Message: "Failed to toggle task status"}
	_, err := c.ToggleDone(context.Background(), "a")
	require.Error(t, err)

	views := c.Tasks()
	require.Len(t, views, 1)
	assert.Equal(t, model.StatusActive, views[0].Status)
	require.Len(t, notices.all(), 1)
	assert.Equal(t, NonBlocking, notices.all()[0].Severity)
}

func TestToggleUnknownTask(t *testing.T) {
	c, _ := newTestController(t, &fakeGateway{})
	_, err := c.ToggleDone(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotLoaded)
}

func TestSameTaskMutationsAreSerialized(t *testing.T) {
	gw := &fakeGateway{
		list:    []model.Task{mkTask("a", "Alpha", model.StatusActive), mkTask("b", "Bravo", model.StatusActive)},
		toggled: mkTask("a", "Alpha", model.StatusCompleted),
		block:   make(chan struct{}),
	}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	done := make(chan error)
	go func() {
		_, err := c.ToggleDone(context.Background(), "a")
		done <- err
	}()

	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return len(gw.toggleReq) == 1
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, c.Remove(context.Background(), "a"), ErrTaskBusy)
	assert.NoError(t, c.Remove(context.Background(), "b"), "other tasks are not blocked")

	close(gw.block)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"a"}, ids(c.Tasks()))
	assert.Equal(t, model.StatusCompleted, c.Tasks()[0].Status)
}

func TestUrgencyUsesClock(t *testing.T) {
	soon := mkTask("a", "Alpha", model.StatusActive)
	soon.Deadline = ptr(baseTime.Add(48 * time.Hour))
	gw := &fakeGateway{list: []model.Task{soon}}

	now := baseTime.Add(-10 * 24 * time.Hour)
	c, _ := newTestController(t, gw, WithClock(func() time.Time { return now }))
	require.NoError(t, c.Reload(context.Background()))

	assert.Equal(t, model.UrgencyNormal, c.Tasks()[0].Urgency)
	now = baseTime
	assert.Equal(t, model.UrgencyUrgent, c.Tasks()[0].Urgency)
}

func TestTasksReturnsCopies(t *testing.T) {
	task := mkTask("a", "Alpha", model.StatusActive)
	task.Description = ptr("original")
	gw := &fakeGateway{list: []model.Task{task}}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	views := c.Tasks()
	*views[0].Description = "changed"
	assert.Equal(t, "original", *c.Tasks()[0].Description)
}

func TestStaleReloadDiscarded(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{mkTask("a", "Alpha", model.StatusActive)}}
	c, _ := newTestController(t, gw)

	// Simulate a newer reload having already been applied.
	c.mu.Lock()
	c.appliedReload = 5
	c.reloadSeq = 5
	c.mu.Unlock()
	require.NoError(t, c.Reload(context.Background()))
	assert.Len(t, c.Tasks(), 1)

	c.mu.Lock()
	c.reloadSeq = 2
	c.appliedReload = 6
	c.mu.Unlock()
	gw.list = nil
	require.NoError(t, c.Reload(context.Background()))
	assert.Len(t, c.Tasks(), 1, "older reload must not overwrite newer data")
}

func TestLogNotifierDefaults(t *testing.T) {
	c := New(&fakeGateway{listErr: errors.New("boom")})
	_, ok := c.notify.(LogNotifier)
	assert.True(t, ok)
	assert.Error(t, c.Reload(context.Background()))
}

func TestReloadStartedBeforeToggleDoesNotUndoIt(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{
		mkTask("a", "Alpha", model.StatusActive),
		mkTask("b", "Bravo", model.StatusActive),
	}}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	gate := make(chan struct{})
	gw.mu.Lock()
	gw.listGate = gate
	gw.listStarted = make(chan struct{})
	started := gw.listStarted
	gw.mu.Unlock()

	reloaded := make(chan error, 1)
	go func() { reloaded <- c.Reload(context.Background()) }()
	<-started

	completed := mkTask("a", "Alpha", model.StatusCompleted)
	gw.mu.Lock()
	gw.toggled = completed
	gw.list = []model.Task{completed, mkTask("b", "Bravo", model.StatusActive)}
	gw.mu.Unlock()
	_, err := c.ToggleDone(context.Background(), "a")
	require.NoError(t, err)

	close(gate)
	require.NoError(t, <-reloaded)

	views := c.Tasks()
	require.Len(t, views, 2)
	assert.Equal(t, model.StatusCompleted, views[0].Status)
	gw.mu.Lock()
	assert.Len(t, gw.sorts, 3, "stale reload should fetch again")
	gw.mu.Unlock()
}

func TestReloadStartedBeforeRemoveDoesNotRestoreTask(t *testing.T) {
	gw := &fakeGateway{list: []model.Task{
		mkTask("a", "Alpha", model.StatusActive),
		mkTask("b", "Bravo", model.StatusActive),
	}}
	c, _ := newTestController(t, gw)
	require.NoError(t, c.Reload(context.Background()))

	gate := make(chan struct{})
	gw.mu.Lock()
	gw.listGate = gate
	gw.listStarted = make(chan struct{})
	started := gw.listStarted
	gw.mu.Unlock()

	reloaded := make(chan error, 1)
	go func() { reloaded <- c.Reload(context.Background()) }()
	<-started

	gw.mu.Lock()
	gw.list = []model.Task{mkTask("b", "Bravo", model.StatusActive)}
	gw.mu.Unlock()
	require.NoError(t, c.Remove(context.Background(), "a"))

	close(gate)
	require.NoError(t, <-reloaded)
	assert.Equal(t, []string{"b"}, ids(c.Tasks()))
}
