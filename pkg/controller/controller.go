package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/todoapi"
)

// MinNameLength is the shortest task name the client submits.
const MinNameLength = 4

const maxReloadAttempts = 3

var (
	ErrEditInProgress = errors.New("another task is already being edited")
	ErrNotEditing     = errors.New("no task is being edited")
	ErrTaskBusy       = errors.New("an operation on this task is still pending")
	ErrTaskNotLoaded  = errors.New("task is not in the current list")
)

// FormError is a client-side validation failure; nothing was sent.
type FormError struct {
	Field   string
	Message string
}

func (e *FormError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Gateway is the subset of the task service the controller drives.
// *todoapi.Client implements it.
type Gateway interface {
	ListTasks(ctx context.Context, sort *model.SortOrder) ([]model.Task, error)
	CreateTask(ctx context.Context, req todoapi.CreateRequest) (model.Task, error)
	UpdateTask(ctx context.Context, id string, req todoapi.UpdateRequest) (model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ToggleTask(ctx context.Context, id string, isDone bool) (model.Task, error)
}

// TaskView is a task together with its display state at read time.
type TaskView struct {
	model.Task
	Done    bool
	Urgency model.Urgency
}

// Controller owns the list of tasks the user currently sees. It is safe for
// concurrent use: the mutex is never held across a gateway call, and at most
// one mutation per task id is in flight.
type Controller struct {
	gw     Gateway
	notify Notifier
	now    func() time.Time
	logger log.FieldLogger

	mu         sync.Mutex
	tasks      []model.Task
	activeSort *model.SortOrder
	editing    *editSession
	inflight   map[string]struct{}
	// reloadSeq orders concurrent reloads so an older response never
	// overwrites a newer one.
	reloadSeq     uint64
	appliedReload uint64
	// mutationGen counts targeted changes; a reload that spans one is stale.
	mutationGen uint64
}

type Option func(*Controller)

func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notify = n }
}

// WithClock sets the time source used for derived display state.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithLogger(l log.FieldLogger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithSort sets the sort order used by the first Reload.
func WithSort(s model.SortOrder) Option {
	return func(c *Controller) { c.activeSort = &s }
}

// New creates a controller with an empty list. Call Reload to populate it.
func New(gw Gateway, opts ...Option) *Controller {
	c := &Controller{
		gw:       gw,
		now:      time.Now,
		logger:   log.StandardLogger(),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notify == nil {
		c.notify = LogNotifier{Logger: c.logger}
	}
	return c
}

// Tasks returns a snapshot of the list with derived state computed now.
func (c *Controller) Tasks() []TaskView {
	c.mu.Lock()
	tasks := make([]model.Task, len(c.tasks))
	for i, t := range c.tasks {
		tasks[i] = t.Clone()
	}
	c.mu.Unlock()

	now := c.now()
	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = TaskView{Task: t, Done: t.IsDone(), Urgency: t.Urgency(now)}
	}
	return views
}

// Task looks up a loaded task by id.
func (c *Controller) Task(id string) (model.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		return c.tasks[i].Clone(), true
	}
	return model.Task{}, false
}

// ActiveSort returns the sort order used by Reload, if one is set.
func (c *Controller) ActiveSort() (model.SortOrder, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeSort == nil {
		return "", false
	}
	return *c.activeSort, true
}

// Reload fetches the list for the active sort and replaces the collection.
// On failure the previous collection is kept. A response that was requested
// before a toggle or remove landed is fetched again rather than applied, so
// it cannot undo that change.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	c.reloadSeq++
	seq := c.reloadSeq
	c.mu.Unlock()

	for attempt := 1; ; attempt++ {
		c.mu.Lock()
		gen := c.mutationGen
		var sort *model.SortOrder
		if c.activeSort != nil {
			s := *c.activeSort
			sort = &s
		}
		c.mu.Unlock()

		tasks, err := c.gw.ListTasks(ctx, sort)
		if err != nil {
			c.notify.Notify(newNotice("reload", "", Blocking, err))
			return fmt.Errorf("reload: %w", err)
		}

		c.mu.Lock()
		if seq < c.appliedReload {
			c.mu.Unlock()
			c.logger.WithField("seq", seq).Debug("discarding stale reload")
			return nil
		}
		if c.mutationGen != gen {
			c.mu.Unlock()
			if attempt < maxReloadAttempts {
				c.logger.WithField("seq", seq).Debug("list changed during reload, fetching again")
				continue
			}
			c.logger.WithField("seq", seq).Debug("list kept changing, keeping current collection")
			return nil
		}
		c.appliedReload = seq
		c.replaceAll(tasks)
		c.mu.Unlock()
		c.logger.WithFields(log.Fields{"tasks": len(tasks), "seq": seq}).Debug("task list reloaded")
		return nil
	}
}

// SetSort changes the active sort and reloads. If the reload fails the
// previous sort stays active.
func (c *Controller) SetSort(ctx context.Context, sort model.SortOrder) error {
	if !sort.Valid() {
		return fmt.Errorf("set sort: invalid sorting %q", string(sort))
	}
	c.mu.Lock()
	prev := c.activeSort
	c.activeSort = &sort
	c.mu.Unlock()

	if err := c.Reload(ctx); err != nil {
		c.mu.Lock()
		if c.activeSort != nil && *c.activeSort == sort {
			c.activeSort = prev
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// CreateForm holds the values of the create-task form.
type CreateForm struct {
	Name        string
	Description string
	Deadline    *time.Time
	Priority    model.Priority
}

// Create validates the form, creates the task and reloads the list so the
// new task lands where the active sort puts it. A failed reload after a
// successful create is reported by Reload's own notice.
func (c *Controller) Create(ctx context.Context, form CreateForm) (model.Task, error) {
	name := strings.TrimSpace(form.Name)
	if err := validateName(name); err != nil {
		c.notify.Notify(Notice{Op: "create", Severity: Blocking, Message: err.Message, Err: err})
		return model.Task{}, err
	}
	if form.Priority != model.PriorityNone && !form.Priority.Valid() {
		err := &FormError{Field: "priority", Message: fmt.Sprintf("Unsupported priority: %s", form.Priority)}
		c.notify.Notify(Notice{Op: "create", Severity: Blocking, Message: err.Message, Err: err})
		return model.Task{}, err
	}

	req := todoapi.CreateRequest{
		Name:     name,
		Deadline: form.Deadline,
		Priority: form.Priority,
	}
	if d := strings.TrimSpace(form.Description); d != "" {
		req.Description = &d
	}

	task, err := c.gw.CreateTask(ctx, req)
	if err != nil {
		c.notify.Notify(newNotice("create", "", Blocking, err))
		return model.Task{}, fmt.Errorf("create: %w", err)
	}
	c.logger.WithField("task", task.ID).Debug("task created")

	_ = c.Reload(ctx)
	return task, nil
}

// Remove deletes the task and drops it from the list.
func (c *Controller) Remove(ctx context.Context, id string) error {
	if err := c.acquire(id); err != nil {
		return err
	}
	defer c.release(id)

	if err := c.gw.DeleteTask(ctx, id); err != nil {
		c.notify.Notify(newNotice("delete", id, NonBlocking, err))
		return fmt.Errorf("remove %s: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeOne(id)
	if c.editing != nil && c.editing.taskID == id {
		c.editing = nil
	}
	return nil
}

// ToggleDone flips the task between done and not done. Only the matching
// entry is replaced; the rest of the list is left as is.
func (c *Controller) ToggleDone(ctx context.Context, id string) (model.Task, error) {
	current, ok := c.Task(id)
	if !ok {
		return model.Task{}, ErrTaskNotLoaded
	}
	if err := c.acquire(id); err != nil {
		return model.Task{}, err
	}
	defer c.release(id)

	desired := !current.Status.Done()
	task, err := c.gw.ToggleTask(ctx, id, desired)
	if err != nil {
		c.notify.Notify(newNotice("toggle", id, NonBlocking, err))
		return model.Task{}, fmt.Errorf("toggle %s: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.replaceOne(id, task) {
		c.logger.WithField("task", id).Debug("toggled task no longer listed")
	}
	return task, nil
}

// replaceAll swaps in a new collection. Callers hold mu.
func (c *Controller) replaceAll(tasks []model.Task) {
	next := make([]model.Task, len(tasks))
	for i, t := range tasks {
		next[i] = t.Clone()
	}
	c.tasks = next
}

// replaceOne swaps the entry with the given id for task and reports whether
// one was found. The slice is copied so earlier snapshots stay intact.
// Callers hold mu.
func (c *Controller) replaceOne(id string, task model.Task) bool {
	c.mutationGen++
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	next := make([]model.Task, len(c.tasks))
	copy(next, c.tasks)
	next[i] = task.Clone()
	c.tasks = next
	return true
}

// removeOne drops the entry with the given id. Callers hold mu.
func (c *Controller) removeOne(id string) bool {
	c.mutationGen++
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	next := make([]model.Task, 0, len(c.tasks)-1)
	next = append(next, c.tasks[:i]...)
	next = append(next, c.tasks[i+1:]...)
	c.tasks = next
	return true
}

func (c *Controller) indexOf(id string) int {
	for i, t := range c.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) acquire(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[id]; busy {
		return ErrTaskBusy
	}
	c.inflight[id] = struct{}{}
	return nil
}

func (c *Controller) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
}

func validateName(name string) *FormError {
	if name == "" {
		return &FormError{Field: "name", Message: "Name is required"}
	}
	if utf8.RuneCountInString(name) < MinNameLength {
		return &FormError{Field: "name", Message: fmt.Sprintf("Name must be at least %d characters", MinNameLength)}
	}
	return nil
}
