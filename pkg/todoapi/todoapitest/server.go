// Package todoapitest provides an in-memory task service for tests. It speaks
// the same HTTP protocol as the real service, including its quirks: created
// tasks come back wrapped in {"task": ...} and toggled tasks carry a numeric
// status.
package todoapitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Record is a task as the service stores it.
type Record struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	ChangedAt   *time.Time `json:"changedAt"`
}

// Request is a request the server received.
type Request struct {
	Method string
	Path   string
	Query  string
	Body   string
}

type failure struct {
	status int
	body   string
}

var statusCodes = map[string]int{"Active": 0, "Completed": 1, "Overdue": 2, "Late": 3}

var priorityRank = map[string]int{"Low": 0, "Medium": 1, "High": 2, "Critical": 3}

// Server is a fake task service backed by a map.
type Server struct {
	*httptest.Server

	// Now is the service clock. Defaults to time.Now.
	Now func() time.Time

	mu       sync.Mutex
	tasks    map[string]*Record
	requests []Request
	failures map[string]failure
	seq      int
}

// NewServer starts a fake service. Close it when done.
func NewServer() *Server {
	s := &Server{
		Now:      time.Now,
		tasks:    make(map[string]*Record),
		failures: make(map[string]failure),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.record)
	e.GET("/tasks", s.list)
	e.POST("/tasks", s.create)
	e.PUT("/tasks/:id", s.update)
	e.DELETE("/tasks/:id", s.remove)
	e.PATCH("/tasks/:id/toggle", s.toggle)

	s.Server = httptest.NewServer(e)
	return s
}

// Seed stores records directly, filling in ids and timestamps if missing.
func (s *Server) Seed(recs ...Record) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		rec := r
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			s.seq++
			rec.CreatedAt = s.Now().Add(time.Duration(s.seq) * time.Millisecond)
		}
		if rec.Status == "" {
			rec.Status = "Active"
		}
		if rec.Priority == "" {
			rec.Priority = "Medium"
		}
		s.tasks[rec.ID] = &rec
		out = append(out, rec)
	}
	return out
}

// Get returns the stored record for id.
func (s *Server) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.tasks[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Delete removes a record behind the client's back.
func (s *Server) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

// FailNext makes the next request for route fail with status and body.
// route is one of "list", "create", "update", "delete", "toggle".
func (s *Server) FailNext(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, body: body}
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent request.
func (s *Server) LastRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}
	}
	return s.requests[len(s.requests)-1]
}

func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		body, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(body))
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: req.Method,
			Path:   req.URL.Path,
			Query:  req.URL.RawQuery,
			Body:   string(body),
		})
		s.mu.Unlock()
		return next(c)
	}
}

func (s *Server) injected(c echo.Context, route string) (bool, error) {
	s.mu.Lock()
	f, ok := s.failures[route]
	delete(s.failures, route)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, c.Blob(f.status, echo.MIMEApplicationJSON, []byte(f.body))
}

func appError(c echo.Context, status int, code string, errs map[string]string) error {
	return c.JSON(status, map[string]any{"code": code, "errors": errs})
}

func notFound(c echo.Context) error {
	return appError(c, http.StatusNotFound, "NotFound", map[string]string{"message": "Task not found"})
}

func (s *Server) list(c echo.Context) error {
	if done, err := s.injected(c, "list"); done {
		return err
	}
	sorting := c.QueryParam("sorting")

	s.mu.Lock()
	recs := make([]Record, 0, len(s.tasks))
	for _, r := range s.tasks {
		recs = append(recs, *r)
	}
	s.mu.Unlock()

	less, ok := sorters[sorting]
	if !ok {
		return appError(c, http.StatusBadRequest, "Validation",
			map[string]string{"message": "invalid Sorting: \"" + sorting + "\""})
	}
	sort.SliceStable(recs, func(i, j int) bool { return less(recs[i], recs[j]) })
	return c.JSON(http.StatusOK, recs)
}

var sorters = map[string]func(a, b Record) bool{
	"":             func(a, b Record) bool { return a.CreatedAt.Before(b.CreatedAt) },
	"CreateAsc":    func(a, b Record) bool { return a.CreatedAt.Before(b.CreatedAt) },
	"CreateDesc":   func(a, b Record) bool { return a.CreatedAt.After(b.CreatedAt) },
	"PriorityAsc":  func(a, b Record) bool { return priorityRank[a.Priority] < priorityRank[b.Priority] },
	"PriorityDesc": func(a, b Record) bool { return priorityRank[a.Priority] > priorityRank[b.Priority] },
	"DeadlineAsc":  func(a, b Record) bool { return deadlineBefore(a, b) },
	"DeadlineDesc": func(a, b Record) bool { return deadlineBefore(b, a) },
}

// deadlineBefore sorts tasks without a deadline last.
func deadlineBefore(a, b Record) bool {
	switch {
	case a.Deadline == nil:
		return false
	case b.Deadline == nil:
		return true
	}
	return a.Deadline.Before(*b.Deadline)
}

type createBody struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Priority    *string    `json:"priority"`
}

func (s *Server) validate(name string, deadline *time.Time, priority *string) map[string]string {
	errs := map[string]string{}
	if name == "" {
		errs["name"] = "Name is required"
	}
	if deadline != nil && !deadline.After(s.Now()) {
		errs["deadline"] = "Deadline must be in the future"
	}
	if priority != nil {
		if _, ok := priorityRank[*priority]; !ok {
			errs["priority"] = "Unsupported priority: " + *priority
		}
	}
	return errs
}

func (s *Server) create(c echo.Context) error {
	if done, err := s.injected(c, "create"); done {
		return err
	}
	var body createBody
	if err := c.Bind(&body); err != nil || body.Name == nil {
		return appError(c, http.StatusBadRequest, "invalid_request", map[string]string{"message": "name is required"})
	}
	if errs := s.validate(*body.Name, body.Deadline, body.Priority); len(errs) > 0 {
		return appError(c, http.StatusBadRequest, "Validation", errs)
	}

	s.mu.Lock()
	for _, r := range s.tasks {
		if r.Name == *body.Name {
			s.mu.Unlock()
			return appError(c, http.StatusConflict, "Conflict",
				map[string]string{"message": "Task with this name already exists"})
		}
	}
	s.seq++
	rec := &Record{
		ID:          uuid.NewString(),
		Name:        *body.Name,
		Description: body.Description,
		Deadline:    body.Deadline,
		Priority:    "Medium",
		Status:      "Active",
		CreatedAt:   s.Now().Add(time.Duration(s.seq) * time.Millisecond),
	}
	if body.Priority != nil {
		rec.Priority = *body.Priority
	}
	s.tasks[rec.ID] = rec
	out := *rec
	s.mu.Unlock()

	return c.JSON(http.StatusCreated, map[string]any{"task": out})
}

// update distinguishes an absent deadline (keep) from an explicit null
// (clear), so the body is read field by field.
func (s *Server) update(c echo.Context) error {
	if done, err := s.injected(c, "update"); done {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&fields); err != nil {
		return appError(c, http.StatusBadRequest, "invalid_request", map[string]string{"message": err.Error()})
	}

	var name string
	_ = json.Unmarshal(fields["name"], &name)
	var desc *string
	if raw, ok := fields["description"]; ok {
		_ = json.Unmarshal(raw, &desc)
	}
	var priority *string
	if raw, ok := fields["priority"]; ok {
		_ = json.Unmarshal(raw, &priority)
	}
	rawDeadline, hasDeadline := fields["deadline"]
	var deadline *time.Time
	if hasDeadline {
		if err := json.Unmarshal(rawDeadline, &deadline); err != nil {
			return appError(c, http.StatusBadRequest, "Validation", map[string]string{"deadline": "Invalid deadline format"})
		}
	}
	if errs := s.validate(name, deadline, priority); len(errs) > 0 {
		return appError(c, http.StatusBadRequest, "Validation", errs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[c.Param("id")]
	if !ok {
		return notFound(c)
	}
	rec.Name = name
	rec.Description = desc
	if priority != nil {
		rec.Priority = *priority
	}
	if hasDeadline {
		rec.Deadline = deadline
	}
	switch rec.Status {
	case "Late":
		rec.Status = "Completed"
	case "Overdue":
		rec.Status = "Active"
	}
	now := s.changedAt(rec)
	rec.ChangedAt = &now
	return c.JSON(http.StatusOK, *rec)
}

func (s *Server) remove(c echo.Context) error {
	if done, err := s.injected(c, "delete"); done {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if _, ok := s.tasks[id]; !ok {
		return notFound(c)
	}
	delete(s.tasks, id)
	return c.NoContent(http.StatusNoContent)
}

type toggleBody struct {
	IsDone bool `json:"isDone"`
}

// toggle answers with the numeric status encoding.
func (s *Server) toggle(c echo.Context) error {
	if done, err := s.injected(c, "toggle"); done {
		return err
	}
	var body toggleBody
	if err := c.Bind(&body); err != nil {
		return appError(c, http.StatusBadRequest, "invalid_request", map[string]string{"message": err.Error()})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[c.Param("id")]
	if !ok {
		return notFound(c)
	}
	pastDeadline := rec.Deadline != nil && s.Now().After(*rec.Deadline)
	switch {
	case body.IsDone && pastDeadline:
		rec.Status = "Late"
	case body.IsDone:
		rec.Status = "Completed"
	case pastDeadline:
		rec.Status = "Overdue"
	default:
		rec.Status = "Active"
	}
	now := s.changedAt(rec)
	rec.ChangedAt = &now

	out := map[string]any{
		"id":          rec.ID,
		"name":        rec.Name,
		"description": rec.Description,
		"deadline":    rec.Deadline,
		"priority":    rec.Priority,
		"status":      statusCodes[rec.Status],
		"createdAt":   rec.CreatedAt,
		"changedAt":   rec.ChangedAt,
	}
	return c.JSON(http.StatusOK, out)
}

// changedAt never precedes createdAt, even when tests move the clock back.
func (s *Server) changedAt(rec *Record) time.Time {
	now := s.Now()
	if now.Before(rec.CreatedAt) {
		return rec.CreatedAt
	}
	return now
}
