package todoapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/taskdeck/pkg/model"
)

// dateLayout is what date-only inputs send for a deadline.
const dateLayout = "2006-01-02"

// Timestamp reads ISO-8601 timestamps, with or without fractional seconds,
// and bare dates.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements the json.Unmarshaler interface for Timestamp.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		ts.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ts.Time = t
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("failed to parse timestamp '%s': %w", s, err)
	}
	ts.Time = t
	return nil
}

// MarshalJSON implements the json.Marshaler interface for Timestamp.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.Time.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + ts.Time.Format(time.RFC3339) + `"`), nil
}

func (ts *Timestamp) ptr() *time.Time {
	if ts == nil || ts.Time.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}

// taskRecord is a task as the service serializes it.
type taskRecord struct {
	ID          string          `json:"id"`
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Deadline    *Timestamp      `json:"deadline"`
	Priority    *string         `json:"priority"`
	Status      json.RawMessage `json:"status"`
	CreatedAt   *Timestamp      `json:"createdAt"`
	ChangedAt   *Timestamp      `json:"changedAt"`
}

// decodeStatus accepts either the status name or the service's numeric code.
func decodeStatus(raw json.RawMessage) (model.Status, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("missing")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return model.ParseStatus(s)
	}
	code, err := strconv.Atoi(string(raw))
	if err != nil {
		return "", fmt.Errorf("unknown status %s", raw)
	}
	return model.StatusFromCode(code)
}

func (r taskRecord) toTask(op string) (model.Task, error) {
	if strings.TrimSpace(r.ID) == "" {
		return model.Task{}, &DecodeError{Op: op, Field: "id", Err: fmt.Errorf("missing")}
	}
	if r.Name == nil || strings.TrimSpace(*r.Name) == "" {
		return model.Task{}, &DecodeError{Op: op, Field: "name", Err: fmt.Errorf("missing")}
	}
	if r.CreatedAt == nil || r.CreatedAt.IsZero() {
		return model.Task{}, &DecodeError{Op: op, Field: "createdAt", Err: fmt.Errorf("missing")}
	}
	status, err := decodeStatus(r.Status)
	if err != nil {
		return model.Task{}, &DecodeError{Op: op, Field: "status", Err: err}
	}
	priority := model.PriorityNone
	if r.Priority != nil {
		if priority, err = model.ParsePriority(*r.Priority); err != nil {
			return model.Task{}, &DecodeError{Op: op, Field: "priority", Err: err}
		}
	}

	task, err := model.NewTask(r.ID, *r.Name, priority, status, r.CreatedAt.Time,
		r.ChangedAt.ptr(), r.Description, r.Deadline.ptr())
	if err != nil {
		return model.Task{}, &DecodeError{Op: op, Err: err}
	}
	return task, nil
}

// unwrap strips a single-key envelope such as {"task": {...}}.
func unwrap(raw []byte, key string) []byte {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil || len(env) != 1 {
		return raw
	}
	if inner, ok := env[key]; ok {
		return inner
	}
	return raw
}

func decodeTask(op string, body []byte) (model.Task, error) {
	var rec taskRecord
	if err := json.Unmarshal(unwrap(body, "task"), &rec); err != nil {
		return model.Task{}, &DecodeError{Op: op, Err: err}
	}
	return rec.toTask(op)
}

func decodeTasks(op string, body []byte) ([]model.Task, error) {
	var recs []taskRecord
	if err := json.Unmarshal(unwrap(body, "tasks"), &recs); err != nil {
		return nil, &DecodeError{Op: op, Err: err}
	}
	tasks := make([]model.Task, 0, len(recs))
	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		task, err := rec.toTask(op)
		if err != nil {
			return nil, err
		}
		if seen[task.ID] {
			return nil, &DecodeError{Op: op, Field: "id", Err: fmt.Errorf("duplicate id %s", task.ID)}
		}
		seen[task.ID] = true
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// errorBody covers both error shapes the service produces:
// {"code": "...", "errors": {"message": "..."}} and {"message": "..."}.
type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

// serverMessage extracts the user-facing text from an error response, or
// returns "" when the body carries none.
func serverMessage(body []byte) (string, map[string]string) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return "", nil
	}
	if msg := eb.Errors["message"]; msg != "" {
		return msg, eb.Errors
	}
	if eb.Message != "" {
		return eb.Message, eb.Errors
	}
	if len(eb.Errors) > 0 {
		keys := make([]string, 0, len(eb.Errors))
		for k := range eb.Errors {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		msgs := make([]string, 0, len(keys))
		for _, k := range keys {
			msgs = append(msgs, eb.Errors[k])
		}
		return strings.Join(msgs, "; "), eb.Errors
	}
	return "", nil
}
