package todoapi

import (
	"encoding/json"
	"time"

	"github.com/harrisonrobin/taskdeck/pkg/model"
)

type CreateRequest struct {
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Deadline    *time.Time     `json:"deadline,omitempty"`
	Priority    model.Priority `json:"priority,omitempty"`
}

type patchOp int

const (
	patchKeep patchOp = iota
	patchSet
	patchClear
)

// DeadlinePatch says what an update does to a task's deadline. The zero
// value leaves the stored deadline alone.
type DeadlinePatch struct {
	op    patchOp
	value time.Time
}

func KeepDeadline() DeadlinePatch { return DeadlinePatch{} }

func SetDeadline(t time.Time) DeadlinePatch { return DeadlinePatch{op: patchSet, value: t} }

func ClearDeadline() DeadlinePatch { return DeadlinePatch{op: patchClear} }

func (p DeadlinePatch) IsKeep() bool  { return p.op == patchKeep }
func (p DeadlinePatch) IsClear() bool { return p.op == patchClear }

// Value returns the deadline to set, if any.
func (p DeadlinePatch) Value() (time.Time, bool) {
	return p.value, p.op == patchSet
}

// UpdateRequest replaces a task's editable fields. Deadline is sent as an
// ISO-8601 string when set, as null when cleared and omitted when kept.
type UpdateRequest struct {
	Name        string
	Description *string
	Deadline    DeadlinePatch
	Priority    model.Priority
}

// MarshalJSON implements the json.Marshaler interface for UpdateRequest.
func (r UpdateRequest) MarshalJSON() ([]byte, error) {
	body := map[string]any{"name": r.Name}
	if r.Description != nil {
		body["description"] = *r.Description
	}
	if r.Priority != model.PriorityNone {
		body["priority"] = r.Priority
	}
	switch r.Deadline.op {
	case patchSet:
		body["deadline"] = r.Deadline.value.Format(time.RFC3339)
	case patchClear:
		body["deadline"] = nil
	}
	return json.Marshal(body)
}

type toggleRequest struct {
	IsDone bool `json:"isDone"`
}
