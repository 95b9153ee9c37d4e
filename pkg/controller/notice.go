package controller

import (
	log "github.com/sirupsen/logrus"

	"github.com/harrisonrobin/taskdeck/pkg/todoapi"
)

type Severity int

const (
	// Blocking notices belong to whole-list operations: the view cannot be
	// trusted until the user acknowledges them.
	Blocking Severity = iota
	// NonBlocking notices belong to a single task; the rest of the list
	// stays usable.
	NonBlocking
)

func (s Severity) String() string {
	if s == Blocking {
		return "blocking"
	}
	return "non-blocking"
}

// Notice reports a failed operation to the user.
type Notice struct {
	Op       string
	TaskID   string
	Severity Severity
	Message  string
	Err      error
}

type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to a logrus logger.
type LogNotifier struct {
	Logger log.FieldLogger
}

func (l LogNotifier) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	entry := logger.WithFields(log.Fields{"op": n.Op, "severity": n.Severity.String()})
	if n.TaskID != "" {
		entry = entry.WithField("task", n.TaskID)
	}
	if n.Err != nil {
		entry = entry.WithError(n.Err)
	}
	if n.Severity == Blocking {
		entry.Error(n.Message)
		return
	}
	entry.Warn(n.Message)
}

func newNotice(op, id string, sev Severity, err error) Notice {
	return Notice{Op: op, TaskID: id, Severity: sev, Message: todoapi.Message(err), Err: err}
}
