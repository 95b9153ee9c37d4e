package todoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harrisonrobin/taskdeck/pkg/model"
)

const (
	DefaultTimeout = 10 * time.Second

	tracerName = "github.com/harrisonrobin/taskdeck/pkg/todoapi"

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 4 << 20
)

// operation describes one gateway call for error mapping and messages.
type operation struct {
	name     string
	fallback string
	// payload is true when a 4xx other than 404 means rejected content.
	payload bool
}

var (
	opList   = operation{name: "list", fallback: "Failed to fetch tasks"}
	opCreate = operation{name: "create", fallback: "Failed to create task", payload: true}
	opUpdate = operation{name: "update", fallback: "Failed to update task", payload: true}
	opDelete = operation{name: "delete", fallback: "Failed to delete task"}
	opToggle = operation{name: "toggle", fallback: "Failed to toggle task status"}
)

// Client talks to the task service over HTTP. It never retries; every
// failure is returned as one of the typed errors in this package.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	tracer  trace.Tracer
	logger  log.FieldLogger
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

func WithLogger(l log.FieldLogger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client rooted at baseURL, e.g. http://localhost:8080.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url '%s': %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url '%s': scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		tracer:  otel.Tracer(tracerName),
		logger:  log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListTasks returns the tasks in the order the service applies for sort.
// A nil sort lets the service pick its default.
func (c *Client) ListTasks(ctx context.Context, sort *model.SortOrder) ([]model.Task, error) {
	query := url.Values{}
	if sort != nil {
		if !sort.Valid() {
			return nil, fmt.Errorf("list: invalid sorting %q", string(*sort))
		}
		query.Set("sorting", string(*sort))
	}

	body, err := c.do(ctx, opList, http.MethodGet, "/tasks", "", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeTasks(opList.name, body)
}

func (c *Client) CreateTask(ctx context.Context, req CreateRequest) (model.Task, error) {
	if strings.TrimSpace(req.Name) == "" {
		return model.Task{}, &ValidationError{Op: opCreate.name, Message: "Name is required",
			Fields: map[string]string{"name": "Name is required"}}
	}
	body, err := c.do(ctx, opCreate, http.MethodPost, "/tasks", "", nil, req)
	if err != nil {
		return model.Task{}, err
	}
	return decodeTask(opCreate.name, body)
}

func (c *Client) UpdateTask(ctx context.Context, id string, req UpdateRequest) (model.Task, error) {
	body, err := c.do(ctx, opUpdate, http.MethodPut, taskPath(id), id, nil, req)
	if err != nil {
		return model.Task{}, err
	}
	return decodeTask(opUpdate.name, body)
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	_, err := c.do(ctx, opDelete, http.MethodDelete, taskPath(id), id, nil, nil)
	return err
}

// ToggleTask asks the service to mark the task done or not done. The
// resulting status is decided by the service.
func (c *Client) ToggleTask(ctx context.Context, id string, isDone bool) (model.Task, error) {
	body, err := c.do(ctx, opToggle, http.MethodPatch, taskPath(id)+"/toggle", id, nil, toggleRequest{IsDone: isDone})
	if err != nil {
		return model.Task{}, err
	}
	return decodeTask(opToggle.name, body)
}

func taskPath(id string) string {
	return "/tasks/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, op operation, method, path, id string, query url.Values, payload any) (_ []byte, err error) {
	ctx, span := c.tracer.Start(ctx, "todoapi."+op.name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", routeOf(op)),
	)
	if id != "" {
		span.SetAttributes(attribute.String("taskdeck.task_id", id))
	}
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.baseURL.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return nil, fmt.Errorf("%s: failed to encode request: %w", op.name, err)
		}
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", op.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		msg := "The task service is unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "The task service did not respond in time"
		}
		c.logger.WithFields(log.Fields{"op": op.name, "method": method, "path": path}).
			WithError(err).Debug("todoapi request failed")
		return nil, &TransportError{Op: op.name, Message: msg, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Op: op.name, Message: "Failed to read response from the task service", Err: err}
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.WithFields(log.Fields{
		"op":      op.name,
		"method":  method,
		"path":    path,
		"status":  resp.StatusCode,
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	}).Debug("todoapi request")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, classify(op, id, resp.StatusCode, body)
}

func classify(op operation, id string, status int, body []byte) error {
	msg, fields := serverMessage(body)
	if msg == "" {
		msg = op.fallback
	}
	switch {
	case status == http.StatusNotFound && id != "":
		return &NotFoundError{Op: op.name, ID: id, Message: msg}
	case op.payload && (status == http.StatusBadRequest || status == http.StatusConflict || status == http.StatusUnprocessableEntity):
		return &ValidationError{Op: op.name, StatusCode: status, Message: msg, Fields: fields}
	}
	return &TransportError{Op: op.name, StatusCode: status, Message: msg}
}

func routeOf(op operation) string {
	switch op {
	case opList, opCreate:
		return "/tasks"
	case opToggle:
		return "/tasks/{id}/toggle"
	}
	return "/tasks/{id}"
}
