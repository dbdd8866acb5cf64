package replica

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"schedule-board/domain"
)

const (
	minBackoff = 250 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// TransportError reports a command or read that failed at the network or HTTP
// level. The replica is never touched by a failed command.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client talks to a board server: commands over HTTP, changes over the
// websocket event channel.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	logger *log.Logger
}

// NewClient creates a client for the server at baseURL, e.g. http://localhost:5000.
func NewClient(baseURL string, logger *log.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		dialer: websocket.DefaultDialer,
		logger: logger,
	}, nil
}

type errorBody struct {
	Error string `json:"error"`
}

type addResponse struct {
	TaskID string      `json:"task_id"`
	Task   domain.Task `json:"task"`
}

type deleteResponse struct {
	TaskID  string `json:"task_id"`
	Existed bool   `json:"existed"`
}

type listResponse struct {
	Rev   uint64       `json:"rev"`
	Tasks domain.Tasks `json:"tasks"`
}

// AddTask submits an add command. The acknowledged task is returned; the
// replica learns about it from the event channel.
func (c *Client) AddTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	if task.ID == "" {
		return domain.Task{}, &domain.ValidationError{Field: "taskId", Reason: "must not be empty"}
	}
	body, err := sonic.Marshal(task)
	if err != nil {
		return domain.Task{}, err
	}
	var resp addResponse
	if err := c.do(ctx, "add task", http.MethodPost, "/tasks", body, http.StatusCreated, &resp); err != nil {
		return domain.Task{}, err
	}
	return resp.Task, nil
}

// DeleteTask submits a delete command and reports whether the task existed.
func (c *Client) DeleteTask(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, &domain.ValidationError{Field: "taskId", Reason: "must not be empty"}
	}
	var resp deleteResponse
	if err := c.do(ctx, "delete task", http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, http.StatusOK, &resp); err != nil {
		return false, err
	}
	return resp.Existed, nil
}

// ListTasks reads the current mapping over HTTP.
func (c *Client) ListTasks(ctx context.Context) (domain.Tasks, uint64, error) {
	var resp listResponse
	if err := c.do(ctx, "list tasks", http.MethodGet, "/tasks", nil, http.StatusOK, &resp); err != nil {
		return nil, 0, err
	}
	if resp.Tasks == nil {
		resp.Tasks = domain.Tasks{}
	}
	return resp.Tasks, resp.Rev, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, want int, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != want {
		var eb errorBody
		_ = sonic.Unmarshal(data, &eb)
		if eb.Error == "" {
			eb.Error = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusBadRequest {
			return &domain.ValidationError{Field: "request", Reason: eb.Error}
		}
		return &TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(eb.Error)}
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) eventsURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	return u.String()
}

// Run keeps r connected until ctx is cancelled, reconnecting with exponential
// backoff. Every reconnect starts a fresh handshake, so missed events are
// healed by the next snapshot.
func (c *Client) Run(ctx context.Context, r *Replica) error {
	backoff := minBackoff
	for {
		synced, err := c.session(ctx, r)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if synced {
			backoff = minBackoff
		}
		c.logger.WithFields(log.Fields{"backoff": backoff}).Warnf("event channel lost: %v", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// session runs one connection and reports whether it reached Synced.
func (c *Client) session(ctx context.Context, r *Replica) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.eventsURL(), nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	r.Connect()
	defer r.Disconnect()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	synced := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return synced, err
		}
		ev, err := domain.DecodeFrame(raw)
		if err != nil {
			c.logger.Errorf("decode frame: %v", err)
			continue
		}
		r.Apply(ev)
		if r.State() == Synced {
			synced = true
		}
	}
}
