package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crucible/internal/api"
	"crucible/internal/events"
	"crucible/internal/report"
)

// client is a thin HTTP wrapper over the daemon API.
type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient(server, token string) *client {
	server = strings.TrimSpace(server)
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "http://" + server
	}
	return &client{
		baseURL: strings.TrimRight(server, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request failed (is crucibled running?): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var payload api.ErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("daemon: %s", payload.Error)
	}
	return fmt.Errorf("daemon: http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

func (c *client) submit(ctx context.Context, req api.SubmitRequest) (api.TaskView, error) {
	var view api.TaskView
	err := c.do(ctx, http.MethodPost, "/api/tasks", req, &view)
	return view, err
}

func (c *client) listTasks(ctx context.Context, status string, limit int) (api.TaskListResponse, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/tasks"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var list api.TaskListResponse
	err := c.do(ctx, http.MethodGet, path, nil, &list)
	return list, err
}

func (c *client) getTask(ctx context.Context, id string) (api.TaskView, error) {
	var view api.TaskView
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &view)
	return view, err
}

func (c *client) startTask(ctx context.Context, id string) (api.TaskView, error) {
	var view api.TaskView
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/start", nil, &view)
	return view, err
}

func (c *client) result(ctx context.Context, id string) (report.Result, error) {
	var result report.Result
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id)+"/result", nil, &result)
	return result, err
}

func (c *client) status(ctx context.Context) (api.StatusResponse, error) {
	var status api.StatusResponse
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &status)
	return status, err
}

// watch follows a task's event stream. onSnapshot fires once with the
// initial state; onEvent fires per event until the stream ends or either
// callback returns an error.
func (c *client) watch(ctx context.Context, id string, onSnapshot func(api.TaskView) error, onEvent func(events.Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tasks/"+url.PathEscape(id)+"/events", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	// Streams outlive the default request timeout.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request failed (is crucibled running?): %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	currentEvent := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := []byte(strings.TrimPrefix(line, "data: "))
			if currentEvent == "snapshot" {
				var view api.TaskView
				if err := json.Unmarshal(data, &view); err != nil {
					return fmt.Errorf("decode snapshot: %w", err)
				}
				if onSnapshot != nil {
					if err := onSnapshot(view); err != nil {
						return err
					}
				}
				continue
			}
			var evt events.Event
			if err := json.Unmarshal(data, &evt); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			if onEvent != nil {
				if err := onEvent(evt); err != nil {
					return err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
