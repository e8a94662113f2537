// Package backend talks to the agent execution service over REST and a
// WebSocket event stream. All LLM work happens on the other side; this
// package only moves requests and results.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"agentboard/internal/domain"
)

var ErrInvalidFilename = errors.New("invalid generated file name")

// APIError is a non-2xx reply from the backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, strings.TrimSpace(e.Body))
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Config struct {
	BaseURL        string
	OnlineURL      string
	RequestTimeout time.Duration
	ChatTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8000"
	}
	if c.OnlineURL == "" {
		c.OnlineURL = "http://localhost:8001"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.OnlineURL = strings.TrimRight(c.OnlineURL, "/")
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.ChatTimeout <= 0 {
		c.ChatTimeout = 2 * time.Minute
	}
	return c
}

type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a client over the configured base URLs. Timeouts are
// applied per call: workflow runs use ChatTimeout, everything else
// RequestTimeout.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg.withDefaults(),
		http: &http.Client{},
	}
}

// Health reports whether the backend answers its health endpoint. It never
// returns an error; any failure reads as unhealthy.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	var out struct {
		Status string `json:"status"`
	}
	return c.getJSON(ctx, c.cfg.BaseURL, "/health", &out) == nil
}

type promptRequest struct {
	Prompt         string   `json:"prompt"`
	CodeHistory    []string `json:"code_history"`
	ErrorHistory   []string `json:"error_history"`
	ConversationID string   `json:"conversation_id,omitempty"`
}

// SendPrompt runs the stock coordinator workflow on the backend. Error
// outcomes arrive as 200 bodies with success=false, so loosely shaped or
// empty bodies are normalized instead of failing the call.
func (c *Client) SendPrompt(ctx context.Context, prompt string, conversationID string) (domain.ChatResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ChatTimeout)
	defer cancel()

	req := promptRequest{
		Prompt:         prompt,
		CodeHistory:    []string{},
		ErrorHistory:   []string{},
		ConversationID: conversationID,
	}
	body, err := c.post(ctx, c.cfg.BaseURL, "/chat", req)
	if err != nil {
		return domain.ChatResult{}, fmt.Errorf("send prompt: %w", err)
	}
	return decodeChatResult(body), nil
}

func decodeChatResult(body []byte) domain.ChatResult {
	doc := gjson.ParseBytes(body)
	res := domain.ChatResult{
		Type:        doc.Get("type").String(),
		Message:     doc.Get("message").String(),
		Code:        doc.Get("code").String(),
		Tests:       doc.Get("tests").String(),
		TestResults: doc.Get("test_results").String(),
		Success:     doc.Get("success").Bool(),
	}
	if tp := doc.Get("tests_passed"); tp.Exists() && tp.Type != gjson.Null {
		v := tp.Bool()
		res.TestsPassed = &v
	}
	if res.Type == "" {
		res.Type = "info"
	}
	if res.Message == "" {
		res.Message = "No response from backend"
	}
	return res
}

type workflowAgent struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Role  string `json:"role"`
	Model string `json:"model,omitempty"`
}

// RunWorkflow runs a custom agent list without canvas geometry.
func (c *Client) RunWorkflow(ctx context.Context, task string, boxes []domain.AgentBox) (domain.FlowResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ChatTimeout)
	defer cancel()

	agents := make([]workflowAgent, 0, len(boxes))
	for _, b := range boxes {
		agents = append(agents, workflowAgent{
			ID:    b.ID,
			Type:  string(b.AgentType),
			Role:  b.Role,
			Model: b.Model,
		})
	}
	req := map[string]any{"task": task, "agents": agents}
	body, err := c.post(ctx, c.cfg.BaseURL, "/run-workflow", req)
	if err != nil {
		return domain.FlowResult{}, fmt.Errorf("run workflow: %w", err)
	}
	return decodeFlowResult(body)
}

type manualFlowRequest struct {
	Prompt      string              `json:"prompt"`
	Boxes       []domain.AgentBox   `json:"boxes"`
	Connections []domain.Connection `json:"connections"`
}

// RunManualFlow submits the drawn board and returns the transcript the
// backend produced while executing it.
func (c *Client) RunManualFlow(ctx context.Context, prompt string, boxes []domain.AgentBox, connections []domain.Connection) (domain.FlowResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ChatTimeout)
	defer cancel()

	req := manualFlowRequest{Prompt: prompt, Boxes: boxes, Connections: connections}
	if req.Boxes == nil {
		req.Boxes = []domain.AgentBox{}
	}
	if req.Connections == nil {
		req.Connections = []domain.Connection{}
	}
	body, err := c.post(ctx, c.cfg.BaseURL, "/run-manual-flow", req)
	if err != nil {
		return domain.FlowResult{}, fmt.Errorf("run manual flow: %w", err)
	}
	return decodeFlowResult(body)
}

type flowMessage struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type flowEnvelope struct {
	Success        bool            `json:"success"`
	Error          string          `json:"error"`
	Message        string          `json:"message"`
	Messages       []flowMessage   `json:"messages"`
	Results        json.RawMessage `json:"results"`
	GeneratedFiles []string        `json:"generated_files"`
}

func decodeFlowResult(body []byte) (domain.FlowResult, error) {
	var env flowEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.FlowResult{}, fmt.Errorf("decode flow result: %w", err)
	}
	res := domain.FlowResult{
		Success:        env.Success,
		Error:          env.Error,
		Message:        env.Message,
		Results:        env.Results,
		GeneratedFiles: env.GeneratedFiles,
	}
	for _, m := range env.Messages {
		res.Messages = append(res.Messages, domain.AgentMessage{
			From:      m.From,
			To:        m.To,
			Kind:      m.Type,
			Content:   m.Content,
			Timestamp: parseTimestamp(m.Timestamp),
		})
	}
	return res, nil
}

// UpdateAgentModel switches an agent's model. The endpoint takes query
// parameters, not a JSON body.
func (c *Client) UpdateAgentModel(ctx context.Context, agentID string, model string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("agent_id", agentID)
	q.Set("model_name", model)
	body, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/update-agent-model?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("update agent model: %w", err)
	}
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("decode model update: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("update agent model: %s", out.Message)
	}
	return nil
}

// ListGenerated returns the names of files the backend has produced,
// sorted for stable display.
func (c *Client) ListGenerated(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var out struct {
		Files []string `json:"files"`
		Error string   `json:"error"`
	}
	if err := c.getJSON(ctx, c.cfg.BaseURL, "/list-files", &out); err != nil {
		return nil, fmt.Errorf("list generated files: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("list generated files: %s", out.Error)
	}
	sort.Strings(out.Files)
	return out.Files, nil
}

// ReadGenerated fetches one generated file as plain text.
func (c *Client) ReadGenerated(ctx context.Context, name string) (string, error) {
	if err := validateFilename(name); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	body, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/generated/"+url.PathEscape(name), nil)
	if err != nil {
		return "", fmt.Errorf("read generated file %s: %w", name, err)
	}
	return string(body), nil
}

func (c *Client) DeleteGenerated(ctx context.Context, name string) error {
	if err := validateFilename(name); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	if _, err := c.do(ctx, http.MethodDelete, c.cfg.BaseURL+"/generated/"+url.PathEscape(name), nil); err != nil {
		return fmt.Errorf("delete generated file %s: %w", name, err)
	}
	return nil
}

// ExampleWorkflow fetches the stock four-agent layout used to seed an
// empty board.
func (c *Client) ExampleWorkflow(ctx context.Context) (domain.ExampleWorkflow, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var out domain.ExampleWorkflow
	if err := c.getJSON(ctx, c.cfg.BaseURL, "/example-workflow", &out); err != nil {
		return domain.ExampleWorkflow{}, fmt.Errorf("example workflow: %w", err)
	}
	return out, nil
}

// OnlineModels lists the hosted-model catalog of the online service. The
// wire shape keys models by name with per-model config objects; only the
// names and the provider grouping matter here.
func (c *Client) OnlineModels(ctx context.Context) (domain.OnlineModels, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	body, err := c.do(ctx, http.MethodGet, c.cfg.OnlineURL+"/models", nil)
	if err != nil {
		return domain.OnlineModels{}, fmt.Errorf("online models: %w", err)
	}
	doc := gjson.ParseBytes(body)
	out := domain.OnlineModels{Default: doc.Get("default_model").String()}
	doc.Get("available_models").ForEach(func(key, _ gjson.Result) bool {
		out.Available = append(out.Available, key.String())
		return true
	})
	sort.Strings(out.Available)
	if providers := doc.Get("providers"); providers.Exists() {
		out.Providers = map[string][]string{}
		providers.ForEach(func(key, value gjson.Result) bool {
			var models []string
			value.ForEach(func(_, model gjson.Result) bool {
				models = append(models, model.String())
				return true
			})
			out.Providers[key.String()] = models
			return true
		})
	}
	return out, nil
}

type onlineMessage struct {
	From      string `json:"from_agent"`
	To        string `json:"to_agent"`
	Type      string `json:"message_type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type onlineWorkflowResponse struct {
	WorkflowID     string            `json:"workflow_id"`
	Status         string            `json:"status"`
	Agents         map[string]string `json:"agents"`
	MessageHistory []onlineMessage   `json:"message_history"`
	TotalMessages  int               `json:"total_messages"`
	ConversationID string            `json:"conversation_id"`
}

// RunOnlineWorkflow submits a workflow to the hosted-model service.
func (c *Client) RunOnlineWorkflow(ctx context.Context, req domain.OnlineWorkflowRequest) (domain.OnlineWorkflowResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ChatTimeout)
	defer cancel()

	if req.Agents == nil {
		req.Agents = []domain.OnlineAgent{}
	}
	body, err := c.post(ctx, c.cfg.OnlineURL, "/run-workflow", req)
	if err != nil {
		return domain.OnlineWorkflowResult{}, fmt.Errorf("run online workflow: %w", err)
	}
	var env onlineWorkflowResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.OnlineWorkflowResult{}, fmt.Errorf("decode online workflow: %w", err)
	}
	res := domain.OnlineWorkflowResult{
		WorkflowID:     env.WorkflowID,
		Status:         env.Status,
		Agents:         env.Agents,
		TotalMessages:  env.TotalMessages,
		ConversationID: env.ConversationID,
	}
	for _, m := range env.MessageHistory {
		res.Messages = append(res.Messages, domain.AgentMessage{
			From:      m.From,
			To:        m.To,
			Kind:      m.Type,
			Content:   m.Content,
			Timestamp: parseTimestamp(m.Timestamp),
		})
	}
	return res, nil
}

func (c *Client) OnlineWorkflowStatus(ctx context.Context, workflowID string) (domain.OnlineWorkflowStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var out domain.OnlineWorkflowStatus
	if err := c.getJSON(ctx, c.cfg.OnlineURL, "/workflow-status/"+url.PathEscape(workflowID), &out); err != nil {
		return domain.OnlineWorkflowStatus{}, fmt.Errorf("online workflow status: %w", err)
	}
	return out, nil
}

type PollConfig struct {
	Interval      time.Duration
	BackoffFactor float64
	MaxInterval   time.Duration
}

func (p PollConfig) withDefaults() PollConfig {
	if p.Interval <= 0 {
		p.Interval = 2 * time.Second
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 1.5
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = 15 * time.Second
	}
	return p
}

// PollOnlineWorkflow watches a workflow until it reaches a terminal status
// or ctx ends. The poll interval grows by BackoffFactor up to MaxInterval.
func (c *Client) PollOnlineWorkflow(ctx context.Context, workflowID string, poll PollConfig) (domain.OnlineWorkflowStatus, error) {
	poll = poll.withDefaults()
	interval := poll.Interval
	for {
		status, err := c.OnlineWorkflowStatus(ctx, workflowID)
		if err != nil {
			return domain.OnlineWorkflowStatus{}, err
		}
		switch status.Status {
		case "completed", "error", "failed":
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(interval):
		}
		interval = time.Duration(float64(interval) * poll.BackoffFactor)
		if interval > poll.MaxInterval {
			interval = poll.MaxInterval
		}
	}
}

func (c *Client) getJSON(ctx context.Context, base string, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *Client) post(ctx context.Context, base string, path string, in any) ([]byte, error) {
	var payload io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(raw)
	}
	return c.do(ctx, http.MethodPost, base+path, payload)
}

func (c *Client) do(ctx context.Context, method string, endpoint string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// parseTimestamp accepts RFC3339 and the zone-less isoformat strings the
// backend emits. Unparseable input yields a zero time; the transcript log
// substitutes arrival time for those.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func validateFilename(name string) error {
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}
