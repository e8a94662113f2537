package domain

import (
	"encoding/json"
	"time"
)

type AgentType string

const (
	AgentTypeCoordinator AgentType = "coordinator"
	AgentTypeCoder       AgentType = "coder"
	AgentTypeTester      AgentType = "tester"
	AgentTypeRunner      AgentType = "runner"
	AgentTypeCustom      AgentType = "custom"
)

type Side string

const (
	SideLeft   Side = "left"
	SideRight  Side = "right"
	SideTop    Side = "top"
	SideBottom Side = "bottom"
)

func (s Side) Valid() bool {
	switch s {
	case SideLeft, SideRight, SideTop, SideBottom:
		return true
	}
	return false
}

// Offset returns the fractional position of the side's anchor on a unit box.
func (s Side) Offset() (fx float64, fy float64) {
	switch s {
	case SideLeft:
		return 0, 0.5
	case SideRight:
		return 1, 0.5
	case SideTop:
		return 0.5, 0
	case SideBottom:
		return 0.5, 1
	}
	return 0.5, 0.5
}

const (
	MinBoxWidth      = 120.0
	MinBoxHeight     = 60.0
	DefaultBoxWidth  = 160.0
	DefaultBoxHeight = 100.0
)

type AgentBox struct {
	ID        string    `json:"id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	AgentType AgentType `json:"agentType"`
	Role      string    `json:"role"`
	Model     string    `json:"model,omitempty"`
	Pinned    bool      `json:"pinned,omitempty"`
}

type Connection struct {
	ID       string `json:"id"`
	FromID   string `json:"fromId"`
	FromSide Side   `json:"fromSide"`
	ToID     string `json:"toId"`
	ToSide   Side   `json:"toSide"`
	Pinned   bool   `json:"pinned,omitempty"`
}

// PopupState overrides the derived placement of a transcript popup.
// A zero Width means no override is set.
type PopupState struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (p PopupState) Set() bool {
	return p.Width > 0 && p.Height > 0
}

type Viewport struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

type AgentMessage struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Kind      string    `json:"type,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"-"`
}

type WorkflowState string

const (
	WorkflowIdle      WorkflowState = "idle"
	WorkflowRunning   WorkflowState = "running"
	WorkflowCompleted WorkflowState = "completed"
	WorkflowError     WorkflowState = "error"
)

type ChatResult struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	Tests       string `json:"tests,omitempty"`
	TestResults string `json:"test_results,omitempty"`
	TestsPassed *bool  `json:"tests_passed,omitempty"`
	Success     bool   `json:"success"`
}

type FlowResult struct {
	Success        bool
	Error          string
	Message        string
	Messages       []AgentMessage
	Results        json.RawMessage
	GeneratedFiles []string
}

type ExampleAgent struct {
	ID   string    `json:"id"`
	Type AgentType `json:"type"`
	Role string    `json:"role"`
}

type ExampleWorkflow struct {
	Agents      []ExampleAgent `json:"agents"`
	Description string         `json:"description"`
}

type OnlineAgent struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	Model         string `json:"model,omitempty"`
	SystemPrompt  string `json:"system_prompt,omitempty"`
	MemoryEnabled bool   `json:"memory_enabled"`
}

type OnlineWorkflowRequest struct {
	Task            string        `json:"task"`
	Agents          []OnlineAgent `json:"agents"`
	ConversationID  string        `json:"conversation_id,omitempty"`
	EnableStreaming bool          `json:"enable_streaming"`
}

// OnlineModels is assembled by the transport layer; the wire shape keys
// available models by name, which flattens to a sorted list here.
type OnlineModels struct {
	Available []string
	Default   string
	Providers map[string][]string
}

type OnlineWorkflowStatus struct {
	WorkflowID     string            `json:"workflow_id"`
	Status         string            `json:"status"`
	Agents         map[string]string `json:"agents"`
	MessageCount   int               `json:"message_count"`
	ConversationID string            `json:"conversation_id"`
}

type OnlineWorkflowResult struct {
	WorkflowID     string
	Status         string
	Agents         map[string]string
	Messages       []AgentMessage
	TotalMessages  int
	ConversationID string
}
