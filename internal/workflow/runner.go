// Package workflow drives one backend workflow run at a time and feeds
// its transcript into the message log.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"agentboard/internal/domain"
)

type Backend interface {
	SendPrompt(ctx context.Context, prompt string, conversationID string) (domain.ChatResult, error)
	RunManualFlow(ctx context.Context, prompt string, boxes []domain.AgentBox, connections []domain.Connection) (domain.FlowResult, error)
}

type Transcript interface {
	Append(msg domain.AgentMessage) domain.AgentMessage
}

var (
	ErrBusy        = errors.New("a workflow is already running")
	ErrEmptyPrompt = errors.New("prompt is empty")
	ErrNoAgents    = errors.New("board has no agent boxes")
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Outcome is delivered once per run. Exactly one of Chat or Flow is set
// when Err is nil.
type Outcome struct {
	Mode     Mode
	Chat     *domain.ChatResult
	Flow     *domain.FlowResult
	Err      error
	Duration time.Duration
}

type Config struct {
	ConversationID string
}

func (c Config) withDefaults() Config {
	if c.ConversationID == "" {
		c.ConversationID = uuid.NewString()
	}
	return c
}

// Runner owns the single-flight guard around workflow submission. A new
// run is refused while one is in flight; there is no cancellation of
// dispatched backend work, callers drop the outcome instead.
type Runner struct {
	backend Backend
	log     Transcript
	cfg     Config
	logger  *log.Logger

	onState   func(state domain.WorkflowState, detail string)
	onOutcome func(Outcome)

	mu    sync.Mutex
	state domain.WorkflowState

	wg sync.WaitGroup
}

func New(backend Backend, transcript Transcript, cfg Config, logger *log.Logger, onState func(domain.WorkflowState, string), onOutcome func(Outcome)) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		backend:   backend,
		log:       transcript,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		onState:   onState,
		onOutcome: onOutcome,
		state:     domain.WorkflowIdle,
	}
}

func (r *Runner) State() domain.WorkflowState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) ConversationID() string {
	return r.cfg.ConversationID
}

func (r *Runner) Wait() {
	r.wg.Wait()
}

// RunAuto submits a prompt to the stock backend workflow.
func (r *Runner) RunAuto(ctx context.Context, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	if !r.begin() {
		return ErrBusy
	}
	r.emit(domain.WorkflowRunning, "prompt dispatched")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		start := time.Now()
		res, err := r.backend.SendPrompt(ctx, prompt, r.cfg.ConversationID)
		out := Outcome{Mode: ModeAuto, Duration: time.Since(start)}
		if err != nil {
			out.Err = err
			r.finish(domain.WorkflowError, err.Error(), out)
			return
		}
		out.Chat = &res
		if !res.Success {
			r.finish(domain.WorkflowError, res.Message, out)
			return
		}
		r.finish(domain.WorkflowCompleted, res.Message, out)
	}()
	return nil
}

// RunManual submits the drawn board. Agent messages from the reply are
// appended to the transcript before the outcome is delivered.
func (r *Runner) RunManual(ctx context.Context, prompt string, boxes []domain.AgentBox, connections []domain.Connection) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	if len(boxes) == 0 {
		return ErrNoAgents
	}
	if !r.begin() {
		return ErrBusy
	}
	r.emit(domain.WorkflowRunning, "manual flow dispatched")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		start := time.Now()
		res, err := r.backend.RunManualFlow(ctx, prompt, boxes, connections)
		out := Outcome{Mode: ModeManual, Duration: time.Since(start)}
		if err != nil {
			out.Err = err
			r.finish(domain.WorkflowError, err.Error(), out)
			return
		}
		for _, msg := range res.Messages {
			r.log.Append(msg)
		}
		out.Flow = &res
		if !res.Success {
			detail := res.Error
			if detail == "" {
				detail = res.Message
			}
			r.finish(domain.WorkflowError, detail, out)
			return
		}
		r.finish(domain.WorkflowCompleted, fmt.Sprintf("%d messages", len(res.Messages)), out)
	}()
	return nil
}

func (r *Runner) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == domain.WorkflowRunning {
		return false
	}
	r.state = domain.WorkflowRunning
	return true
}

func (r *Runner) finish(state domain.WorkflowState, detail string, out Outcome) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
	r.emit(state, detail)
	if r.onOutcome != nil {
		r.onOutcome(out)
	}
}

func (r *Runner) emit(state domain.WorkflowState, detail string) {
	r.logger.Printf("workflow state=%s detail=%s", state, detail)
	if r.onState != nil {
		r.onState(state, detail)
	}
}

// Summarize flattens the loosely shaped per-agent results document into
// sorted display lines. Unknown shapes come back empty rather than erroring.
func Summarize(res domain.FlowResult) []string {
	if len(res.Results) == 0 {
		return nil
	}
	doc := gjson.ParseBytes(res.Results)
	if !doc.IsObject() {
		return nil
	}
	var lines []string
	doc.ForEach(func(key, value gjson.Result) bool {
		status := value.Get("status").String()
		if status == "" {
			status = "done"
		}
		count := value.Get("memory").Int()
		if msgs := value.Get("messages"); msgs.IsArray() && count == 0 {
			count = int64(len(msgs.Array()))
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%d messages)", key.String(), status, count))
		return true
	})
	sort.Strings(lines)
	return lines
}
