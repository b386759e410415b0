// Package anthropic implements the tutor chat agent on top of the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/agent"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/progress"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/quota"
)

const (
	AgentID = "tutor-chat"

	maxQuestionLength = 8000
)

// Options configure the tutor agent. Token rates are cents per million
// tokens, used to attach a cost to each completed call.
type Options struct {
	Model              anthropic.Model
	MaxTokens          int64
	InputCentsPerMTok  int64
	OutputCentsPerMTok int64
	Enabled            bool
}

// TutorAgent answers student questions via the Anthropic Messages API.
// It has no intermediate remote phases, so it relies on the orchestrator's
// boundary advancement instead of implementing agent.ProgressReporting.
type TutorAgent struct {
	client *anthropic.Client
	quota  quota.Tracker
	opts   Options
}

// NewTutorAgent creates the agent from an existing client.
func NewTutorAgent(client *anthropic.Client, tracker quota.Tracker, optFns ...func(o *Options)) *TutorAgent {
	opts := Options{
		Model:              anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens:          2048,
		InputCentsPerMTok:  300,
		OutputCentsPerMTok: 1500,
		Enabled:            true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &TutorAgent{client: client, quota: tracker, opts: opts}
}

func (a *TutorAgent) ID() string    { return AgentID }
func (a *TutorAgent) Name() string  { return "Tutor Chat" }
func (a *TutorAgent) Enabled() bool { return a.opts.Enabled }

func (a *TutorAgent) Steps() []progress.Step {
	return []progress.Step{
		{
			ID:                "compose_prompt",
			Weight:            15,
			EstimatedDuration: time.Second,
			UserText:          "Reading your question...",
			DetailedText:      "Composing the tutoring prompt",
			DebugText:         "assemble system prompt from subject/grade_level",
		},
		{
			ID:                "generate_answer",
			Weight:            85,
			EstimatedDuration: 10 * time.Second,
			UserText:          "Thinking about your question...",
			DetailedText:      "Waiting for the language model",
			DebugText:         "POST /v1/messages model=" + string(a.opts.Model),
		},
	}
}

// ValidateParams requires a non-empty question within the length limit.
// subject and grade_level are optional strings.
func (a *TutorAgent) ValidateParams(params map[string]any) bool {
	question, ok := params["question"].(string)
	if !ok || strings.TrimSpace(question) == "" || len(question) > maxQuestionLength {
		return false
	}
	for _, key := range []string{"subject", "grade_level"} {
		if v, present := params[key]; present {
			if _, isString := v.(string); !isString {
				return false
			}
		}
	}
	return true
}

func (a *TutorAgent) CanExecute(ctx context.Context, userID string) (bool, error) {
	return a.quota.Allow(ctx, userID, AgentID)
}

// systemPrompt assembles the tutoring instructions from the optional
// subject and grade level parameters.
func systemPrompt(params map[string]any) string {
	var b strings.Builder
	b.WriteString("You are a patient tutor helping a student understand a topic. ")
	b.WriteString("Explain step by step and prefer guiding questions over bare answers.")
	if subject, ok := params["subject"].(string); ok && subject != "" {
		fmt.Fprintf(&b, " The subject is %s.", subject)
	}
	if grade, ok := params["grade_level"].(string); ok && grade != "" {
		fmt.Fprintf(&b, " Adjust your explanation to grade level %s.", grade)
	}
	return b.String()
}

func (a *TutorAgent) Execute(ctx context.Context, params map[string]any, userID, _ string) (*agent.Result, error) {
	question, _ := params["question"].(string)

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.opts.Model,
		MaxTokens: a.opts.MaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(params)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(question)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tutor completion: %w", err)
	}

	var answer strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			answer.WriteString(block.Text)
		}
	}

	output, _ := json.Marshal(map[string]any{
		"answer": answer.String(),
	})

	cost := a.costCents(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	// Usage bookkeeping is best-effort.
	_ = a.quota.Record(ctx, userID, AgentID)

	return &agent.Result{Output: output, CostCents: cost}, nil
}

func (a *TutorAgent) costCents(inputTokens, outputTokens int64) int64 {
	cents := (inputTokens*a.opts.InputCentsPerMTok + outputTokens*a.opts.OutputCentsPerMTok) / 1_000_000
	if cents < 1 {
		cents = 1
	}
	return cents
}
