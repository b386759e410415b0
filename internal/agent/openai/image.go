// Package openai implements the image generation agent on top of the
// OpenAI Images API.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go"

	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/agent"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/progress"
	"github.com/sbrill95/eduhu-pwa-prototype-sub000/internal/quota"
)

const (
	AgentID = "image-generation"

	maxPromptLength = 4000
)

var allowedSizes = map[string]openai.ImageGenerateParamsSize{
	"1024x1024": openai.ImageGenerateParamsSize1024x1024,
	"1792x1024": openai.ImageGenerateParamsSize1792x1024,
	"1024x1792": openai.ImageGenerateParamsSize1024x1792,
}

// Options configure the image agent. Fields mirror a subset of the Images
// API parameters intentionally kept minimal.
type Options struct {
	Model             openai.ImageModel
	CostPerImageCents int64
	Enabled           bool
}

// ImageAgent wraps the OpenAI Images API behind the agent.Agent contract.
// It reports its own intermediate steps during Execute.
type ImageAgent struct {
	client *openai.Client
	quota  quota.Tracker
	opts   Options
}

// NewImageAgent creates the agent from an existing client. The quota
// tracker backs the agent's CanExecute predicate.
func NewImageAgent(client *openai.Client, tracker quota.Tracker, optFns ...func(o *Options)) *ImageAgent {
	opts := Options{
		Model:             openai.ImageModelDallE3,
		CostPerImageCents: 400,
		Enabled:           true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ImageAgent{client: client, quota: tracker, opts: opts}
}

func (a *ImageAgent) ID() string    { return AgentID }
func (a *ImageAgent) Name() string  { return "Image Generation" }
func (a *ImageAgent) Enabled() bool { return a.opts.Enabled }

func (a *ImageAgent) Steps() []progress.Step {
	return []progress.Step{
		{
			ID:                "prepare_prompt",
			Weight:            10,
			EstimatedDuration: 2 * time.Second,
			UserText:          "Preparing your image...",
			DetailedText:      "Validating and preparing the image prompt",
			DebugText:         "build ImageGenerateParams (model=" + string(a.opts.Model) + ")",
		},
		{
			ID:                "generate_image",
			Weight:            75,
			EstimatedDuration: 20 * time.Second,
			UserText:          "Creating your image...",
			DetailedText:      "Waiting for the image generation API",
			DebugText:         "POST /v1/images/generations",
		},
		{
			ID:                "store_result",
			Weight:            15,
			EstimatedDuration: 3 * time.Second,
			UserText:          "Saving your image...",
			DetailedText:      "Decoding and storing the generated image",
			DebugText:         "decode b64_json payload, hand off artifact",
		},
	}
}

// ValidateParams requires a non-empty prompt within the API's length limit
// and, when given, a supported size.
func (a *ImageAgent) ValidateParams(params map[string]any) bool {
	prompt, ok := params["prompt"].(string)
	if !ok || prompt == "" || len(prompt) > maxPromptLength {
		return false
	}
	if size, ok := params["size"]; ok {
		s, isString := size.(string)
		if !isString {
			return false
		}
		if _, known := allowedSizes[s]; !known {
			return false
		}
	}
	return true
}

func (a *ImageAgent) CanExecute(ctx context.Context, userID string) (bool, error) {
	return a.quota.Allow(ctx, userID, AgentID)
}

func (a *ImageAgent) Execute(ctx context.Context, params map[string]any, userID, sessionID string) (*agent.Result, error) {
	return a.ExecuteWithProgress(ctx, params, userID, sessionID, func(string) {})
}

// ExecuteWithProgress implements agent.ProgressReporting.
func (a *ImageAgent) ExecuteWithProgress(ctx context.Context, params map[string]any, userID, _ string, report agent.ReportFunc) (*agent.Result, error) {
	report("prepare_prompt")

	prompt, _ := params["prompt"].(string)
	size := openai.ImageGenerateParamsSize1024x1024
	if s, ok := params["size"].(string); ok {
		size = allowedSizes[s]
	}

	genParams := openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          a.opts.Model,
		N:              openai.Int(1),
		Size:           size,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	}

	report("generate_image")
	resp, err := a.client.Images.Generate(ctx, genParams)
	if err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("image generation: empty response")
	}

	report("store_result")
	img := resp.Data[0]
	raw, err := base64.StdEncoding.DecodeString(img.B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}

	output, _ := json.Marshal(map[string]any{
		"revised_prompt": img.RevisedPrompt,
		"size":           string(size),
	})

	// Usage bookkeeping is best-effort; the generated image stands even
	// if the counter write is lost.
	_ = a.quota.Record(ctx, userID, AgentID)

	return &agent.Result{
		Output:    output,
		CostCents: a.opts.CostPerImageCents,
		Artifacts: []agent.Artifact{
			{Name: "image.png", ContentType: "image/png", Data: raw},
		},
	}, nil
}
