package usecase

import (
	"context"

	"codepilot/internal/adapter/extract"
	"codepilot/internal/domain"
	"codepilot/internal/port"
)

// AssistRequest is one free-form request against a prompt template: either
// code (with its language) or an instruction.
type AssistRequest struct {
	TemplateID  string
	Code        string
	LanguageID  string
	Instruction string
	Model       string
}

// AssistResult splits the model answer into the parts the result panel shows.
type AssistResult struct {
	Thinking   string
	Markdown   string
	CodeBlocks []extract.CodeBlock
}

// Assistant streams single-template requests such as explain or refactor.
type Assistant struct {
	stream   port.StreamGenerator
	prompts  port.PromptBuilder
	settings Settings
}

func NewAssistant(stream port.StreamGenerator, prompts port.PromptBuilder, settings Settings) *Assistant {
	return &Assistant{stream: stream, prompts: prompts, settings: settings}
}

// Run builds the prompt, forwards fragments to onChunk as they arrive and
// returns the parsed final answer.
func (a *Assistant) Run(ctx context.Context, req AssistRequest, onChunk func(string)) (*AssistResult, error) {
	cfg := a.settings.Get()

	vars := map[string]string{
		"language":       req.LanguageID,
		"outputLanguage": cfg.OutputLanguage,
	}
	if req.Code != "" {
		vars["code"] = req.Code
	}
	if req.Instruction != "" {
		vars["instruction"] = req.Instruction
	}

	prompt, err := a.prompts.Build(req.TemplateID, vars)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = cfg.Model
	}
	opts := domain.DefaultSampling()
	opts.Stream = true

	if onChunk == nil {
		onChunk = func(string) {}
	}
	text, err := a.stream.GenerateStreaming(ctx, domain.InferenceRequest{
		Prompt:  prompt,
		Model:   model,
		Options: opts,
	}, onChunk)
	if err != nil {
		return nil, err
	}

	thinking, remainder := extract.Thinking(text)
	return &AssistResult{
		Thinking:   thinking,
		Markdown:   remainder,
		CodeBlocks: extract.CodeBlocks(remainder),
	}, nil
}
