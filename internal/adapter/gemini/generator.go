package gemini

import (
	"context"
	"errors"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var ErrEmptyCompletion = errors.New("generation returned no content")

type GeneratorConfig struct {
	APIKey       string
	Model        string
	Temperature  float32
	SystemPrompt string
	Timeout      time.Duration
}

// Generator implements the answer synthesis capability on Gemini.
type Generator struct {
	client *genai.Client
	cfg    GeneratorConfig
}

func NewGenerator(ctx context.Context, cfg GeneratorConfig) (*Generator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Generator{client: client, cfg: cfg}, nil
}

func (g *Generator) Close() error { return g.client.Close() }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.cfg.Model)
	model.SetTemperature(g.cfg.Temperature)
	if g.cfg.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(g.cfg.SystemPrompt)},
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	resp, err := model.GenerateContent(callCtx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyCompletion
	}

	var answer string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			answer += string(text)
		}
	}
	if answer == "" {
		return "", ErrEmptyCompletion
	}
	return answer, nil
}

// SystemPrompt is the default instruction for answer synthesis.
const SystemPrompt = "You are a senior software engineer helping teammates understand codebases. " +
	"Use the provided context to answer succinctly and cite files that support your answer."
