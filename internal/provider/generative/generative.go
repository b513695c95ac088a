package generative

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"meetassist-backend/pkg/resilience"
)

const defaultModel = "gemini-2.0-flash"

// summarizerInstructions steers the post-call summary toward the markdown
// shape the meeting detail view renders.
const summarizerInstructions = `You are an expert summarizer. You write readable, concise, simple content.

Use the following markdown structure:

### Overview
Provide a detailed, engaging summary of the session's content. Focus on major
features, user workflows, and any key takeaways. Write in a narrative style
using full sentences.

### Notes
Break down key content into thematic sections with timestamp ranges. Each
section should summarize key points, actions, or demos in bullet format.`

// Client wraps the generative model API behind retries and a circuit breaker
type Client struct {
	client   *genai.Client
	model    string
	upstream *resilience.Upstream
}

// NewClient creates a generative client for the given API key. An empty model
// falls back to the default.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generative client: %w", err)
	}

	return &Client{
		client:   client,
		model:    model,
		upstream: resilience.NewUpstream("generative"),
	}, nil
}

// GenerateContent runs a single prompt and returns the model text. An empty
// response is returned as-is; callers decide whether silence is an error.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	var text string

	err := c.upstream.Execute(ctx, "generate_content", func(ctx context.Context) error {
		resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
		if err != nil {
			return err
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generative request failed: %w", err)
	}

	return strings.TrimSpace(text), nil
}

// Summarize produces the post-call markdown summary for a transcript
func (c *Client) Summarize(ctx context.Context, transcriptText string) (string, error) {
	prompt := fmt.Sprintf("%s\n\nSummarize the following transcript:\n\n%s",
		summarizerInstructions, transcriptText)

	summary, err := c.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to summarize transcript: %w", err)
	}

	return summary, nil
}
