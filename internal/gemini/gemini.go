// Package gemini wraps the remote multimodal service. One Client is shared
// by the smear verifier and the lab-risk predictor; it keeps no state
// between calls and is safe for concurrent use.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Client struct {
	APIKey string
	Model  string
	// Attempts is the number of tries for transient failures. The smear
	// verifier runs single-shot; the lab predictor allows retries.
	Attempts int
}

func New(apiKey, model string, attempts int) *Client {
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		APIKey:   strings.TrimSpace(apiKey),
		Model:    strings.TrimSpace(model),
		Attempts: attempts,
	}
}

// GenerateVision sends an image plus prompt and returns the raw text reply.
func (c *Client) GenerateVision(ctx context.Context, mime string, image []byte, prompt string) (string, error) {
	return c.generate(ctx, []genai.Part{
		&genai.Blob{MIMEType: mime, Data: image},
		genai.Text(prompt),
	})
}

// GenerateText sends a text-only prompt and returns the raw text reply.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []genai.Part{genai.Text(prompt)})
}

func (c *Client) generate(ctx context.Context, parts []genai.Part) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.APIKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(c.Model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	// Deterministic, strictly-JSON replies.
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}

	var lastErr error
	for attempt := 1; attempt <= c.Attempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			if attempt < c.Attempts {
				time.Sleep(time.Duration(attempt) * 300 * time.Millisecond)
			}
			continue
		}
		txt := firstText(resp)
		if strings.TrimSpace(txt) == "" {
			return "", fmt.Errorf("gemini: empty response")
		}
		return txt, nil
	}
	return "", lastErr
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
