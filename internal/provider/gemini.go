package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini calls Google's generateContent REST endpoint.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGemini creates a Gemini client. If model is empty,
// "gemini-1.5-flash" is used.
func NewGemini(apiKey, model string) *Gemini {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Gemini{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		// The worker imposes the per-call deadline via ctx; this is a
		// hard backstop only.
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

// request/response shapes for generateContent. Only the fields this
// service reads are declared.
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate produces a reply for the prompt. Transport failures and
// timeouts classify as transient; HTTP statuses classify per
// classifyStatus; a response blocked by safety filters is permanent.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", &Error{Reason: "encode request", Err: err}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		// Connection failures and deadline expiry are retryable.
		return "", &Error{Transient: true, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Transient: true, Reason: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		reason := fmt.Sprintf("status %d", resp.StatusCode)
		var parsed geminiResponse
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
			reason = fmt.Sprintf("status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", classifyStatus(resp.StatusCode, reason)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Transient: true, Reason: "decode response", Err: err}
	}
	if len(parsed.Candidates) == 0 {
		// No candidates on a 200 means the prompt was blocked.
		return "", &Error{Reason: "content rejected"}
	}
	candidate := parsed.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return "", &Error{Reason: "content rejected: safety"}
	}

	var text string
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}
	if text == "" {
		return "", &Error{Transient: true, Reason: "empty response"}
	}
	return text, nil
}

// HealthCheck issues a synthetic generation to verify the provider is
// reachable and responding.
func (g *Gemini) HealthCheck(ctx context.Context) error {
	_, err := g.Generate(ctx, "Hello")
	return err
}
