package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeminiProvider generates summaries with the Gemini REST API.
type GeminiProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	baseURL    string
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://generativelanguage.googleapis.com/v1beta/models",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// geminiRequest represents the request structure for Gemini API
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// geminiResponse represents the response structure from Gemini API
type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *geminiFeedback   `json:"promptFeedback"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiFeedback struct {
	BlockReason string `json:"blockReason"`
}

// Generate sends the prompt and returns the first candidate's text.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	geminiReq := geminiRequest{
		Contents: []geminiContent{
			{
				Parts: []geminiPart{
					{Text: prompt},
				},
			},
		},
	}

	body, err := json.Marshal(geminiReq)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %v", ErrUpstream, err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %v", ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, string(bodyBytes))
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
	}

	if geminiResp.PromptFeedback != nil && geminiResp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", ErrContentPolicy, geminiResp.PromptFeedback.BlockReason)
	}
	if len(geminiResp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates in response", ErrContentPolicy)
	}

	candidate := geminiResp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return "", fmt.Errorf("%w: candidate withheld: %s", ErrContentPolicy, candidate.FinishReason)
	}
	if len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no content in response", ErrUpstream)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}
