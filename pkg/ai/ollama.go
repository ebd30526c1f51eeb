package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaService implements TextService using a local Ollama instance.
type OllamaService struct {
	baseURL    string
	model      string
	embedModel string
	embedDim   int
	httpClient *http.Client
}

// NewOllamaService creates a new Ollama service.
func NewOllamaService(baseURL, model string, embedDim int) *OllamaService {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	if embedDim <= 0 {
		embedDim = 768
	}
	return &OllamaService{
		baseURL:    baseURL,
		model:      model,
		embedModel: "nomic-embed-text",
		embedDim:   embedDim,
		httpClient: &http.Client{},
	}
}

// Summarize condenses text with the same prompt shape as the Gemini provider
// for consistency across providers.
func (o *OllamaService) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(`You are an email archive assistant. Summarize the following content in 2-4 plain sentences. Keep concrete facts: people, dates, decisions, action items. Do not add commentary.

CONTENT:
%s

SUMMARY:`, text)

	payload := map[string]any{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
	}
	body, _ := json.Marshal(payload)

	respBody, err := o.post(ctx, o.baseURL+"/api/generate", body)
	if err != nil {
		return "", err
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse Ollama response: %w", err)
	}
	return strings.TrimSpace(result.Response), nil
}

// AnalyzeAttachment has no multimodal path on Ollama; text attachments are
// summarized, everything else is described by metadata only.
func (o *OllamaService) AnalyzeAttachment(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if strings.HasPrefix(contentType, "text/") {
		body := string(data)
		if len(body) > 4000 {
			body = body[:4000]
		}
		return o.Summarize(ctx, fmt.Sprintf("Attachment %s:\n%s", filename, body))
	}
	return fmt.Sprintf("Attachment %s (%s, %d bytes)", filename, contentType, len(data)), nil
}

// EmbedText returns a dense embedding from the Ollama embeddings endpoint.
func (o *OllamaService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"model":  o.embedModel,
		"prompt": text,
	}
	body, _ := json.Marshal(payload)

	respBody, err := o.post(ctx, o.baseURL+"/api/embeddings", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from Ollama")
	}
	return result.Embedding, nil
}

// Dimension returns the embedding dimension.
func (o *OllamaService) Dimension() int { return o.embedDim }

func (o *OllamaService) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama API error (%d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
