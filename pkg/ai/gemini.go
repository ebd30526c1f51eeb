package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiService implements TextService against the Gemini REST API.
type GeminiService struct {
	apiKey     string
	model      string
	embedModel string
	embedDim   int
	httpClient *http.Client
}

// NewGeminiService creates a Gemini-backed TextService.
func NewGeminiService(apiKey string, embedDim int) *GeminiService {
	if embedDim <= 0 {
		embedDim = 768
	}
	return &GeminiService{
		apiKey:     apiKey,
		model:      "gemini-2.5-flash",
		embedModel: "text-embedding-004",
		embedDim:   embedDim,
		httpClient: &http.Client{},
	}
}

// Summarize condenses text with a fixed summarization prompt.
func (g *GeminiService) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(`You are an email archive assistant. Summarize the following content in 2-4 plain sentences. Keep concrete facts: people, dates, decisions, action items. Do not add commentary.

CONTENT:
%s

SUMMARY:`, text)

	return g.generate(ctx, []map[string]any{
		{"text": prompt},
	})
}

// AnalyzeAttachment describes an attachment. Images and PDFs go to the model
// inline; other content types get a generic byte-level description.
func (g *GeminiService) AnalyzeAttachment(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	switch {
	case strings.HasPrefix(contentType, "image/"), contentType == "application/pdf":
		prompt := fmt.Sprintf("Describe the attachment %q in 1-2 sentences, focusing on content useful for search.", filename)
		return g.generate(ctx, []map[string]any{
			{"text": prompt},
			{"inline_data": map[string]string{
				"mime_type": contentType,
				"data":      base64.StdEncoding.EncodeToString(data),
			}},
		})
	case strings.HasPrefix(contentType, "text/"):
		body := string(data)
		if len(body) > 4000 {
			body = body[:4000]
		}
		return g.Summarize(ctx, fmt.Sprintf("Attachment %s:\n%s", filename, body))
	default:
		// No model pass for opaque binaries; record what we know.
		return fmt.Sprintf("Attachment %s (%s, %d bytes)", filename, contentType, len(data)), nil
	}
}

// EmbedText returns a dense embedding for text.
func (g *GeminiService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	url := fmt.Sprintf("%s/%s:embedContent?key=%s", geminiBaseURL, g.embedModel, g.apiKey)

	payload := map[string]any{
		"model":   "models/" + g.embedModel,
		"content": map[string]any{"parts": []map[string]string{{"text": text}}},
	}
	body, _ := json.Marshal(payload)

	respBody, err := g.post(ctx, url, body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(result.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding from Gemini")
	}
	return result.Embedding.Values, nil
}

// Dimension returns the embedding dimension.
func (g *GeminiService) Dimension() int { return g.embedDim }

// generate calls generateContent with the given parts and returns the first
// candidate's text.
func (g *GeminiService) generate(ctx context.Context, parts []map[string]any) (string, error) {
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiBaseURL, g.model, g.apiKey)

	payload := map[string]any{
		"contents": []map[string]any{{"parts": parts}},
	}
	body, _ := json.Marshal(payload)

	respBody, err := g.post(ctx, url, body)
	if err != nil {
		return "", err
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse Gemini response: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content in Gemini response")
	}
	return strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text), nil
}

func (g *GeminiService) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Gemini API error (%d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
