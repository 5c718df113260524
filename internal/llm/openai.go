package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatibleProvider talks to any OpenAI-chat-completions-shaped API
// (OpenAI itself, Groq, OpenRouter, DeepSeek, self-hosted vLLM, ...).
// Grounded directly on the teacher's internal/providers/openai.go.
type OpenAICompatibleProvider struct {
	name    string
	apiKey  string
	apiBase string
	client  *http.Client
}

// NewOpenAICompatibleProvider creates a provider bound to one API base URL.
func NewOpenAICompatibleProvider(name, apiKey, apiBase string) *OpenAICompatibleProvider {
	apiBase = strings.TrimRight(apiBase, "/")
	return &OpenAICompatibleProvider{
		name:    name,
		apiKey:  apiKey,
		apiBase: apiBase,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func modelName(modelID string) string {
	if _, rest, ok := strings.Cut(modelID, "/"); ok {
		return rest
	}
	return modelID
}

func (p *OpenAICompatibleProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body := p.buildRequestBody(req, false)

	respBody, err := p.doRequest(ctx, req.APIBase, body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var resp openAIResponse
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	return parseOpenAIResponse(&resp), nil
}

func (p *OpenAICompatibleProvider) CompleteStream(ctx context.Context, req CompletionRequest, onChunk func(StreamChunk)) (*CompletionResponse, error) {
	body := p.buildRequestBody(req, true)

	respBody, err := p.doRequest(ctx, req.APIBase, body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	result := &CompletionResponse{FinishReason: "stop"}

	scanner := bufio.NewScanner(respBody)
	// Provider payloads can exceed bufio.Scanner's 64KiB default token size
	// on long single-line SSE events; grow the buffer generously.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.ReasoningContent != "" {
			result.Thinking += delta.ReasoningContent
			if onChunk != nil {
				onChunk(StreamChunk{Thinking: delta.ReasoningContent})
			}
		}
		if delta.Content != "" {
			result.Content += delta.Content
			if onChunk != nil {
				onChunk(StreamChunk{Content: delta.Content})
			}
		}
		if chunk.Choices[0].FinishReason != "" {
			result.FinishReason = chunk.Choices[0].FinishReason
		}
	}

	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}
	return result, scanner.Err()
}

func (p *OpenAICompatibleProvider) buildRequestBody(req CompletionRequest, stream bool) map[string]interface{} {
	msgs := make([]map[string]interface{}, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := map[string]interface{}{"role": m.Role}
		if len(m.Parts) > 0 {
			var parts []map[string]interface{}
			for _, part := range m.Parts {
				switch part.Type {
				case "image_url":
					if part.ImageURL != nil {
						parts = append(parts, map[string]interface{}{
							"type":      "image_url",
							"image_url": map[string]interface{}{"url": part.ImageURL.URL},
						})
					}
				default:
					parts = append(parts, map[string]interface{}{"type": "text", "text": part.Text})
				}
			}
			msg["content"] = parts
		} else {
			msg["content"] = m.Content
		}
		msgs = append(msgs, msg)
	}

	body := map[string]interface{}{
		"model":    modelName(req.Model),
		"messages": msgs,
		"stream":   stream,
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.ReasoningEffort != "" {
		body["reasoning_effort"] = req.ReasoningEffort
	}
	if len(req.SafetySettings) > 0 {
		settings := make([]map[string]interface{}, len(req.SafetySettings))
		for i, s := range req.SafetySettings {
			settings[i] = map[string]interface{}{"category": s.Category, "threshold": s.Threshold}
		}
		body["safety_settings"] = settings
	}
	return body
}

func (p *OpenAICompatibleProvider) doRequest(ctx context.Context, apiBaseOverride string, body interface{}) (io.ReadCloser, error) {
	apiBase := p.apiBase
	if apiBaseOverride != "" {
		apiBase = strings.TrimRight(apiBaseOverride, "/")
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%s: unexpected status %d: %s", p.name, resp.StatusCode, string(respBody))
	}
	return resp.Body, nil
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func parseOpenAIResponse(resp *openAIResponse) *CompletionResponse {
	result := &CompletionResponse{FinishReason: "stop"}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
		result.Thinking = resp.Choices[0].Message.ReasoningContent
		if resp.Choices[0].FinishReason != "" {
			result.FinishReason = resp.Choices[0].FinishReason
		}
	}
	return result
}
