// providers.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// TextAnalysisBackend is the capability contract for one remote text-analysis
// provider: a name for provenance and a prompt-in, raw-reply-out call. Any
// failure (network, auth, quota, malformed content) means "this backend
// declined" and the orchestrator moves on.
type TextAnalysisBackend interface {
	Name() string
	Analyze(ctx context.Context, prompt string) (string, error)
}

// buildAnalysisPrompt assembles the single structured prompt shipped to every
// backend. The reply must contain one JSON object matching backendReply.
func buildAnalysisPrompt(text, formTypeHint string) string {
	return fmt.Sprintf(`You are a workplace safety analyst reviewing text extracted from a paper safety checklist.

Analyze the form text below and respond with a single JSON object, no prose, with these keys:
"formType" (string, e.g. %q), "formTypeConfidence" ("HIGH"|"MEDIUM"|"LOW"),
"riskScore" (number 1-10), "flaggedIssues" (array of {"type","severity","description","location","standard","recommendation","isControlled"}),
"hrwFactors" (array of strings), "ppeRequired" (array of strings),
"complianceIssues" (array of {"issue","severity","standard"}),
"riskAssessment" ({"initialRisk","residualRisk","consequence","likelihood"}),
"recommendations" (array of strings), "summary" (string),
"formCompleteness" ("COMPLETE"|"PARTIALLY_COMPLETE"|"INCOMPLETE"),
"missingFields" (array of strings), "positiveFindings" (array of strings),
"workLocation" (string), "workActivity" (string),
"workerDetails" ({"namePresent","signaturePresent","datePresent"}),
"emergencyProcedures" ({"documented","contactsListed"}).

Severity values are LOW, MEDIUM, HIGH or CRITICAL.

FORM TEXT:
%s`, formTypeHint, text)
}

// --- OpenAI-compatible backend ---

type openAIBackend struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

func (b *openAIBackend) Name() string { return "openai" }

func (b *openAIBackend) Analyze(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model": b.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrMalformedResponse
	}
	return parsed.Choices[0].Message.Content, nil
}

// --- Anthropic backend ---

type anthropicBackend struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

func (b *anthropicBackend) Name() string { return "anthropic" }

func (b *anthropicBackend) Analyze(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model":      b.model,
		"max_tokens": 2048,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Content) == 0 {
		return "", ErrMalformedResponse
	}
	return parsed.Content[0].Text, nil
}

// --- Gemini backend ---

type geminiBackend struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

func (b *geminiBackend) Name() string { return "gemini" }

func (b *geminiBackend) Analyze(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", b.endpoint, b.model, b.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", ErrMalformedResponse
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// buildBackends constructs the priority-ordered backend list from whichever
// credentials are configured. The order is fixed at startup and never
// mutated afterward.
func buildBackends(cfg AnalysisSettings) []TextAnalysisBackend {
	client := &http.Client{}
	var backends []TextAnalysisBackend

	if cfg.AnthropicKey != "" {
		backends = append(backends, &anthropicBackend{
			apiKey:   cfg.AnthropicKey,
			model:    cfg.AnthropicModel,
			endpoint: cfg.AnthropicEndpoint,
			client:   client,
		})
	}
	if cfg.OpenAIKey != "" {
		backends = append(backends, &openAIBackend{
			apiKey:   cfg.OpenAIKey,
			model:    cfg.OpenAIModel,
			endpoint: cfg.OpenAIEndpoint,
			client:   client,
		})
	}
	if cfg.GeminiKey != "" {
		backends = append(backends, &geminiBackend{
			apiKey:   cfg.GeminiKey,
			model:    cfg.GeminiModel,
			endpoint: cfg.GeminiEndpoint,
			client:   client,
		})
	}
	return backends
}

// AnalysisOrchestrator tries each configured backend in priority order and
// accepts the first structurally valid result. It is constructed once at
// process start and reused; Analyze never fails outright because the rule
// fallback absorbs total backend failure.
type AnalysisOrchestrator struct {
	backends []TextAnalysisBackend
	timeout  time.Duration
}

// NewAnalysisOrchestrator builds an orchestrator over the given backends.
func NewAnalysisOrchestrator(backends []TextAnalysisBackend, timeout time.Duration) *AnalysisOrchestrator {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &AnalysisOrchestrator{backends: backends, timeout: timeout}
}

// Analyze ships the prompt to each backend in order and normalizes the first
// reply that yields a usable form type. On total failure it returns the rule
// fallback - this path never produces an error.
func (o *AnalysisOrchestrator) Analyze(ctx context.Context, text, formTypeHint string, metadata map[string]string) *AnalysisResult {
	prompt := buildAnalysisPrompt(text, formTypeHint)

	var failed []string
	var lastErr error
	for _, backend := range o.backends {
		start := time.Now()

		attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
		raw, err := backend.Analyze(attemptCtx, prompt)
		cancel()
		if err != nil {
			log.Printf("Analysis backend %s declined: %v", backend.Name(), err)
			failed = append(failed, backend.Name())
			lastErr = err
			continue
		}

		result, err := normalizeResponse(raw, text)
		if err != nil {
			log.Printf("Analysis backend %s returned unusable content: %v", backend.Name(), err)
			failed = append(failed, backend.Name())
			lastErr = err
			continue
		}
		if result.FormType == FormTypeUnknown {
			log.Printf("Analysis backend %s could not identify the form type", backend.Name())
			failed = append(failed, backend.Name())
			lastErr = fmt.Errorf("backend %s returned the unknown form type sentinel", backend.Name())
			continue
		}

		result.Provider = backend.Name()
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		result.FailedProviders = failed
		if len(metadata) > 0 {
			result.Metadata = metadata
		}
		return result
	}

	if lastErr != nil {
		lastErr = fmt.Errorf("%w: last error: %v", ErrAllBackendsFailed, lastErr)
	} else {
		lastErr = ErrAllBackendsFailed
	}
	log.Printf("All analysis backends failed, using rule fallback: %v", lastErr)

	result := FallbackAnalysis(text, lastErr)
	result.FailedProviders = failed
	if len(metadata) > 0 {
		result.Metadata = metadata
	}
	return result
}
