package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	commonlog "interview_server/server/common/log"
	"interview_server/server/fileman/domain"
)

const (
	defaultAnalyzeTimeout = 60 * time.Second
	defaultGeminiModel    = "gemini-2.5-flash"
	defaultDeepSeekModel  = "deepseek-chat"
	maxPromptTextRunes    = 30000

	providerGemini   = "gemini"
	providerDeepSeek = "deepseek"
)

type AnalyzerConfig struct {
	GeminiAPIKey    string
	GeminiModel     string
	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	DeepSeekModel   string
	Timeout         time.Duration
}

// Analyzer proxies document scoring to hosted LLMs, Gemini first and DeepSeek
// as the fallback provider. Responses are untrusted input.
type Analyzer struct {
	gemini        *genai.Client
	geminiModel   string
	deepseekKey   string
	deepseekURL   string
	deepseekModel string
	http          *http.Client
	timeout       time.Duration
}

func NewAnalyzer(ctx context.Context, cfg AnalyzerConfig) (*Analyzer, error) {
	a := &Analyzer{
		geminiModel:   cfg.GeminiModel,
		deepseekKey:   cfg.DeepSeekAPIKey,
		deepseekURL:   strings.TrimRight(cfg.DeepSeekBaseURL, "/"),
		deepseekModel: cfg.DeepSeekModel,
		timeout:       cfg.Timeout,
	}
	if a.geminiModel == "" {
		a.geminiModel = defaultGeminiModel
	}
	if a.deepseekModel == "" {
		a.deepseekModel = defaultDeepSeekModel
	}
	if a.timeout <= 0 {
		a.timeout = defaultAnalyzeTimeout
	}
	a.http = &http.Client{Timeout: a.timeout}

	if cfg.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize gemini client: %w", err)
		}
		a.gemini = client
	}
	if a.gemini == nil && a.deepseekKey == "" {
		return nil, fmt.Errorf("no analysis provider configured")
	}
	return a, nil
}

func (a *Analyzer) AnalyzeDocument(ctx context.Context, data []byte, contentType string) (domain.Analysis, error) {
	text, err := ExtractText(contentType, data)
	if err != nil {
		return domain.Analysis{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Analysis{}, fmt.Errorf("document contains no extractable text")
	}
	if runes := []rune(text); len(runes) > maxPromptTextRunes {
		text = string(runes[:maxPromptTextRunes])
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	prompt := analysisPrompt(text)

	if a.gemini != nil {
		raw, err := a.callGemini(ctx, prompt)
		if err == nil {
			return parseAnalysis(raw, providerGemini), nil
		}
		commonlog.Warnf("gemini analysis failed, trying deepseek: %v", err)
	}
	if a.deepseekKey != "" {
		raw, err := a.callDeepSeek(ctx, prompt)
		if err == nil {
			return parseAnalysis(raw, providerDeepSeek), nil
		}
		commonlog.Errorf("deepseek analysis failed: %v", err)
	}
	return domain.Analysis{}, domain.ErrUpstream
}

func (a *Analyzer) callGemini(ctx context.Context, prompt string) (string, error) {
	resp, err := a.gemini.Models.GenerateContent(ctx, a.geminiModel, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}

type deepseekRequest struct {
	Model    string            `json:"model"`
	Messages []deepseekMessage `json:"messages"`
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepseekResponse struct {
	Choices []struct {
		Message deepseekMessage `json:"message"`
	} `json:"choices"`
}

func (a *Analyzer) callDeepSeek(ctx context.Context, prompt string) (string, error) {
	payload := deepseekRequest{
		Model:    a.deepseekModel,
		Messages: []deepseekMessage{{Role: "user", Content: prompt}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.deepseekURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.deepseekKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepseek status %d", resp.StatusCode)
	}

	var decoded deepseekResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("deepseek returned no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

func analysisPrompt(text string) string {
	return `You are reviewing a candidate document for an interview platform.
Respond with JSON only, no prose, matching exactly this shape:
{"summary": string, "score": integer 0-100, "strengths": [string], "weaknesses": [string], "suggestions": [string]}

Document:
` + text
}

// parseAnalysis decodes the provider reply. Models wrap JSON in markdown
// fences or ignore the schema entirely, so the raw text is salvaged into the
// summary when decoding fails.
func parseAnalysis(raw, provider string) domain.Analysis {
	cleaned := stripJSONFence(raw)

	var analysis domain.Analysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		commonlog.Warnf("provider %s returned non-conforming analysis payload: %v", provider, err)
		salvaged := strings.TrimSpace(raw)
		if runes := []rune(salvaged); len(runes) > 1000 {
			salvaged = string(runes[:1000])
		}
		analysis = domain.FallbackAnalysis(provider)
		analysis.Summary = salvaged
		return analysis
	}

	if analysis.Score < 0 {
		analysis.Score = 0
	}
	if analysis.Score > 100 {
		analysis.Score = 100
	}
	if analysis.Strengths == nil {
		analysis.Strengths = []string{}
	}
	if analysis.Weaknesses == nil {
		analysis.Weaknesses = []string{}
	}
	if analysis.Suggestions == nil {
		analysis.Suggestions = []string{}
	}
	analysis.Provider = provider
	return analysis
}

func stripJSONFence(input string) string {
	cleaned := strings.TrimSpace(input)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	cleaned = strings.TrimLeft(cleaned, "\r\n")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}
