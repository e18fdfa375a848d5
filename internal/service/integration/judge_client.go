package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/labguard/detection-service/internal/service/analyzer"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const judgePromptTemplate = `You are an expert code plagiarism detector for 8051 assembly and C.
Compare the following two code snippets and determine if they are plagiarized.
The codes are implemented for the same assignment, so it is acceptable for algorithms to be very similar, as long as some part of the logic is different.
Ignore variable renaming, comment changes, or whitespace differences.
Focus on logic, use of registers, control flow, and algorithm structure.

Snippet A:
` + "```" + `
%s
` + "```" + `

Snippet B:
` + "```" + `
%s
` + "```" + `

Analyze the similarities and differences.
Conclude with a JSON object in the following format:
{
    "reasoning": "Brief explanation of why...",
    "is_plagiarized": true/false
}`

var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

// GeminiJudge implements analyzer.Judge against the Gemini API. Each call
// carries its own timeout; any transport or parse failure surfaces as an
// error so the resolver can fall back per pair.
type GeminiJudge struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewGeminiJudge(ctx context.Context, apiKey, model string, timeout time.Duration, logger zerolog.Logger) (*GeminiJudge, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("judge API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash-lite"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create judge client: %w", err)
	}

	return &GeminiJudge{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (j *GeminiJudge) Judge(ctx context.Context, codeA, codeB string) (*analyzer.Judgment, error) {
	callCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	startTime := time.Now()

	prompt := fmt.Sprintf(judgePromptTemplate, codeA, codeB)
	resp, err := j.client.Models.GenerateContent(callCtx, j.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("judge call failed: %w", err)
	}

	judgment, err := parseJudgment(resp.Text())
	if err != nil {
		return nil, err
	}

	j.logger.Debug().
		Bool("is_plagiarized", judgment.IsPlagiarized).
		Dur("latency", time.Since(startTime)).
		Msg("Judgment received")

	return judgment, nil
}

// parseJudgment extracts the verdict JSON from the model output, which
// may be wrapped in markdown code fences or surrounded by prose.
func parseJudgment(content string) (*analyzer.Judgment, error) {
	cleaned := strings.ReplaceAll(content, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var judgment analyzer.Judgment
	if err := json.Unmarshal([]byte(cleaned), &judgment); err == nil {
		return &judgment, nil
	}

	if block := jsonBlockRe.FindString(cleaned); block != "" {
		if err := json.Unmarshal([]byte(block), &judgment); err == nil {
			return &judgment, nil
		}
	}

	return nil, fmt.Errorf("failed to parse judgment response: %.100q", content)
}
