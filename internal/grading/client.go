package grading

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"draw-class-service/internal/domain"
)

// DefaultTimeout bounds one grading call; a timed-out call is reported as
// grading-unavailable so the student can retry.
const DefaultTimeout = 25 * time.Second

// Client grades drawings through an OpenAI-compatible vision endpoint.
// It holds no state and never writes to the session store.
type Client struct {
	httpClient *http.Client
	apiKey     string
	apiURL     string
	model      string
}

func NewClient(apiKey, apiURL, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		apiURL:     apiURL,
		model:      model,
	}
}

func (c *Client) IsAvailable() bool {
	return c.apiKey != ""
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const gradingPrompt = `You are grading a student's drawing against a checklist.
For each numbered criterion below, decide whether the drawing satisfies it.
Respond with exactly one line per criterion, in order, in the form "N: PASS" or "N: FAIL".
Output nothing else: no explanations, no markdown.

Criteria:
`

// GradeDrawing submits the image and rule checks and returns one verdict
// per rule, in rule order. The model's output is free text; the parsed
// result is padded with failures or truncated so it always matches the
// rule count.
func (c *Client) GradeDrawing(ctx context.Context, image []byte, contentType string, rules []string) ([]bool, error) {
	if !c.IsAvailable() {
		return nil, fmt.Errorf("grading client not configured: %w", domain.ErrGradingUnavailable)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	var prompt strings.Builder
	prompt.WriteString(gradingPrompt)
	for i, rule := range rules {
		fmt.Fprintf(&prompt, "%d. %s\n", i+1, rule)
	}

	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt.String()},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				},
			},
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal grading request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("build grading request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grading call failed: %w: %v", domain.ErrGradingUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read grading response: %w: %v", domain.ErrGradingUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("grading provider returned %d: %w", resp.StatusCode, domain.ErrGradingUnavailable)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("decode grading response: %w", domain.ErrMalformedResponse)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("grading provider error: %s: %w", chatResp.Error.Message, domain.ErrGradingUnavailable)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("grading response has no choices: %w", domain.ErrMalformedResponse)
	}

	return parseVerdicts(chatResp.Choices[0].Message.Content, len(rules))
}

// parseVerdicts pulls pass/fail tokens out of free-form model output, one
// per line in order. Fewer verdicts than rules pad with false; extras are
// dropped. A reply with no recognizable verdict at all is malformed.
func parseVerdicts(content string, ruleCount int) ([]bool, error) {
	verdicts := make([]bool, 0, ruleCount)
	for _, line := range strings.Split(content, "\n") {
		verdict, ok := verdictToken(line)
		if !ok {
			continue
		}
		verdicts = append(verdicts, verdict)
	}
	if len(verdicts) == 0 {
		return nil, fmt.Errorf("no verdicts in %q: %w", content, domain.ErrMalformedResponse)
	}
	for len(verdicts) < ruleCount {
		verdicts = append(verdicts, false)
	}
	return verdicts[:ruleCount], nil
}

func verdictToken(line string) (bool, bool) {
	for _, field := range strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == ':' || r == ',' || r == '.' || r == '\t'
	}) {
		switch strings.ToLower(field) {
		case "pass", "passed", "true", "yes":
			return true, true
		case "fail", "failed", "false", "no":
			return false, true
		}
	}
	return false, false
}
