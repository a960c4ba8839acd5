package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/truleado/truleado-sub002/internal/model"
)

// ErrOracleUnavailable covers every AI-stage failure. It is never fatal: the
// candidate keeps its heuristic score and empty AI fields.
var ErrOracleUnavailable = errors.New("ai oracle unavailable")

// Oracle produces a qualitative verdict for one post.
type Oracle interface {
	Analyze(ctx context.Context, c model.Candidate, p model.Product) (*model.AIAnalysis, error)
}

// ChatOracle calls an OpenAI-compatible chat-completions endpoint.
type ChatOracle struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// NewChatOracle constructs an oracle. timeout bounds each call.
func NewChatOracle(url, apiKey, model string, timeout time.Duration) *ChatOracle {
	return &ChatOracle{
		url:    url,
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// verdict is the JSON object the model is asked to return.
type verdict struct {
	QualityScore float64  `json:"quality_score"`
	Confidence   float64  `json:"confidence"`
	Reasons      []string `json:"reasons"`
	SampleReply  string   `json:"sample_reply"`
}

const systemPrompt = `You qualify Reddit posts as sales leads for a product.
Reply with a JSON object only:
{"quality_score": 0-10 integer, "confidence": 0-1 number,
 "reasons": [short strings], "sample_reply": "a helpful, non-spammy reply the founder could post"}.
A high score means the author has a problem the product solves and is likely to try a solution.`

// Analyze asks the model for a verdict on c.
func (o *ChatOracle) Analyze(ctx context.Context, c model.Candidate, p model.Product) (*model.AIAnalysis, error) {
	payload, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(c, p)},
		},
		Temperature:    0.2,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %v", ErrOracleUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrOracleUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrOracleUnavailable, resp.StatusCode, snippet(body))
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrOracleUnavailable, err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrOracleUnavailable)
	}

	return parseVerdict(cr.Choices[0].Message.Content)
}

// parseVerdict decodes the model's JSON, tolerating a fenced code block.
func parseVerdict(content string) (*model.AIAnalysis, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var v verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &v); err != nil {
		return nil, fmt.Errorf("%w: decode verdict: %v", ErrOracleUnavailable, err)
	}

	quality := int(v.QualityScore + 0.5)
	if quality < 0 {
		quality = 0
	}
	if quality > MaxScore {
		quality = MaxScore
	}
	confidence := v.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &model.AIAnalysis{
		QualityScore: quality,
		Confidence:   confidence,
		Reasons:      v.Reasons,
		SampleReply:  strings.TrimSpace(v.SampleReply),
	}, nil
}

func userPrompt(c model.Candidate, p model.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
	}
	if len(p.PainPoints) > 0 {
		fmt.Fprintf(&b, "Pain points solved: %s\n", strings.Join(p.PainPoints, "; "))
	}
	if len(p.Features) > 0 {
		fmt.Fprintf(&b, "Features: %s\n", strings.Join(p.Features, "; "))
	}
	if len(p.Benefits) > 0 {
		fmt.Fprintf(&b, "Benefits: %s\n", strings.Join(p.Benefits, "; "))
	}
	fmt.Fprintf(&b, "\nPost in r/%s by u/%s (%d upvotes, %d comments)\n", c.Community, c.Author, c.Score, c.NumComments)
	fmt.Fprintf(&b, "Title: %s\n", c.Title)
	body := c.Body
	if len(body) > 4000 {
		body = body[:4000]
	}
	fmt.Fprintf(&b, "Body: %s\n", body)
	return b.String()
}

func snippet(b []byte) string {
	if len(b) > 200 {
		return string(b[:200])
	}
	return string(b)
}
