package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

// minClassifiableChars is the shortest text worth sending to the model.
const minClassifiableChars = 10

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL, apiKey, model string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
}

type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

type prediction struct {
	PredictedType string  `json:"predicted_type"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning"`
}

func (c *Classifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	if len(strings.TrimSpace(text)) < minClassifiableChars {
		return domain.Classification{}, domain.WrapError(domain.ErrInvalidInput, "gemini classify", errors.New("text too short for classification"))
	}

	respText, err := c.client.generate(ctx, buildClassificationPrompt(text))
	if err != nil {
		return domain.Classification{}, err
	}

	var result prediction
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return domain.Classification{}, fmt.Errorf("parse classification json: %w", err)
	}
	if strings.TrimSpace(result.PredictedType) == "" {
		return domain.Classification{}, errors.New("parse classification json: missing predicted_type")
	}

	return domain.Classification{
		DocumentType: documentTypeFor(result.PredictedType),
		Confidence:   clamp(result.Confidence),
		Method:       domain.MethodGemini,
		Reasoning:    strings.TrimSpace(result.Reasoning),
	}, nil
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	request := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      0,
			ResponseMimeType: "application/json",
		},
	}

	var response generateResponse
	path := fmt.Sprintf("/models/%s:generateContent", c.model)
	if err := c.postJSON(ctx, path, request, &response, "generate"); err != nil {
		return "", err
	}
	for _, candidate := range response.Candidates {
		var b strings.Builder
		for _, p := range candidate.Content.Parts {
			b.WriteString(p.Text)
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			return text, nil
		}
	}
	return "", errors.New("gemini generate: empty response")
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func clamp(confidence float64) float64 {
	switch {
	case confidence < 0:
		return 0
	case confidence > 1:
		return 1
	default:
		return confidence
	}
}
